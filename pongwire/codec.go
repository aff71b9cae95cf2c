// Package pongwire encodes the message envelope in the protobuf wire format.
//
// The envelope is a oneof with exactly one populated variant:
//
//	message Message {
//	  oneof content {
//	    Search  search  = 1;
//	    Match   match   = 2;
//	    Query   query   = 3;
//	    Status  status  = 4;
//	    Prepare prepare = 5;
//	    Tokens  tokens  = 6;
//	  }
//	}
package pongwire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/castaneai/pongcoord"
)

const (
	fieldSearch  protowire.Number = 1
	fieldMatch   protowire.Number = 2
	fieldQuery   protowire.Number = 3
	fieldStatus  protowire.Number = 4
	fieldPrepare protowire.Number = 5
	fieldTokens  protowire.Number = 6
)

// Match
const (
	fieldMatchHost   protowire.Number = 1
	fieldMatchPort   protowire.Number = 2
	fieldMatchToken  protowire.Number = 3
	fieldMatchPlayer protowire.Number = 4
)

// Player
const (
	fieldPlayerIdentifier      protowire.Number = 1
	fieldPlayerPaddleDirection protowire.Number = 2
	fieldPlayerPaddleLocation  protowire.Number = 3
	fieldPlayerScore           protowire.Number = 4
)

// Status, Prepare, Tokens
const (
	fieldStatusPhase    protowire.Number = 1
	fieldPrepareSecret  protowire.Number = 1
	fieldTokensTokenOne protowire.Number = 1
	fieldTokensTokenTwo protowire.Number = 2
)

var errEmptyEnvelope = errors.New("envelope has no populated variant")

// Encode serializes a single message into an envelope.
func Encode(msg pongcoord.Message) ([]byte, error) {
	var (
		num  protowire.Number
		body []byte
	)
	switch m := msg.(type) {
	case *pongcoord.Search:
		num = fieldSearch
	case *pongcoord.Match:
		if m == nil {
			return nil, encodeError(msg)
		}
		num, body = fieldMatch, appendMatch(nil, m)
	case *pongcoord.Query:
		num = fieldQuery
	case *pongcoord.Status:
		if m == nil {
			return nil, encodeError(msg)
		}
		num, body = fieldStatus, appendVarint(nil, fieldStatusPhase, uint64(m.Phase))
	case *pongcoord.Prepare:
		if m == nil {
			return nil, encodeError(msg)
		}
		num, body = fieldPrepare, appendString(nil, fieldPrepareSecret, m.Secret)
	case *pongcoord.ReservationTokens:
		if m == nil {
			return nil, encodeError(msg)
		}
		body = appendString(nil, fieldTokensTokenOne, m.TokenA)
		num, body = fieldTokens, appendString(body, fieldTokensTokenTwo, m.TokenB)
	default:
		return nil, encodeError(msg)
	}
	b := protowire.AppendTag(nil, num, protowire.BytesType)
	return protowire.AppendBytes(b, body), nil
}

func encodeError(msg pongcoord.Message) error {
	return pongcoord.NewError(pongcoord.ErrorStatusInvalidRequest, fmt.Errorf("failed to encode message: unsupported message %T", msg))
}

// Decode parses one envelope. When several variants are present the last one wins, as in protobuf oneofs.
func Decode(data []byte) (pongcoord.Message, error) {
	var msg pongcoord.Message
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType || num < fieldSearch || num > fieldTokens {
			return skip(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		m, err := decodeVariant(num, v)
		if err != nil {
			return 0, err
		}
		msg = m
		return n, nil
	})
	if err != nil {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusDecode, fmt.Errorf("failed to decode message: %w", err))
	}
	if msg == nil {
		return nil, pongcoord.NewError(pongcoord.ErrorStatusDecode, fmt.Errorf("failed to decode message: %w", errEmptyEnvelope))
	}
	return msg, nil
}

func decodeVariant(num protowire.Number, b []byte) (pongcoord.Message, error) {
	switch num {
	case fieldSearch:
		return &pongcoord.Search{}, walk(b, skip)
	case fieldQuery:
		return &pongcoord.Query{}, walk(b, skip)
	case fieldMatch:
		return decodeMatch(b)
	case fieldStatus:
		m := &pongcoord.Status{}
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == fieldStatusPhase && typ == protowire.VarintType {
				v, n := protowire.ConsumeVarint(b)
				m.Phase = pongcoord.Phase(int32(v))
				return n, nil
			}
			return skip(num, typ, b)
		})
		return m, err
	case fieldPrepare:
		m := &pongcoord.Prepare{}
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == fieldPrepareSecret && typ == protowire.BytesType {
				return consumeString(b, &m.Secret)
			}
			return skip(num, typ, b)
		})
		return m, err
	case fieldTokens:
		m := &pongcoord.ReservationTokens{}
		err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch {
			case num == fieldTokensTokenOne && typ == protowire.BytesType:
				return consumeString(b, &m.TokenA)
			case num == fieldTokensTokenTwo && typ == protowire.BytesType:
				return consumeString(b, &m.TokenB)
			}
			return skip(num, typ, b)
		})
		return m, err
	}
	return nil, fmt.Errorf("unknown envelope field %d", num)
}

func appendMatch(b []byte, m *pongcoord.Match) []byte {
	b = appendString(b, fieldMatchHost, m.Host)
	b = appendVarint(b, fieldMatchPort, uint64(m.Port))
	b = appendString(b, fieldMatchToken, m.Token)

	var player []byte
	player = appendVarint(player, fieldPlayerIdentifier, uint64(m.Player.Seat))
	player = appendVarint(player, fieldPlayerPaddleDirection, uint64(m.Player.PaddleDirection))
	if m.Player.PaddleLocation != 0 {
		player = protowire.AppendTag(player, fieldPlayerPaddleLocation, protowire.Fixed32Type)
		player = protowire.AppendFixed32(player, math.Float32bits(m.Player.PaddleLocation))
	}
	player = appendVarint(player, fieldPlayerScore, uint64(m.Player.Score))
	b = protowire.AppendTag(b, fieldMatchPlayer, protowire.BytesType)
	return protowire.AppendBytes(b, player)
}

func decodeMatch(b []byte) (*pongcoord.Match, error) {
	m := &pongcoord.Match{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldMatchHost && typ == protowire.BytesType:
			return consumeString(b, &m.Host)
		case num == fieldMatchPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Port = int(int32(v))
			return n, nil
		case num == fieldMatchToken && typ == protowire.BytesType:
			return consumeString(b, &m.Token)
		case num == fieldMatchPlayer && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			return n, decodePlayer(v, &m.Player)
		}
		return skip(num, typ, b)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodePlayer(b []byte, p *pongcoord.Player) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldPlayerIdentifier && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.Seat = pongcoord.Seat(int32(v))
			return n, nil
		case num == fieldPlayerPaddleDirection && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.PaddleDirection = pongcoord.Direction(int32(v))
			return n, nil
		case num == fieldPlayerPaddleLocation && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			p.PaddleLocation = math.Float32frombits(v)
			return n, nil
		case num == fieldPlayerScore && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.Score = int(int32(v))
			return n, nil
		}
		return skip(num, typ, b)
	})
}

// walk visits every field of a message. visit returns the number of value bytes it consumed;
// a negative count is a protowire parse error.
func walk(b []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		n, err := visit(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	return protowire.ConsumeFieldValue(num, typ, b), nil
}

func consumeString(b []byte, dst *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}
