package pongredis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/castaneai/pongcoord"
)

type matchNoticeJSON struct {
	MatchID      string    `json:"match_id"`
	Backend      string    `json:"backend"`
	Clients      [2]string `json:"clients"`
	DispatchedAt int64     `json:"dispatched_at"`
}

func encodeMatchNotice(record pongcoord.MatchRecord) (string, error) {
	j := matchNoticeJSON{
		MatchID:      record.MatchID,
		Backend:      record.Address.String(),
		Clients:      [2]string{string(record.Clients[0]), string(record.Clients[1])},
		DispatchedAt: record.DispatchedAt.UnixMilli(),
	}
	bytes, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to encode match notice: %w", err)
	}
	return rueidis.BinaryString(bytes), nil
}

func decodeMatchNotice(data string) (*pongcoord.MatchRecord, error) {
	var j matchNoticeJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to decode match notice: %w", err)
	}
	if j.MatchID == "" {
		return nil, fmt.Errorf("failed to decode match notice: missing match_id")
	}
	addr, err := pongcoord.ParseBackendAddress(j.Backend)
	if err != nil {
		return nil, fmt.Errorf("failed to decode match notice: %w", err)
	}
	return &pongcoord.MatchRecord{
		MatchID:      j.MatchID,
		Address:      addr,
		Clients:      [2]pongcoord.ClientID{pongcoord.ClientID(j.Clients[0]), pongcoord.ClientID(j.Clients[1])},
		DispatchedAt: time.UnixMilli(j.DispatchedAt),
	}, nil
}

func encodeLastSeen(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeLastSeen(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last seen value: %w", err)
	}
	return time.UnixMilli(ms), nil
}
