package pongredis

import (
	"fmt"

	"github.com/castaneai/pongcoord"
)

const (
	redisHashFieldPhase               = "phase"
	redisHashFieldPhaseName           = "phase_name"
	redisHashFieldConsecutiveFailures = "consecutive_failures"
	redisHashFieldLastSeen            = "last_seen"
)

func redisKeyBackendStatus(prefix string, addr pongcoord.BackendAddress) string {
	return fmt.Sprintf("%sbackends:%s", prefix, addr)
}

func redisChannelMatches(prefix string) string {
	return fmt.Sprintf("%smatches", prefix)
}
