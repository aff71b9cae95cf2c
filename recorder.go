package pongcoord

import (
	"context"
)

// Recorder receives state changes for external observers.
// Implementations must not block the caller for long; errors are logged by the caller and otherwise ignored.
type Recorder interface {
	RecordBackendStatus(ctx context.Context, status BackendStatus) error
	RecordMatch(ctx context.Context, record MatchRecord) error
}

type NopRecorder struct{}

func (NopRecorder) RecordBackendStatus(context.Context, BackendStatus) error { return nil }

func (NopRecorder) RecordMatch(context.Context, MatchRecord) error { return nil }
