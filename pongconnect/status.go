// Package pongconnect serves the coordinator status over Connect RPC.
package pongconnect

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/castaneai/pongcoord"
)

const (
	StatusServiceName               = "pongcoord.v1.StatusService"
	StatusServiceGetStatusProcedure = "/" + StatusServiceName + "/GetStatus"
)

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Backends  []BackendStatus `json:"backends"`
	Searching int             `json:"searching"`
}

type BackendStatus struct {
	Address             string    `json:"address"`
	Phase               string    `json:"phase"`
	LastSeen            time.Time `json:"last_seen"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

type StatusSource interface {
	Status(ctx context.Context) (*pongcoord.Snapshot, error)
}

type statusService struct {
	source StatusSource
}

// NewStatusHandler returns the path and handler of the status service.
func NewStatusHandler(source StatusSource, opts ...connect.HandlerOption) (string, http.Handler) {
	s := &statusService{source: source}
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(StatusServiceGetStatusProcedure, connect.NewUnaryHandler(StatusServiceGetStatusProcedure, s.GetStatus, opts...))
	return "/" + StatusServiceName + "/", mux
}

func (s *statusService) GetStatus(ctx context.Context, req *connect.Request[GetStatusRequest]) (*connect.Response[GetStatusResponse], error) {
	snapshot, err := s.source.Status(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, connect.NewError(connect.CodeDeadlineExceeded, err)
		}
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	resp := &GetStatusResponse{Searching: snapshot.Searching}
	for _, b := range snapshot.Backends {
		resp.Backends = append(resp.Backends, BackendStatus{
			Address:             b.Address.String(),
			Phase:               b.Phase.String(),
			LastSeen:            b.LastSeen,
			ConsecutiveFailures: b.ConsecutiveFailures,
		})
	}
	return connect.NewResponse(resp), nil
}

type StatusClient struct {
	getStatus *connect.Client[GetStatusRequest, GetStatusResponse]
}

func NewStatusClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *StatusClient {
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &StatusClient{
		getStatus: connect.NewClient[GetStatusRequest, GetStatusResponse](httpClient, baseURL+StatusServiceGetStatusProcedure, opts...),
	}
}

func (c *StatusClient) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	resp, err := c.getStatus.CallUnary(ctx, connect.NewRequest(&GetStatusRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
