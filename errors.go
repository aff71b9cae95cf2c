package pongcoord

import (
	"errors"
	"fmt"
)

type ErrorStatus string

const (
	ErrorStatusUnknown          ErrorStatus = "unknown"
	ErrorStatusTransport        ErrorStatus = "transport"
	ErrorStatusDecode           ErrorStatus = "decode"
	ErrorStatusNameResolution   ErrorStatus = "name_resolution"
	ErrorStatusProtocol         ErrorStatus = "protocol"
	ErrorStatusNotEnoughClients ErrorStatus = "not_enough_clients"
	ErrorStatusInvalidRequest   ErrorStatus = "invalid_request"
)

var (
	// ErrNoReservation is returned when no Waiting backend granted a reservation.
	ErrNoReservation = errors.New("no backend granted a reservation")
)

type Error struct {
	Status ErrorStatus
	err    error
}

func NewError(status ErrorStatus, err error) *Error {
	return &Error{err: err, Status: status}
}

func (e *Error) Error() string {
	return fmt.Errorf("pongcoord error(status: %s): %w", e.Status, e.err).Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

func ErrorHasStatus(target error, status ErrorStatus) bool {
	var e *Error
	if errors.As(target, &e) {
		return e.Status == status
	}
	return false
}
