// Package wsclient is the participant side of the match WebSocket: a dialer with a
// ping loop and reconnect backoff that delivers decoded events to callbacks.
package wsclient

import (
	"context"
	"errors"

	"github.com/park285/cheese-match/pkg/matchproto"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by Send while no connection is up.
var ErrNotConnected = errors.New("wsclient: not connected")

type EventCallback func(ev *matchproto.Event)

type StateCallback func(state State)

type Client interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, in matchproto.Intent) error
	OnEvent(cb EventCallback) int
	RemoveEventCallback(id int)
	OnStateChange(cb StateCallback) int
	RemoveStateCallback(id int)
	Close(ctx context.Context) error
}
