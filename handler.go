package relay

import (
	"context"
	"net/http"
)

// ChannelHandleFunc is the interface ChannelHandlers must satisfy to handle incoming requests.
// It returns the fanout built from the request, which the server delivers to its sink.
type ChannelHandleFunc func(context.Context, http.ResponseWriter, *http.Request) (*Fanout, error)

// ChannelHandler is the interface all handlers must satisfy
type ChannelHandler interface {
	Initialize(Server) error
	ChannelType() string
	ChannelName() string
}

// RegisterHandler adds a new handler for a channel type, this is called by individual handlers when they are initialized
func RegisterHandler(handler ChannelHandler) {
	registeredHandlers[handler.ChannelType()] = handler
}

var registeredHandlers = make(map[string]ChannelHandler)
