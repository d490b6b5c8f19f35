package handlers

// BaseHandler is the base class for most handlers, it just stores the name and channel type for the handler
type BaseHandler struct {
	channelType string
	name        string
}

// NewBaseHandler returns a newly constructed BaseHandler with the passed in parameters
func NewBaseHandler(channelType string, name string) BaseHandler {
	return BaseHandler{channelType: channelType, name: name}
}

// ChannelType returns the channel type that this handler deals with
func (h *BaseHandler) ChannelType() string {
	return h.channelType
}

// ChannelName returns the name of the channel this handler deals with
func (h *BaseHandler) ChannelName() string {
	return h.name
}
