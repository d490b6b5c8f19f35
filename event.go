package relay

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// EventType is the kind of event the backend pushes to our webhook
type EventType string

// the event types the backend sends us
const (
	EventText     EventType = "text"
	EventImage    EventType = "image"
	EventVideo    EventType = "video"
	EventAudio    EventType = "audio"
	EventDocument EventType = "document"
	EventLocation EventType = "location"
	EventReaction EventType = "reaction"
)

// IsMedia returns whether events of this type carry encrypted media
func (e EventType) IsMedia() bool {
	return e == EventImage || e == EventVideo || e == EventAudio || e == EventDocument
}

// EventSender is who an event came from
type EventSender struct {
	RemoteJID string `json:"remoteJid"`
	Name      string `json:"name"`
}

// Envelope is the top level body of a webhook call, data is decoded once we know the event type
//
//	{
//	  "event": "text",
//	  "from": {"remoteJid": "123@s.whatsapp.net", "name": "Bob"},
//	  "timestamp": "1700000000",
//	  "data": {"id": "m1", "text": "hi"}
//	}
type Envelope struct {
	Event     EventType       `json:"event"     validate:"required"`
	From      EventSender     `json:"from"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"      validate:"required"`
}

// TextPayload is the data of a text event
type TextPayload struct {
	ID   string `json:"id"   validate:"required"`
	Text string `json:"text" validate:"required"`
}

// DecodeKeys are the base64 encoded keys needed to decrypt a media blob
type DecodeKeys struct {
	IV        string `json:"iv"        validate:"required"`
	CipherKey string `json:"cipherKey" validate:"required"`
	MacKey    string `json:"macKey"`
}

// MediaPayload is the data of an image, video, audio or document event
type MediaPayload struct {
	ID         string     `json:"id"         validate:"required"`
	Caption    string     `json:"caption"`
	Format     string     `json:"format"`
	URL        string     `json:"url"        validate:"required"`
	FileSha256 string     `json:"fileSha256"`
	DecodeKeys DecodeKeys `json:"decodeKeys" validate:"required"`
}

// LocationPayload is the data of a location event, coordinates come as numbers or numeric strings
type LocationPayload struct {
	ID               string      `json:"id"               validate:"required"`
	DegreesLatitude  json.Number `json:"degreesLatitude"  validate:"required"`
	DegreesLongitude json.Number `json:"degreesLongitude" validate:"required"`
}

// ReactionPayload is the data of a reaction event
type ReactionPayload struct {
	ID        string `json:"id"        validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji"`
}

// NewPayload returns an empty payload struct for the passed in event type, ready to be decoded into
func NewPayload(event EventType) (any, error) {
	switch event {
	case EventText:
		return &TextPayload{}, nil
	case EventImage, EventVideo, EventAudio, EventDocument:
		return &MediaPayload{}, nil
	case EventLocation:
		return &LocationPayload{}, nil
	case EventReaction:
		return &ReactionPayload{}, nil
	}
	return nil, &MalformedEventError{Event: string(event), Cause: errors.New("unknown event type")}
}

// OutputChannel is one of the typed outputs webhook events are delivered on
type OutputChannel int

// our output channels, every event goes to ChannelAll as well as its own channel
const (
	ChannelAll OutputChannel = iota
	ChannelText
	ChannelImage
	ChannelVideo
	ChannelAudio
	ChannelDocument
	ChannelLocation
	ChannelReaction
)

// NumOutputChannels is the number of output channels a fanout has
const NumOutputChannels = 8

var outputChannelNames = [NumOutputChannels]string{
	"All Events", "Text", "Images", "Videos", "Audio", "Documents", "Locations", "Reactions",
}

func (c OutputChannel) String() string {
	if c < 0 || int(c) >= NumOutputChannels {
		return fmt.Sprintf("OutputChannel(%d)", int(c))
	}
	return outputChannelNames[c]
}

var eventChannels = map[EventType]OutputChannel{
	EventText:     ChannelText,
	EventImage:    ChannelImage,
	EventVideo:    ChannelVideo,
	EventAudio:    ChannelAudio,
	EventDocument: ChannelDocument,
	EventLocation: ChannelLocation,
	EventReaction: ChannelReaction,
}

// Classify returns the specific output channel for the passed in envelope
func Classify(env *Envelope) (OutputChannel, error) {
	channel, found := eventChannels[env.Event]
	if !found {
		return ChannelAll, &MalformedEventError{Event: string(env.Event), Cause: errors.New("unknown event type")}
	}
	return channel, nil
}
