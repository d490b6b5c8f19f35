package relay

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow/types"
)

// CommandKind is the kind of an outbound command
type CommandKind string

// the kinds of commands we can send to a bot
const (
	CommandText           CommandKind = "text"
	CommandImage          CommandKind = "image"
	CommandAudio          CommandKind = "audio"
	CommandVideo          CommandKind = "video"
	CommandDocument       CommandKind = "document"
	CommandLocation       CommandKind = "location"
	CommandReactionAdd    CommandKind = "reaction_add"
	CommandReactionDelete CommandKind = "reaction_delete"
)

// IsMedia returns whether commands of this kind carry a binary body
func (k CommandKind) IsMedia() bool {
	return k == CommandImage || k == CommandAudio || k == CommandVideo || k == CommandDocument
}

// Command is a single outbound action against a bot
type Command interface {
	Kind() CommandKind
	Recipient() string
	Validate() error
}

// CommandResolver turns some description of a command into a validated Command
type CommandResolver interface {
	ResolveCommand() (Command, error)
}

// ValidateJID checks that the passed in string is a WhatsApp JID addressing a user or group
func ValidateJID(jid string) error {
	if jid == "" {
		return errors.New("remote jid is required")
	}
	parsed, err := types.ParseJID(jid)
	if err != nil {
		return errors.Wrapf(err, "invalid remote jid %q", jid)
	}
	if parsed.User == "" {
		return errors.Errorf("remote jid %q has no user part", jid)
	}
	return nil
}

// TextCommand sends a plain text message
type TextCommand struct {
	RemoteJID string
	Text      string
}

func (c TextCommand) Kind() CommandKind { return CommandText }
func (c TextCommand) Recipient() string { return c.RemoteJID }

func (c TextCommand) Validate() error {
	if err := ValidateJID(c.RemoteJID); err != nil {
		return err
	}
	if c.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

func (c TextCommand) ResolveCommand() (Command, error) { return c, c.Validate() }

// MediaSource is where the bytes of a media command come from, either a URL or the bytes themselves
type MediaSource struct {
	URL  string
	Data []byte
}

// IsDataURL returns whether our URL carries its content inline
func (s MediaSource) IsDataURL() bool {
	return strings.HasPrefix(s.URL, "data:")
}

// MediaCommand sends an image, audio, video or document
type MediaCommand struct {
	MediaKind CommandKind
	RemoteJID string
	Source    MediaSource

	// Extension is only used for documents
	Extension string
}

func (c MediaCommand) Kind() CommandKind { return c.MediaKind }
func (c MediaCommand) Recipient() string { return c.RemoteJID }

func (c MediaCommand) Validate() error {
	if !c.MediaKind.IsMedia() {
		return errors.Errorf("%q is not a media kind", c.MediaKind)
	}
	if err := ValidateJID(c.RemoteJID); err != nil {
		return err
	}
	hasURL, hasData := c.Source.URL != "", len(c.Source.Data) > 0
	if hasURL == hasData {
		return errors.New("exactly one of url or data must be set")
	}
	if c.MediaKind == CommandDocument && c.Extension == "" {
		return errors.New("extension is required for documents")
	}
	return nil
}

func (c MediaCommand) ResolveCommand() (Command, error) { return c, c.Validate() }

// LocationCommand sends a location pin
type LocationCommand struct {
	RemoteJID string
	Latitude  float64
	Longitude float64
}

func (c LocationCommand) Kind() CommandKind { return CommandLocation }
func (c LocationCommand) Recipient() string { return c.RemoteJID }

func (c LocationCommand) Validate() error {
	if err := ValidateJID(c.RemoteJID); err != nil {
		return err
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return errors.Errorf("latitude %f out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return errors.Errorf("longitude %f out of range", c.Longitude)
	}
	return nil
}

func (c LocationCommand) ResolveCommand() (Command, error) { return c, c.Validate() }

// ReactionCommand reacts to a message with an emoji
type ReactionCommand struct {
	RemoteJID string
	Emoji     string
	MessageID string
}

func (c ReactionCommand) Kind() CommandKind { return CommandReactionAdd }
func (c ReactionCommand) Recipient() string { return c.RemoteJID }

func (c ReactionCommand) Validate() error {
	if err := ValidateJID(c.RemoteJID); err != nil {
		return err
	}
	if c.Emoji == "" {
		return errors.New("emoji is required")
	}
	if c.MessageID == "" {
		return errors.New("message id is required")
	}
	return nil
}

func (c ReactionCommand) ResolveCommand() (Command, error) { return c, c.Validate() }

// DeleteReactionCommand removes our reaction from a message
type DeleteReactionCommand struct {
	RemoteJID string
	MessageID string
}

func (c DeleteReactionCommand) Kind() CommandKind { return CommandReactionDelete }
func (c DeleteReactionCommand) Recipient() string { return c.RemoteJID }

func (c DeleteReactionCommand) Validate() error {
	if err := ValidateJID(c.RemoteJID); err != nil {
		return err
	}
	if c.MessageID == "" {
		return errors.New("message id is required")
	}
	return nil
}

func (c DeleteReactionCommand) ResolveCommand() (Command, error) { return c, c.Validate() }

// CommandSpec is the JSON description of a command as received on our batch endpoint
type CommandSpec struct {
	Kind      CommandKind `json:"kind"       validate:"required"`
	RemoteJID string      `json:"remote_jid" validate:"required"`
	Text      string      `json:"text,omitempty"`
	URL       string      `json:"url,omitempty"`
	Data      []byte      `json:"data,omitempty"`
	Extension string      `json:"extension,omitempty"`
	Latitude  *float64    `json:"latitude,omitempty"`
	Longitude *float64    `json:"longitude,omitempty"`
	Emoji     string      `json:"emoji,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// ResolveCommand builds the command this spec describes and validates it
func (s *CommandSpec) ResolveCommand() (Command, error) {
	var cmd Command

	switch s.Kind {
	case CommandText:
		cmd = TextCommand{RemoteJID: s.RemoteJID, Text: s.Text}
	case CommandImage, CommandAudio, CommandVideo, CommandDocument:
		cmd = MediaCommand{MediaKind: s.Kind, RemoteJID: s.RemoteJID, Source: MediaSource{URL: s.URL, Data: s.Data}, Extension: s.Extension}
	case CommandLocation:
		if s.Latitude == nil || s.Longitude == nil {
			return nil, errors.New("latitude and longitude are required")
		}
		cmd = LocationCommand{RemoteJID: s.RemoteJID, Latitude: *s.Latitude, Longitude: *s.Longitude}
	case CommandReactionAdd:
		cmd = ReactionCommand{RemoteJID: s.RemoteJID, Emoji: s.Emoji, MessageID: s.MessageID}
	case CommandReactionDelete:
		cmd = DeleteReactionCommand{RemoteJID: s.RemoteJID, MessageID: s.MessageID}
	default:
		return nil, fmt.Errorf("unknown command kind: %q", s.Kind)
	}

	if err := cmd.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s command", s.Kind)
	}
	return cmd, nil
}

// OutboundResult is what the backend told us about a command we sent
type OutboundResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}
