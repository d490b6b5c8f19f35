package relay

import (
	"github.com/pkg/errors"
)

// DecodedMedia is decrypted media attached to an output record
type DecodedMedia struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName"`
	FileSize int    `json:"fileSize"`
}

// OutputRecord is what we deliver for a single webhook call
type OutputRecord struct {
	JSON   map[string]any `json:"json"`
	Binary *DecodedMedia  `json:"binary,omitempty"`
}

// NewOutputRecord builds a record from our envelope, merging in the passed in payload fields and media.
// Payload fields win over envelope fields of the same name.
func NewOutputRecord(env *Envelope, fields map[string]any, media *DecodedMedia) *OutputRecord {
	record := &OutputRecord{
		JSON: map[string]any{
			"event":     string(env.Event),
			"from":      map[string]any{"remoteJid": env.From.RemoteJID, "name": env.From.Name},
			"timestamp": env.Timestamp,
		},
		Binary: media,
	}

	for k, v := range fields {
		record.JSON[k] = v
	}
	return record
}

// Fanout is the delivery unit for one webhook call, a record placed on the all events channel
// and on the channel specific to its event
type Fanout struct {
	channel OutputChannel
	outputs [NumOutputChannels][]*OutputRecord
}

// NewFanout places the passed in record on ChannelAll and on channel
func NewFanout(channel OutputChannel, record *OutputRecord) (*Fanout, error) {
	if channel <= ChannelAll || int(channel) >= NumOutputChannels {
		return nil, errors.Errorf("invalid output channel: %d", channel)
	}
	if record == nil {
		return nil, errors.New("nil output record")
	}

	f := &Fanout{channel: channel}
	f.outputs[ChannelAll] = []*OutputRecord{record}
	f.outputs[channel] = []*OutputRecord{record}
	return f, nil
}

// Channel returns the event specific channel of this fanout
func (f *Fanout) Channel() OutputChannel { return f.channel }

// Record returns the single record of this fanout
func (f *Fanout) Record() *OutputRecord { return f.outputs[ChannelAll][0] }

// Output returns the records on the passed in channel, empty for channels other than ChannelAll and ours
func (f *Fanout) Output(c OutputChannel) []*OutputRecord {
	if c < 0 || int(c) >= NumOutputChannels {
		return nil
	}
	return f.outputs[c]
}

// Outputs returns the records of every channel, indexed by channel
func (f *Fanout) Outputs() [NumOutputChannels][]*OutputRecord { return f.outputs }
