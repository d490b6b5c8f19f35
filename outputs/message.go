package outputs

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/kesherwa/relay"
	"github.com/pkg/errors"
)

// Message is what we publish for a fanout, binary data is base64 encoded
//
//	{
//	  "delivery_id": "0f0b1ba6-0dfd-4d2a-8c2d-bc0e1f0b3f6c",
//	  "channel": 1,
//	  "channel_name": "Text",
//	  "delivered_on": "2024-03-08T16:08:19Z",
//	  "json": {"event": "text", "from": {...}, "timestamp": "1700000000", "id": "m1", "text": "hi"}
//	}
type Message struct {
	DeliveryID  string              `json:"delivery_id"`
	Channel     int                 `json:"channel"`
	ChannelName string              `json:"channel_name"`
	DeliveredOn time.Time           `json:"delivered_on"`
	JSON        map[string]any      `json:"json"`
	Binary      *relay.DecodedMedia `json:"binary,omitempty"`
}

// NewMessage creates a new message for the passed in fanout with a fresh delivery id
func NewMessage(fanout *relay.Fanout) (*Message, error) {
	deliveryID, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate delivery id")
	}

	record := fanout.Record()
	return &Message{
		DeliveryID:  deliveryID.String(),
		Channel:     int(fanout.Channel()),
		ChannelName: fanout.Channel().String(),
		DeliveredOn: time.Now().UTC(),
		JSON:        record.JSON,
		Binary:      record.Binary,
	}, nil
}

// RoutingKey returns the routing key messages for the passed in channel are published with. Consumers of
// every event bind to event.#
func RoutingKey(channel relay.OutputChannel) string {
	return "event." + strings.ReplaceAll(strings.ToLower(channel.String()), " ", "_")
}
