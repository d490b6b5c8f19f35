package kesherwa

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kesherwa/relay"
	"github.com/kesherwa/relay/handlers"
	"github.com/kesherwa/relay/media"
	"github.com/kesherwa/relay/utils"
	"github.com/pkg/errors"
)

const channelType = "kw"

func init() {
	relay.RegisterHandler(newHandler())
}

type handler struct {
	handlers.BaseHandler

	auth         *handlers.WebhookAuth
	decoder      *media.Decoder
	maxBodyBytes int64
}

func newHandler() relay.ChannelHandler {
	return &handler{BaseHandler: handlers.NewBaseHandler(channelType, "KesherWA")}
}

// Initialize is called by the server when our handler is activated
func (h *handler) Initialize(s relay.Server) error {
	config := s.Config()
	auth, err := handlers.NewWebhookAuth(config)
	if err != nil {
		return err
	}
	h.auth = auth
	h.decoder = media.NewDecoder(config)
	h.maxBodyBytes = config.MaxBodyBytes

	s.AddHandlerRoute(h, http.MethodPost, config.WebhookPath, h.receiveEvent)
	return nil
}

// receiveEvent is our HTTP handler function for events pushed by the bot
func (h *handler) receiveEvent(ctx context.Context, w http.ResponseWriter, r *http.Request) (*relay.Fanout, error) {
	// authenticate before we read a single byte of the body
	if err := h.auth.Check(r); err != nil {
		return nil, err
	}

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	env := &relay.Envelope{}
	if err := utils.DecodeAndValidateJSON(env, r); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, &relay.MalformedEventError{Cause: err}
	}

	channel, err := relay.Classify(env)
	if err != nil {
		return nil, err
	}

	payload, err := relay.NewPayload(env.Event)
	if err != nil {
		return nil, err
	}
	if err := utils.UnmarshalAndValidate(env.Data, payload); err != nil {
		return nil, &relay.MalformedEventError{Event: string(env.Event), Cause: err}
	}

	var fields map[string]any
	var decoded *relay.DecodedMedia

	if mediaPayload, isMedia := payload.(*relay.MediaPayload); isMedia {
		decoded, err = h.decoder.Decode(ctx, env.Event, mediaPayload)
		if err != nil {
			return nil, err
		}
	} else {
		fields, err = payloadFields(env.Data)
		if err != nil {
			return nil, &relay.MalformedEventError{Event: string(env.Event), Cause: err}
		}
	}

	return relay.NewFanout(channel, relay.NewOutputRecord(env, fields, decoded))
}

// payloadFields decodes the passed in payload to a map, keeping numbers as they were sent
func payloadFields(data json.RawMessage) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	fields := make(map[string]any)
	if err := decoder.Decode(&fields); err != nil {
		return nil, errors.Wrap(err, "unable to decode event data")
	}
	return fields, nil
}
