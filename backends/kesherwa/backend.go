package kesherwa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/buger/jsonparser"
	"github.com/kesherwa/relay"
	"github.com/kesherwa/relay/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vincent-petithory/dataurl"
)

func init() {
	relay.RegisterBackend("kesherwa", newBackend)
}

const (
	checkPath    = "/api/whatsapp/credentials/check"
	messagePath  = "/api/whatsapp/message"
	locationPath = "/api/whatsapp/location"
	reactionPath = "/api/whatsapp/reaction"
)

// the fields of the backend's data object we return for each kind of command
var resultFields = map[relay.CommandKind][]string{
	relay.CommandText:           {"id", "remoteJid", "text"},
	relay.CommandImage:          {"id", "remoteJid"},
	relay.CommandAudio:          {"id", "remoteJid"},
	relay.CommandVideo:          {"id", "remoteJid"},
	relay.CommandDocument:       {"id", "remoteJid", "extension"},
	relay.CommandLocation:       {"id", "remoteJid", "degreesLatitude", "degreesLongitude"},
	relay.CommandReactionAdd:    {"id", "remoteJid", "messageId", "emoji"},
	relay.CommandReactionDelete: {"id", "remoteJid", "messageId"},
}

type textPayload struct {
	RemoteJID string `json:"remoteJid"`
	Text      string `json:"text"`
}

type locationPayload struct {
	RemoteJID        string  `json:"remoteJid"`
	DegreesLatitude  float64 `json:"degreesLatitude"`
	DegreesLongitude float64 `json:"degreesLongitude"`
}

type reactionPayload struct {
	RemoteJID string `json:"remoteJid"`
	Emoji     string `json:"emoji"`
	MessageID string `json:"messageId"`
}

type deleteReactionPayload struct {
	RemoteJID string `json:"remoteJid"`
	MessageID string `json:"messageId"`
}

type backend struct {
	config  *relay.Config
	builder *RequestBuilder
	log     *logrus.Entry
}

func newBackend(config *relay.Config) relay.Backend {
	return &backend{
		config:  config,
		builder: &RequestBuilder{URLPattern: config.BackendURL},
		log:     logrus.WithField("comp", "backend").WithField("backend", "kesherwa"),
	}
}

func (b *backend) Start() error {
	b.log.WithField("state", "starting").WithField("url", b.config.BackendURL).Info("starting backend")
	return nil
}

func (b *backend) Stop() error {
	b.log.WithField("state", "stopped").Info("backend stopped")
	return nil
}

func (b *backend) Health() string {
	return ""
}

func (b *backend) Status() string {
	return fmt.Sprintf("backend: kesherwa\nurl:     %s\n", b.config.BackendURL)
}

// CheckCredential asks the bot whether it accepts the passed in credential
func (b *backend) CheckCredential(ctx context.Context, cred relay.BotCredential) error {
	req, err := b.builder.NewJSONRequest(ctx, cred, http.MethodGet, checkPath, nil)
	if err != nil {
		return err
	}
	rr, err := req.Do()
	if err != nil {
		return errors.Wrapf(err, "credential check against bot %s failed", cred.BotID)
	}
	b.log.WithField("bot_id", cred.BotID).WithField("elapsed", rr.Elapsed).Debug("credential checked")
	return nil
}

// Send carries out the passed in command against the bot
func (b *backend) Send(ctx context.Context, cred relay.BotCredential, cmd relay.Command) (*relay.OutboundResult, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, &relay.InvalidCommandError{Cause: errors.Wrapf(err, "invalid %s command", cmd.Kind())}
	}

	req, err := b.buildRequest(ctx, cred, cmd)
	if err != nil {
		if errors.Is(err, relay.ErrInvalidCredential) {
			return nil, err
		}
		return nil, &relay.CommandFailedError{Kind: cmd.Kind(), Cause: err}
	}

	log := b.log.WithField("bot_id", cred.BotID).WithField("kind", cmd.Kind()).WithField("url", req.URL.String())

	rr, err := req.Do()
	if err != nil {
		log.WithError(err).WithField("status_code", rr.StatusCode).Error("error sending command")
		cause := errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
		if msg, merr := jsonparser.GetString(rr.Body, "msg"); merr == nil && msg != "" {
			cause = errors.Wrap(cause, msg)
		}
		return nil, &relay.CommandFailedError{Kind: cmd.Kind(), Cause: cause}
	}
	log.WithField("elapsed", rr.Elapsed).Debug("command sent")

	result, err := parseResult(cmd.Kind(), rr.Body)
	if err != nil {
		return nil, &relay.CommandFailedError{Kind: cmd.Kind(), Cause: err}
	}
	return result, nil
}

func (b *backend) buildRequest(ctx context.Context, cred relay.BotCredential, cmd relay.Command) (*AuthenticatedRequest, error) {
	switch c := cmd.(type) {
	case relay.TextCommand:
		return b.builder.NewJSONRequest(ctx, cred, http.MethodPost, messagePath, &textPayload{c.RemoteJID, c.Text})

	case relay.MediaCommand:
		data, err := b.resolveMedia(ctx, cred, c.Source)
		if err != nil {
			return nil, err
		}
		headers := map[string]string{"remote-jid": c.RemoteJID}
		if c.MediaKind == relay.CommandDocument {
			headers["extension"] = c.Extension
		}
		return b.builder.NewRawRequest(ctx, cred, http.MethodPost, "/api/whatsapp/"+string(c.MediaKind), data, headers)

	case relay.LocationCommand:
		return b.builder.NewJSONRequest(ctx, cred, http.MethodPost, locationPath, &locationPayload{c.RemoteJID, c.Latitude, c.Longitude})

	case relay.ReactionCommand:
		return b.builder.NewJSONRequest(ctx, cred, http.MethodPost, reactionPath, &reactionPayload{c.RemoteJID, c.Emoji, c.MessageID})

	case relay.DeleteReactionCommand:
		return b.builder.NewJSONRequest(ctx, cred, http.MethodDelete, reactionPath, &deleteReactionPayload{c.RemoteJID, c.MessageID})
	}

	return nil, errors.Errorf("unsupported command type %T", cmd)
}

// resolveMedia returns the bytes of the passed in source, downloading them if needed
func (b *backend) resolveMedia(ctx context.Context, cred relay.BotCredential, source relay.MediaSource) ([]byte, error) {
	if len(source.Data) > 0 {
		return source.Data, nil
	}

	if source.IsDataURL() {
		decoded, err := dataurl.DecodeString(source.URL)
		if err != nil {
			return nil, errors.Wrap(err, "unable to decode data url")
		}
		return decoded.Data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid media url %s", source.URL)
	}

	var rr *utils.RequestResponse
	if cred.SkipTLSVerify {
		rr, err = utils.MakeInsecureHTTPRequest(req)
	} else {
		rr, err = utils.MakeHTTPRequest(req)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to fetch media from %s", source.URL)
	}
	return rr.Body, nil
}

// parseResult maps the backend's {status, data, msg} envelope to a result, lifting the fields for our kind
func parseResult(kind relay.CommandKind, body []byte) (*relay.OutboundResult, error) {
	status, err := jsonparser.GetBoolean(body, "status")
	if err != nil {
		return nil, errors.Wrap(err, "unable to read status from response")
	}

	msg, err := jsonparser.GetString(body, "msg")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, errors.Wrap(err, "unable to read msg from response")
	}

	result := &relay.OutboundResult{Success: status, Data: map[string]any{}, Message: msg}

	data, dataType, _, err := jsonparser.Get(body, "data")
	if err != nil || dataType == jsonparser.Null {
		// a refused command doesn't always carry data
		if !status && (err == jsonparser.KeyPathNotFoundError || dataType == jsonparser.Null) {
			return result, nil
		}
		return nil, errors.New("response is missing data")
	}
	if dataType != jsonparser.Object {
		return nil, errors.Errorf("response data is a %s, not an object", dataType)
	}

	for _, key := range resultFields[kind] {
		value, valueType, _, err := jsonparser.Get(data, key)
		if err == jsonparser.KeyPathNotFoundError {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read data.%s from response", key)
		}

		switch valueType {
		case jsonparser.String:
			s, err := jsonparser.ParseString(value)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to parse data.%s", key)
			}
			result.Data[key] = s
		case jsonparser.Number:
			n, err := jsonparser.ParseFloat(value)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to parse data.%s", key)
			}
			result.Data[key] = n
		case jsonparser.Boolean:
			v, _ := jsonparser.ParseBoolean(value)
			result.Data[key] = v
		case jsonparser.Null:
			result.Data[key] = nil
		default:
			result.Data[key] = json.RawMessage(bytes.Clone(value))
		}
	}

	return result, nil
}
