package outputs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kesherwa/relay"
	"github.com/kesherwa/relay/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func init() {
	relay.RegisterSink("webhook", func(config *relay.Config) (relay.Sink, error) {
		return NewWebhookSink(config.ForwardURL, config.ForwardToken)
	})
}

// WebhookSink posts each fanout as JSON to a configured URL
type WebhookSink struct {
	url   string
	token string
}

// NewWebhookSink creates a new sink posting to the passed in URL, token is sent as a bearer token when set
func NewWebhookSink(url string, token string) (*WebhookSink, error) {
	if url == "" {
		return nil, errors.New("forward url is required for the webhook sink")
	}
	return &WebhookSink{url: url, token: token}, nil
}

// Deliver posts the passed in fanout, any non 2xx response is an error
func (s *WebhookSink) Deliver(ctx context.Context, fanout *relay.Fanout) error {
	msg, err := NewMessage(fanout)
	if err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "unable to marshal output message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "unable to build forward request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", msg.DeliveryID)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	rr, err := utils.MakeHTTPRequest(req)
	if err != nil {
		logrus.WithField("comp", "webhook_sink").WithField("url", s.url).WithField("status_code", rr.StatusCode).WithError(err).Error("error forwarding event")
		return errors.Wrapf(err, "unable to forward event to %s", s.url)
	}
	return nil
}
