package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/kesherwa/relay"
	"github.com/pkg/errors"
)

// AuthMode is how incoming webhooks prove they come from our bot
type AuthMode string

// supported auth modes
const (
	AuthNone   AuthMode = "none"
	AuthHeader AuthMode = "header"
	AuthQuery  AuthMode = "query"
)

// WebhookAuth checks incoming requests against a configured shared secret
type WebhookAuth struct {
	Mode  AuthMode
	Name  string
	Value string
}

// NewWebhookAuth builds the authenticator described by the passed in config
func NewWebhookAuth(config *relay.Config) (*WebhookAuth, error) {
	mode := AuthMode(strings.ToLower(config.WebhookAuth))
	switch mode {
	case AuthNone, "":
		return &WebhookAuth{Mode: AuthNone}, nil
	case AuthHeader:
		return newSecretAuth(AuthHeader, config.WebhookHeader, config.WebhookHeaderVal)
	case AuthQuery:
		return newSecretAuth(AuthQuery, config.WebhookQuery, config.WebhookQueryVal)
	}
	return nil, fmt.Errorf("unknown webhook auth mode: '%s'", config.WebhookAuth)
}

// an empty secret would let through any request carrying an empty value
func newSecretAuth(mode AuthMode, name string, value string) (*WebhookAuth, error) {
	if name == "" {
		return nil, fmt.Errorf("webhook auth mode '%s' requires a name", mode)
	}
	if value == "" {
		return nil, fmt.Errorf("webhook auth mode '%s' requires a secret value", mode)
	}
	return &WebhookAuth{Mode: mode, Name: name, Value: value}, nil
}

// Check returns relay.ErrAuthRejected if the passed in request doesn't carry our secret. Only
// headers and the URL are looked at, the body is left unread.
func (a *WebhookAuth) Check(r *http.Request) error {
	switch a.Mode {
	case AuthNone:
		return nil

	case AuthHeader:
		values, found := r.Header[http.CanonicalHeaderKey(a.Name)]
		if !found || len(values) == 0 {
			return errors.Wrapf(relay.ErrAuthRejected, "missing header %s", a.Name)
		}
		if !strings.EqualFold(values[0], a.Value) {
			return errors.Wrapf(relay.ErrAuthRejected, "header %s mismatch", a.Name)
		}
		return nil

	case AuthQuery:
		query := r.URL.Query()
		values, found := query[a.Name]
		if !found {
			values, found = query[strings.ToLower(a.Name)]
		}
		if !found || len(values) == 0 {
			return errors.Wrapf(relay.ErrAuthRejected, "missing query parameter %s", a.Name)
		}
		if values[0] != a.Value {
			return errors.Wrapf(relay.ErrAuthRejected, "query parameter %s mismatch", a.Name)
		}
		return nil
	}

	return errors.Wrapf(relay.ErrAuthRejected, "unknown auth mode %s", a.Mode)
}
