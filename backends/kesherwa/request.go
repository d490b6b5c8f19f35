package kesherwa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kesherwa/relay"
	"github.com/kesherwa/relay/utils"
	"github.com/pkg/errors"
)

// AuthenticatedRequest is a request against a bot, along with whether its certificate should be checked
type AuthenticatedRequest struct {
	*http.Request
	Insecure bool
}

// Do fires our request using the shared client matching our TLS policy
func (r *AuthenticatedRequest) Do() (*utils.RequestResponse, error) {
	if r.Insecure {
		return utils.MakeInsecureHTTPRequest(r.Request)
	}
	return utils.MakeHTTPRequest(r.Request)
}

// RequestBuilder builds requests against the host of a bot
type RequestBuilder struct {
	// URLPattern is the base URL of bots, %s is replaced by the bot id
	URLPattern string
}

// BaseURL returns the base URL of the bot identified by cred
func (b *RequestBuilder) BaseURL(cred relay.BotCredential) (string, error) {
	if err := cred.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf(b.URLPattern, cred.BotID), nil
}

// NewJSONRequest builds a request with the passed in body encoded as JSON, a nil body sends no body at all
func (b *RequestBuilder) NewJSONRequest(ctx context.Context, cred relay.BotCredential, method string, path string, body any) (*AuthenticatedRequest, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := b.newRequest(ctx, cred, method, path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// NewRawRequest builds a request carrying the passed in bytes untouched, with the passed in extra headers
func (b *RequestBuilder) NewRawRequest(ctx context.Context, cred relay.BotCredential, method string, path string, data []byte, headers map[string]string) (*AuthenticatedRequest, error) {
	req, err := b.newRequest(ctx, cred, method, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	return req, nil
}

func (b *RequestBuilder) newRequest(ctx context.Context, cred relay.BotCredential, method string, path string, body io.Reader) (*AuthenticatedRequest, error) {
	baseURL, err := b.BaseURL(cred)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to build request for %s", path)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")

	return &AuthenticatedRequest{Request: req, Insecure: cred.SkipTLSVerify}, nil
}
