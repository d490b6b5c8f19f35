package utils

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RequestResponseStatus represents the outcome of an outgoing request
type RequestResponseStatus string

const (
	// RRStatusSuccess represents that the request got a 2xx response
	RRStatusSuccess RequestResponseStatus = "S"

	// RRConnectionFailure represents that the request never got a response
	RRConnectionFailure RequestResponseStatus = "F"

	// RRStatusFailure represents that the request got a non 2xx status code
	RRStatusFailure RequestResponseStatus = "E"
)

// RequestResponse is the trace of an outgoing request and the response it got, if any
type RequestResponse struct {
	Method        string
	URL           string
	Status        RequestResponseStatus
	StatusCode    int
	Request       string
	Response      string
	Body          []byte
	ContentLength int
	Elapsed       time.Duration
}

// MakeHTTPRequest fires the passed in request, returning any errors encountered. RequestResponse is always set
// regardless of any errors being set. Non 2xx responses are returned as errors.
func MakeHTTPRequest(req *http.Request) (*RequestResponse, error) {
	return MakeHTTPRequestWithClient(req, GetHTTPClient())
}

// MakeInsecureHTTPRequest fires the passed in request against a transport that does not validate
// TLS certificates
func MakeInsecureHTTPRequest(req *http.Request) (*RequestResponse, error) {
	return MakeHTTPRequestWithClient(req, GetInsecureHTTPClient())
}

// MakeInsecureHTTPRequestWithLimit is like MakeInsecureHTTPRequest but fails once the response body
// goes over maxBytes, in which case the body is neither traced nor kept
func MakeInsecureHTTPRequestWithLimit(req *http.Request, maxBytes int64) (*RequestResponse, error) {
	return makeHTTPRequest(req, GetInsecureHTTPClient(), maxBytes)
}

// MakeHTTPRequestWithClient fires the passed in request with the passed in client
func MakeHTTPRequestWithClient(req *http.Request, client *http.Client) (*RequestResponse, error) {
	return makeHTTPRequest(req, client, 0)
}

func makeHTTPRequest(req *http.Request, client *http.Client, maxBytes int64) (*RequestResponse, error) {
	req.Header.Set("User-Agent", HTTPUserAgent)

	start := time.Now()

	// binary uploads are traced without their body
	requestTrace, err := httputil.DumpRequestOut(req, isTextContent(req.Header.Get("Content-Type")))
	if err != nil {
		return newRRFromError(req, string(requestTrace), err), err
	}

	resp, err := client.Do(req)
	if err != nil {
		return newRRFromError(req, string(requestTrace), err), err
	}
	defer resp.Body.Close()

	rr, err := newRRFromResponse(req.Method, string(requestTrace), resp, maxBytes)
	rr.Elapsed = time.Since(start)
	return rr, err
}

func newRRFromError(r *http.Request, requestTrace string, requestError error) *RequestResponse {
	return &RequestResponse{
		Method:        r.Method,
		URL:           r.URL.String(),
		Status:        RRConnectionFailure,
		Request:       requestTrace,
		Body:          []byte(requestError.Error()),
		ContentLength: -1,
	}
}

func newRRFromResponse(method string, requestTrace string, r *http.Response, maxBytes int64) (*RequestResponse, error) {
	rr := &RequestResponse{
		Method:        method,
		URL:           r.Request.URL.String(),
		StatusCode:    r.StatusCode,
		Request:       requestTrace,
		ContentLength: -1,
	}

	if header := r.Header.Get("Content-Length"); header != "" {
		if contentLength, err := strconv.Atoi(header); err == nil {
			rr.ContentLength = contentLength
		}
	}

	if rr.StatusCode/100 == 2 {
		rr.Status = RRStatusSuccess
	} else {
		rr.Status = RRStatusFailure
	}

	if maxBytes > 0 && rr.ContentLength > 0 && int64(rr.ContentLength) > maxBytes {
		return rr, fmt.Errorf("response body of %d bytes exceeds limit of %d", rr.ContentLength, maxBytes)
	}

	// only dump the whole body if this looks like text, limited responses never are
	response, err := httputil.DumpResponse(r, maxBytes <= 0 && isTextContent(r.Header.Get("Content-Type")))
	if err != nil {
		return rr, err
	}
	rr.Response = string(response)

	if maxBytes > 0 {
		rr.Body, err = io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
		if err == nil && int64(len(rr.Body)) > maxBytes {
			rr.Body = nil
			return rr, fmt.Errorf("response body exceeds limit of %d bytes", maxBytes)
		}
	} else {
		rr.Body, err = io.ReadAll(r.Body)
	}
	if err != nil {
		return rr, err
	}

	if rr.Status != RRStatusSuccess {
		return rr, fmt.Errorf("received non 200 status: %d", rr.StatusCode)
	}
	return rr, nil
}

func isTextContent(contentType string) bool {
	if contentType == "" {
		return true
	}
	for _, t := range []string{"text", "json", "javascript", "urlencoded", "utf", "xml"} {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

// GetHTTPClient returns the shared HTTP client
func GetHTTPClient() *http.Client {
	once.Do(func() {
		transport = newTransport()
		client = &http.Client{Transport: transport, Timeout: 60 * time.Second}
	})
	return client
}

// GetInsecureHTTPClient returns the shared HTTP client which skips TLS verification
func GetInsecureHTTPClient() *http.Client {
	insecureOnce.Do(func() {
		insecureTransport = newTransport()
		insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		insecureClient = &http.Client{Transport: insecureTransport, Timeout: 60 * time.Second}
	})
	return insecureClient
}

func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 64
	t.MaxIdleConnsPerHost = 8
	t.IdleConnTimeout = 15 * time.Second
	return t
}

var (
	transport *http.Transport
	client    *http.Client
	once      sync.Once

	insecureTransport *http.Transport
	insecureClient    *http.Client
	insecureOnce      sync.Once

	// HTTPUserAgent is sent with every outgoing request
	HTTPUserAgent = "Relay/vDev"
)
