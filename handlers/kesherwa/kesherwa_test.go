package kesherwa

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kesherwa/relay"
	"github.com/kesherwa/relay/media"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/util/cbcutil"
)

var (
	testKey    = bytes.Repeat([]byte{0x0a}, 32)
	testIV     = bytes.Repeat([]byte{0x0b}, 16)
	testMacKey = bytes.Repeat([]byte{0x0c}, 32)
	testImage  = append([]byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), bytes.Repeat([]byte{0x42}, 100)...)
)

func newTestServer(t *testing.T, configure func(*relay.Config)) (relay.Server, *relay.MockSink) {
	config := relay.NewConfig()
	config.WebhookAuth = "none"
	if configure != nil {
		configure(config)
	}

	sink := relay.NewMockSink()
	s := relay.NewServer(config, relay.NewMockBackend(), sink)
	require.NoError(t, newHandler().Initialize(s))
	return s, sink
}

func newMediaServer(t *testing.T) *httptest.Server {
	ciphertext, err := cbcutil.Encrypt(testKey, testIV, testImage)
	require.NoError(t, err)
	blob := append(ciphertext, media.ComputeMAC(testMacKey, testIV, ciphertext)...)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/short.enc":
			w.Write([]byte("123456789"))
		default:
			w.Write(blob)
		}
	}))
}

func mediaData(url string, format string) string {
	return fmt.Sprintf(`{"id": "m1", "caption": "look", "format": %q, "url": %q, "fileSha256": "abc", "decodeKeys": {"iv": %q, "cipherKey": %q, "macKey": %q}}`,
		format, url,
		base64.StdEncoding.EncodeToString(testIV),
		base64.StdEncoding.EncodeToString(testKey),
		base64.StdEncoding.EncodeToString(testMacKey),
	)
}

func envelope(event string, data string) string {
	return fmt.Sprintf(`{"event": %q, "from": {"remoteJid": "123@s.whatsapp.net", "name": "A"}, "timestamp": "1700000000", "data": %s}`, event, data)
}

func post(s relay.Server, url string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

const receiveURL = "/c/kw/kesherwa-webhook"

func TestReceiveText(t *testing.T) {
	s, sink := newTestServer(t, nil)

	rec := post(s, receiveURL, envelope("text", `{"id": "m1", "text": "hi"}`), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "success", "received": true}`, rec.Body.String())

	fanout, err := sink.LastFanout()
	require.NoError(t, err)
	assert.Equal(t, relay.ChannelText, fanout.Channel())

	all := fanout.Output(relay.ChannelAll)
	text := fanout.Output(relay.ChannelText)
	require.Len(t, all, 1)
	require.Len(t, text, 1)
	assert.Same(t, all[0], text[0])

	assert.Equal(t, map[string]any{
		"event":     "text",
		"from":      map[string]any{"remoteJid": "123@s.whatsapp.net", "name": "A"},
		"timestamp": "1700000000",
		"id":        "m1",
		"text":      "hi",
	}, all[0].JSON)
	assert.Nil(t, all[0].Binary)
}

func TestReceiveClassification(t *testing.T) {
	mediaServer := newMediaServer(t)
	defer mediaServer.Close()

	tcs := []struct {
		event   string
		data    string
		channel relay.OutputChannel
	}{
		{"text", `{"id": "m1", "text": "hi"}`, relay.ChannelText},
		{"image", mediaData(mediaServer.URL+"/img.enc", "image/jpeg"), relay.ChannelImage},
		{"video", mediaData(mediaServer.URL+"/vid.enc", "video/mp4"), relay.ChannelVideo},
		{"audio", mediaData(mediaServer.URL+"/aud.enc", "audio/ogg; codecs=opus"), relay.ChannelAudio},
		{"document", mediaData(mediaServer.URL+"/doc.enc", "application/pdf"), relay.ChannelDocument},
		{"location", `{"id": "m1", "degreesLatitude": 31.77, "degreesLongitude": "35.21"}`, relay.ChannelLocation},
		{"reaction", `{"id": "m1", "messageId": "M0", "emoji": "👍"}`, relay.ChannelReaction},
	}

	for _, tc := range tcs {
		t.Run(tc.event, func(t *testing.T) {
			s, sink := newTestServer(t, nil)

			rec := post(s, receiveURL, envelope(tc.event, tc.data), nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			require.Len(t, sink.Fanouts(), 1)

			fanout := sink.Fanouts()[0]
			assert.Equal(t, tc.channel, fanout.Channel())

			for c := relay.ChannelAll; c < relay.NumOutputChannels; c++ {
				if c == relay.ChannelAll || c == tc.channel {
					assert.Len(t, fanout.Output(c), 1, "expected record on %s", c)
				} else {
					assert.Len(t, fanout.Output(c), 0, "unexpected record on %s", c)
				}
			}
			assert.Same(t, fanout.Output(relay.ChannelAll)[0], fanout.Output(tc.channel)[0])
		})
	}
}

func TestReceiveMedia(t *testing.T) {
	mediaServer := newMediaServer(t)
	defer mediaServer.Close()

	s, sink := newTestServer(t, func(c *relay.Config) { c.VerifyMediaMAC = true })

	rec := post(s, receiveURL, envelope("image", mediaData(mediaServer.URL+"/img.enc", "image/jpeg")), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	fanout, err := sink.LastFanout()
	require.NoError(t, err)
	record := fanout.Record()

	// media events only carry the envelope fields, the payload goes in the binary
	assert.Equal(t, map[string]any{
		"event":     "image",
		"from":      map[string]any{"remoteJid": "123@s.whatsapp.net", "name": "A"},
		"timestamp": "1700000000",
	}, record.JSON)

	require.NotNil(t, record.Binary)
	assert.Equal(t, testImage, record.Binary.Data)
	assert.Equal(t, "image/jpeg", record.Binary.MimeType)
	assert.Equal(t, "m1.jpeg", record.Binary.FileName)
	assert.Equal(t, len(testImage), record.Binary.FileSize)
}

func TestReceiveLocationVerbatim(t *testing.T) {
	s, sink := newTestServer(t, nil)

	rec := post(s, receiveURL, envelope("location", `{"id": "m1", "degreesLatitude": "31.77", "degreesLongitude": 35.21, "timestamp": "override"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	fanout, err := sink.LastFanout()
	require.NoError(t, err)
	record := fanout.Record()
	assert.Equal(t, "31.77", record.JSON["degreesLatitude"])
	assert.Equal(t, json.Number("35.21"), record.JSON["degreesLongitude"])
	assert.Equal(t, "override", record.JSON["timestamp"])
}

func TestReceiveErrors(t *testing.T) {
	mediaServer := newMediaServer(t)
	defer mediaServer.Close()

	tcs := []struct {
		label  string
		body   string
		status int
	}{
		{"unknown event", envelope("sticker", `{"id": "m1"}`), http.StatusBadRequest},
		{"missing event", `{"from": {}, "timestamp": "1", "data": {"id": "m1"}}`, http.StatusBadRequest},
		{"missing data", `{"event": "text", "from": {}, "timestamp": "1"}`, http.StatusBadRequest},
		{"invalid JSON", `{"event": "text"`, http.StatusBadRequest},
		{"text without id", envelope("text", `{"text": "hi"}`), http.StatusBadRequest},
		{"data not matching event", envelope("reaction", `{"id": "m1", "text": "hi"}`), http.StatusBadRequest},
		{"location with bad number", envelope("location", `{"id": "m1", "degreesLatitude": "north", "degreesLongitude": 1}`), http.StatusBadRequest},
		{"media without keys", envelope("image", `{"id": "m1", "url": "https://file.kesherwa.dev/x.enc"}`), http.StatusBadRequest},
		{"short ciphertext", envelope("image", mediaData(mediaServer.URL+"/short.enc", "image/jpeg")), http.StatusInternalServerError},
		{"body too large", envelope("text", fmt.Sprintf(`{"id": "m1", "text": %q}`, strings.Repeat("a", 2048))), http.StatusRequestEntityTooLarge},
	}

	for _, tc := range tcs {
		s, sink := newTestServer(t, func(c *relay.Config) { c.MaxBodyBytes = 1024 })

		rec := post(s, receiveURL, tc.body, nil)
		assert.Equal(t, tc.status, rec.Code, "%s: status mismatch: %s", tc.label, rec.Body.String())
		assert.Len(t, sink.Fanouts(), 0, "%s: nothing should be delivered", tc.label)
	}
}

func TestReceiveSinkFailure(t *testing.T) {
	s, sink := newTestServer(t, nil)
	sink.SetError(errors.New("broker down"))

	rec := post(s, receiveURL, envelope("text", `{"id": "m1", "text": "hi"}`), nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "broker down")
}

type trackingReader struct {
	r    *strings.Reader
	read bool
}

func (t *trackingReader) Read(p []byte) (int, error) {
	t.read = true
	return t.r.Read(p)
}

func TestInitializeRequiresSecret(t *testing.T) {
	config := relay.NewConfig()
	s := relay.NewServer(config, relay.NewMockBackend(), relay.NewMockSink())
	assert.EqualError(t, newHandler().Initialize(s), "webhook auth mode 'header' requires a secret value")

	// a blank header can't stand in for the missing secret
	rec := post(s, receiveURL, envelope("text", `{"id": "m1", "text": "hi"}`), map[string]string{"X-Bot-Id": ""})
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestReceiveAuth(t *testing.T) {
	header, headerSink := newTestServer(t, func(c *relay.Config) {
		c.WebhookAuth = "header"
		c.WebhookHeaderVal = "Bot-42"
	})
	query, querySink := newTestServer(t, func(c *relay.Config) {
		c.WebhookAuth = "query"
		c.WebhookQuery = "Token"
		c.WebhookQueryVal = "Secret"
	})

	body := envelope("text", `{"id": "m1", "text": "hi"}`)

	tcs := []struct {
		label   string
		server  relay.Server
		url     string
		headers map[string]string
		status  int
	}{
		{"header ok", header, receiveURL, map[string]string{"x-bot-id": "bot-42"}, http.StatusOK},
		{"header wrong", header, receiveURL, map[string]string{"X-BOT-ID": "bot-43"}, http.StatusUnauthorized},
		{"header missing", header, receiveURL, nil, http.StatusUnauthorized},
		{"query ok", query, receiveURL + "?Token=Secret", nil, http.StatusOK},
		{"query lower cased name", query, receiveURL + "?token=Secret", nil, http.StatusOK},
		{"query wrong case", query, receiveURL + "?Token=secret", nil, http.StatusUnauthorized},
		{"query missing", query, receiveURL, nil, http.StatusUnauthorized},
	}

	for _, tc := range tcs {
		rec := post(tc.server, tc.url, body, tc.headers)
		assert.Equal(t, tc.status, rec.Code, "%s: status mismatch", tc.label)
	}

	assert.Len(t, headerSink.Fanouts(), 1)
	assert.Len(t, querySink.Fanouts(), 2)

	// rejected requests never have their body read
	reader := &trackingReader{r: strings.NewReader(body)}
	req := httptest.NewRequest(http.MethodPost, receiveURL, reader)
	rec := httptest.NewRecorder()
	header.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reader.read)
}
