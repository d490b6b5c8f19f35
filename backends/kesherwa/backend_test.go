package kesherwa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kesherwa/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method  string
	path    string
	headers http.Header
	body    []byte
}

type backendTestCase struct {
	label    string
	cmd      relay.Command
	response string
	status   int

	expectedMethod  string
	expectedPath    string
	expectedHeaders map[string]string
	expectedJSON    string
	expectedBody    []byte

	expectedResult *relay.OutboundResult
	expectedErr    string
}

func newTestBackend(t *testing.T, tcResponse *string, tcStatus *int, recorded *[]recordedRequest) (relay.Backend, *httptest.Server) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*recorded = append(*recorded, recordedRequest{r.Method, r.URL.Path, r.Header.Clone(), body})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(*tcStatus)
		w.Write([]byte(*tcResponse))
	}))

	config := relay.NewConfig()
	config.BackendURL = server.URL + "/%s"
	return newBackend(config), server
}

var testCred = relay.BotCredential{Token: "sesame", BotID: "bot1", SkipTLSVerify: true}

func TestSend(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake")

	tcs := []backendTestCase{
		{
			label:           "text",
			cmd:             relay.TextCommand{RemoteJID: "123@s.whatsapp.net", Text: "hello"},
			response:        `{"status": true, "data": {"id": "t1", "remoteJid": "123@s.whatsapp.net", "text": "hello", "extra": 1}, "msg": "sent"}`,
			expectedMethod:  "POST",
			expectedPath:    "/bot1/api/whatsapp/message",
			expectedHeaders: map[string]string{"Authorization": "Bearer sesame", "Content-Type": "application/json"},
			expectedJSON:    `{"remoteJid": "123@s.whatsapp.net", "text": "hello"}`,
			expectedResult:  &relay.OutboundResult{Success: true, Data: map[string]any{"id": "t1", "remoteJid": "123@s.whatsapp.net", "text": "hello"}, Message: "sent"},
		},
		{
			label:           "image from data",
			cmd:             relay.MediaCommand{MediaKind: relay.CommandImage, RemoteJID: "123@s.whatsapp.net", Source: relay.MediaSource{Data: []byte{0xff, 0xd8, 0xff}}},
			response:        `{"status": true, "data": {"id": "i1", "remoteJid": "123@s.whatsapp.net"}, "msg": "sent"}`,
			expectedMethod:  "POST",
			expectedPath:    "/bot1/api/whatsapp/image",
			expectedHeaders: map[string]string{"Authorization": "Bearer sesame", "remote-jid": "123@s.whatsapp.net", "Content-Type": ""},
			expectedBody:    []byte{0xff, 0xd8, 0xff},
			expectedResult:  &relay.OutboundResult{Success: true, Data: map[string]any{"id": "i1", "remoteJid": "123@s.whatsapp.net"}, Message: "sent"},
		},
		{
			label:           "audio from data url",
			cmd:             relay.MediaCommand{MediaKind: relay.CommandAudio, RemoteJID: "123@s.whatsapp.net", Source: relay.MediaSource{URL: "data:audio/ogg;base64," + base64.StdEncoding.EncodeToString([]byte("OggS"))}},
			response:        `{"status": true, "data": {"id": "a1", "remoteJid": "123@s.whatsapp.net"}, "msg": "sent"}`,
			expectedMethod:  "POST",
			expectedPath:    "/bot1/api/whatsapp/audio",
			expectedHeaders: map[string]string{"remote-jid": "123@s.whatsapp.net"},
			expectedBody:    []byte("OggS"),
			expectedResult:  &relay.OutboundResult{Success: true, Data: map[string]any{"id": "a1", "remoteJid": "123@s.whatsapp.net"}, Message: "sent"},
		},
		{
			label:           "document",
			cmd:             relay.MediaCommand{MediaKind: relay.CommandDocument, RemoteJID: "123@s.whatsapp.net", Source: relay.MediaSource{Data: pdf}, Extension: "pdf"},
			response:        `{"status": true, "data": {"id": "d1", "remoteJid": "123@s.whatsapp.net", "extension": "pdf"}, "msg": "sent"}`,
			expectedMethod:  "POST",
			expectedPath:    "/bot1/api/whatsapp/document",
			expectedHeaders: map[string]string{"remote-jid": "123@s.whatsapp.net", "extension": "pdf"},
			expectedBody:    pdf,
			expectedResult:  &relay.OutboundResult{Success: true, Data: map[string]any{"id": "d1", "remoteJid": "123@s.whatsapp.net", "extension": "pdf"}, Message: "sent"},
		},
		{
			label:           "location",
			cmd:             relay.LocationCommand{RemoteJID: "123@s.whatsapp.net", Latitude: 31.7683, Longitude: 35.2137},
			response:        `{"status": true, "data": {"id": "l1", "remoteJid": "123@s.whatsapp.net", "degreesLatitude": 31.7683, "degreesLongitude": 35.2137}, "msg": "sent"}`,
			expectedMethod:  "POST",
			expectedPath:    "/bot1/api/whatsapp/location",
			expectedHeaders: map[string]string{"Content-Type": "application/json"},
			expectedJSON:    `{"remoteJid": "123@s.whatsapp.net", "degreesLatitude": 31.7683, "degreesLongitude": 35.2137}`,
			expectedResult:  &relay.OutboundResult{Success: true, Data: map[string]any{"id": "l1", "remoteJid": "123@s.whatsapp.net", "degreesLatitude": 31.7683, "degreesLongitude": 35.2137}, Message: "sent"},
		},
		{
			label:           "reaction",
			cmd:             relay.ReactionCommand{RemoteJID: "1@x", Emoji: "👍", MessageID: "M1"},
			response:        `{"status": true, "data": {"id": "r1", "remoteJid": "1@x", "messageId": "M1", "emoji": "👍"}, "msg": "ok"}`,
			expectedMethod:  "POST",
			expectedPath:    "/bot1/api/whatsapp/reaction",
			expectedHeaders: map[string]string{"Content-Type": "application/json"},
			expectedJSON:    `{"remoteJid": "1@x", "emoji": "👍", "messageId": "M1"}`,
			expectedResult:  &relay.OutboundResult{Success: true, Data: map[string]any{"id": "r1", "remoteJid": "1@x", "messageId": "M1", "emoji": "👍"}, Message: "ok"},
		},
		{
			label:           "delete reaction",
			cmd:             relay.DeleteReactionCommand{RemoteJID: "1@x", MessageID: "M1"},
			response:        `{"status": true, "data": {"id": "r2", "remoteJid": "1@x", "messageId": "M1", "emoji": ""}, "msg": "ok"}`,
			expectedMethod:  "DELETE",
			expectedPath:    "/bot1/api/whatsapp/reaction",
			expectedHeaders: map[string]string{"Content-Type": "application/json"},
			expectedJSON:    `{"remoteJid": "1@x", "messageId": "M1"}`,
			expectedResult:  &relay.OutboundResult{Success: true, Data: map[string]any{"id": "r2", "remoteJid": "1@x", "messageId": "M1"}, Message: "ok"},
		},
		{
			label:          "refused by bot",
			cmd:            relay.TextCommand{RemoteJID: "123@s.whatsapp.net", Text: "hello"},
			response:       `{"status": false, "data": null, "msg": "not connected"}`,
			expectedMethod: "POST",
			expectedPath:   "/bot1/api/whatsapp/message",
			expectedResult: &relay.OutboundResult{Success: false, Data: map[string]any{}, Message: "not connected"},
		},
		{
			label:          "missing keys omitted",
			cmd:            relay.TextCommand{RemoteJID: "123@s.whatsapp.net", Text: "hello"},
			response:       `{"status": true, "data": {"id": "t2"}}`,
			expectedMethod: "POST",
			expectedPath:   "/bot1/api/whatsapp/message",
			expectedResult: &relay.OutboundResult{Success: true, Data: map[string]any{"id": "t2"}, Message: ""},
		},
		{
			label:          "server error",
			cmd:            relay.TextCommand{RemoteJID: "123@s.whatsapp.net", Text: "hello"},
			status:         http.StatusInternalServerError,
			response:       `{"status": false, "msg": "boom"}`,
			expectedMethod: "POST",
			expectedPath:   "/bot1/api/whatsapp/message",
			expectedErr:    "text command failed: boom: POST /bot1/api/whatsapp/message: received non 200 status: 500",
		},
		{
			label:          "malformed response",
			cmd:            relay.TextCommand{RemoteJID: "123@s.whatsapp.net", Text: "hello"},
			response:       `not json`,
			expectedMethod: "POST",
			expectedPath:   "/bot1/api/whatsapp/message",
			expectedErr:    "text command failed: unable to read status from response",
		},
		{
			label:          "missing data",
			cmd:            relay.TextCommand{RemoteJID: "123@s.whatsapp.net", Text: "hello"},
			response:       `{"status": true, "msg": "sent"}`,
			expectedMethod: "POST",
			expectedPath:   "/bot1/api/whatsapp/message",
			expectedErr:    "text command failed: response is missing data",
		},
	}

	var response string
	var status int
	var recorded []recordedRequest
	backend, server := newTestBackend(t, &response, &status, &recorded)
	defer server.Close()

	for _, tc := range tcs {
		t.Run(tc.label, func(t *testing.T) {
			recorded = nil
			response = tc.response
			status = tc.status
			if status == 0 {
				status = http.StatusOK
			}

			result, err := backend.Send(context.Background(), testCred, tc.cmd)

			require.Len(t, recorded, 1)
			req := recorded[0]
			assert.Equal(t, tc.expectedMethod, req.method)
			assert.Equal(t, tc.expectedPath, req.path)
			for name, value := range tc.expectedHeaders {
				assert.Equal(t, value, req.headers.Get(name), "header %s mismatch", name)
			}
			if tc.expectedJSON != "" {
				assert.JSONEq(t, tc.expectedJSON, string(req.body))
			}
			if tc.expectedBody != nil {
				assert.Equal(t, tc.expectedBody, req.body)
			}

			if tc.expectedErr != "" {
				assert.ErrorContains(t, err, tc.expectedErr)
				var failed *relay.CommandFailedError
				assert.ErrorAs(t, err, &failed)
				assert.Nil(t, result)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedResult, result)
			}
		})
	}
}

func TestSendMediaFromURL(t *testing.T) {
	image := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0xff}

	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "image/png")
		w.Write(image)
	}))
	defer files.Close()

	response := `{"status": true, "data": {"id": "i1", "remoteJid": "123@s.whatsapp.net"}, "msg": "sent"}`
	status := http.StatusOK
	var recorded []recordedRequest
	backend, server := newTestBackend(t, &response, &status, &recorded)
	defer server.Close()

	cmd := relay.MediaCommand{MediaKind: relay.CommandImage, RemoteJID: "123@s.whatsapp.net", Source: relay.MediaSource{URL: files.URL + "/cat.png"}}
	result, err := backend.Send(context.Background(), testCred, cmd)
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, recorded, 1)
	assert.Equal(t, image, recorded[0].body)
}

func TestSendTLSPolicy(t *testing.T) {
	response := `{"status": true, "data": {"id": "t1"}, "msg": "sent"}`
	status := http.StatusOK
	var recorded []recordedRequest
	backend, server := newTestBackend(t, &response, &status, &recorded)
	defer server.Close()

	// the test server's certificate isn't trusted, so verifying it fails
	cred := testCred
	cred.SkipTLSVerify = false

	_, err := backend.Send(context.Background(), cred, relay.TextCommand{RemoteJID: "123@s.whatsapp.net", Text: "hi"})
	var failed *relay.CommandFailedError
	assert.ErrorAs(t, err, &failed)
	assert.Len(t, recorded, 0)
}

func TestSendInvalid(t *testing.T) {
	response := `{}`
	status := http.StatusOK
	var recorded []recordedRequest
	backend, server := newTestBackend(t, &response, &status, &recorded)
	defer server.Close()
	ctx := context.Background()

	_, err := backend.Send(ctx, relay.BotCredential{Token: "sesame"}, relay.TextCommand{RemoteJID: "123@s.whatsapp.net", Text: "hi"})
	assert.ErrorIs(t, err, relay.ErrInvalidCredential)

	_, err = backend.Send(ctx, testCred, relay.TextCommand{RemoteJID: "not-a-jid", Text: "hi"})
	assert.EqualError(t, err, `invalid text command: remote jid "not-a-jid" has no user part`)

	_, err = backend.Send(ctx, testCred, relay.MediaCommand{MediaKind: relay.CommandImage, RemoteJID: "123@s.whatsapp.net"})
	assert.EqualError(t, err, "invalid image command: exactly one of url or data must be set")

	assert.Len(t, recorded, 0)
}

func TestCheckCredential(t *testing.T) {
	response := `{"status": true, "data": {}}`
	status := http.StatusOK
	var recorded []recordedRequest
	backend, server := newTestBackend(t, &response, &status, &recorded)
	defer server.Close()

	err := backend.CheckCredential(context.Background(), testCred)
	assert.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, "GET", recorded[0].method)
	assert.Equal(t, "/bot1/api/whatsapp/credentials/check", recorded[0].path)
	assert.Equal(t, "Bearer sesame", recorded[0].headers.Get("Authorization"))

	status = http.StatusUnauthorized
	err = backend.CheckCredential(context.Background(), testCred)
	assert.Error(t, err)
}

func TestParseResultTypes(t *testing.T) {
	result, err := parseResult(relay.CommandLocation, []byte(`{"status": true, "data": {"id": "l1", "remoteJid": null, "degreesLatitude": "31.5", "degreesLongitude": {"v": 1}}}`))
	require.NoError(t, err)
	assert.Equal(t, "l1", result.Data["id"])
	assert.Nil(t, result.Data["remoteJid"])
	assert.Contains(t, result.Data, "remoteJid")
	assert.Equal(t, "31.5", result.Data["degreesLatitude"])
	assert.Equal(t, json.RawMessage(`{"v": 1}`), result.Data["degreesLongitude"])
}
