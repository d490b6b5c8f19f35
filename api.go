package relay

import (
	"context"
	"net/http"

	"github.com/kesherwa/relay/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// commandsRequest is the body of a batch send
//
//	{
//	  "continue_on_fail": true,
//	  "commands": [
//	    {"kind": "text", "remote_jid": "123@s.whatsapp.net", "text": "hello"},
//	    {"kind": "reaction_add", "remote_jid": "123@s.whatsapp.net", "emoji": "👍", "message_id": "M1"}
//	  ]
//	}
type commandsRequest struct {
	ContinueOnFail *bool          `json:"continue_on_fail"`
	Commands       []*CommandSpec `json:"commands"         validate:"required,min=1,dive"`
}

type commandResultData struct {
	Index int             `json:"index"`
	JSON  *OutboundResult `json:"json,omitempty"`
	Error string          `json:"error,omitempty"`
}

func (s *server) handleSendCommands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	request := &commandsRequest{}
	if err := utils.DecodeAndValidateJSON(request, r); err != nil {
		WriteDataResponse(ctx, w, http.StatusBadRequest, "Invalid Request", []any{NewErrorData(err.Error())})
		return
	}

	sender := s.sender
	if request.ContinueOnFail != nil {
		sender = sender.WithContinueOnFail(*request.ContinueOnFail)
	}

	resolvers := make([]CommandResolver, len(request.Commands))
	for i, spec := range request.Commands {
		resolvers[i] = spec
	}

	items, err := sender.SendBatch(ctx, resolvers)

	data := make([]any, 0, len(items)+1)
	for _, item := range items {
		if item.Err != nil {
			data = append(data, &commandResultData{Index: item.Index, Error: item.Err.Error()})
		} else {
			data = append(data, &commandResultData{Index: item.Index, JSON: item.Result})
		}
	}

	if err != nil {
		var batchErr *BatchError
		status := http.StatusInternalServerError
		if errors.As(err, &batchErr) {
			status = commandErrorStatus(batchErr.Err)
			data = append(data, &commandResultData{Index: batchErr.Index, Error: batchErr.Err.Error()})
		}
		logrus.WithField("comp", "api").WithError(err).WithField("resp_status", status).Info("batch stopped")
		WriteDataResponse(ctx, w, status, "Batch Failed", data)
		return
	}

	WriteDataResponse(ctx, w, http.StatusOK, "Commands Sent", data)
}

func (s *server) handleCheckCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cred, err := NewConfigCredentialStore(s.config).Credential(ctx)
	if err == nil {
		err = s.backend.CheckCredential(ctx, cred)
	}
	if err != nil {
		WriteDataResponse(ctx, w, commandErrorStatus(err), "Credential Check Failed", []any{NewErrorData(err.Error())})
		return
	}

	WriteDataResponse(ctx, w, http.StatusOK, "Credential OK", []any{})
}

// commandErrorStatus returns the status we respond with when sending fails
func commandErrorStatus(err error) int {
	var invalid *InvalidCommandError
	switch {
	case errors.Is(err, ErrInvalidCredential), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}
