package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/kesherwa/relay/metrics"
	"github.com/nyaruka/librato"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BatchItem is the outcome of one command in a batch, exactly one of Result and Err is set
type BatchItem struct {
	Index  int
	Result *OutboundResult
	Err    error
}

// Sender sends commands to our backend one at a time, looking up the credential to use for each
type Sender struct {
	backend        Backend
	creds          CredentialStore
	continueOnFail bool
	log            *logrus.Entry
}

// NewSender creates a new sender for the passed in backend and credential store
func NewSender(backend Backend, creds CredentialStore, continueOnFail bool) *Sender {
	return &Sender{
		backend:        backend,
		creds:          creds,
		continueOnFail: continueOnFail,
		log:            logrus.WithField("comp", "sender"),
	}
}

// WithContinueOnFail returns a copy of this sender with the passed in failure policy
func (s *Sender) WithContinueOnFail(continueOnFail bool) *Sender {
	c := *s
	c.continueOnFail = continueOnFail
	return &c
}

// ContinueOnFail returns whether failed commands are recorded and the batch continues
func (s *Sender) ContinueOnFail() bool { return s.continueOnFail }

// Send resolves and sends a single command
func (s *Sender) Send(ctx context.Context, resolver CommandResolver) (*OutboundResult, error) {
	start := time.Now()

	cred, err := s.creds.Credential(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to look up bot credential")
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	cmd, err := resolver.ResolveCommand()
	if err != nil {
		return nil, &InvalidCommandError{Cause: err}
	}
	kind := string(cmd.Kind())

	result, err := s.backend.Send(ctx, cred, cmd)

	duration := time.Since(start)
	secondDuration := float64(duration) / float64(time.Second)
	millisecondDuration := float64(duration) / float64(time.Millisecond)

	log := s.log.WithField("bot_id", cred.BotID).WithField("kind", kind).WithField("recipient", cmd.Recipient()).WithField("elapsed", duration)

	if err != nil {
		librato.Gauge(fmt.Sprintf("relay.command_error_%s", kind), secondDuration)
		metrics.SetCommandSendError(kind, millisecondDuration)
		metrics.SetCommandSendByBot(cred.BotID, "error", millisecondDuration)
		log.WithError(err).Error("error sending command")
		return nil, err
	}

	status := "success"
	if result.Success {
		metrics.SetCommandSendSuccess(kind, millisecondDuration)
	} else {
		status = "refused"
		log = log.WithField("message", result.Message)
		metrics.SetCommandSendRefused(kind, millisecondDuration)
	}
	librato.Gauge(fmt.Sprintf("relay.command_%s_%s", status, kind), secondDuration)
	metrics.SetCommandSendByBot(cred.BotID, status, millisecondDuration)
	log.WithField("status", status).Info("command sent")

	return result, nil
}

// SendBatch sends the passed in commands in order. When continue on fail is set, failures are recorded
// in the returned items and we move on. Otherwise the first failure stops the batch and a *BatchError
// is returned along with the items sent before it.
func (s *Sender) SendBatch(ctx context.Context, resolvers []CommandResolver) ([]BatchItem, error) {
	items := make([]BatchItem, 0, len(resolvers))

	for i, resolver := range resolvers {
		if err := ctx.Err(); err != nil {
			return items, &BatchError{Index: i, Err: err}
		}

		result, err := s.Send(ctx, resolver)
		if err != nil {
			if !s.continueOnFail {
				return items, &BatchError{Index: i, Err: err}
			}
			items = append(items, BatchItem{Index: i, Err: err})
			continue
		}
		items = append(items, BatchItem{Index: i, Result: result})
	}

	return items, nil
}
