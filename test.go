package relay

import (
	"context"
	"errors"
	"sync"
)

//-----------------------------------------------------------------------------
// Mock backend implementation
//-----------------------------------------------------------------------------

// SentCommand is a command recorded by the mock backend along with the credential it was sent with
type SentCommand struct {
	Credential BotCredential
	Command    Command
}

// MockBackend is a mocked version of a backend which doesn't talk to a real bot
type MockBackend struct {
	mutex sync.RWMutex

	sent      []SentCommand
	errors    map[int]error
	results   map[CommandKind]*OutboundResult
	checkErr  error
	checks    []BotCredential
	healthMsg string
}

// NewMockBackend returns a new mock backend suitable for testing
func NewMockBackend() *MockBackend {
	return &MockBackend{
		errors:  make(map[int]error),
		results: make(map[CommandKind]*OutboundResult),
	}
}

// FailSend makes the nth (zero based) call to Send fail with the passed in error
func (mb *MockBackend) FailSend(n int, err error) {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()
	mb.errors[n] = err
}

// SetResult sets the result returned for commands of the passed in kind
func (mb *MockBackend) SetResult(kind CommandKind, result *OutboundResult) {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()
	mb.results[kind] = result
}

// SetCheckError sets the error returned by CheckCredential
func (mb *MockBackend) SetCheckError(err error) {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()
	mb.checkErr = err
}

// SetHealth sets the string returned by Health
func (mb *MockBackend) SetHealth(health string) {
	mb.healthMsg = health
}

// SentCommands returns every call made to Send, in order
func (mb *MockBackend) SentCommands() []SentCommand {
	mb.mutex.RLock()
	defer mb.mutex.RUnlock()
	return append([]SentCommand(nil), mb.sent...)
}

// CheckedCredentials returns the credentials passed to CheckCredential
func (mb *MockBackend) CheckedCredentials() []BotCredential {
	mb.mutex.RLock()
	defer mb.mutex.RUnlock()
	return append([]BotCredential(nil), mb.checks...)
}

// Send records the passed in command and returns our configured result or error
func (mb *MockBackend) Send(ctx context.Context, cred BotCredential, cmd Command) (*OutboundResult, error) {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()

	n := len(mb.sent)
	mb.sent = append(mb.sent, SentCommand{Credential: cred, Command: cmd})

	if err, found := mb.errors[n]; found {
		return nil, err
	}
	if result, found := mb.results[cmd.Kind()]; found {
		return result, nil
	}
	return &OutboundResult{Success: true, Data: map[string]any{"remoteJid": cmd.Recipient()}, Message: "ok"}, nil
}

// CheckCredential records the passed in credential and returns our configured error
func (mb *MockBackend) CheckCredential(ctx context.Context, cred BotCredential) error {
	mb.mutex.Lock()
	defer mb.mutex.Unlock()
	mb.checks = append(mb.checks, cred)
	return mb.checkErr
}

// Start starts our mock backend
func (mb *MockBackend) Start() error { return nil }

// Stop stops our mock backend
func (mb *MockBackend) Stop() error { return nil }

// Health gives a string representing our health, empty for our mock
func (mb *MockBackend) Health() string { return mb.healthMsg }

// Status returns a string describing the status of the service
func (mb *MockBackend) Status() string { return "ALL GOOD" }

//-----------------------------------------------------------------------------
// Mock sink implementation
//-----------------------------------------------------------------------------

// MockSink is a sink which keeps every fanout delivered to it
type MockSink struct {
	mutex   sync.RWMutex
	fanouts []*Fanout
	err     error
}

// NewMockSink returns a new mock sink
func NewMockSink() *MockSink {
	return &MockSink{}
}

// SetError makes every following delivery fail with the passed in error
func (ms *MockSink) SetError(err error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.err = err
}

// Deliver records the passed in fanout unless we are configured to fail
func (ms *MockSink) Deliver(ctx context.Context, fanout *Fanout) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	if ms.err != nil {
		return ms.err
	}
	ms.fanouts = append(ms.fanouts, fanout)
	return nil
}

// Fanouts returns every fanout delivered
func (ms *MockSink) Fanouts() []*Fanout {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return append([]*Fanout(nil), ms.fanouts...)
}

// LastFanout returns the last fanout delivered
func (ms *MockSink) LastFanout() (*Fanout, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	if len(ms.fanouts) == 0 {
		return nil, errors.New("no fanouts delivered")
	}
	return ms.fanouts[len(ms.fanouts)-1], nil
}

//-----------------------------------------------------------------------------
// Mock credential store implementation
//-----------------------------------------------------------------------------

// MockCredentialStore returns its credentials in turn, repeating the last one once exhausted
type MockCredentialStore struct {
	mutex sync.Mutex
	creds []BotCredential
	err   error
	calls int
}

// NewMockCredentialStore returns a store handing out the passed in credentials
func NewMockCredentialStore(creds ...BotCredential) *MockCredentialStore {
	return &MockCredentialStore{creds: creds}
}

// SetError makes lookups fail with the passed in error
func (s *MockCredentialStore) SetError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.err = err
}

// Calls returns the number of lookups made
func (s *MockCredentialStore) Calls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.calls
}

// Credential returns our next credential
func (s *MockCredentialStore) Credential(ctx context.Context) (BotCredential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := s.calls
	s.calls++

	if s.err != nil {
		return BotCredential{}, s.err
	}
	if len(s.creds) == 0 {
		return BotCredential{}, nil
	}
	if n >= len(s.creds) {
		n = len(s.creds) - 1
	}
	return s.creds[n], nil
}
