package relay

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
)

var botIDRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

// BotCredential identifies a bot on the backend and how to reach it
type BotCredential struct {
	Token         string
	BotID         string
	SkipTLSVerify bool
}

// Validate checks that the bot id can be used as a hostname label and that we have a token
func (c BotCredential) Validate() error {
	if c.BotID == "" {
		return errors.Wrap(ErrInvalidCredential, "bot id is empty")
	}
	if !botIDRegex.MatchString(c.BotID) {
		return errors.Wrapf(ErrInvalidCredential, "bot id %q is not a valid hostname label", c.BotID)
	}
	if c.Token == "" {
		return errors.Wrap(ErrInvalidCredential, "token is empty")
	}
	return nil
}

// CredentialStore looks up the credential to use for an operation. It is consulted
// once per command so that rotated credentials are picked up mid batch.
type CredentialStore interface {
	Credential(ctx context.Context) (BotCredential, error)
}

// NewConfigCredentialStore returns a store which reads the credential from our config
func NewConfigCredentialStore(config *Config) CredentialStore {
	return &configCredentialStore{config: config}
}

type configCredentialStore struct {
	config *Config
}

func (s *configCredentialStore) Credential(ctx context.Context) (BotCredential, error) {
	return s.config.Credential(), nil
}
