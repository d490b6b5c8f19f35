package relay

import (
	"context"
	"fmt"
	"strings"
)

// BackendConstructorFunc defines a function to create a particular backend type
type BackendConstructorFunc func(*Config) Backend

// Backend represents the bot service we relay commands to
type Backend interface {
	// Start starts the backend and opens any connections it needs
	Start() error

	// Stop stops the backend closing any connections it has open
	Stop() error

	// Send carries out the passed in command for the bot identified by cred
	Send(ctx context.Context, cred BotCredential, cmd Command) (*OutboundResult, error)

	// CheckCredential checks that the passed in credential is accepted by the bot
	CheckCredential(ctx context.Context, cred BotCredential) error

	// Health returns a string describing any health problems the backend has, or empty string if all is well
	Health() string

	// Status returns a string describing the current status of the backend
	Status() string
}

// NewBackend creates the type of backend passed in
func NewBackend(config *Config) (Backend, error) {
	backendFunc, found := registeredBackends[strings.ToLower(config.Backend)]
	if !found {
		return nil, fmt.Errorf("no such backend type: '%s'", config.Backend)
	}
	return backendFunc(config), nil
}

// RegisterBackend adds a new backend, called by individual backends in their init() func
func RegisterBackend(backendType string, constructorFunc BackendConstructorFunc) {
	registeredBackends[strings.ToLower(backendType)] = constructorFunc
}

var registeredBackends = make(map[string]BackendConstructorFunc)
