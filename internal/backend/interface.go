// Package backend builds the ledger store and the optional event publisher
// from configuration.
package backend

import (
	"context"

	"sitetakip/internal/amqp"
	"sitetakip/internal/ledger"
	"sitetakip/internal/services"
)

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (t BackendType) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	}
	return false
}

func (t BackendType) String() string { return string(t) }

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the AMQP client when events are enabled
// and a cleanup function releasing both.
type BackendResult struct {
	Store   ledger.Store
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Publisher returns the event publisher for services, or nil when AMQP is
// disabled. A nil *amqp.Client must not leak into the interface.
func (r *BackendResult) Publisher() services.EventPublisher {
	if r.Events == nil {
		return nil
	}
	return r.Events
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath   string
	MemorySeedFile string

	// An empty URL disables ledger events.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}
