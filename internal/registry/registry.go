// Package registry publishes running udplog instances and their counters to
// Redis so a fleet of receivers can be inspected from one place.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/zsiec/udplog/internal/ingestion/types"
)

var (
	// ErrInstanceNotFound is returned when an instance key is absent or expired.
	ErrInstanceNotFound = errors.New("instance not found")
)

// Instance is the record stored per running process.
type Instance struct {
	ID            string      `json:"id"`
	Hostname      string      `json:"hostname"`
	ListenAddr    string      `json:"listen_addr"`
	OutputPath    string      `json:"output_path"`
	Version       string      `json:"version"`
	StartedAt     time.Time   `json:"started_at"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	Stats         types.Stats `json:"stats"`
}

// Registry defines the instance registry operations.
type Registry interface {
	// Register publishes inst, replacing any previous record with the same ID.
	Register(ctx context.Context, inst *Instance) error

	// Heartbeat refreshes the TTL and stores the latest stats.
	Heartbeat(ctx context.Context, id string, stats types.Stats) error

	// Unregister removes an instance.
	Unregister(ctx context.Context, id string) error

	// Get retrieves an instance by ID.
	Get(ctx context.Context, id string) (*Instance, error)

	// List returns every live instance.
	List(ctx context.Context) ([]*Instance, error)

	// Close closes any resources held by the registry.
	Close() error
}
