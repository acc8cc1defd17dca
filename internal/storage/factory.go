package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mealplanner/pantry/internal/bridge"
)

// Backend names accepted by Capabilities.Force and reported by Open.
const (
	BackendBridge = "bridge"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Capabilities declares what the surrounding environment provides. The
// factory inspects it exactly once; the chosen backend never changes for
// the lifetime of the adapter.
type Capabilities struct {
	// BridgeTransport, when non-nil, offers host-managed persistence.
	BridgeTransport bridge.Transport

	// SQLitePath, when non-empty, offers a local durable database file.
	SQLitePath string

	// BridgeTimeout overrides the default per-call deadline for bridge
	// operations. Zero keeps the default.
	BridgeTimeout time.Duration

	// Force pins a specific backend instead of probing. Open fails if the
	// capability the named backend needs is missing.
	Force string
}

// Open selects and initialises the best available backend: bridge when a
// transport is present, otherwise local SQLite when a path is configured,
// otherwise in-memory. A backend that fails to initialise is skipped and the
// next candidate is tried; the fallback is logged, never silent.
//
// The returned name identifies which backend actually came up.
func Open(ctx context.Context, caps Capabilities, log *zap.Logger, opts ...Option) (Adapter, string, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if caps.Force != "" {
		a, err := openBackend(ctx, caps.Force, caps, log, opts)
		if err != nil {
			return nil, "", fmt.Errorf("open %s backend: %w", caps.Force, err)
		}
		return a, caps.Force, nil
	}

	var firstErr error
	for _, name := range candidates(caps) {
		a, err := openBackend(ctx, name, caps, log, opts)
		if err != nil {
			log.Warn("storage backend unavailable, falling back",
				zap.String("backend", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Info("storage backend selected", zap.String("backend", name))
		return a, name, nil
	}
	return nil, "", fmt.Errorf("no storage backend available: %w", firstErr)
}

func candidates(caps Capabilities) []string {
	names := []string{}
	if caps.BridgeTransport != nil {
		names = append(names, BackendBridge)
	}
	if caps.SQLitePath != "" {
		names = append(names, BackendSQLite)
	}
	return append(names, BackendMemory)
}

func openBackend(ctx context.Context, name string, caps Capabilities, log *zap.Logger, opts []Option) (Adapter, error) {
	opts = append([]Option{WithLogger(log)}, opts...)

	switch name {
	case BackendBridge:
		if caps.BridgeTransport == nil {
			return nil, fmt.Errorf("bridge transport not configured")
		}
		clientOpts := []bridge.ClientOption{bridge.WithLogger(log)}
		if caps.BridgeTimeout > 0 {
			clientOpts = append(clientOpts, bridge.WithTimeout(caps.BridgeTimeout))
		}
		client := bridge.NewClient(caps.BridgeTransport, clientOpts...)
		b := NewBridge(client, opts...)
		if err := b.Initialise(ctx); err != nil {
			b.Close()
			return nil, err
		}
		return b, nil

	case BackendSQLite:
		if caps.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path not configured")
		}
		s, err := OpenSQLite(caps.SQLitePath, opts...)
		if err != nil {
			return nil, err
		}
		if err := s.Initialise(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil

	case BackendMemory:
		m := NewMemory(opts...)
		if err := m.Initialise(ctx); err != nil {
			return nil, err
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
