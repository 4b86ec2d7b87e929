package transports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/config"
	"github.com/hkuds/ugate/internal/session"
)

// Manager manages the lifecycle of vendor transports.
type Manager struct {
	config     *config.Config
	broker     bus.Broker
	store      session.Store
	tracer     trace.Tracer
	logger     *slog.Logger
	transports map[string]Transport
	mu         sync.RWMutex
}

// NewManager creates a new transport manager.
func NewManager(cfg *config.Config, broker bus.Broker, store session.Store, tracer trace.Tracer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:     cfg,
		broker:     broker,
		store:      store,
		tracer:     tracer,
		logger:     logger,
		transports: make(map[string]Transport),
	}
}

// Initialize creates enabled transports based on configuration.
// This must be called before StartAll.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg := m.config.Transports.Airtel; cfg.Enabled {
		t, err := NewAirtelTransport(cfg, m.broker, m.store, m.logger)
		if err != nil {
			return fmt.Errorf("airtel transport: %w", err)
		}
		if err := m.add(t); err != nil {
			return err
		}
		m.logger.Info("transport initialized", "transport", t.Name(), "path", cfg.WebPath, "prefix", cfg.KeyPrefix())
	}

	if cfg := m.config.Transports.Vas2Nets; cfg.Enabled {
		t := NewVas2NetsTransport(cfg, m.broker, m.tracer, m.logger)
		if err := m.add(t); err != nil {
			return err
		}
		m.logger.Info("transport initialized", "transport", t.Name(), "receive", cfg.WebReceivePath, "receipt", cfg.WebReceiptPath)
	}

	if len(m.transports) == 0 {
		m.logger.Warn("no transports are enabled")
	}

	return nil
}

// Caller must hold m.mu
func (m *Manager) add(t Transport) error {
	if t == nil {
		return errors.New("cannot register nil transport")
	}
	name := t.Name()
	if _, exists := m.transports[name]; exists {
		return fmt.Errorf("transport %s already registered", name)
	}
	m.transports[name] = t
	return nil
}

// Register adds a transport built outside of configuration.
func (m *Manager) Register(t Transport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.add(t)
}

// Mount registers every transport's endpoints on r.
func (m *Manager) Mount(r gin.IRouter) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, name := range m.sortedNames() {
		m.transports[name].Routes(r)
	}
}

// StartAll starts all initialized transports.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, name := range m.sortedNames() {
		if err := m.transports[name].Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to start transport %s: %w", name, err))
			continue
		}
		m.logger.Info("transport started", "transport", name)
	}
	return errors.Join(errs...)
}

// StopAll gracefully stops all running transports.
func (m *Manager) StopAll() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var errs []error
	for _, name := range m.sortedNames() {
		t := m.transports[name]
		if !t.IsRunning() {
			continue
		}
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop transport %s: %w", name, err))
			continue
		}
		m.logger.Info("transport stopped", "transport", name)
	}
	return errors.Join(errs...)
}

// Get returns a transport by name, or nil if not found.
func (m *Manager) Get(name string) Transport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transports[name]
}

// List returns a sorted list of all transport names.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedNames()
}

// Running returns the sorted names of transports currently consuming.
func (m *Manager) Running() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var running []string
	for _, name := range m.sortedNames() {
		if m.transports[name].IsRunning() {
			running = append(running, name)
		}
	}
	return running
}

// Sweep runs periodic housekeeping on every transport that has any.
func (m *Manager) Sweep() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, name := range m.sortedNames() {
		if s, ok := m.transports[name].(interface{ Sweep() }); ok {
			s.Sweep()
		}
	}
}

// Caller must hold m.mu
func (m *Manager) sortedNames() []string {
	names := make([]string, 0, len(m.transports))
	for name := range m.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
