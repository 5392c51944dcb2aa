package connection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// Selector asks the user to pick one of the offered connector ids.
type Selector func(ctx context.Context, ids []string) (string, error)

// Modal is the wallet picker. It remembers the connector last used so a
// returning user is reconnected without being prompted.
type Modal struct {
	store      outbound.SessionStore
	selector   Selector
	connectors map[string]outbound.WalletConnector
	order      []string
	logger     *slog.Logger
}

func NewModal(store outbound.SessionStore, selector Selector, logger *slog.Logger, connectors ...outbound.WalletConnector) *Modal {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Modal{
		store:      store,
		selector:   selector,
		connectors: make(map[string]outbound.WalletConnector, len(connectors)),
		logger:     logger.With("component", "wallet-modal"),
	}
	for _, c := range connectors {
		if _, dup := m.connectors[c.ID()]; dup {
			continue
		}
		m.connectors[c.ID()] = c
		m.order = append(m.order, c.ID())
	}
	return m
}

var (
	defaultModal *Modal
	modalOnce    sync.Once
)

// InitModal creates the process-wide modal on first use. Later calls return
// the existing instance and ignore their arguments.
func InitModal(store outbound.SessionStore, selector Selector, logger *slog.Logger, connectors ...outbound.WalletConnector) *Modal {
	modalOnce.Do(func() {
		defaultModal = NewModal(store, selector, logger, connectors...)
	})
	return defaultModal
}

// DefaultModal returns the process-wide modal, if initialised.
func DefaultModal() (*Modal, bool) {
	return defaultModal, defaultModal != nil
}

// Connectors lists the available connector ids in registration order.
func (m *Modal) Connectors() []string {
	return append([]string(nil), m.order...)
}

func (m *Modal) cached(ctx context.Context) (outbound.WalletConnector, bool) {
	id, err := m.store.CachedConnector(ctx)
	if err != nil {
		m.logger.Warn("failed to read cached wallet", "error", err)
		return nil, false
	}
	c, ok := m.connectors[id]
	return c, ok
}

// HasCachedSession reports whether a previously used connector is on file.
func (m *Modal) HasCachedSession(ctx context.Context) bool {
	_, ok := m.cached(ctx)
	return ok
}

// Connect opens a wallet. The cached connector is tried first; otherwise,
// when prompt is set, the user picks one. Without prompt and without a
// cached connector it fails with ErrNoCachedSession.
func (m *Modal) Connect(ctx context.Context, prompt bool) (outbound.Wallet, error) {
	if c, ok := m.cached(ctx); ok {
		w, err := c.Connect(ctx)
		if err == nil {
			return w, nil
		}
		if !prompt {
			return nil, err
		}
		m.logger.Info("cached wallet unavailable, prompting", "connector", c.ID(), "error", err)
	}
	if !prompt {
		return nil, entity.ErrNoCachedSession
	}

	c, err := m.pick(ctx)
	if err != nil {
		return nil, err
	}
	w, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.store.SetCachedConnector(ctx, c.ID()); err != nil {
		m.logger.Warn("failed to cache wallet choice", "connector", c.ID(), "error", err)
	}
	return w, nil
}

func (m *Modal) pick(ctx context.Context) (outbound.WalletConnector, error) {
	switch {
	case len(m.order) == 0:
		return nil, fmt.Errorf("%w: no wallet connectors configured", entity.ErrWalletUnavailable)
	case m.selector == nil && len(m.order) == 1:
		return m.connectors[m.order[0]], nil
	case m.selector == nil:
		return nil, fmt.Errorf("%w: %d wallets available and no way to choose", entity.ErrWalletUnavailable, len(m.order))
	}

	id, err := m.selector(ctx, m.Connectors())
	if err != nil {
		return nil, err
	}
	c, ok := m.connectors[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown wallet %q", entity.ErrWalletUnavailable, id)
	}
	return c, nil
}

// ClearCachedSession forgets the cached connector.
func (m *Modal) ClearCachedSession(ctx context.Context) error {
	return m.store.ClearCachedConnector(ctx)
}
