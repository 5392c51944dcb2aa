// Package connection owns the wallet session: connecting, switching chains,
// persisting the session across restarts and reacting to wallet events.
//
// State machine: Disconnected → Connecting → Connected → Disconnected. Every
// failure returns to Disconnected, and every chain change is re-validated
// against the chain registry before the provider is rebound.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/hexutil"
	"github.com/archon-research/lendkit/internal/ports/inbound"
	"github.com/archon-research/lendkit/internal/ports/outbound"
	"github.com/archon-research/lendkit/internal/services/shared"
)

var _ inbound.ConnectionService = (*Manager)(nil)

type Config struct {
	Registry *entity.ChainRegistry
	Store    outbound.SessionStore
	Dialer   outbound.ChainDialer
	Modal    *Modal
	Metrics  outbound.MetricsRecorder
	// Notify receives user-visible notices such as a forced disconnect.
	Notify func(msg string)
	Logger *slog.Logger
}

type Manager struct {
	registry *entity.ChainRegistry
	store    outbound.SessionStore
	dialer   outbound.ChainDialer
	modal    *Modal
	metrics  outbound.MetricsRecorder
	notify   func(string)
	logger   *slog.Logger

	// opMu serialises connect, switch, disconnect and event handling.
	opMu sync.Mutex

	mu         sync.Mutex
	session    entity.Session
	connecting bool
	wallet     outbound.Wallet
	provider   *outbound.Provider
	listeners  []func(inbound.InvalidationReason)
}

func NewManager(config Config) (*Manager, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if config.Dialer == nil {
		return nil, fmt.Errorf("chain dialer is required")
	}
	if config.Modal == nil {
		return nil, fmt.Errorf("wallet modal is required")
	}
	if config.Registry == nil {
		config.Registry = entity.DefaultRegistry()
	}
	if config.Metrics == nil {
		config.Metrics = outbound.NopMetrics{}
	}
	if config.Notify == nil {
		config.Notify = func(string) {}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Manager{
		registry: config.Registry,
		store:    config.Store,
		dialer:   config.Dialer,
		modal:    config.Modal,
		metrics:  config.Metrics,
		notify:   config.Notify,
		logger:   config.Logger.With("component", "connection-manager"),
		session:  entity.DisconnectedSession(config.Registry.Primary().ChainID),
	}, nil
}

// Session returns a snapshot of the live session.
func (m *Manager) Session() entity.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connecting {
		return entity.Session{State: entity.StateConnecting, ChainID: m.session.ChainID}
	}
	return m.session
}

// Provider returns the handle bound to the active chain.
func (m *Manager) Provider() (*outbound.Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider, m.provider != nil
}

func (m *Manager) HasCachedSession(ctx context.Context) bool {
	return m.modal.HasCachedSession(ctx)
}

func (m *Manager) OnInvalidate(fn func(inbound.InvalidationReason)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) fire(reasons []inbound.InvalidationReason) {
	if len(reasons) == 0 {
		return
	}
	m.mu.Lock()
	listeners := append(([]func(inbound.InvalidationReason))(nil), m.listeners...)
	m.mu.Unlock()
	for _, reason := range reasons {
		m.logger.Debug("invalidating derived state", "reason", reason)
		for _, fn := range listeners {
			fn(reason)
		}
	}
}

func (m *Manager) beginConnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connecting {
		return false
	}
	m.connecting = true
	return true
}

func (m *Manager) endConnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connecting = false
}

// Connect connects the wallet on chainID (the primary chain when 0),
// switching or adding the chain in the wallet as needed.
func (m *Manager) Connect(ctx context.Context, chainID int64) (provider *outbound.Provider, err error) {
	if !m.beginConnect() {
		return nil, &entity.ConnectionError{Op: "connect", Err: entity.ErrConnectInProgress}
	}
	ctx, span := shared.StartSpan(ctx, "connection.Connect", attribute.Int64("chain_id", chainID))
	defer func() { shared.EndSpan(span, err) }()

	var reasons []inbound.InvalidationReason
	func() {
		m.opMu.Lock()
		defer m.opMu.Unlock()
		defer m.endConnect()
		provider, reasons, err = m.connect(ctx, chainID, true)
	}()
	m.fire(reasons)
	return provider, err
}

// Restore silently reconnects the persisted session, if there is one.
func (m *Manager) Restore(ctx context.Context) bool {
	if !m.modal.HasCachedSession(ctx) {
		return false
	}
	persisted, ok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("failed to load persisted session", "error", err)
		return false
	}
	if !ok || !persisted.Connected {
		return false
	}
	if !m.beginConnect() {
		return false
	}

	var reasons []inbound.InvalidationReason
	func() {
		m.opMu.Lock()
		defer m.opMu.Unlock()
		defer m.endConnect()
		_, reasons, err = m.connect(ctx, persisted.ChainID, false)
	}()
	m.fire(reasons)

	if err != nil {
		m.logger.Info("silent reconnect failed", "chainID", persisted.ChainID, "error", err)
		return false
	}
	return true
}

func (m *Manager) connect(ctx context.Context, target int64, prompt bool) (*outbound.Provider, []inbound.InvalidationReason, error) {
	if target == 0 {
		target = m.registry.Primary().ChainID
	}

	m.mu.Lock()
	prev := m.session
	wallet := m.wallet
	m.mu.Unlock()

	chain, ok := m.registry.Get(target)
	if !ok {
		return nil, m.disconnectedReasons(prev), m.failUnsupported(ctx, "connect", target)
	}

	fresh := false
	if wallet == nil {
		w, err := m.modal.Connect(ctx, prompt)
		if err != nil {
			return nil, nil, m.fail(ctx, "connect", err)
		}
		wallet, fresh = w, true
		m.mu.Lock()
		m.wallet = w
		m.mu.Unlock()
	}

	accounts, err := wallet.RequestAccounts(ctx)
	if err != nil {
		return nil, m.disconnectedReasons(prev), m.fail(ctx, "request accounts", err)
	}
	if len(accounts) == 0 {
		return nil, m.disconnectedReasons(prev), m.fail(ctx, "request accounts", fmt.Errorf("%w: no accounts", entity.ErrWalletUnavailable))
	}

	current, err := walletChain(ctx, wallet)
	if err != nil {
		return nil, m.disconnectedReasons(prev), m.fail(ctx, "read chain", err)
	}
	if current != target {
		if err := switchWallet(ctx, wallet, chain); err != nil {
			m.logger.Info("chain switch failed", "from", current, "to", target, "error", err)
		}
		if current, err = walletChain(ctx, wallet); err != nil {
			return nil, m.disconnectedReasons(prev), m.fail(ctx, "read chain", err)
		}
	}
	if current != target {
		if !m.registry.Supports(current) {
			return nil, m.disconnectedReasons(prev), m.failUnsupported(ctx, "connect", current)
		}
		return nil, m.disconnectedReasons(prev), m.fail(ctx, "switch chain", fmt.Errorf("wallet stayed on chain %d, want %d", current, target))
	}

	provider, err := m.bind(ctx, chain, accounts[0], wallet)
	if err != nil {
		return nil, m.disconnectedReasons(prev), m.fail(ctx, "connect", err)
	}
	if fresh {
		m.watch(wallet)
	}

	m.persist(ctx)
	m.metrics.RecordConnect(ctx, "success")
	m.logger.Info("wallet connected", "chainID", chain.ChainID, "address", accounts[0].Hex())

	var reasons []inbound.InvalidationReason
	if prev.Connected() {
		switch {
		case prev.Address != accounts[0]:
			reasons = append(reasons, inbound.InvalidateAccountChanged)
		case prev.ChainID != chain.ChainID:
			reasons = append(reasons, inbound.InvalidateChainChanged)
		}
	}
	return provider, reasons, nil
}

func (m *Manager) disconnectedReasons(prev entity.Session) []inbound.InvalidationReason {
	if prev.Connected() {
		return []inbound.InvalidationReason{inbound.InvalidateDisconnected}
	}
	return nil
}

// bind dials chain and installs a connected session and provider for
// account. An existing reader on the same chain is reused.
func (m *Manager) bind(ctx context.Context, chain entity.Chain, account common.Address, wallet outbound.Wallet) (*outbound.Provider, error) {
	m.mu.Lock()
	old := m.provider
	m.mu.Unlock()

	var reader outbound.ChainReader
	if old != nil && old.ChainID == chain.ChainID && old.Reader != nil {
		reader = old.Reader
	} else {
		r, err := m.dialer.Dial(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", chain.Name, err)
		}
		reader = r
	}

	provider := &outbound.Provider{ChainID: chain.ChainID, Account: account, Reader: reader, Wallet: wallet}
	m.mu.Lock()
	m.provider = provider
	m.session = entity.Session{State: entity.StateConnected, ChainID: chain.ChainID, Address: account}
	m.mu.Unlock()

	if old != nil && old.Reader != nil && old.Reader != reader {
		old.Reader.Close()
	}
	return provider, nil
}

// rebind re-dials chain for the current account.
func (m *Manager) rebind(ctx context.Context, chain entity.Chain) error {
	m.mu.Lock()
	old := m.provider
	account := m.session.Address
	wallet := m.wallet
	m.mu.Unlock()

	reader, err := m.dialer.Dial(ctx, chain)
	if err != nil {
		return fmt.Errorf("dial %s: %w", chain.Name, err)
	}

	m.mu.Lock()
	m.provider = &outbound.Provider{ChainID: chain.ChainID, Account: account, Reader: reader, Wallet: wallet}
	m.session = entity.Session{State: entity.StateConnected, ChainID: chain.ChainID, Address: account}
	m.mu.Unlock()

	if old != nil && old.Reader != nil && old.Reader != reader {
		old.Reader.Close()
	}
	return nil
}

func (m *Manager) persist(ctx context.Context) {
	session := m.Session()
	if err := m.store.Save(ctx, session.Persisted()); err != nil {
		m.logger.Warn("failed to persist session", "error", err)
	}
}

// teardown closes the wallet and provider and marks the session
// disconnected. It reports whether a session was connected.
func (m *Manager) teardown() bool {
	m.mu.Lock()
	wasConnected := m.session.Connected()
	wallet, provider := m.wallet, m.provider
	m.wallet, m.provider = nil, nil
	m.session = entity.DisconnectedSession(m.session.ChainID)
	m.mu.Unlock()

	if provider != nil && provider.Reader != nil {
		provider.Reader.Close()
	}
	if wallet != nil {
		if err := wallet.Close(); err != nil {
			m.logger.Debug("wallet close failed", "error", err)
		}
	}
	return wasConnected
}

// fail aborts a connect attempt. The persisted session is kept so a later
// restore can retry.
func (m *Manager) fail(ctx context.Context, op string, err error) error {
	m.teardown()
	status := "error"
	if errors.Is(err, entity.ErrUserRejected) {
		status = "rejected"
	}
	m.metrics.RecordConnect(ctx, status)
	m.logger.Warn("connect failed", "op", op, "error", err)
	return &entity.ConnectionError{Op: op, Err: err}
}

// failUnsupported disconnects, forgets the stored session and tells the
// user the wallet is on a chain without known deployments.
func (m *Manager) failUnsupported(ctx context.Context, op string, chainID int64) error {
	m.dropUnsupported(ctx, chainID)
	m.metrics.RecordConnect(ctx, "unsupported_chain")
	return &entity.ConnectionError{Op: op, Err: &entity.UnsupportedChainError{ChainID: chainID}}
}

func (m *Manager) dropUnsupported(ctx context.Context, chainID int64) bool {
	wasConnected := m.teardown()
	m.clearStore(ctx)
	m.logger.Warn("wallet is on an unsupported chain, disconnected", "chainID", chainID)
	m.notify(fmt.Sprintf("Chain %d is not supported. Switch your wallet to one of %v and connect again.", chainID, m.registry.IDs()))
	return wasConnected
}

func (m *Manager) clearStore(ctx context.Context) error {
	var errs []error
	if err := m.store.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear session: %w", err))
	}
	if err := m.modal.ClearCachedSession(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear cached wallet: %w", err))
	}
	err := errors.Join(errs...)
	if err != nil {
		m.logger.Warn("failed to clear persisted session", "error", err)
	}
	return err
}

// Disconnect closes the session and forgets it. Safe to call repeatedly.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	wasConnected := m.teardown()
	err := m.clearStore(ctx)
	m.opMu.Unlock()

	if wasConnected {
		m.logger.Info("wallet disconnected")
		m.fire([]inbound.InvalidationReason{inbound.InvalidateDisconnected})
	}
	return err
}

// Release closes the wallet and chain connections but keeps the persisted
// session so a later process can restore it.
func (m *Manager) Release() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown()
}

// SwitchChain moves the connected wallet to chainID. A rejected switch or
// add-chain request reports false without an error.
func (m *Manager) SwitchChain(ctx context.Context, chainID int64) (ok bool, err error) {
	ctx, span := shared.StartSpan(ctx, "connection.SwitchChain", attribute.Int64("chain_id", chainID))
	defer func() { shared.EndSpan(span, err) }()

	var reasons []inbound.InvalidationReason
	func() {
		m.opMu.Lock()
		defer m.opMu.Unlock()
		ok, reasons, err = m.switchChain(ctx, chainID)
	}()
	m.fire(reasons)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !ok:
		status = "rejected"
	}
	m.metrics.RecordChainSwitch(ctx, chainID, status)
	return ok, err
}

func (m *Manager) switchChain(ctx context.Context, chainID int64) (bool, []inbound.InvalidationReason, error) {
	chain, ok := m.registry.Get(chainID)
	if !ok {
		return false, nil, &entity.UnsupportedChainError{ChainID: chainID}
	}

	m.mu.Lock()
	wallet := m.wallet
	prev := m.session
	m.mu.Unlock()
	if wallet == nil || !prev.Connected() {
		return false, nil, entity.ErrNotConnected
	}

	if err := switchWallet(ctx, wallet, chain); err != nil {
		if errors.Is(err, entity.ErrUserRejected) {
			m.logger.Info("chain switch rejected", "chainID", chainID)
			return false, nil, nil
		}
		return false, nil, err
	}

	current, err := walletChain(ctx, wallet)
	if err != nil {
		return false, nil, err
	}
	if current != chainID {
		m.logger.Warn("wallet did not switch", "want", chainID, "got", current)
		return false, nil, nil
	}
	if prev.ChainID == chainID {
		return true, nil, nil
	}

	if err := m.rebind(ctx, chain); err != nil {
		return false, nil, err
	}
	m.persist(ctx)
	m.logger.Info("switched chain", "from", prev.ChainID, "to", chainID)
	return true, []inbound.InvalidationReason{inbound.InvalidateChainChanged}, nil
}

// switchWallet asks the wallet to switch, teaching it the chain first when
// it reports the chain as unknown.
func switchWallet(ctx context.Context, wallet outbound.Wallet, chain entity.Chain) error {
	err := wallet.SwitchChain(ctx, chain.ChainID)
	if errors.Is(err, entity.ErrUnknownChain) {
		if err := wallet.AddChain(ctx, chain.AddChainParams()); err != nil {
			return fmt.Errorf("add chain %d: %w", chain.ChainID, err)
		}
		err = wallet.SwitchChain(ctx, chain.ChainID)
	}
	if err != nil {
		return fmt.Errorf("switch to chain %d: %w", chain.ChainID, err)
	}
	return nil
}

func walletChain(ctx context.Context, wallet outbound.Wallet) (int64, error) {
	raw, err := wallet.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read wallet chain: %w", err)
	}
	id, err := hexutil.NormalizeChainID(raw)
	if err != nil {
		return 0, fmt.Errorf("read wallet chain: %w", err)
	}
	return id, nil
}
