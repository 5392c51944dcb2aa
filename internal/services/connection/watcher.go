package connection

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/pkg/hexutil"
	"github.com/archon-research/lendkit/internal/ports/inbound"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

const eventTimeout = 30 * time.Second

// watch consumes wallet events until the wallet closes its event channel.
func (m *Manager) watch(wallet outbound.Wallet) {
	go func() {
		for ev := range wallet.Events() {
			ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
			m.handleEvent(ctx, wallet, ev)
			cancel()
		}
		m.logger.Debug("wallet event stream closed")
	}()
}

func (m *Manager) handleEvent(ctx context.Context, wallet outbound.Wallet, ev outbound.WalletEvent) {
	var reasons []inbound.InvalidationReason
	func() {
		m.opMu.Lock()
		defer m.opMu.Unlock()

		m.mu.Lock()
		stale := m.wallet != wallet
		m.mu.Unlock()
		if stale {
			return
		}

		m.logger.Debug("wallet event", "kind", ev.Kind)
		switch ev.Kind {
		case outbound.EventAccountsChanged:
			reasons = m.onAccountsChanged(ctx, ev.Accounts)
		case outbound.EventChainChanged:
			reasons = m.onChainChanged(ctx, ev.Chain, inbound.InvalidateChainChanged)
		case outbound.EventNetworkChanged:
			if ev.Prev == nil {
				return
			}
			reasons = m.onChainChanged(ctx, ev.Chain, inbound.InvalidateNetworkChanged)
		}
	}()
	m.fire(reasons)
}

func (m *Manager) onAccountsChanged(ctx context.Context, accounts []common.Address) []inbound.InvalidationReason {
	if len(accounts) == 0 {
		wasConnected := m.teardown()
		m.clearStore(ctx)
		m.logger.Info("wallet locked or all accounts removed, disconnected")
		m.notify("Wallet disconnected: no accounts available.")
		if wasConnected {
			return []inbound.InvalidationReason{inbound.InvalidateDisconnected}
		}
		return nil
	}

	m.mu.Lock()
	changed := m.session.Connected() && m.session.Address != accounts[0]
	if changed {
		m.session.Address = accounts[0]
		if m.provider != nil {
			p := *m.provider
			p.Account = accounts[0]
			m.provider = &p
		}
	}
	m.mu.Unlock()
	if !changed {
		return nil
	}

	m.persist(ctx)
	m.logger.Info("account changed", "address", accounts[0].Hex())
	return []inbound.InvalidationReason{inbound.InvalidateAccountChanged}
}

func (m *Manager) onChainChanged(ctx context.Context, payload any, reason inbound.InvalidationReason) []inbound.InvalidationReason {
	chainID, err := hexutil.NormalizeChainID(payload)
	if err != nil {
		m.logger.Warn("ignoring chain event with unreadable chain id", "chain", payload, "error", err)
		return nil
	}

	before := m.Session()
	if !before.Connected() || (before.ChainID == chainID && reason == inbound.InvalidateChainChanged) {
		return nil
	}

	chain, ok := m.registry.Get(chainID)
	if !ok {
		m.dropUnsupported(ctx, chainID)
		return []inbound.InvalidationReason{inbound.InvalidateDisconnected}
	}

	if err := m.rebind(ctx, chain); err != nil {
		m.logger.Warn("failed to rebind after chain change", "chainID", chainID, "error", err)
		m.teardown()
		m.notify("Wallet disconnected: could not reach " + chain.Name + ".")
		return []inbound.InvalidationReason{inbound.InvalidateDisconnected}
	}
	m.persist(ctx)
	m.logger.Info("wallet chain changed", "from", before.ChainID, "to", chainID, "reason", reason)
	return []inbound.InvalidationReason{reason}
}

