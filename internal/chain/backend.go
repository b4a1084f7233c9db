package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNoAccount is returned when the keystore has no usable account.
var ErrNoAccount = errors.New("no wallet account available")

// BackendConfig configures the go-ethereum backend.
type BackendConfig struct {
	RPCURL        string
	KeystoreDir   string
	Account       string // hex address; empty selects the first keystore account
	Passphrase    string
	WatchInterval time.Duration
}

// Backend is the go-ethereum implementation of Wallet and Dialer. It signs with
// one unlocked keystore account at a time.
type Backend struct {
	client        *ethclient.Client
	ks            *keystore.KeyStore
	watchInterval time.Duration

	mu      sync.RWMutex
	account accounts.Account
	hasAcct bool
	subs    map[chan WalletEvent]struct{}
}

var (
	_ Wallet = (*Backend)(nil)
	_ Dialer = (*Backend)(nil)
	_ Signer = (*Backend)(nil)
)

// Dial connects to the JSON-RPC node and opens the keystore.
func Dial(ctx context.Context, cfg BackendConfig) (*Backend, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node: %w", err)
	}

	interval := cfg.WatchInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	b := &Backend{
		client:        client,
		ks:            keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP),
		watchInterval: interval,
		subs:          make(map[chan WalletEvent]struct{}),
	}

	var addr common.Address
	if cfg.Account != "" {
		if !common.IsHexAddress(cfg.Account) {
			client.Close()
			return nil, fmt.Errorf("invalid account address: %s", cfg.Account)
		}
		addr = common.HexToAddress(cfg.Account)
	} else if all := b.ks.Accounts(); len(all) > 0 {
		addr = all[0].Address
	}

	if addr != (common.Address{}) {
		if err := b.unlock(addr, cfg.Passphrase); err != nil {
			client.Close()
			return nil, err
		}
	} else {
		slog.Warn("Keystore has no accounts, wallet is read-only", "keystore", cfg.KeystoreDir)
	}

	return b, nil
}

// Close releases the RPC connection.
func (b *Backend) Close() {
	b.client.Close()
}

func (b *Backend) unlock(addr common.Address, passphrase string) error {
	acct, err := b.ks.Find(accounts.Account{Address: addr})
	if err != nil {
		return fmt.Errorf("account %s not in keystore: %w", addr.Hex(), err)
	}
	if err := b.ks.Unlock(acct, passphrase); err != nil {
		return fmt.Errorf("failed to unlock account %s: %w", addr.Hex(), err)
	}

	b.mu.Lock()
	b.account = acct
	b.hasAcct = true
	b.mu.Unlock()
	return nil
}

// SelectAccount switches the signing account and notifies watchers.
func (b *Backend) SelectAccount(addr common.Address, passphrase string) error {
	if err := b.unlock(addr, passphrase); err != nil {
		return err
	}
	b.broadcast(WalletEvent{Kind: AccountChanged, Account: addr})
	return nil
}

// RequestAccounts returns the active account.
func (b *Backend) RequestAccounts(ctx context.Context) (common.Address, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasAcct {
		return common.Address{}, ErrNoAccount
	}
	return b.account.Address, nil
}

// ChainID returns the node's network id.
func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return b.client.ChainID(ctx)
}

// BalanceAt returns the latest native-currency balance of who.
func (b *Backend) BalanceAt(ctx context.Context, who common.Address) (*big.Int, error) {
	return b.client.BalanceAt(ctx, who, nil)
}

// TransactOpts signs with the active account for the node's chain id.
func (b *Backend) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	b.mu.RLock()
	acct, ok := b.account, b.hasAcct
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNoAccount
	}

	chainID, err := b.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(b.ks, acct, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Registry binds the factory contract at addr.
func (b *Backend) Registry(addr common.Address) (Registry, error) {
	factory, _, err := ParsedABIs()
	if err != nil {
		return nil, err
	}
	return &ethRegistry{newContract(addr, factory, b.client, b.client, b.client, b)}, nil
}

// Splitter binds the splitter contract at addr.
func (b *Backend) Splitter(addr common.Address) (Splitter, error) {
	_, splitter, err := ParsedABIs()
	if err != nil {
		return nil, err
	}
	return &ethSplitter{newContract(addr, splitter, b.client, b.client, b.client, b)}, nil
}

// Watch polls the node's chain id and relays account switches. A failed poll
// yields one Disconnected event; the next successful poll yields NetworkChanged.
func (b *Backend) Watch(ctx context.Context) <-chan WalletEvent {
	ch := make(chan WalletEvent, 16)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		}()

		last, _ := b.client.ChainID(ctx)
		down := last == nil

		ticker := time.NewTicker(b.watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			id, err := b.client.ChainID(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !down {
					down = true
					slog.Warn("Node unreachable", "error", err)
					b.send(ctx, ch, WalletEvent{Kind: Disconnected})
				}
				continue
			}
			if down || last == nil || id.Cmp(last) != 0 {
				down = false
				last = id
				b.send(ctx, ch, WalletEvent{Kind: NetworkChanged, ChainID: id})
			}
		}
	}()

	return ch
}

func (b *Backend) send(ctx context.Context, ch chan WalletEvent, ev WalletEvent) {
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

func (b *Backend) broadcast(ev WalletEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("Dropped wallet event, watcher is not keeping up", "event", ev.Kind.String())
		}
	}
}
