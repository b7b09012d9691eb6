// Package settlement converts value between the two ledgers atomically.
package settlement

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/access"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/ledger"
	"github.com/ayo6706/dual-currency-settlement/internal/rates"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const eventSource = "settlement"

// Config wires an engine to its ledgers. Source is the forward-direction source
// ledger; a reverse settlement swaps the two. Authorities default to the ledgers'
// own authorities.
type Config struct {
	Source          *ledger.Ledger
	Destination     *ledger.Ledger
	Provider        rates.Provider
	FeeBps          uint32
	Custody         domain.Address
	Admin           domain.Address
	SourceAuthority domain.Address
	DestAuthority   domain.Address
}

// Settlement is the record of one completed conversion.
type Settlement struct {
	ID                  uuid.UUID
	Direction           domain.Direction
	Sender              domain.Address
	Recipient           domain.Address
	SourceCurrency      string
	DestinationCurrency string
	Amount              *big.Int
	Fee                 *big.Int
	NetAmount           *big.Int
	Converted           *big.Int
	Rate                domain.Rate
	FeeBps              uint32
	ProviderID          string
	CreatedAt           time.Time
}

// Quote is the side-effect free preview of a settlement.
type Quote struct {
	Direction           domain.Direction
	SourceCurrency      string
	DestinationCurrency string
	Amount              *big.Int
	Fee                 *big.Int
	NetAmount           *big.Int
	Converted           *big.Int
	Rate                domain.Rate
	FeeBps              uint32
}

// Engine owns fee policy, the provider reference and its own pause flag. A
// settlement holds mu from admission to commit so admin changes are ordered
// strictly before or after it.
type Engine struct {
	mu sync.Mutex

	source      *ledger.Ledger
	destination *ledger.Ledger
	provider    rates.Provider
	feeBps      uint32
	custody     domain.Address
	sourceAuth  domain.Address
	destAuth    domain.Address
	paused      bool
	roles       *access.Registry

	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Engine)

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(cfg Config, publisher events.Publisher, opts ...Option) (*Engine, error) {
	if cfg.Source == nil || cfg.Destination == nil {
		return nil, fmt.Errorf("%w: both ledgers are required", domain.ErrInvalidConfiguration)
	}
	if cfg.Source == cfg.Destination || cfg.Source.Code() == cfg.Destination.Code() {
		return nil, fmt.Errorf("%w: source and destination ledgers must differ", domain.ErrInvalidConfiguration)
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("%w: rate provider is required", domain.ErrInvalidConfiguration)
	}
	if cfg.FeeBps > domain.MaxFeeBps {
		return nil, fmt.Errorf("%w: %d bps exceeds %d", domain.ErrFeeTooHigh, cfg.FeeBps, domain.MaxFeeBps)
	}
	if cfg.Custody.IsZero() || cfg.Admin.IsZero() {
		return nil, fmt.Errorf("%w: custody and admin addresses are required", domain.ErrInvalidConfiguration)
	}
	if cfg.SourceAuthority.IsZero() {
		cfg.SourceAuthority = cfg.Source.Authority()
	}
	if cfg.DestAuthority.IsZero() {
		cfg.DestAuthority = cfg.Destination.Authority()
	}
	if publisher == nil {
		publisher = events.Discard
	}

	e := &Engine{
		source:      cfg.Source,
		destination: cfg.Destination,
		provider:    cfg.Provider,
		feeBps:      cfg.FeeBps,
		custody:     cfg.Custody,
		sourceAuth:  cfg.SourceAuthority,
		destAuth:    cfg.DestAuthority,
		roles:       access.NewRegistry(domain.RoleAdmin, domain.RoleFeeManager, domain.RoleRateProviderManager),
		publisher:   publisher,
		log:         zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleFeeManager, domain.RoleRateProviderManager} {
		if _, err := e.roles.Grant(role, cfg.Admin); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SettleForward converts source currency from sender into destination currency
// for recipient.
func (e *Engine) SettleForward(ctx context.Context, sender, recipient domain.Address, amount *big.Int) (*Settlement, error) {
	return e.Settle(ctx, domain.DirectionForward, sender, recipient, amount)
}

// SettleReverse is the mirror of SettleForward.
func (e *Engine) SettleReverse(ctx context.Context, sender, recipient domain.Address, amount *big.Int) (*Settlement, error) {
	return e.Settle(ctx, domain.DirectionReverse, sender, recipient, amount)
}

// Settle pulls amount from sender through its allowance to the custody account,
// pays the fee to the source authority, burns the remainder, converts it and
// mints the result to recipient. Either every step commits or none does.
func (e *Engine) Settle(ctx context.Context, dir domain.Direction, sender, recipient domain.Address, amount *big.Int) (*Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return nil, fmt.Errorf("%w: settlement engine", domain.ErrSystemPaused)
	}
	if !domain.IsPositive(amount) {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidAmount)
	}
	if recipient.IsZero() {
		return nil, fmt.Errorf("%w: recipient is the zero address", domain.ErrInvalidAccount)
	}
	src, dst, srcAuth, err := e.route(dir)
	if err != nil {
		return nil, err
	}

	fee := domain.Fee(amount, e.feeBps)
	net := new(big.Int).Sub(amount, fee)
	var (
		rate      domain.Rate
		converted *big.Int
	)

	err = ledger.Atomic(func(txs []*ledger.Tx) error {
		srcTx, dstTx := txs[0], txs[1]

		if err := srcTx.TransferFrom(e.custody, sender, e.custody, amount); err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := srcTx.Transfer(e.custody, srcAuth, fee); err != nil {
				return err
			}
		}
		if net.Sign() > 0 {
			if err := srcTx.Burn(e.custody, net); err != nil {
				return err
			}
		}

		r, err := e.provider.Rate(ctx)
		if err != nil {
			return err
		}
		rate = r
		converted, err = domain.Convert(net, rate, dir)
		if err != nil {
			return err
		}
		if converted.Sign() == 0 {
			return fmt.Errorf("%w: %s %s converts to zero %s", domain.ErrInvalidAmount, amount, src.Code(), dst.Code())
		}
		return dstTx.Mint(e.custody, recipient, converted)
	}, src, dst)
	if err != nil {
		e.log.Debug("settlement rejected",
			zap.String("direction", string(dir)),
			zap.String("sender", sender.String()),
			zap.String("amount", amount.String()),
			zap.Error(err))
		return nil, err
	}

	s := &Settlement{
		ID:                  uuid.New(),
		Direction:           dir,
		Sender:              sender,
		Recipient:           recipient,
		SourceCurrency:      src.Code(),
		DestinationCurrency: dst.Code(),
		Amount:              new(big.Int).Set(amount),
		Fee:                 fee,
		NetAmount:           net,
		Converted:           converted,
		Rate:                rate,
		FeeBps:              e.feeBps,
		ProviderID:          e.provider.ID(),
		CreatedAt:           e.now(),
	}
	e.log.Info("settlement completed",
		zap.String("settlement_id", s.ID.String()),
		zap.String("direction", string(dir)),
		zap.String("source", s.SourceCurrency),
		zap.String("amount", s.Amount.String()),
		zap.String("converted", s.Converted.String()),
		zap.String("fee", s.Fee.String()),
		zap.Int64("rate", int64(rate)))
	e.publisher.Publish(events.New(events.SettlementCompleted, eventSource, s))
	return s, nil
}

// Quote previews a settlement at the current fee and rate without touching any
// ledger.
func (e *Engine) Quote(ctx context.Context, dir domain.Direction, amount *big.Int) (*Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !domain.IsPositive(amount) {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidAmount)
	}
	src, dst, _, err := e.route(dir)
	if err != nil {
		return nil, err
	}
	rate, err := e.provider.Rate(ctx)
	if err != nil {
		return nil, err
	}
	fee := domain.Fee(amount, e.feeBps)
	net := new(big.Int).Sub(amount, fee)
	converted, err := domain.Convert(net, rate, dir)
	if err != nil {
		return nil, err
	}
	if converted.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s %s converts to zero %s", domain.ErrInvalidAmount, amount, src.Code(), dst.Code())
	}
	return &Quote{
		Direction:           dir,
		SourceCurrency:      src.Code(),
		DestinationCurrency: dst.Code(),
		Amount:              new(big.Int).Set(amount),
		Fee:                 fee,
		NetAmount:           net,
		Converted:           converted,
		Rate:                rate,
		FeeBps:              e.feeBps,
	}, nil
}

func (e *Engine) route(dir domain.Direction) (src, dst *ledger.Ledger, srcAuth domain.Address, err error) {
	switch dir {
	case domain.DirectionForward:
		return e.source, e.destination, e.sourceAuth, nil
	case domain.DirectionReverse:
		return e.destination, e.source, e.destAuth, nil
	default:
		return nil, nil, "", fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidConfiguration, dir)
	}
}
