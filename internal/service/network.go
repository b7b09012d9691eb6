package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/dual-currency-settlement/internal/config"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/feed"
	"github.com/ayo6706/dual-currency-settlement/internal/ledger"
	"github.com/ayo6706/dual-currency-settlement/internal/rates"
	"github.com/ayo6706/dual-currency-settlement/internal/settlement"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	FixedProviderID  = "fixed"
	OracleProviderID = "oracle"
)

// Network is the wired set of components served by one process: both ledgers,
// the feeds and rate providers, and the settlement engine.
type Network struct {
	Source      *ledger.Ledger
	Destination *ledger.Ledger
	Feeds       *feed.Registry
	Providers   *rates.Registry
	Engine      *settlement.Engine
}

// Status reports the pause flag of every pausable component.
type Status struct {
	Ledgers    map[string]bool `json:"ledgers"`
	Settlement bool            `json:"settlement"`
}

// Bootstrap builds the network from configuration. The engine custody is
// granted MINTER and BURNER on both ledgers by their authorities. rdb may be
// nil unless the feed kind is redis.
func Bootstrap(cfg *config.Config, pub events.Publisher, rdb redis.Cmdable, log *zap.Logger) (*Network, error) {
	if log == nil {
		log = zap.NewNop()
	}

	src, err := ledger.New(ledgerConfig(cfg.Source), pub, ledger.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create %s ledger: %w", cfg.Source.Code, err)
	}
	dst, err := ledger.New(ledgerConfig(cfg.Destination), pub, ledger.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create %s ledger: %w", cfg.Destination.Code, err)
	}

	custody := domain.NewAddress(cfg.Custody)
	for _, l := range []*ledger.Ledger{src, dst} {
		for _, role := range []domain.Role{domain.RoleMinter, domain.RoleBurner} {
			if err := l.GrantRole(l.Authority(), role, custody); err != nil {
				return nil, fmt.Errorf("grant %s on %s to custody: %w", role, l.Code(), err)
			}
		}
	}

	admin := domain.NewAddress(cfg.EngineAdmin)
	feeds := feed.NewRegistry()
	providers := rates.NewRegistry()

	if cfg.FixedRate > 0 {
		fixed, err := rates.NewFixed(FixedProviderID, admin, domain.Rate(cfg.FixedRate), pub)
		if err != nil {
			if cfg.ProviderKind == string(rates.KindFixed) {
				return nil, fmt.Errorf("create fixed provider: %w", err)
			}
			log.Warn("fixed rate provider disabled", zap.Error(err))
		} else {
			if updater := domain.NewAddress(cfg.RateUpdater); !updater.IsZero() {
				if err := fixed.GrantRole(admin, domain.RoleRateUpdater, updater); err != nil {
					return nil, fmt.Errorf("grant rate updater: %w", err)
				}
			}
			providers.Add(fixed)
		}
	}

	description := fmt.Sprintf("%s / %s", cfg.Source.Code, cfg.Destination.Code)
	primary, err := buildFeed(cfg, description, rdb)
	switch {
	case err == nil:
		feeds.Add(primary)
		oracle, err := rates.NewOracle(OracleProviderID, admin, primary, pub, rates.WithMaxAge(cfg.Feed.MaxAge))
		if err != nil {
			return nil, fmt.Errorf("create oracle provider: %w", err)
		}
		providers.Add(oracle)
	case cfg.ProviderKind == string(rates.KindOracle):
		return nil, fmt.Errorf("create feed %s: %w", cfg.Feed.ID, err)
	default:
		log.Warn("oracle provider disabled", zap.String("feed_kind", cfg.Feed.Kind), zap.Error(err))
	}

	provider, err := providers.Get(cfg.ProviderKind)
	if err != nil {
		return nil, fmt.Errorf("select rate provider: %w", err)
	}

	engine, err := settlement.New(settlement.Config{
		Source:      src,
		Destination: dst,
		Provider:    provider,
		FeeBps:      cfg.FeeBps,
		Custody:     custody,
		Admin:       admin,
	}, pub, settlement.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create settlement engine: %w", err)
	}

	log.Info("network ready",
		zap.String("source", src.Code()),
		zap.String("destination", dst.Code()),
		zap.String("provider", provider.ID()),
		zap.Uint32("fee_bps", cfg.FeeBps),
		zap.Strings("feeds", feeds.IDs()))

	return &Network{
		Source:      src,
		Destination: dst,
		Feeds:       feeds,
		Providers:   providers,
		Engine:      engine,
	}, nil
}

func ledgerConfig(c config.CurrencyConfig) ledger.Config {
	return ledger.Config{
		Code:      c.Code,
		Name:      c.Name,
		Decimals:  c.Decimals,
		Authority: domain.NewAddress(c.Authority),
	}
}

func buildFeed(cfg *config.Config, description string, rdb redis.Cmdable) (feed.Feed, error) {
	fc := cfg.Feed
	switch fc.Kind {
	case "static", "":
		return feed.NewStatic(fc.ID, description, fc.Decimals, fc.Answer), nil
	case "push":
		if strings.TrimSpace(cfg.FeedHMACKey) == "" {
			return nil, fmt.Errorf("%w: push feed needs an HMAC key", domain.ErrInvalidConfiguration)
		}
		return feed.NewPush(fc.ID, description, cfg.FeedHMACKey), nil
	case "http":
		if strings.TrimSpace(fc.URL) == "" {
			return nil, fmt.Errorf("%w: http feed needs a URL", domain.ErrInvalidConfiguration)
		}
		return feed.NewHTTP(fc.ID, description, fc.URL, feed.WithTimeout(fc.Timeout)), nil
	case "redis":
		if rdb == nil || strings.TrimSpace(fc.RedisKey) == "" {
			return nil, fmt.Errorf("%w: redis feed needs a client and key", domain.ErrInvalidConfiguration)
		}
		return feed.NewRedis(fc.ID, description, rdb, fc.RedisKey), nil
	default:
		return nil, fmt.Errorf("%w: unsupported feed kind %q", domain.ErrInvalidConfiguration, fc.Kind)
	}
}

// Ledger returns the ledger issuing code.
func (n *Network) Ledger(code string) (*ledger.Ledger, error) {
	for _, l := range n.Ledgers() {
		if l.Code() == code {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCurrency, code)
}

func (n *Network) Ledgers() []*ledger.Ledger {
	return []*ledger.Ledger{n.Source, n.Destination}
}

func (n *Network) Status() Status {
	st := Status{Ledgers: make(map[string]bool, 2), Settlement: n.Engine.Paused()}
	for _, l := range n.Ledgers() {
		st.Ledgers[l.Code()] = l.Paused()
	}
	return st
}

// Rate reads the engine's current provider.
func (n *Network) Rate(ctx context.Context) (domain.Rate, string, error) {
	p := n.Engine.Provider()
	r, err := p.Rate(ctx)
	if err != nil {
		return 0, p.ID(), err
	}
	return r, p.ID(), nil
}
