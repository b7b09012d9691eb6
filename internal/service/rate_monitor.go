package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/ayo6706/dual-currency-settlement/internal/rates"
	"go.uber.org/zap"
)

// RateMonitor samples every registered provider and exports the observed rate.
type RateMonitor struct {
	providers *rates.Registry
}

func NewRateMonitor(providers *rates.Registry) *RateMonitor {
	return &RateMonitor{providers: providers}
}

// Check reads each provider once. A failing provider does not stop the others;
// the first failure is returned.
func (m *RateMonitor) Check(ctx context.Context) error {
	var firstErr error
	for _, p := range m.providers.All() {
		r, err := p.Rate(ctx)
		if err != nil {
			zap.L().Warn("rate provider unavailable", zap.String("provider", p.ID()), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("provider %s: %w", p.ID(), err)
			}
			continue
		}
		rate, _ := r.Decimal().Float64()
		observability.SetExchangeRate(p.ID(), rate)
	}
	return firstErr
}
