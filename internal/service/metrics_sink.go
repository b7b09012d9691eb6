package service

import (
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/ayo6706/dual-currency-settlement/internal/settlement"
)

// MetricsSink turns committed settlement events into Prometheus samples.
type MetricsSink struct {
	decimals func(currency string) uint8
}

// NewMetricsSink resolves currency decimals through the network's ledgers.
func NewMetricsSink(n *Network) *MetricsSink {
	return &MetricsSink{decimals: func(code string) uint8 {
		l, err := n.Ledger(code)
		if err != nil {
			return domain.DefaultDecimals
		}
		return l.Decimals()
	}}
}

func (s *MetricsSink) Name() string { return "metrics" }

func (s *MetricsSink) Deliver(ev events.Event) error {
	if ev.Type != events.SettlementCompleted {
		return nil
	}
	rec, ok := ev.Payload.(*settlement.Settlement)
	if !ok {
		return nil
	}
	d := s.decimals(rec.SourceCurrency)
	observability.IncrementSettlement(string(rec.Direction), "success")
	observability.ObserveSettlement(rec.SourceCurrency, domain.UnitsFloat(rec.Amount, d), domain.UnitsFloat(rec.Fee, d))
	rate, _ := rec.Rate.Decimal().Float64()
	observability.SetExchangeRate(rec.ProviderID, rate)
	return nil
}
