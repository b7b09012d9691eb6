package settlement

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/google/uuid"
)

// Amounts travel as base-10 strings so 18-decimal values survive JSON clients.
type settlementJSON struct {
	ID                  uuid.UUID        `json:"id"`
	Direction           domain.Direction `json:"direction"`
	Sender              domain.Address   `json:"sender"`
	Recipient           domain.Address   `json:"recipient"`
	SourceCurrency      string           `json:"source_currency"`
	DestinationCurrency string           `json:"destination_currency"`
	Amount              string           `json:"amount"`
	Fee                 string           `json:"fee"`
	NetAmount           string           `json:"net_amount"`
	Converted           string           `json:"converted"`
	Rate                int64            `json:"rate"`
	FeeBps              uint32           `json:"fee_bps"`
	ProviderID          string           `json:"provider_id"`
	CreatedAt           time.Time        `json:"created_at"`
}

func (s Settlement) MarshalJSON() ([]byte, error) {
	return json.Marshal(settlementJSON{
		ID:                  s.ID,
		Direction:           s.Direction,
		Sender:              s.Sender,
		Recipient:           s.Recipient,
		SourceCurrency:      s.SourceCurrency,
		DestinationCurrency: s.DestinationCurrency,
		Amount:              intString(s.Amount),
		Fee:                 intString(s.Fee),
		NetAmount:           intString(s.NetAmount),
		Converted:           intString(s.Converted),
		Rate:                int64(s.Rate),
		FeeBps:              s.FeeBps,
		ProviderID:          s.ProviderID,
		CreatedAt:           s.CreatedAt,
	})
}

func (s *Settlement) UnmarshalJSON(data []byte) error {
	var raw settlementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amounts := make([]*big.Int, 0, 4)
	for _, v := range []string{raw.Amount, raw.Fee, raw.NetAmount, raw.Converted} {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return fmt.Errorf("settlement %s: invalid amount %q", raw.ID, v)
		}
		amounts = append(amounts, n)
	}
	*s = Settlement{
		ID:                  raw.ID,
		Direction:           raw.Direction,
		Sender:              raw.Sender,
		Recipient:           raw.Recipient,
		SourceCurrency:      raw.SourceCurrency,
		DestinationCurrency: raw.DestinationCurrency,
		Amount:              amounts[0],
		Fee:                 amounts[1],
		NetAmount:           amounts[2],
		Converted:           amounts[3],
		Rate:                domain.Rate(raw.Rate),
		FeeBps:              raw.FeeBps,
		ProviderID:          raw.ProviderID,
		CreatedAt:           raw.CreatedAt,
	}
	return nil
}

func (q Quote) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Direction           domain.Direction `json:"direction"`
		SourceCurrency      string           `json:"source_currency"`
		DestinationCurrency string           `json:"destination_currency"`
		Amount              string           `json:"amount"`
		Fee                 string           `json:"fee"`
		NetAmount           string           `json:"net_amount"`
		Converted           string           `json:"converted"`
		Rate                int64            `json:"rate"`
		FeeBps              uint32           `json:"fee_bps"`
	}{
		Direction:           q.Direction,
		SourceCurrency:      q.SourceCurrency,
		DestinationCurrency: q.DestinationCurrency,
		Amount:              intString(q.Amount),
		Fee:                 intString(q.Fee),
		NetAmount:           intString(q.NetAmount),
		Converted:           intString(q.Converted),
		Rate:                int64(q.Rate),
		FeeBps:              q.FeeBps,
	})
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
