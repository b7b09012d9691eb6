package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const insertSettlement = `
INSERT INTO settlements (
    id, direction, sender, recipient, source_currency, destination_currency,
    amount, fee, net_amount, converted, rate, fee_bps, provider_id, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11, $12, $13, $14
)
ON CONFLICT (id) DO NOTHING
`

type InsertSettlementParams struct {
	ID                  uuid.UUID
	Direction           string
	Sender              string
	Recipient           string
	SourceCurrency      string
	DestinationCurrency string
	Amount              string
	Fee                 string
	NetAmount           string
	Converted           string
	Rate                int64
	FeeBps              int32
	ProviderID          string
	CreatedAt           time.Time
}

func (q *Queries) InsertSettlement(ctx context.Context, arg InsertSettlementParams) error {
	_, err := q.db.Exec(ctx, insertSettlement,
		arg.ID,
		arg.Direction,
		arg.Sender,
		arg.Recipient,
		arg.SourceCurrency,
		arg.DestinationCurrency,
		arg.Amount,
		arg.Fee,
		arg.NetAmount,
		arg.Converted,
		arg.Rate,
		arg.FeeBps,
		arg.ProviderID,
		arg.CreatedAt,
	)
	return err
}

const settlementColumns = `
id, direction, sender, recipient, source_currency, destination_currency,
amount::text, fee::text, net_amount::text, converted::text, rate, fee_bps, provider_id, created_at
`

const getSettlement = `SELECT ` + settlementColumns + ` FROM settlements WHERE id = $1`

func (q *Queries) GetSettlement(ctx context.Context, id uuid.UUID) (Settlement, error) {
	row := q.db.QueryRow(ctx, getSettlement, id)
	var i Settlement
	err := row.Scan(
		&i.ID,
		&i.Direction,
		&i.Sender,
		&i.Recipient,
		&i.SourceCurrency,
		&i.DestinationCurrency,
		&i.Amount,
		&i.Fee,
		&i.NetAmount,
		&i.Converted,
		&i.Rate,
		&i.FeeBps,
		&i.ProviderID,
		&i.CreatedAt,
	)
	return i, err
}

const listSettlementsByAccount = `SELECT ` + settlementColumns + `
FROM settlements
WHERE sender = $1 OR recipient = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListSettlementsByAccountParams struct {
	Account string
	Limit   int32
	Offset  int32
}

func (q *Queries) ListSettlementsByAccount(ctx context.Context, arg ListSettlementsByAccountParams) ([]Settlement, error) {
	rows, err := q.db.Query(ctx, listSettlementsByAccount, arg.Account, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Settlement
	for rows.Next() {
		var i Settlement
		if err := rows.Scan(
			&i.ID,
			&i.Direction,
			&i.Sender,
			&i.Recipient,
			&i.SourceCurrency,
			&i.DestinationCurrency,
			&i.Amount,
			&i.Fee,
			&i.NetAmount,
			&i.Converted,
			&i.Rate,
			&i.FeeBps,
			&i.ProviderID,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
