package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const insertLedgerEvent = `
INSERT INTO ledger_events (id, seq, type, source, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
`

type InsertLedgerEventParams struct {
	ID         uuid.UUID
	Seq        int64
	Type       string
	Source     string
	Payload    []byte
	OccurredAt time.Time
}

func (q *Queries) InsertLedgerEvent(ctx context.Context, arg InsertLedgerEventParams) error {
	_, err := q.db.Exec(ctx, insertLedgerEvent,
		arg.ID,
		arg.Seq,
		arg.Type,
		arg.Source,
		arg.Payload,
		arg.OccurredAt,
	)
	return err
}

const listLedgerEventsByType = `
SELECT id, seq, type, source, payload, occurred_at, recorded_at
FROM ledger_events
WHERE type = $1
ORDER BY occurred_at DESC, seq DESC
LIMIT $2
`

func (q *Queries) ListLedgerEventsByType(ctx context.Context, eventType string, limit int32) ([]LedgerEvent, error) {
	rows, err := q.db.Query(ctx, listLedgerEventsByType, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []LedgerEvent
	for rows.Next() {
		var i LedgerEvent
		if err := rows.Scan(
			&i.ID,
			&i.Seq,
			&i.Type,
			&i.Source,
			&i.Payload,
			&i.OccurredAt,
			&i.RecordedAt,
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
