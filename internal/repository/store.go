package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/settlement"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides access to queries and transaction scoping.
type Store struct {
	db      *pgxpool.Pool
	queries *Queries
}

// NewStore creates a store wrapper around a pgx connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:      db,
		queries: New(db),
	}
}

// Queries returns the non-transactional query set.
func (s *Store) Queries() *Queries {
	return s.queries
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// RunInTx executes fn within a database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Journal persists a batch of committed events, and the settlement record carried
// by each settlement.completed event, in one transaction. Re-journaling an event
// is a no-op.
func (s *Store) Journal(ctx context.Context, evs []events.Event) error {
	return s.RunInTx(ctx, func(q *Queries) error {
		for _, ev := range evs {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal event %d: %w", ev.Seq, err)
			}
			if err := q.InsertLedgerEvent(ctx, InsertLedgerEventParams{
				ID:         ev.ID,
				Seq:        int64(ev.Seq),
				Type:       string(ev.Type),
				Source:     ev.Source,
				Payload:    payload,
				OccurredAt: ev.Timestamp,
			}); err != nil {
				return fmt.Errorf("failed to insert event %d: %w", ev.Seq, err)
			}

			rec, ok := ev.Payload.(*settlement.Settlement)
			if !ok {
				continue
			}
			if err := q.InsertSettlement(ctx, settlementParams(rec)); err != nil {
				return fmt.Errorf("failed to insert settlement %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) GetSettlement(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	row, err := s.queries.GetSettlement(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSettlementNotFound, id)
		}
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return fromRow(row)
}

func (s *Store) ListSettlements(ctx context.Context, account domain.Address, limit, offset int32) ([]*settlement.Settlement, error) {
	rows, err := s.queries.ListSettlementsByAccount(ctx, ListSettlementsByAccountParams{
		Account: account.String(),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	out := make([]*settlement.Settlement, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func settlementParams(s *settlement.Settlement) InsertSettlementParams {
	return InsertSettlementParams{
		ID:                  s.ID,
		Direction:           string(s.Direction),
		Sender:              s.Sender.String(),
		Recipient:           s.Recipient.String(),
		SourceCurrency:      s.SourceCurrency,
		DestinationCurrency: s.DestinationCurrency,
		Amount:              s.Amount.String(),
		Fee:                 s.Fee.String(),
		NetAmount:           s.NetAmount.String(),
		Converted:           s.Converted.String(),
		Rate:                int64(s.Rate),
		FeeBps:              int32(s.FeeBps),
		ProviderID:          s.ProviderID,
		CreatedAt:           s.CreatedAt,
	}
}

func fromRow(row Settlement) (*settlement.Settlement, error) {
	amounts := make([]*big.Int, 0, 4)
	for _, v := range []string{row.Amount, row.Fee, row.NetAmount, row.Converted} {
		n, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("settlement %s has malformed amount %q", row.ID, v)
		}
		amounts = append(amounts, n)
	}
	return &settlement.Settlement{
		ID:                  row.ID,
		Direction:           domain.Direction(row.Direction),
		Sender:              domain.Address(row.Sender),
		Recipient:           domain.Address(row.Recipient),
		SourceCurrency:      row.SourceCurrency,
		DestinationCurrency: row.DestinationCurrency,
		Amount:              amounts[0],
		Fee:                 amounts[1],
		NetAmount:           amounts[2],
		Converted:           amounts[3],
		Rate:                domain.Rate(row.Rate),
		FeeBps:              uint32(row.FeeBps),
		ProviderID:          row.ProviderID,
		CreatedAt:           row.CreatedAt,
	}, nil
}
