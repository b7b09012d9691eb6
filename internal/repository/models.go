package repository

import (
	"time"

	"github.com/google/uuid"
)

type LedgerEvent struct {
	ID         uuid.UUID
	Seq        int64
	Type       string
	Source     string
	Payload    []byte
	OccurredAt time.Time
	RecordedAt time.Time
}

// Settlement amounts are NUMERIC(78,0) columns carried as base-10 strings.
type Settlement struct {
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

type IdempotencyKey struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	InProgress     bool
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
