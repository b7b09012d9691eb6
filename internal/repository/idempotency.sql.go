package repository

import "context"

const getIdempotencyKey = `
SELECT idempotency_key, request_hash, method, path, in_progress, response_status,
       COALESCE(response_body, ''::bytea), content_type, created_at, updated_at
FROM idempotency_keys
WHERE idempotency_key = $1
`

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, getIdempotencyKey, key)
	var i IdempotencyKey
	err := row.Scan(
		&i.IdempotencyKey,
		&i.RequestHash,
		&i.Method,
		&i.Path,
		&i.InProgress,
		&i.ResponseStatus,
		&i.ResponseBody,
		&i.ContentType,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const reserveIdempotencyKey = `
INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path)
VALUES ($1, $2, $3, $4)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING idempotency_key
`

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
}

// ReserveIdempotencyKey returns pgx.ErrNoRows when the key already exists.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (string, error) {
	row := q.db.QueryRow(ctx, reserveIdempotencyKey,
		arg.IdempotencyKey,
		arg.RequestHash,
		arg.Method,
		arg.Path,
	)
	var key string
	err := row.Scan(&key)
	return key, err
}

const finalizeIdempotencyKey = `
UPDATE idempotency_keys
SET in_progress = FALSE,
    response_status = $1,
    response_body = $2,
    content_type = $3,
    updated_at = NOW()
WHERE idempotency_key = $4 AND request_hash = $5
RETURNING idempotency_key, request_hash, method, path, in_progress, response_status,
          COALESCE(response_body, ''::bytea), content_type, created_at, updated_at
`

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	RequestHash    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	row := q.db.QueryRow(ctx, finalizeIdempotencyKey,
		arg.ResponseStatus,
		arg.ResponseBody,
		arg.ContentType,
		arg.IdempotencyKey,
		arg.RequestHash,
	)
	var i IdempotencyKey
	err := row.Scan(
		&i.IdempotencyKey,
		&i.RequestHash,
		&i.Method,
		&i.Path,
		&i.InProgress,
		&i.ResponseStatus,
		&i.ResponseBody,
		&i.ContentType,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteIdempotencyKey = `DELETE FROM idempotency_keys WHERE idempotency_key = $1 AND in_progress`

// DeleteIdempotencyKey releases a reservation whose handler never finished.
func (q *Queries) DeleteIdempotencyKey(ctx context.Context, key string) error {
	_, err := q.db.Exec(ctx, deleteIdempotencyKey, key)
	return err
}
