// Package events carries committed state changes to readers and outbound sinks.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type is the dotted event name, "<entity>.<action>".
type Type string

const (
	LedgerTransfer    Type = "ledger.transfer"
	LedgerApproval    Type = "ledger.approval"
	LedgerMint        Type = "ledger.mint"
	LedgerBurn        Type = "ledger.burn"
	LedgerPaused      Type = "ledger.paused"
	LedgerUnpaused    Type = "ledger.unpaused"
	LedgerRoleGranted Type = "ledger.role_granted"
	LedgerRoleRevoked Type = "ledger.role_revoked"

	RateUpdated         Type = "rate.updated"
	OracleUpdated       Type = "oracle.updated"
	ProviderRoleGranted Type = "provider.role_granted"
	ProviderRoleRevoked Type = "provider.role_revoked"

	FeeUpdated            Type = "fee.updated"
	RateProviderUpdated   Type = "rate_provider.updated"
	SettlementPaused      Type = "settlement.paused"
	SettlementUnpaused    Type = "settlement.unpaused"
	SettlementRoleGranted Type = "settlement.role_granted"
	SettlementRoleRevoked Type = "settlement.role_revoked"
	SettlementCompleted   Type = "settlement.completed"
)

// Event is the envelope every sink receives. Seq is assigned by the Bus and is
// strictly increasing in commit order.
type Event struct {
	Seq       uint64    `json:"seq"`
	ID        uuid.UUID `json:"id"`
	Type      Type      `json:"type"`
	Source    string    `json:"source"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an unsequenced event emitted by source (e.g. "ledger:RWFC").
func New(t Type, source string, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      t,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Payloads. Amounts are base-10 strings in smallest units.

type TransferPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type ApprovalPayload struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type MintPayload struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type BurnPayload struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type PausePayload struct {
	Account string `json:"account"`
}

type RolePayload struct {
	Role    string `json:"role"`
	Account string `json:"account"`
	Sender  string `json:"sender"`
}

type RateUpdatedPayload struct {
	OldRate int64 `json:"old_rate"`
	NewRate int64 `json:"new_rate"`
}

type ReferenceUpdatedPayload struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type FeeUpdatedPayload struct {
	OldFee uint32 `json:"old_fee"`
	NewFee uint32 `json:"new_fee"`
}
