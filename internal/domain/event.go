package domain

import "time"

type EventType string

const (
	EventTransactionSubmitted EventType = "transaction.submitted"
	EventApprovalRecorded     EventType = "transaction.approval_recorded"
	EventTransactionCompleted EventType = "transaction.completed"
	EventTransactionRejected  EventType = "transaction.rejected"
	EventSettlementCreated    EventType = "settlement.created"
	EventSettlementProcessing EventType = "settlement.processing"
	EventSettlementCompleted  EventType = "settlement.completed"
	EventSettlementFailed     EventType = "settlement.failed"
	EventSettlementReconciled EventType = "settlement.reconciled"
)

// Event is the payload published for every state change.
type Event struct {
	EventType     EventType `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	SettlementID  string    `json:"settlement_id,omitempty"`
	Status        string    `json:"status"`
	Tier          Tier      `json:"tier,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Role          Role      `json:"role,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Key is the partitioning key: all events of one transaction share a key.
func (e *Event) Key() string {
	return e.TransactionID
}
