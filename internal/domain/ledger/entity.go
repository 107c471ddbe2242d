package ledger

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status of a reconciled postback
type Status string

const (
	StatusSuccess    Status = "success"
	StatusChargeback Status = "chargeback"
)

// ImpressionStatus represents the lifecycle of an ad impression
type ImpressionStatus string

const (
	ImpressionPending    ImpressionStatus = "pending"
	ImpressionCompleted  ImpressionStatus = "completed"
	ImpressionChargeback ImpressionStatus = "chargeback"
)

// FailureReason categorises dropped or suspicious postbacks
type FailureReason string

const (
	FailureInvalidRequest  FailureReason = "invalid_request"
	FailureUnauthenticated FailureReason = "unauthenticated"
	FailureIPNotAllowed    FailureReason = "ip_not_allowed"
	FailureUnknownUser     FailureReason = "unknown_user"
	FailureInternal        FailureReason = "internal_error"
	FailureNegativeBalance FailureReason = "negative_balance"
)

// JSONRawMessage handles NULL json fields from DB
type JSONRawMessage []byte

func (j *JSONRawMessage) Scan(src any) error {
	if src == nil {
		*j = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = []byte(v)
	default:
		return fmt.Errorf("unsupported type: %T", src)
	}
	return nil
}

// Value sends the payload as text so it lands in jsonb rather than bytea.
func (j JSONRawMessage) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j JSONRawMessage) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONRawMessage) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// User is the balance holder. Balance may go negative after chargebacks.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	Balance   int64     `db:"balance" json:"balance"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is the idempotency record for one reconciled postback.
// (Provider, ExternalTransID) is unique.
type Transaction struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	UserID          uuid.UUID      `db:"user_id" json:"user_id"`
	Provider        string         `db:"provider" json:"provider"`
	ExternalTransID string         `db:"external_trans_id" json:"external_trans_id"`
	Amount          int64          `db:"amount" json:"amount"`
	Status          Status         `db:"status" json:"status"`
	TaskType        string         `db:"task_type" json:"task_type"`
	Metadata        JSONRawMessage `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// IsSuccess reports whether the transaction credited the user
func (t *Transaction) IsSuccess() bool {
	return t.Status == StatusSuccess
}

// Earning is the user-facing record of a successful credit
type Earning struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Amount      int64     `db:"amount" json:"amount"`
	Source      string    `db:"source" json:"source"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AdImpression records ad-task activity for display and analytics
type AdImpression struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	UserID    uuid.UUID        `db:"user_id" json:"user_id"`
	AdType    string           `db:"ad_type" json:"ad_type"`
	AdFormat  string           `db:"ad_format" json:"ad_format"`
	Revenue   int64            `db:"revenue" json:"revenue"`
	Status    ImpressionStatus `db:"status" json:"status"`
	Metadata  JSONRawMessage   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// PostbackFailure is a dead-letter entry for a postback that was
// acknowledged but not (fully) applied.
type PostbackFailure struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	Provider        string         `db:"provider" json:"provider"`
	ExternalTransID *string        `db:"external_trans_id" json:"external_trans_id,omitempty"`
	UserRef         *string        `db:"user_ref" json:"user_ref,omitempty"`
	Reason          FailureReason  `db:"reason" json:"reason"`
	Detail          string         `db:"detail" json:"detail"`
	ClientIP        string         `db:"client_ip" json:"client_ip"`
	Payload         JSONRawMessage `db:"payload" json:"payload,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Commit bundles everything a verified postback writes in one transaction.
type Commit struct {
	Transaction  *Transaction
	BalanceDelta int64
	Earning      *Earning // success only
	Impression   *AdImpression
}

// CommitResult is returned after a successful commit
type CommitResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Balance       int64     `json:"balance"`
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}

// FailureFilters provides admin-facing failure log filtering.
type FailureFilters struct {
	Provider string
	Reason   string
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}
