package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the service.
const (
	AuditActionTransfer   = "transfer"
	AuditActionFraudCheck = "fraud_check"
	AuditActionCreate     = "create"
	AuditActionDelete     = "delete"
)

// Audit outcome statuses.
const (
	AuditStatusSuccess = "success"
	AuditStatusFailed  = "failed"
	AuditStatusBlocked = "blocked"
)

// AuditRecord is a structured audit event: who did what to which resource, with
// what outcome. The audit sink is fire-and-forget from the transfer engine's
// perspective; a failed audit write never fails a transfer.
type AuditRecord struct {
	ID           uuid.UUID      `json:"id"`
	UserID       *uuid.UUID     `json:"user_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   *uuid.UUID     `json:"resource_id,omitempty"`
	IPAddress    *string        `json:"ip_address,omitempty"`
	UserAgent    *string        `json:"user_agent,omitempty"`
	RequestID    *string        `json:"request_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
