// Package admin implements privileged overrides and their audit trail.
//
// Every override runs the same gauntlet: capability check through
// internal/authz, a reason of sensible length, a fresh idempotency key,
// password re-entry, and for dangerous operations an exact typed
// confirmation phrase. The effect is recorded as an immutable AdminAction
// with before/after snapshots.
package admin

import (
	"context"
	"encoding/json"
	"time"
)

// Action types.
const (
	ActionCredit             = "wallet_credit"
	ActionDebit              = "wallet_debit"
	ActionFreeze             = "wallet_freeze"
	ActionUnfreeze           = "wallet_unfreeze"
	ActionForceRefund        = "order_force_refund"
	ActionForceComplete      = "order_force_complete"
	ActionExtendDispute      = "order_extend_dispute"
	ActionBanUser            = "user_ban"
	ActionUnbanUser          = "user_unban"
	ActionChangeRoles        = "user_change_roles"
	ActionToggleAdmin        = "admin_toggle"
	ActionCreateAdmin        = "admin_create"
	ActionUnlockProfile      = "user_unlock_profile"
	ActionHideListing        = "listing_hide"
	ActionHideMessage        = "message_hide"
	ActionCreateGiftcard     = "giftcard_create"
	ActionDeactivateGiftcard = "giftcard_deactivate"
)

// Typed confirmation phrases. Debit and freeze require theirs at or above
// the large-amount threshold; the force order overrides require theirs
// always.
const (
	PhraseDebit    = "CONFIRM DEBIT"
	PhraseFreeze   = "CONFIRM FREEZE"
	PhraseRefund   = "CONFIRM REFUND"
	PhraseComplete = "CONFIRM COMPLETE"
)

// Confirmation methods recorded on the audit row.
const (
	ConfirmPassword       = "password"
	ConfirmPasswordPhrase = "password+phrase"
)

// Action is one immutable audit row.
type Action struct {
	ID             string          `json:"id"`
	AdminID        string          `json:"adminId"`
	Type           string          `json:"type"`
	TargetType     string          `json:"targetType"` // user, order, listing, message, giftcard
	TargetID       string          `json:"targetId"`
	Amount         string          `json:"amount,omitempty"`
	Reason         string          `json:"reason"`
	Before         json.RawMessage `json:"before,omitempty"`
	After          json.RawMessage `json:"after,omitempty"`
	Confirmation   string          `json:"confirmation"`
	IdempotencyKey string          `json:"idempotencyKey"`
	IP             string          `json:"ip,omitempty"`
	UserAgent      string          `json:"userAgent,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// AuditFilter narrows an audit listing. Zero values mean "any".
type AuditFilter struct {
	AdminID  string
	Type     string
	TargetID string
	Limit    int
	Offset   int
}

// AuditStore persists admin actions. Rows are write-once; there is no
// update or delete.
type AuditStore interface {
	Record(ctx context.Context, a *Action) error
	GetByIdempotencyKey(ctx context.Context, key string) (*Action, error)
	List(ctx context.Context, f AuditFilter) ([]*Action, error)
}

// Messages is the moderation hook into the messaging subsystem. The
// settlement core only hides; it never reads message bodies.
type Messages interface {
	Hide(ctx context.Context, messageID, note string) error
}

func snapshot(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
