// Package domain contains core domain types for the Nibbl planning agent.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes household members that can approve plans from those
// that only contribute wishes.
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Member is a household member reachable over iMessage.
type Member struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	IMessageID string    `json:"imessage_id"` // phone number or Apple ID email
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewMember creates a member with a fresh ID.
func NewMember(name, imessageID string, role Role) *Member {
	return &Member{
		ID:         uuid.NewString(),
		Name:       name,
		IMessageID: imessageID,
		Role:       role,
		CreatedAt:  time.Now(),
	}
}

// IsParent reports whether the member may trigger, approve, and cancel sessions.
func (m *Member) IsParent() bool {
	return m.Role == RoleParent
}
