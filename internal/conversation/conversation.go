// Package conversation resolves message senders to household members, keeps
// the conversation log, and holds the trigger and cancellation vocabularies.
package conversation

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/store"
)

// triggerPhrases start a new planning session when matched in a message from
// any household member while no session is active.
var triggerPhrases = []string{
	"plan dinner", "plan eten", "wat eten we", "meal plan",
	"boodschappen", "start planning", "plan meals", "weekmenu",
	"dinner plan", "plan het eten", "plan food", "plan the food",
	"what's for dinner", "what are we eating",
}

// cancelPhrases stop the active session from any phase. Checked before any
// other intent classification.
var cancelPhrases = []string{
	"stop", "cancel", "annuleer", "annuleren", "stop planning", "laat maar",
}

// IsTrigger reports whether text contains a session trigger phrase.
func IsTrigger(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range triggerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsCancel reports whether text is an unambiguous cancellation. Unlike
// triggers this requires the whole (trimmed) message to be a cancel phrase,
// so ordinary sentences containing "stop" are not swallowed.
func IsCancel(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "!.?")))
	for _, phrase := range cancelPhrases {
		if lower == phrase {
			return true
		}
	}
	return false
}

// Manager resolves senders and records conversation history.
type Manager struct {
	repo store.Repository
}

// NewManager creates a conversation manager over the repository.
func NewManager(repo store.Repository) *Manager {
	return &Manager{repo: repo}
}

// ResolveSender looks up the household member behind an inbound message.
// Returns nil for unknown senders, whose messages are ignored.
func (m *Manager) ResolveSender(ctx context.Context, msg domain.InboundMessage) *domain.Member {
	member, err := m.repo.GetMemberByIMessageID(ctx, msg.SenderID)
	if err != nil {
		slog.Error("could not resolve sender", "sender", msg.SenderID, "error", err)
		return nil
	}
	return member
}

// FirstParent returns the primary contact for approvals, or nil when no
// parent is configured.
func (m *Manager) FirstParent(ctx context.Context) *domain.Member {
	parents, err := m.repo.GetParents(ctx)
	if err != nil {
		slog.Error("could not load parents", "error", err)
		return nil
	}
	if len(parents) == 0 {
		return nil
	}
	return parents[0]
}

// LogIncoming records an inbound message against the session and member.
func (m *Manager) LogIncoming(ctx context.Context, msg domain.InboundMessage, member *domain.Member, sessionID string) {
	entry := &domain.ConversationEntry{
		SessionID:   sessionID,
		MemberID:    member.ID,
		Direction:   domain.DirectionIncoming,
		MessageText: msg.Text,
		RowID:       msg.RowID,
	}
	if err := m.repo.LogConversation(ctx, entry); err != nil {
		slog.Error("could not log incoming message", "error", err)
	}
}

// LogOutgoing records a message the agent sent.
func (m *Manager) LogOutgoing(ctx context.Context, memberID, text, sessionID string) {
	entry := &domain.ConversationEntry{
		SessionID:   sessionID,
		MemberID:    memberID,
		Direction:   domain.DirectionOutgoing,
		MessageText: text,
	}
	if err := m.repo.LogConversation(ctx, entry); err != nil {
		slog.Error("could not log outgoing message", "error", err)
	}
}
