// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/nibbl/internal/domain"
)

// ErrSessionActive is returned by CreateSession when a non-terminal session
// already exists. Concurrent trigger attempts must be rejected, never merged.
var ErrSessionActive = errors.New("a planning session is already active")

// StateKeyCursor is the agent_state key holding the highest chat.db ROWID
// that has been fully processed.
const StateKeyCursor = "last_rowid"

// Repository defines the interface for all durable agent state: the message
// cursor, household members, the preference ledger, sessions, recipes, the
// conversation log, and meal history. It is the single writer for everything
// on disk.
type Repository interface {
	// GetState retrieves a value from the agent key/value state table.
	// Returns "" without error when the key is absent.
	GetState(ctx context.Context, key string) (string, error)

	// SetState stores a value in the agent key/value state table.
	SetState(ctx context.Context, key, value string) error

	// UpsertMember creates or updates a household member.
	UpsertMember(ctx context.Context, member *domain.Member) error

	// GetMembers retrieves all household members.
	GetMembers(ctx context.Context) ([]*domain.Member, error)

	// GetMemberByIMessageID looks up a member by phone number or Apple ID.
	// Returns nil without error when no member matches.
	GetMemberByIMessageID(ctx context.Context, imessageID string) (*domain.Member, error)

	// GetParents retrieves all members with the parent role.
	GetParents(ctx context.Context) ([]*domain.Member, error)

	// AddPreference inserts a new preference row and returns its ID.
	AddPreference(ctx context.Context, pref *domain.Preference) (int64, error)

	// GetPreferences retrieves a member's preferences ordered by confidence
	// descending.
	GetPreferences(ctx context.Context, memberID string) ([]*domain.Preference, error)

	// UpdatePreferenceConfidence raises a stored preference's confidence and
	// stamps updated_at.
	UpdatePreferenceConfidence(ctx context.Context, prefID int64, confidence float64) error

	// CreateSession persists a new session. It fails with ErrSessionActive
	// when another non-terminal session exists; the guard check runs inside
	// the same transaction as the insert.
	CreateSession(ctx context.Context, session *domain.Session) error

	// SaveSession persists a session's phase and timestamps.
	SaveSession(ctx context.Context, session *domain.Session) error

	// GetActiveSession retrieves the current non-terminal session, or nil.
	GetActiveSession(ctx context.Context) (*domain.Session, error)

	// SaveRecipe persists a recipe together with its ingredients.
	SaveRecipe(ctx context.Context, recipe *domain.Recipe) error

	// GetRecipes retrieves a session's recipes ordered by planned date,
	// ingredients included.
	GetRecipes(ctx context.Context, sessionID string) ([]domain.Recipe, error)

	// DeleteRecipes removes a session's recipes and their ingredients.
	// Used when a rejected plan is regenerated.
	DeleteRecipes(ctx context.Context, sessionID string) error

	// MarkRecipesApproved flags all of a session's recipes as approved.
	MarkRecipesApproved(ctx context.Context, sessionID string) error

	// UpdateIngredient persists matching and availability state for one
	// ingredient row.
	UpdateIngredient(ctx context.Context, ing *domain.Ingredient) error

	// LogConversation appends one entry to the conversation log.
	LogConversation(ctx context.Context, entry *domain.ConversationEntry) error

	// GetConversationHistory retrieves up to limit entries for a session in
	// chronological order.
	GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]*domain.ConversationEntry, error)

	// AddMealHistory records one cooked dinner for variety tracking.
	AddMealHistory(ctx context.Context, entry *domain.MealHistoryEntry) error

	// GetRecentMealHistory retrieves history entries within the window.
	GetRecentMealHistory(ctx context.Context, window time.Duration) ([]*domain.MealHistoryEntry, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
