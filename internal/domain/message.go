package domain

import "time"

// InboundMessage is one decoded record from the external Messages log.
// RowID is the store-assigned, monotonically increasing identifier that the
// ingestion cursor is kept against.
type InboundMessage struct {
	RowID          int64
	Text           string
	SenderID       string // phone number or email from the handle table
	IsFromMe       bool
	ChatIdentifier string
	GroupName      string
	ReceivedAt     time.Time
}

// ConversationEntry is one logged line of the agent's conversation history,
// either direction.
type ConversationEntry struct {
	ID          int64
	SessionID   string // empty when no session was active
	MemberID    string
	Direction   Direction
	MessageText string
	RowID       int64 // source ROWID for incoming entries, 0 for outgoing
	CreatedAt   time.Time
}

// Direction marks whether a conversation entry was received or sent.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)
