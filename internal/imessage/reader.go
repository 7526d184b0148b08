// Package imessage reads from and writes to the macOS Messages application:
// polling the chat.db SQLite database for inbound messages and sending
// outbound ones through AppleScript.
package imessage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/shared"
	_ "modernc.org/sqlite"
)

// AppleEpochOffset is the number of seconds between the Unix epoch and
// Apple's Core Data epoch (2001-01-01 00:00:00 UTC). Message dates are stored
// as nanoseconds since the Apple epoch.
const AppleEpochOffset = 978307200

// Reader polls the Messages chat.db for records past a cursor. The database
// belongs to Messages.app; the reader opens it read-only and treats any
// access failure as "nothing new this tick".
type Reader struct {
	dbPath string

	mu        sync.Mutex
	lastRowID int64
}

// NewReader creates a reader over the given chat.db path.
func NewReader(dbPath string) *Reader {
	return &Reader{dbPath: dbPath}
}

// LastRowID returns the current cursor position.
func (r *Reader) LastRowID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRowID
}

// SetLastRowID moves the cursor, used when resuming from persisted state.
func (r *Reader) SetLastRowID(rowID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRowID = rowID
}

func (r *Reader) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+r.dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open chat.db: %w", err)
	}
	return db, nil
}

// InitializeCursor sets the cursor to the current maximum ROWID so that only
// messages arriving after startup are processed. Used on first run when no
// cursor was persisted.
func (r *Reader) InitializeCursor(ctx context.Context) error {
	max, err := r.MaxRowID(ctx)
	if err != nil {
		return err
	}
	r.SetLastRowID(max)
	slog.Info("initialized message cursor", "last_rowid", max)
	return nil
}

// MaxRowID returns the highest ROWID currently in the message table.
func (r *Reader) MaxRowID(ctx context.Context) (int64, error) {
	db, err := r.open()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var max sql.NullInt64
	row := db.QueryRowContext(ctx, `SELECT MAX(ROWID) FROM message`)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("query max rowid: %w", err)
	}
	return max.Int64, nil
}

// Poll fetches all messages with ROWID past the cursor in ascending order and
// advances the cursor. Records whose text cannot be decoded are skipped with
// a log line; the cursor still moves past them so one malformed record never
// blocks ingestion. When chat.db is unreachable (locked, missing, no Full
// Disk Access) Poll returns an empty slice and the next tick retries.
func (r *Reader) Poll(ctx context.Context) []domain.InboundMessage {
	db, err := r.open()
	if err != nil {
		slog.Warn("could not open chat.db", "error", err)
		return nil
	}
	defer db.Close()

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := db.QueryContext(ctx, `
		SELECT
			m.ROWID,
			m.text,
			m.attributedBody,
			m.is_from_me,
			m.date,
			COALESCE(h.id, ''),
			COALESCE(c.chat_identifier, ''),
			COALESCE(c.display_name, '')
		FROM message m
		LEFT JOIN handle h ON m.handle_id = h.ROWID
		LEFT JOIN chat_message_join cmj ON m.ROWID = cmj.message_id
		LEFT JOIN chat c ON cmj.chat_id = c.ROWID
		WHERE m.ROWID > ?
		ORDER BY m.ROWID ASC`,
		r.lastRowID,
	)
	if err != nil {
		if shared.IsSQLiteConflictError(err) {
			// Messages.app holds the lock right now; next tick retries.
			slog.Debug("chat.db busy, retrying next poll", "error", err)
		} else {
			slog.Warn("error reading chat.db", "error", err)
		}
		return nil
	}
	defer rows.Close()

	var messages []domain.InboundMessage
	for rows.Next() {
		var (
			rowID          int64
			text           sql.NullString
			body           []byte
			isFromMe       bool
			appleDate      int64
			handleID       string
			chatIdentifier string
			groupName      string
		)
		if err := rows.Scan(&rowID, &text, &body, &isFromMe, &appleDate,
			&handleID, &chatIdentifier, &groupName); err != nil {
			slog.Warn("error scanning chat.db row", "error", err)
			continue
		}

		msgText := text.String
		if msgText == "" && len(body) > 0 {
			decoded, ok := DecodeAttributedBody(body)
			if !ok {
				slog.Debug("skipping undecodable message", "rowid", rowID)
				r.lastRowID = max64(r.lastRowID, rowID)
				continue
			}
			msgText = decoded
		}
		if msgText == "" {
			// Reactions, attachments without text, etc. Advance past them.
			r.lastRowID = max64(r.lastRowID, rowID)
			continue
		}

		messages = append(messages, domain.InboundMessage{
			RowID:          rowID,
			Text:           msgText,
			SenderID:       handleID,
			IsFromMe:       isFromMe,
			ChatIdentifier: chatIdentifier,
			GroupName:      groupName,
			ReceivedAt:     appleTime(appleDate),
		})
		r.lastRowID = max64(r.lastRowID, rowID)
	}
	if err := rows.Err(); err != nil {
		slog.Warn("error iterating chat.db rows", "error", err)
	}

	if len(messages) > 0 {
		slog.Debug("polled new messages", "count", len(messages), "last_rowid", r.lastRowID)
	}
	return messages
}

// appleTime converts a chat.db date value (nanoseconds since the Apple epoch)
// to an absolute time.
func appleTime(appleDate int64) time.Time {
	seconds := appleDate / 1e9
	nanos := appleDate % 1e9
	return time.Unix(seconds+AppleEpochOffset, nanos)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
