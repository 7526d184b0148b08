package imessage

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/nibbl/internal/domain"
)

// Handler combines polling for inbound messages with sending outbound ones,
// including suppression of the agent's own sent messages.
type Handler struct {
	reader      *Reader
	sender      Sender
	selfID      string
	groupChatID string
	grace       time.Duration
}

// NewHandler wires a reader and sender together. selfID is the Mac owner's
// own phone number or Apple ID; messages sent from this Mac appear in chat.db
// with is_from_me=1 and no useful handle, so selfID is substituted as sender.
func NewHandler(reader *Reader, sender Sender, selfID, groupChatID string, grace time.Duration) *Handler {
	return &Handler{
		reader:      reader,
		sender:      sender,
		selfID:      selfID,
		groupChatID: groupChatID,
		grace:       grace,
	}
}

// Reader exposes the underlying reader for cursor management.
func (h *Handler) Reader() *Reader {
	return h.reader
}

// Poll returns new inbound messages with sender identity resolved. Messages
// sent from this Mac are attributed to selfID; when no selfID is configured
// they are dropped.
func (h *Handler) Poll(ctx context.Context) []domain.InboundMessage {
	raw := h.reader.Poll(ctx)
	resolved := make([]domain.InboundMessage, 0, len(raw))
	for _, msg := range raw {
		if msg.IsFromMe {
			if h.selfID == "" {
				continue
			}
			msg.SenderID = h.selfID
		}
		resolved = append(resolved, msg)
	}
	return resolved
}

// Send delivers a message and then advances the cursor past the copy that
// Messages.app writes back into chat.db, so the agent never reprocesses its
// own output. The suppression is a best-effort heuristic: it waits a short
// grace period for the write to land and then skips to the current maximum
// ROWID. A human message arriving inside that window is skipped too; the
// window is kept very small for that reason.
func (h *Handler) Send(ctx context.Context, recipient, text string) error {
	if err := h.sender.Send(ctx, recipient, text); err != nil {
		return err
	}
	h.skipOwnEcho(ctx)
	return nil
}

// SendToGroup delivers to the configured group chat, with the same own-echo
// suppression as Send.
func (h *Handler) SendToGroup(ctx context.Context, text string) error {
	if h.groupChatID == "" {
		slog.Warn("no group chat configured, dropping group message")
		return nil
	}
	if err := h.sender.SendToGroup(ctx, h.groupChatID, text); err != nil {
		return err
	}
	h.skipOwnEcho(ctx)
	return nil
}

// Broadcast sends the same text to several recipients, advancing the cursor
// once after all sends.
func (h *Handler) Broadcast(ctx context.Context, recipients []string, text string) map[string]error {
	results := make(map[string]error, len(recipients))
	for _, recipient := range recipients {
		results[recipient] = h.sender.Send(ctx, recipient, text)
	}
	h.skipOwnEcho(ctx)
	return results
}

func (h *Handler) skipOwnEcho(ctx context.Context) {
	select {
	case <-time.After(h.grace):
	case <-ctx.Done():
		return
	}

	max, err := h.reader.MaxRowID(ctx)
	if err != nil {
		// chat.db temporarily locked; the echo will be filtered by
		// is_from_me handling on the next poll instead.
		slog.Debug("could not advance cursor past own message", "error", err)
		return
	}
	if max > h.reader.LastRowID() {
		slog.Debug("advancing cursor past own messages",
			"from", h.reader.LastRowID(), "to", max)
		h.reader.SetLastRowID(max)
	}
}
