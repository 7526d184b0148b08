package imessage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// SendTimeout bounds a single osascript invocation.
const SendTimeout = 30 * time.Second

// Sender delivers messages through Messages.app via AppleScript.
type Sender interface {
	// Send delivers text to a phone number or Apple ID.
	Send(ctx context.Context, recipient, text string) error

	// SendToGroup delivers text to a group chat by chat identifier.
	SendToGroup(ctx context.Context, chatID, text string) error
}

// OSAScriptSender shells out to osascript.
type OSAScriptSender struct{}

// NewSender creates the default AppleScript-backed sender.
func NewSender() *OSAScriptSender {
	return &OSAScriptSender{}
}

func escapeAppleScript(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	return strings.ReplaceAll(text, `"`, `\"`)
}

func (s *OSAScriptSender) run(ctx context.Context, script string) error {
	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("osascript timed out: %w", ctx.Err())
		}
		return fmt.Errorf("osascript failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Send delivers an iMessage to a single recipient.
func (s *OSAScriptSender) Send(ctx context.Context, recipient, text string) error {
	script := fmt.Sprintf(`tell application "Messages"
	set targetService to 1st service whose service type = iMessage
	set targetBuddy to buddy "%s" of targetService
	send "%s" to targetBuddy
end tell`, escapeAppleScript(recipient), escapeAppleScript(text))

	if err := s.run(ctx, script); err != nil {
		return fmt.Errorf("send to %s: %w", recipient, err)
	}
	slog.Info("sent iMessage", "recipient", recipient, "chars", len(text))
	return nil
}

// SendToGroup delivers a message to a group chat.
func (s *OSAScriptSender) SendToGroup(ctx context.Context, chatID, text string) error {
	script := fmt.Sprintf(`tell application "Messages"
	set targetChat to a reference to text chat id "%s"
	send "%s" to targetChat
end tell`, escapeAppleScript(chatID), escapeAppleScript(text))

	if err := s.run(ctx, script); err != nil {
		return fmt.Errorf("send to group %s: %w", chatID, err)
	}
	slog.Info("sent group iMessage", "chat_id", chatID, "chars", len(text))
	return nil
}
