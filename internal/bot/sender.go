package bot

import "context"

// FileRef identifies a received document well enough to forward it and to
// fetch its bytes later.
type FileRef struct {
	FileID string
	Name   string
}

// Sender is the outbound half of the chat transport. The engine routes every
// inbound event through collaborators behind this interface, which keeps the
// conversation logic testable without a live connection.
type Sender interface {
	// SendText delivers plain text to a chat.
	SendText(ctx context.Context, chatID int64, text string) error
	// SendMarkdown delivers Markdown-formatted text to a chat.
	SendMarkdown(ctx context.Context, chatID int64, text string) error
	// Prompt delivers text together with a one-time reply keyboard built
	// from the option rows.
	Prompt(ctx context.Context, chatID int64, text string, options [][]string) error
	// ForwardDocument re-sends a received document to a chat with a caption.
	ForwardDocument(ctx context.Context, chatID int64, file FileRef, caption string) error
	// FetchFile downloads the bytes behind a file reference.
	FetchFile(ctx context.Context, file FileRef) ([]byte, error)
}
