package bot

import (
	"context"
	"errors"
	"fmt"
	"io"

	tele "gopkg.in/telebot.v4"

	"github.com/pyqhub/pyqbot/core/telegram/keyboard"
	"github.com/pyqhub/pyqbot/core/telegram/sender"
)

// TelebotSender adapts the engine's outbound contract onto a live telebot
// connection. Plain sends go through the async dispatcher; the document
// forward and the file fetch stay synchronous because the engine's state
// transitions depend on their outcome.
type TelebotSender struct {
	bot  *tele.Bot
	disp *sender.Dispatcher
}

func NewTelebotSender(bot *tele.Bot, disp *sender.Dispatcher) *TelebotSender {
	return &TelebotSender{bot: bot, disp: disp}
}

func (s *TelebotSender) enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if s.disp == nil {
		return run()
	}
	if err := s.disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			return run()
		}
		return err
	}
	return nil
}

func (s *TelebotSender) SendText(ctx context.Context, chatID int64, text string) error {
	// plain sends also dismiss any reply keyboard left by an earlier prompt
	opts := &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()}
	return s.enqueue(ctx, "send.text", "sendMessage", func() error {
		_, err := s.bot.Send(tele.ChatID(chatID), text, opts)
		return err
	})
}

func (s *TelebotSender) SendMarkdown(ctx context.Context, chatID int64, text string) error {
	return s.enqueue(ctx, "send.markdown", "sendMessage", func() error {
		_, err := s.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
		return err
	})
}

func (s *TelebotSender) Prompt(ctx context.Context, chatID int64, text string, options [][]string) error {
	markup := keyboard.ReplyButtons(options...)
	return s.enqueue(ctx, "send.prompt", "sendMessage", func() error {
		_, err := s.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{ReplyMarkup: markup})
		return err
	})
}

func (s *TelebotSender) ForwardDocument(ctx context.Context, chatID int64, file FileRef, caption string) error {
	doc := &tele.Document{
		File:     tele.File{FileID: file.FileID},
		FileName: file.Name,
		Caption:  caption,
	}
	_, err := s.bot.Send(tele.ChatID(chatID), doc)
	if err != nil {
		return fmt.Errorf("forward document: %w", err)
	}
	return nil
}

func (s *TelebotSender) FetchFile(_ context.Context, file FileRef) ([]byte, error) {
	rc, err := s.bot.File(&tele.File{FileID: file.FileID})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", file.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file.Name, err)
	}
	return data, nil
}
