// Package app wires configuration, infrastructure, and the conversation
// engine into a running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/pyqhub/pyqbot/core/bootstrap"
	coreconfig "github.com/pyqhub/pyqbot/core/config"
	"github.com/pyqhub/pyqbot/core/logger"
	tg "github.com/pyqhub/pyqbot/core/telegram"
	"github.com/pyqhub/pyqbot/core/telegram/commands"
	tghelpers "github.com/pyqhub/pyqbot/core/telegram/helpers"
	"github.com/pyqhub/pyqbot/core/telegram/router"
	"github.com/pyqhub/pyqbot/internal/bot"
	"github.com/pyqhub/pyqbot/internal/catalog"
	"github.com/pyqhub/pyqbot/internal/drive"
	"github.com/pyqhub/pyqbot/internal/papers"
	"github.com/pyqhub/pyqbot/internal/profiles"
	"github.com/pyqhub/pyqbot/internal/session"
	"github.com/pyqhub/pyqbot/internal/submission"
)

// lateSender defers transport construction until the bot connection exists.
// The engine and routes are built before RunTelegram creates the bot, so the
// real sender is swapped in from the OnBot hook.
type lateSender struct {
	inner atomic.Pointer[bot.TelebotSender]
}

var errSenderUnset = errors.New("app: transport not ready")

func (s *lateSender) get() (*bot.TelebotSender, error) {
	if inner := s.inner.Load(); inner != nil {
		return inner, nil
	}
	return nil, errSenderUnset
}

func (s *lateSender) SendText(ctx context.Context, chatID int64, text string) error {
	inner, err := s.get()
	if err != nil {
		return err
	}
	return inner.SendText(ctx, chatID, text)
}

func (s *lateSender) SendMarkdown(ctx context.Context, chatID int64, text string) error {
	inner, err := s.get()
	if err != nil {
		return err
	}
	return inner.SendMarkdown(ctx, chatID, text)
}

func (s *lateSender) Prompt(ctx context.Context, chatID int64, text string, options [][]string) error {
	inner, err := s.get()
	if err != nil {
		return err
	}
	return inner.Prompt(ctx, chatID, text, options)
}

func (s *lateSender) ForwardDocument(ctx context.Context, chatID int64, file bot.FileRef, caption string) error {
	inner, err := s.get()
	if err != nil {
		return err
	}
	return inner.ForwardDocument(ctx, chatID, file, caption)
}

func (s *lateSender) FetchFile(ctx context.Context, file bot.FileRef) ([]byte, error) {
	inner, err := s.get()
	if err != nil {
		return nil, err
	}
	return inner.FetchFile(ctx, file)
}

// Run boots the application and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *coreconfig.Config) error {
	boot, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer func() { _ = boot.DB.Close() }()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("app: load catalog: %w", err)
	}
	logger.L.Info("catalog loaded",
		slog.String("event", "catalog.loaded"),
		slog.String("path", cfg.CatalogPath),
		slog.Int("courses", len(cat.Courses())))

	// the Google APIs ride the same retrying client as the Telegram API
	httpClient := tg.BuildHTTPClient()
	sheets := papers.NewSheetsClient(papers.SheetsOptions{
		SpreadsheetID: cfg.Sheets.SpreadsheetID,
		APIKey:        cfg.Sheets.APIKey,
		ReadRange:     cfg.Sheets.ReadRange,
		HTTPClient:    httpClient,
	})
	finder := papers.NewCachedFinder(sheets, cfg.SheetsCacheTTL())

	publisher := drive.NewClient(drive.Options{
		AccessToken: cfg.Drive.AccessToken,
		UploadURL:   cfg.Drive.UploadURL,
		HTTPClient:  httpClient,
	})

	sender := &lateSender{}
	engine := bot.NewEngine(bot.Options{
		Sessions:  session.NewStore(),
		Queue:     submission.NewQueue(),
		Profiles:  profiles.NewPostgresStore(boot.DB),
		Finder:    finder,
		Publisher: publisher,
		Catalog:   cat,
		Sender:    sender,
		AdminID:   cfg.Telegram.AdminID,
	})

	reg := buildRegistry(engine)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: cfg.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)

	onLimited := func(c tele.Context) error {
		return tghelpers.SendText(c, "Easy! One message at a time, please.")
	}

	return tg.RunTelegram(ctx, tg.RunOptions{
		Config:      cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(cfg, onLimited),
		Routes:      routes,
		OnStart: func(runCtx context.Context, rt tg.Runtime) error {
			sender.inner.Store(bot.NewTelebotSender(rt.Bot, rt.Dispatcher))
			startPendingJanitor(runCtx, engine, cfg.PendingTTL())
			return nil
		},
	})
}

func startPendingJanitor(ctx context.Context, engine *bot.Engine, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.ExpirePending(ctx, ttl)
			}
		}
	}()
	logger.L.Info("pending janitor started",
		slog.String("event", "approval.janitor.started"),
		slog.Duration("ttl", ttl),
		slog.Duration("interval", interval))
}

func buildRegistry(engine *bot.Engine) *tg.Registry {
	reg := tg.NewRegistry()

	textHandler := func(c tele.Context) error {
		return engine.HandleText(handlerContext(c), c.Chat().ID, c.Text())
	}

	reg.RegisterCommand("/start", commands.Command{
		Handler:     textHandler,
		Description: "Set up your semester and course",
	})
	reg.RegisterCommand("/done", commands.Command{
		Handler:     textHandler,
		Description: "Finish enrollment",
	})
	reg.RegisterCommand("/mypyqs", commands.Command{
		Handler:     textHandler,
		Description: "Get question papers for your enrollment",
	})
	reg.RegisterCommand("/upload", commands.Command{
		Handler:     textHandler,
		Description: "Contribute a question paper",
	})

	// selector tokens, enrollment answers, and admin decisions all arrive
	// as free text
	reg.SetTextFallback(textHandler)

	reg.SetDocumentHandler(func(c tele.Context) error {
		doc := c.Message().Document
		if doc == nil {
			return nil
		}
		return engine.HandleDocument(handlerContext(c), c.Chat().ID, bot.FileRef{
			FileID: doc.FileID,
			Name:   doc.FileName,
		})
	})

	return reg
}

func handlerContext(c tele.Context) context.Context {
	if ctx, ok := tghelpers.ContextFrom(c); ok {
		return ctx
	}
	return tghelpers.BuildContext(c)
}
