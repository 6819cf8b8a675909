// Package bot implements the conversation engine: it routes every inbound
// text or document event to the enrollment flow, the upload flow, the paper
// lookup, or the admin approval queue, based on the sender's session state.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pyqhub/pyqbot/core/logger"
	"github.com/pyqhub/pyqbot/core/telegram/keyboard"
	"github.com/pyqhub/pyqbot/internal/catalog"
	"github.com/pyqhub/pyqbot/internal/drive"
	"github.com/pyqhub/pyqbot/internal/papers"
	"github.com/pyqhub/pyqbot/internal/profiles"
	"github.com/pyqhub/pyqbot/internal/session"
	"github.com/pyqhub/pyqbot/internal/submission"
)

// decisionPattern matches admin approve/reject commands carrying a target
// chat id, e.g. /approve_123456789.
var decisionPattern = regexp.MustCompile(`^/(approve|reject)_(\S+)$`)

// Options carries the engine's collaborators.
type Options struct {
	Sessions  *session.Store
	Queue     *submission.Queue
	Profiles  profiles.Store
	Finder    papers.Finder
	Publisher drive.Publisher
	Catalog   *catalog.Catalog
	Sender    Sender
	AdminID   int64
}

// Engine is the single entry point for inbound events. All session reads and
// writes for one chat happen under that chat's lock, so text and document
// events for the same chat can never interleave inconsistently.
type Engine struct {
	sessions  *session.Store
	queue     *submission.Queue
	profiles  profiles.Store
	finder    papers.Finder
	publisher drive.Publisher
	catalog   *catalog.Catalog
	sender    Sender
	adminID   int64
}

func NewEngine(opts Options) *Engine {
	return &Engine{
		sessions:  opts.Sessions,
		queue:     opts.Queue,
		profiles:  opts.Profiles,
		finder:    opts.Finder,
		publisher: opts.Publisher,
		catalog:   opts.Catalog,
		sender:    opts.Sender,
		adminID:   opts.AdminID,
	}
}

// HandleText processes one inbound text message.
func (e *Engine) HandleText(ctx context.Context, chatID int64, text string) error {
	text = strings.TrimSpace(text)

	// Admin decisions resolve against the target's queue entry, never the
	// admin's own session, so they are routed before any session lock.
	if chatID == e.adminID {
		if m := decisionPattern.FindStringSubmatch(text); m != nil {
			return e.handleDecision(ctx, m[1], m[2])
		}
	}

	sess, release := e.sessions.Acquire(chatID)
	defer release()

	switch text {
	case "/start":
		return e.startEnrollment(ctx, chatID, sess)
	case "/done":
		return e.finishEnrollment(ctx, chatID, sess)
	case "/upload":
		return e.startUpload(ctx, chatID, sess)
	case "/mypyqs":
		return e.lookupEnrolled(ctx, chatID)
	}

	switch sess.Mode {
	case session.ModeEnrolling:
		return e.enrollInput(ctx, chatID, sess, text)
	case session.ModeSelectingCourse:
		return e.chooseCourse(ctx, chatID, sess, text)
	case session.ModeSelectingSemester:
		return e.chooseSemester(ctx, chatID, sess, text)
	case session.ModeAwaitingFile:
		return e.sender.SendText(ctx, chatID, msgAwaitingNudge)
	}

	if handled, err := e.adHocLookup(ctx, chatID, text); handled {
		return err
	}
	return e.sender.SendText(ctx, chatID, usageMessage())
}

// HandleDocument processes one inbound document event.
func (e *Engine) HandleDocument(ctx context.Context, chatID int64, file FileRef) error {
	sess, release := e.sessions.Acquire(chatID)
	defer release()

	if sess.Mode != session.ModeAwaitingFile || sess.Upload == nil || sess.Upload.FolderID == "" {
		return e.sender.SendText(ctx, chatID, msgFileNoContext)
	}

	sel := *sess.Upload
	caption := adminCaption(chatID, sel.Course, sel.Semester, file.Name)
	if err := e.sender.ForwardDocument(ctx, e.adminID, file, caption); err != nil {
		// No queue entry without the admin seeing the file; the session
		// stays armed so the user can retry.
		logger.Error(ctx, "service.submissions", "submission.forward.failed",
			slog.Int64("chat_id", chatID),
			slog.String("file_name", file.Name),
			slog.String("err", logger.Sanitize(err.Error())))
		if sendErr := e.sender.SendText(ctx, chatID, msgForwardFailure); sendErr != nil {
			return sendErr
		}
		return err
	}

	e.queue.Put(submission.Submission{
		ChatID:   chatID,
		Course:   sel.Course,
		Semester: sel.Semester,
		FolderID: sel.FolderID,
		FileName: file.Name,
		FileID:   file.FileID,
	})
	sess.Reset()

	logger.Info(ctx, "service.submissions", "submission.queued",
		slog.Int64("chat_id", chatID),
		slog.String("course", sel.Course),
		slog.String("semester", sel.Semester),
		slog.String("file_name", file.Name),
		slog.Int("pending_count", e.queue.Len()))
	return e.sender.SendText(ctx, chatID, msgFileReceived)
}

// --- enrollment flow ---

func (e *Engine) startEnrollment(ctx context.Context, chatID int64, sess *session.Session) error {
	count, err := e.profiles.Count(ctx)
	if err != nil {
		logger.Warn(ctx, "service.profiles", "enrollment.count.failed",
			slog.String("err", logger.Sanitize(err.Error())))
		count = 0
	}
	sess.StartEnrollment()
	return e.sender.SendText(ctx, chatID, greeting(count, e.catalog.Courses()))
}

func (e *Engine) enrollInput(ctx context.Context, chatID int64, sess *session.Session, text string) error {
	fields := strings.Fields(text)
	if len(fields) != 2 {
		return e.sender.SendText(ctx, chatID, msgEnrollInvalid)
	}
	semester, ok := catalog.NormalizeSemester(fields[0])
	if !ok {
		return e.sender.SendText(ctx, chatID, msgEnrollInvalid)
	}
	course, ok := e.catalog.NormalizeCourse(fields[1])
	if !ok {
		return e.sender.SendText(ctx, chatID, msgEnrollInvalid)
	}

	// Persist immediately so later edits also stick; /done only reports.
	if err := e.profiles.Upsert(ctx, chatID, profiles.Enrollment{Semester: semester, Course: course}); err != nil {
		logger.Error(ctx, "service.profiles", "enrollment.save.failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", logger.Sanitize(err.Error())))
		return e.sender.SendText(ctx, chatID, msgStoreFailure)
	}
	sess.Draft = &session.Draft{Semester: semester, Course: course}
	return e.sender.SendText(ctx, chatID, enrollSaved(semester, course))
}

func (e *Engine) finishEnrollment(ctx context.Context, chatID int64, sess *session.Session) error {
	if sess.Mode != session.ModeEnrolling {
		return e.sender.SendText(ctx, chatID, msgDoneOutsideFlow)
	}
	// Report what was durably saved, not the transient draft.
	enr, found, err := e.profiles.Get(ctx, chatID)
	if err != nil {
		logger.Error(ctx, "service.profiles", "enrollment.read.failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", logger.Sanitize(err.Error())))
		return e.sender.SendText(ctx, chatID, msgStoreFailure)
	}
	sess.Reset()
	if !found {
		return e.sender.SendText(ctx, chatID,
			"Nothing saved yet. Send /start again and tell me your semester and course.")
	}
	return e.sender.SendText(ctx, chatID, enrollDone(enr.Semester, enr.Course))
}

// --- paper lookup ---

func (e *Engine) lookupEnrolled(ctx context.Context, chatID int64) error {
	enr, found, err := e.profiles.Get(ctx, chatID)
	if err != nil {
		logger.Error(ctx, "service.profiles", "enrollment.read.failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", logger.Sanitize(err.Error())))
		return e.sender.SendText(ctx, chatID, msgStoreFailure)
	}
	if !found {
		return e.sender.SendText(ctx, chatID, msgNotEnrolled)
	}
	return e.lookup(ctx, chatID, enr.Course, enr.Semester)
}

// adHocLookup recognizes the "SEM2" and "SEM2 BCA" shorthand. The one-token
// form fills the course from the stored enrollment.
func (e *Engine) adHocLookup(ctx context.Context, chatID int64, text string) (bool, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return false, nil
	}
	semester, ok := catalog.NormalizeSemester(fields[0])
	if !ok {
		return false, nil
	}
	if len(fields) == 2 {
		course, ok := e.catalog.NormalizeCourse(fields[1])
		if !ok {
			return false, nil
		}
		return true, e.lookup(ctx, chatID, course, semester)
	}

	enr, found, err := e.profiles.Get(ctx, chatID)
	if err != nil {
		logger.Error(ctx, "service.profiles", "enrollment.read.failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", logger.Sanitize(err.Error())))
		return true, e.sender.SendText(ctx, chatID, msgStoreFailure)
	}
	if !found {
		return true, e.sender.SendText(ctx, chatID, msgNotEnrolled)
	}
	return true, e.lookup(ctx, chatID, enr.Course, semester)
}

func (e *Engine) lookup(ctx context.Context, chatID int64, course, semester string) error {
	found, err := e.finder.Find(ctx, course, semester)
	if err != nil {
		logger.Error(ctx, "service.papers", "lookup.failed",
			slog.Int64("chat_id", chatID),
			slog.String("course", course),
			slog.String("semester", semester),
			slog.String("err", logger.Sanitize(err.Error())))
		return e.sender.SendText(ctx, chatID, msgLookupFailure)
	}
	logger.Debug(ctx, "service.papers", "lookup.served",
		slog.Int64("chat_id", chatID),
		slog.String("course", course),
		slog.String("semester", semester),
		slog.Int("rows", len(found)))
	return e.sender.SendMarkdown(ctx, chatID, papers.RenderMarkdown(course, semester, found))
}

// --- upload flow ---

func (e *Engine) startUpload(ctx context.Context, chatID int64, sess *session.Session) error {
	sess.StartUpload()
	courses := e.catalog.Courses()
	return e.sender.Prompt(ctx, chatID, promptCourse(courses), slashRows(courses))
}

func (e *Engine) chooseCourse(ctx context.Context, chatID int64, sess *session.Session, text string) error {
	course, ok := e.catalog.NormalizeCourse(text)
	if !ok {
		courses := e.catalog.Courses()
		return e.sender.Prompt(ctx, chatID, promptCourse(courses), slashRows(courses))
	}
	sess.Upload = &session.UploadSelection{Course: course}
	sess.Mode = session.ModeSelectingSemester

	semesters, _ := e.catalog.Semesters(course)
	return e.sender.Prompt(ctx, chatID, promptSemester(course, semesters), slashRows(semesters))
}

func (e *Engine) chooseSemester(ctx context.Context, chatID int64, sess *session.Session, text string) error {
	course := ""
	if sess.Upload != nil {
		course = sess.Upload.Course
	}
	semester, ok := catalog.NormalizeSemester(text)
	var folderID string
	if ok {
		folderID, ok = e.catalog.FolderID(course, semester)
	}
	if !ok {
		semesters, _ := e.catalog.Semesters(course)
		return e.sender.Prompt(ctx, chatID, promptSemester(course, semesters), slashRows(semesters))
	}

	sess.Upload = &session.UploadSelection{Course: course, Semester: semester, FolderID: folderID}
	sess.Mode = session.ModeAwaitingFile
	return e.sender.SendText(ctx, chatID, msgAwaitingFile)
}

// --- admin decisions ---

func (e *Engine) handleDecision(ctx context.Context, verb, rawTarget string) error {
	target, err := strconv.ParseInt(rawTarget, 10, 64)
	if err != nil {
		return e.sender.SendText(ctx, e.adminID,
			fmt.Sprintf("Bad target %q, expected /%s_<chat id>.", rawTarget, verb))
	}
	if verb == "approve" {
		return e.approve(ctx, target)
	}
	return e.reject(ctx, target)
}

func (e *Engine) approve(ctx context.Context, target int64) error {
	found, err := e.queue.Resolve(target, func(sub submission.Submission) error {
		data, err := e.sender.FetchFile(ctx, FileRef{FileID: sub.FileID, Name: sub.FileName})
		if err != nil {
			return fmt.Errorf("fetch file: %w", err)
		}
		if _, err := e.publisher.Publish(ctx, sub.FolderID, sub.FileName, data); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		// Notification failures are logged, not retried; the upload
		// already happened and the entry must go.
		if sendErr := e.sender.SendText(ctx, sub.ChatID,
			fmt.Sprintf("Your paper %s was approved and published. Thanks for contributing!", sub.FileName)); sendErr != nil {
			logger.Warn(ctx, "service.submissions", "submission.notify.failed",
				slog.Int64("target_id", sub.ChatID),
				slog.String("err", logger.Sanitize(sendErr.Error())))
		}
		if sendErr := e.sender.SendText(ctx, e.adminID,
			fmt.Sprintf("Published %s for %d.", sub.FileName, sub.ChatID)); sendErr != nil {
			logger.Warn(ctx, "service.submissions", "submission.notify.failed",
				slog.Int64("target_id", e.adminID),
				slog.String("err", logger.Sanitize(sendErr.Error())))
		}
		return nil
	})
	if !found {
		return e.sender.SendText(ctx, e.adminID, nothingPending(target))
	}
	if err != nil {
		logger.Error(ctx, "service.submissions", "submission.approve.failed",
			slog.Int64("target_id", target),
			slog.String("err", logger.Sanitize(err.Error())))
		return e.sender.SendText(ctx, e.adminID,
			fmt.Sprintf("Publish failed for %d: still pending, approve again to retry.", target))
	}
	logger.Info(ctx, "service.submissions", "submission.approved",
		slog.Int64("target_id", target),
		slog.Int("pending_count", e.queue.Len()))
	return nil
}

func (e *Engine) reject(ctx context.Context, target int64) error {
	sub, ok := e.queue.Remove(target)
	if !ok {
		return e.sender.SendText(ctx, e.adminID, nothingPending(target))
	}
	logger.Info(ctx, "service.submissions", "submission.rejected",
		slog.Int64("target_id", target),
		slog.String("file_name", sub.FileName),
		slog.Int("pending_count", e.queue.Len()))
	if err := e.sender.SendText(ctx, target, msgRejectedUser); err != nil {
		return err
	}
	return e.sender.SendText(ctx, e.adminID,
		fmt.Sprintf("Rejected %s from %d.", sub.FileName, target))
}

// ExpirePending drops submissions older than maxAge and tells their senders
// to resubmit. Wired to a ticker when a pending TTL is configured.
func (e *Engine) ExpirePending(ctx context.Context, maxAge time.Duration) {
	for _, sub := range e.queue.Expire(maxAge) {
		logger.Info(ctx, "service.submissions", "submission.expired",
			slog.Int64("target_id", sub.ChatID),
			slog.String("file_name", sub.FileName))
		if err := e.sender.SendText(ctx, sub.ChatID,
			"Your submitted paper waited too long for review and was dropped. Please /upload it again."); err != nil {
			logger.Warn(ctx, "service.submissions", "submission.notify.failed",
				slog.Int64("target_id", sub.ChatID),
				slog.String("err", logger.Sanitize(err.Error())))
		}
	}
}

func slashRows(labels []string) [][]string {
	prefixed := make([]string, len(labels))
	for i, l := range labels {
		prefixed[i] = "/" + l
	}
	return keyboard.ChunkLabels(prefixed, 3)
}
