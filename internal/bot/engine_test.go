package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyqhub/pyqbot/internal/catalog"
	"github.com/pyqhub/pyqbot/internal/papers"
	"github.com/pyqhub/pyqbot/internal/profiles"
	"github.com/pyqhub/pyqbot/internal/session"
	"github.com/pyqhub/pyqbot/internal/submission"
)

const adminID int64 = 99

type sent struct {
	chatID int64
	text   string
}

type forwarded struct {
	chatID  int64
	file    FileRef
	caption string
}

type fakeSender struct {
	mu         sync.Mutex
	texts      []sent
	markdowns  []sent
	prompts    []sent
	forwards   []forwarded
	forwardErr error
	fetchErr   error
	fileBytes  []byte
}

func (f *fakeSender) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sent{chatID, text})
	return nil
}

func (f *fakeSender) SendMarkdown(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markdowns = append(f.markdowns, sent{chatID, text})
	return nil
}

func (f *fakeSender) Prompt(_ context.Context, chatID int64, text string, _ [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, sent{chatID, text})
	return nil
}

func (f *fakeSender) ForwardDocument(_ context.Context, chatID int64, file FileRef, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forwardErr != nil {
		return f.forwardErr
	}
	f.forwards = append(f.forwards, forwarded{chatID, file, caption})
	return nil
}

func (f *fakeSender) FetchFile(_ context.Context, _ FileRef) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fileBytes == nil {
		return []byte("bytes"), nil
	}
	return f.fileBytes, nil
}

func (f *fakeSender) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.texts {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

type fakeProfiles struct {
	mu        sync.Mutex
	records   map[int64]profiles.Enrollment
	getErr    error
	upsertErr error
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{records: make(map[int64]profiles.Enrollment)}
}

func (f *fakeProfiles) Get(_ context.Context, chatID int64) (profiles.Enrollment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return profiles.Enrollment{}, false, f.getErr
	}
	e, ok := f.records[chatID]
	return e, ok, nil
}

func (f *fakeProfiles) Upsert(_ context.Context, chatID int64, e profiles.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[chatID] = e
	return nil
}

func (f *fakeProfiles) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

type lookupCall struct {
	course, semester string
}

type fakeFinder struct {
	mu    sync.Mutex
	calls []lookupCall
	rows  []papers.Paper
	err   error
}

func (f *fakeFinder) Find(_ context.Context, course, semester string) ([]papers.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, lookupCall{course, semester})
	return f.rows, f.err
}

type publishCall struct {
	folderID, name string
	data           []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, folderID, name string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, publishCall{folderID, name, data})
	return fmt.Sprintf("file-%d", len(f.calls)), nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const catalogYAML = `
courses:
  - name: B.TECH
    semesters:
      SEM1: folder-bt-1
      SEM3: folder-bt-3
  - name: BCA
    semesters:
      SEM1: folder-bca-1
      SEM2: folder-bca-2
`

type fixture struct {
	engine    *Engine
	sender    *fakeSender
	profiles  *fakeProfiles
	finder    *fakeFinder
	publisher *fakePublisher
	queue     *submission.Queue
	sessions  *session.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Parse([]byte(catalogYAML))
	require.NoError(t, err)

	f := &fixture{
		sender:    &fakeSender{},
		profiles:  newFakeProfiles(),
		finder:    &fakeFinder{},
		publisher: &fakePublisher{},
		queue:     submission.NewQueue(),
		sessions:  session.NewStore(),
	}
	f.engine = NewEngine(Options{
		Sessions:  f.sessions,
		Queue:     f.queue,
		Profiles:  f.profiles,
		Finder:    f.finder,
		Publisher: f.publisher,
		Catalog:   cat,
		Sender:    f.sender,
		AdminID:   adminID,
	})
	return f
}

func (f *fixture) text(t *testing.T, chatID int64, msg string) {
	t.Helper()
	require.NoError(t, f.engine.HandleText(context.Background(), chatID, msg))
}

func TestEnrollmentPersistsAndDoneReportsStoredValue(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	f.text(t, user, "/start")
	f.text(t, user, "sem3 b.tech")

	assert.Equal(t, profiles.Enrollment{Semester: "SEM3", Course: "B.TECH"}, f.profiles.records[user])

	// /done must report what the store holds, not the transient draft.
	f.profiles.records[user] = profiles.Enrollment{Semester: "SEM1", Course: "BCA"}
	f.text(t, user, "/done")

	msgs := f.sender.textsTo(user)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	assert.Contains(t, last, "SEM1")
	assert.Contains(t, last, "BCA")
	assert.Equal(t, session.ModeIdle, f.sessions.Snapshot(user).Mode)
}

func TestEnrollmentInvalidInputKeepsMode(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	f.text(t, user, "/start")
	f.text(t, user, "SEM9 B.TECH")
	f.text(t, user, "hello there")

	assert.Empty(t, f.profiles.records)
	assert.Equal(t, session.ModeEnrolling, f.sessions.Snapshot(user).Mode)
}

func TestEnrollmentStoreFailureKeepsMode(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	f.text(t, user, "/start")
	f.profiles.upsertErr = errors.New("db down")
	f.text(t, user, "SEM3 B.TECH")

	assert.Equal(t, session.ModeEnrolling, f.sessions.Snapshot(user).Mode)
	msgs := f.sender.textsTo(user)
	assert.Contains(t, msgs[len(msgs)-1], "try again")

	// retry after the store recovers
	f.profiles.upsertErr = nil
	f.text(t, user, "SEM3 B.TECH")
	assert.Equal(t, profiles.Enrollment{Semester: "SEM3", Course: "B.TECH"}, f.profiles.records[user])
}

func TestDoneOutsideEnrollmentIsNoop(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	f.text(t, user, "/done")
	assert.Equal(t, session.ModeIdle, f.sessions.Snapshot(user).Mode)
	msgs := f.sender.textsTo(user)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Nothing to finish")
}

func TestUploadResetsAnyPriorMode(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	f.text(t, user, "/start")
	assert.Equal(t, session.ModeEnrolling, f.sessions.Snapshot(user).Mode)

	f.text(t, user, "/upload")
	assert.Equal(t, session.ModeSelectingCourse, f.sessions.Snapshot(user).Mode)

	// mid-upload /upload starts over too
	f.text(t, user, "/B.TECH")
	assert.Equal(t, session.ModeSelectingSemester, f.sessions.Snapshot(user).Mode)
	f.text(t, user, "/upload")
	snap := f.sessions.Snapshot(user)
	assert.Equal(t, session.ModeSelectingCourse, snap.Mode)
	assert.Empty(t, snap.Upload.Course)
}

func TestUploadFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	f.text(t, user, "/upload")
	f.text(t, user, "/B.TECH")
	f.text(t, user, "/SEM3")

	snap := f.sessions.Snapshot(user)
	require.Equal(t, session.ModeAwaitingFile, snap.Mode)
	require.NotNil(t, snap.Upload)
	assert.Equal(t, "folder-bt-3", snap.Upload.FolderID)

	err := f.engine.HandleDocument(context.Background(), user, FileRef{FileID: "tg-file-1", Name: "CS301.pdf"})
	require.NoError(t, err)

	require.Len(t, f.sender.forwards, 1)
	fw := f.sender.forwards[0]
	assert.Equal(t, adminID, fw.chatID)
	assert.Equal(t, "tg-file-1", fw.file.FileID)
	assert.Contains(t, fw.caption, "10")
	assert.Contains(t, fw.caption, "CS301.pdf")
	assert.Contains(t, fw.caption, "B.TECH")
	assert.Contains(t, fw.caption, "SEM3")
	assert.Contains(t, fw.caption, "/approve_10")

	sub, ok := f.queue.Get(user)
	require.True(t, ok)
	assert.Equal(t, "folder-bt-3", sub.FolderID)
	assert.Equal(t, session.ModeIdle, f.sessions.Snapshot(user).Mode)

	msgs := f.sender.textsTo(user)
	assert.Contains(t, msgs[len(msgs)-1], "sent for review")
}

func TestUploadInvalidSelectionsReprompt(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	f.text(t, user, "/upload")
	f.text(t, user, "/MBA")
	assert.Equal(t, session.ModeSelectingCourse, f.sessions.Snapshot(user).Mode)

	f.text(t, user, "/BCA")
	f.text(t, user, "/SEM3") // BCA has no SEM3 folder
	assert.Equal(t, session.ModeSelectingSemester, f.sessions.Snapshot(user).Mode)

	f.text(t, user, "/SEM2")
	snap := f.sessions.Snapshot(user)
	assert.Equal(t, session.ModeAwaitingFile, snap.Mode)
	assert.Equal(t, "folder-bca-2", snap.Upload.FolderID)
}

func TestDocumentWithoutContextIsRejected(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	err := f.engine.HandleDocument(context.Background(), user, FileRef{FileID: "x", Name: "stray.pdf"})
	require.NoError(t, err)

	assert.Empty(t, f.sender.forwards)
	_, ok := f.queue.Get(user)
	assert.False(t, ok)
	msgs := f.sender.textsTo(user)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "/upload")
}

func TestForwardFailureKeepsSessionArmed(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10

	f.text(t, user, "/upload")
	f.text(t, user, "/B.TECH")
	f.text(t, user, "/SEM3")

	f.sender.forwardErr = errors.New("network down")
	err := f.engine.HandleDocument(context.Background(), user, FileRef{FileID: "x", Name: "a.pdf"})
	require.Error(t, err)

	_, ok := f.queue.Get(user)
	assert.False(t, ok)
	assert.Equal(t, session.ModeAwaitingFile, f.sessions.Snapshot(user).Mode)

	f.sender.forwardErr = nil
	require.NoError(t, f.engine.HandleDocument(context.Background(), user, FileRef{FileID: "x", Name: "a.pdf"}))
	_, ok = f.queue.Get(user)
	assert.True(t, ok)
}

func TestMypyqsUsesStoredEnrollment(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10
	f.finder.rows = []papers.Paper{{Course: "B.TECH", CourseCode: "CS-301", URL: "u", Semester: "SEM3"}}

	f.text(t, user, "/start")
	f.text(t, user, "SEM3 B.TECH")
	f.text(t, user, "/done")
	f.text(t, user, "/mypyqs")

	require.Len(t, f.finder.calls, 1)
	assert.Equal(t, lookupCall{"B.TECH", "SEM3"}, f.finder.calls[0])
	require.Len(t, f.sender.markdowns, 1)
	assert.Contains(t, f.sender.markdowns[0].text, "CS-301")
}

func TestMypyqsWithoutEnrollment(t *testing.T) {
	f := newFixture(t)
	f.text(t, 10, "/mypyqs")
	assert.Empty(t, f.finder.calls)
	msgs := f.sender.textsTo(10)
	assert.Contains(t, msgs[0], "/start")
}

func TestAdHocLookupShorthand(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10
	f.profiles.records[user] = profiles.Enrollment{Semester: "SEM3", Course: "B.TECH"}

	// one-token form falls back to the enrolled course
	f.text(t, user, "SEM1")
	require.Len(t, f.finder.calls, 1)
	assert.Equal(t, lookupCall{"B.TECH", "SEM1"}, f.finder.calls[0])

	// two-token form overrides the course
	f.text(t, user, "sem2 bca")
	require.Len(t, f.finder.calls, 2)
	assert.Equal(t, lookupCall{"BCA", "SEM2"}, f.finder.calls[1])

	// session untouched by ad-hoc lookups
	assert.Equal(t, session.ModeIdle, f.sessions.Snapshot(user).Mode)
}

func TestUnrecognizedTextGetsUsage(t *testing.T) {
	f := newFixture(t)
	f.text(t, 10, "what is this")
	msgs := f.sender.textsTo(10)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "/mypyqs")
}

func queueSubmission(f *fixture, user int64) {
	f.queue.Put(submission.Submission{
		ChatID:   user,
		Course:   "B.TECH",
		Semester: "SEM3",
		FolderID: "folder-bt-3",
		FileName: "CS301.pdf",
		FileID:   "tg-file-1",
	})
}

func TestApprovePublishesAndNotifies(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10
	queueSubmission(f, user)

	f.text(t, adminID, "/approve_10")

	require.Equal(t, 1, f.publisher.callCount())
	assert.Equal(t, "folder-bt-3", f.publisher.calls[0].folderID)
	assert.Equal(t, "CS301.pdf", f.publisher.calls[0].name)

	_, ok := f.queue.Get(user)
	assert.False(t, ok)

	userMsgs := f.sender.textsTo(user)
	require.Len(t, userMsgs, 1)
	assert.Contains(t, userMsgs[0], "approved")
	adminMsgs := f.sender.textsTo(adminID)
	require.Len(t, adminMsgs, 1)
	assert.Contains(t, adminMsgs[0], "Published")
}

func TestApproveFailureRetainsEntryAndIsRetryable(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10
	queueSubmission(f, user)

	f.publisher.err = errors.New("drive 500")
	f.text(t, adminID, "/approve_10")

	_, ok := f.queue.Get(user)
	assert.True(t, ok, "entry survives a failed publish")
	assert.Empty(t, f.sender.textsTo(user))
	adminMsgs := f.sender.textsTo(adminID)
	require.Len(t, adminMsgs, 1)
	assert.Contains(t, adminMsgs[0], "still pending")

	f.publisher.err = nil
	f.text(t, adminID, "/approve_10")
	assert.Equal(t, 1, f.publisher.callCount())
	_, ok = f.queue.Get(user)
	assert.False(t, ok)
}

func TestDoubleApproveSinglePublish(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10
	queueSubmission(f, user)

	f.text(t, adminID, "/approve_10")
	f.text(t, adminID, "/approve_10")

	assert.Equal(t, 1, f.publisher.callCount())
	userMsgs := f.sender.textsTo(user)
	require.Len(t, userMsgs, 1, "at most one success notification")
	adminMsgs := f.sender.textsTo(adminID)
	require.Len(t, adminMsgs, 2)
	assert.Contains(t, adminMsgs[1], "Nothing pending")
}

func TestRejectRemovesAndNotifies(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10
	queueSubmission(f, user)

	f.text(t, adminID, "/reject_10")

	_, ok := f.queue.Get(user)
	assert.False(t, ok)
	assert.Equal(t, 0, f.publisher.callCount())
	userMsgs := f.sender.textsTo(user)
	require.Len(t, userMsgs, 1)
	assert.Contains(t, userMsgs[0], "not approved")
}

func TestDecisionOnAbsentTargetIsNoop(t *testing.T) {
	f := newFixture(t)

	f.text(t, adminID, "/approve_77")
	f.text(t, adminID, "/reject_77")

	assert.Equal(t, 0, f.publisher.callCount())
	assert.Empty(t, f.sender.textsTo(77))
	adminMsgs := f.sender.textsTo(adminID)
	require.Len(t, adminMsgs, 2)
	for _, m := range adminMsgs {
		assert.Contains(t, m, "Nothing pending")
	}
}

func TestMalformedDecisionTarget(t *testing.T) {
	f := newFixture(t)
	f.text(t, adminID, "/approve_bob")

	adminMsgs := f.sender.textsTo(adminID)
	require.Len(t, adminMsgs, 1)
	assert.Contains(t, adminMsgs[0], "Bad target")
}

func TestNonAdminDecisionIsNotGrantedQueueAccess(t *testing.T) {
	f := newFixture(t)
	const user int64 = 10
	queueSubmission(f, 20)

	f.text(t, user, "/approve_20")

	_, ok := f.queue.Get(20)
	assert.True(t, ok, "entry untouched")
	assert.Equal(t, 0, f.publisher.callCount())
	msgs := f.sender.textsTo(user)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "/mypyqs", "treated as unrecognized text")
}

func TestStartGreetingIncludesUserCount(t *testing.T) {
	f := newFixture(t)
	f.profiles.records[1] = profiles.Enrollment{Semester: "SEM1", Course: "BCA"}
	f.profiles.records[2] = profiles.Enrollment{Semester: "SEM2", Course: "BCA"}

	f.text(t, 10, "/start")
	msgs := f.sender.textsTo(10)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "2 students")
	assert.Contains(t, msgs[0], "B.TECH, BCA")
}
