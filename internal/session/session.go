// Package session keeps per-chat conversation state for the lifetime of the
// process. Each chat owns exactly one Session with an explicit mode, so the
// enrollment and upload flows can never be active at the same time.
package session

// Mode identifies the conversation step a chat is currently in.
type Mode int

const (
	// ModeIdle means no flow is active.
	ModeIdle Mode = iota
	// ModeEnrolling means the chat is declaring its semester/course.
	ModeEnrolling
	// ModeSelectingCourse means the chat is choosing a course to upload into.
	ModeSelectingCourse
	// ModeSelectingSemester means the chat is choosing a semester to upload into.
	ModeSelectingSemester
	// ModeAwaitingFile means a destination is resolved and a document is expected.
	ModeAwaitingFile
)

// String returns the mode name for logs.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeEnrolling:
		return "enrolling"
	case ModeSelectingCourse:
		return "selecting_course"
	case ModeSelectingSemester:
		return "selecting_semester"
	case ModeAwaitingFile:
		return "awaiting_file"
	}
	return "unknown"
}

// Draft is the semester/course pair being collected by the enrollment flow.
type Draft struct {
	Semester string
	Course   string
}

// UploadSelection is the course/semester/destination tuple chosen for an
// in-progress upload. FolderID is only set once the semester is resolved.
type UploadSelection struct {
	Course   string
	Semester string
	FolderID string
}

// Session is the transient conversation state for one chat.
type Session struct {
	Mode   Mode
	Draft  *Draft
	Upload *UploadSelection
}

// StartEnrollment switches the session into the enrollment flow, discarding
// any other in-progress flow.
func (s *Session) StartEnrollment() {
	s.Mode = ModeEnrolling
	s.Draft = nil
	s.Upload = nil
}

// StartUpload switches the session into the upload flow, discarding any other
// in-progress flow.
func (s *Session) StartUpload() {
	s.Mode = ModeSelectingCourse
	s.Draft = nil
	s.Upload = &UploadSelection{}
}

// Reset returns the session to idle and clears flow data.
func (s *Session) Reset() {
	s.Mode = ModeIdle
	s.Draft = nil
	s.Upload = nil
}
