package bot

import (
	"fmt"
	"strings"

	"github.com/pyqhub/pyqbot/internal/catalog"
)

const (
	msgDoneOutsideFlow = "Nothing to finish right now. Send /start to set up your semester and course."
	msgEnrollInvalid   = "That doesn't look right. Send your semester and course together, like: SEM3 B.TECH"
	msgStoreFailure    = "Couldn't save that right now, please try again in a moment."
	msgLookupFailure   = "Couldn't fetch papers right now, please try again later."
	msgNotEnrolled     = "You're not enrolled yet. Send /start to set up your semester and course first."
	msgAwaitingFile    = "Now send the paper as a document (PDF works best)."
	msgAwaitingNudge   = "Still waiting for the file. Attach the paper as a document, or send /upload to start over."
	msgFileNoContext   = "I don't know where this file belongs. Send /upload first and pick a course and semester."
	msgForwardFailure  = "Couldn't hand your file to the moderators, please send it again."
	msgFileReceived    = "Got it! Your paper was sent for review. You'll hear back once it's approved."
	msgRejectedUser    = "Your submitted paper was not approved this time. Feel free to try again with /upload."
)

func usageMessage() string {
	return strings.Join([]string{
		"Here's what I can do:",
		"/start - set up your semester and course",
		"/done - finish enrollment",
		"/mypyqs - get question papers for your enrollment",
		"/upload - contribute a paper",
		"",
		"You can also ask directly, e.g. SEM2 or SEM2 BCA.",
	}, "\n")
}

func greeting(userCount int64, courses []string) string {
	var b strings.Builder
	b.WriteString("Welcome to PYQ Hub! 📚\n")
	if userCount > 0 {
		fmt.Fprintf(&b, "You're joining %d students already using the bot.\n", userCount)
	}
	b.WriteString("\nTell me your semester and course in one line, like: SEM3 B.TECH\n")
	fmt.Fprintf(&b, "Semesters: %s\n", strings.Join(catalog.SemesterTokens(), ", "))
	fmt.Fprintf(&b, "Courses: %s\n", strings.Join(courses, ", "))
	b.WriteString("Send /done when you're finished.")
	return b.String()
}

func enrollSaved(semester, course string) string {
	return fmt.Sprintf("Saved %s %s. Send /done to finish, or send another pair to change it.",
		semester, course)
}

func enrollDone(semester, course string) string {
	return fmt.Sprintf("You're all set for %s %s. Send /mypyqs any time to get your papers.",
		semester, course)
}

func promptCourse(courses []string) string {
	labels := make([]string, len(courses))
	for i, c := range courses {
		labels[i] = "/" + c
	}
	return "Which course is this paper for?\n" + strings.Join(labels, "  ")
}

func promptSemester(course string, semesters []string) string {
	labels := make([]string, len(semesters))
	for i, s := range semesters {
		labels[i] = "/" + s
	}
	return fmt.Sprintf("Which semester of %s?\n%s", course, strings.Join(labels, "  "))
}

func adminCaption(chatID int64, course, semester, fileName string) string {
	return fmt.Sprintf("New submission from %d\n%s %s: %s\nApprove: /approve_%d\nReject: /reject_%d",
		chatID, course, semester, fileName, chatID, chatID)
}

func nothingPending(target int64) string {
	return fmt.Sprintf("Nothing pending for %d.", target)
}
