package format

import "strings"

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"[", `\[`,
	"`", "\\`",
)

// EscapeMarkdown escapes characters that Telegram's legacy Markdown parser
// would otherwise treat as formatting. Spreadsheet-sourced course codes and
// URLs routinely contain underscores.
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}
