package papers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pyqhub/pyqbot/core/telegram/format"
)

// RenderMarkdown formats a lookup result as a Markdown message grouped by
// course code. Group order follows first appearance in the sheet; links
// within a group keep sheet order.
func RenderMarkdown(course, semester string, found []Paper) string {
	if len(found) == 0 {
		return fmt.Sprintf("No papers found for %s %s yet. Try /upload to contribute one!",
			format.EscapeMarkdown(course), format.EscapeMarkdown(semester))
	}

	groups := make(map[string][]Paper)
	var order []string
	for _, p := range found {
		code := p.CourseCode
		if code == "" {
			code = "Misc"
		}
		if _, ok := groups[code]; !ok {
			order = append(order, code)
		}
		groups[code] = append(groups[code], p)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s %s papers*\n",
		format.EscapeMarkdown(course), format.EscapeMarkdown(semester))
	for _, code := range order {
		fmt.Fprintf(&b, "\n*%s*\n", format.EscapeMarkdown(code))
		for i, p := range groups[code] {
			fmt.Fprintf(&b, "➡️ [Paper %d](%s)\n", i+1, p.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Semesters lists the distinct semesters present in the index rows, sorted.
func Semesters(rows []Paper) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range rows {
		key := strings.ToUpper(p.Semester)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
