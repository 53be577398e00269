package pyexec

import (
	"regexp"
	"strings"
)

var (
	fenceRe = regexp.MustCompile("^```[\\w]*\\n|```$")

	// Calls that would open a browser, block on a GUI, or write files next
	// to the script. Output must stay headless.
	displayRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(plt\.show|fig\.show)\s*\([^)]*\)`),
		regexp.MustCompile(`\bfig\.write_html\s*\([^)]*\)`),
		regexp.MustCompile(`\bpio\.(show|write_html)\s*\([^)]*\)`),
	}
)

// StripFences removes one enclosing markdown code fence and trims whitespace.
func StripFences(code string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(strings.TrimSpace(code), ""))
}

// StripDisplayCalls removes interactive display and HTML export calls.
// It is a best-effort regex pass: calls with nested parentheses in their
// arguments, or aliased figure names, are not caught.
func StripDisplayCalls(code string) string {
	for _, re := range displayRes {
		code = re.ReplaceAllString(code, "")
	}
	return code
}

// Normalize turns raw model output into executable script body.
func Normalize(raw string) string {
	return StripDisplayCalls(StripFences(raw))
}
