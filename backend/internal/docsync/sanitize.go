package docsync

import "github.com/microcosm-cc/bluemonday"

// Remote content crosses a trust boundary between participants: another
// client can send arbitrary markup. Strip anything executable before it
// touches the live surface. Titles are plain text.
var (
	contentPolicy = bluemonday.UGCPolicy()
	titlePolicy   = bluemonday.StrictPolicy()
)

func SanitizeContent(s string) string {
	return contentPolicy.Sanitize(s)
}

func SanitizeTitle(s string) string {
	return titlePolicy.Sanitize(s)
}
