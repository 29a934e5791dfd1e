// Package sanitize maps arbitrary filesystem path strings to a URI-safe
// canonical form so that paths extracted from the vault never trip up
// clients that encode them into URLs.
package sanitize

import "strings"

// preMappings collapses "smart" Unicode punctuation down to its ASCII
// equivalent before the character-class filter runs, so an ellipsis or
// a curly quote degrades gracefully instead of turning into an underscore.
var preMappings = strings.NewReplacer(
	"…", "...", // HORIZONTAL ELLIPSIS
	"“", "\"", // LEFT DOUBLE QUOTATION MARK
	"”", "\"", // RIGHT DOUBLE QUOTATION MARK
	"‘", "'", // LEFT SINGLE QUOTATION MARK
	"’", "'", // RIGHT SINGLE QUOTATION MARK
	"—", "-", // EM DASH
	"–", "-", // EN DASH
)

// allowedPunctuation lists the non-alphanumeric runes that survive Path
// unmodified, besides the forward slash which is always preserved as a
// path separator.
const allowedPunctuation = "/. -_,()[]\"'"

// Path returns the URI-safe canonical form of path. Every ASCII
// alphanumeric and every rune in allowedPunctuation is kept; everything
// else becomes '_'. Path is pure and idempotent: Path(Path(p)) == Path(p).
func Path(path string) string {
	path = preMappings.Replace(path)

	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case strings.ContainsRune(allowedPunctuation, r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
