package agentloop

import (
	"regexp"
	"strings"
)

// Classification is the coarse intent of a user query. It decides whether
// the run needs tool discovery at all.
type Classification string

const (
	// Informational queries are answerable from the model's own knowledge.
	Informational Classification = "INFORMATIONAL"
	// Action queries require tool execution against the environment.
	Action Classification = "ACTION"
)

// Action patterns are checked before informational ones: a query that
// mixes both ("explain and then run the tests") needs tools, so the bias
// is toward Action.
var actionPatterns = compilePatterns([]string{
	`\bsearch\b`, `\bfind\b`, `\bexecute\b`, `\brun\b`,
	`\bread file\b`, `\bwrite file\b`, `\bedit file\b`,
	`\banalyze\b`, `\bcheck\b`, `\btest\b`,
	`\binstall\b`, `\bdownload\b`, `\bupload\b`,
	`\bcreate\b`, `\bdelete\b`, `\bmove\b`, `\bcopy\b`,
	`\blist\b`, `\bshow me\b`, `\bget\b`, `\bfetch\b`, `\bquery\b`,
	`\bcalculate\b`, `\bcompute\b`,
	`\bbrowse\b`, `\bnavigate\b`, `\bclick\b`,
	`\bapply\b`, `\bfill\b`,
})

var informationalPatterns = compilePatterns([]string{
	`\bwhat is\b`, `\bexplain\b`, `\btell me about\b`,
	`\bdefine\b`, `\bdescribe\b`, `\bhow does\b`,
	`\bwhy (does|do)\b`, `\bwhen (is|are|do)\b`,
	`\bwhere (is|are)\b`, `\bwho (is|are)\b`,
})

func compilePatterns(exprs []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		patterns = append(patterns, regexp.MustCompile(expr))
	}
	return patterns
}

// Classify maps a query to Informational or Action. Ambiguous queries
// default to Action so that a needed tool is never unavailable; the cost
// of a spurious discovery is far lower than a run without tools.
func Classify(query string) Classification {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, p := range actionPatterns {
		if p.MatchString(q) {
			return Action
		}
	}
	for _, p := range informationalPatterns {
		if p.MatchString(q) {
			return Informational
		}
	}
	return Action
}
