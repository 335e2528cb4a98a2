package agent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var inDaysRe = regexp.MustCompile(`in (\d+) days?`)

// midnightSuffix is appended literally to the rendered date. Time.Format
// would treat ".000" as a fractional-seconds verb and leak the wall clock's
// milliseconds, so only the date component goes through the layout.
const midnightSuffix = "T00:00:00.000Z"

// midnightDate renders t as an ISO 8601 date at UTC midnight.
func midnightDate(t time.Time) string {
	return t.UTC().Format("2006-01-02") + midnightSuffix
}

// ResolveRelativeDate maps relative date language in text to an absolute date
// string at UTC midnight. The first matching rule wins: "tomorrow", then
// "next week"/"in a week", then "in N days", then "today". Matching is
// case-insensitive. Returns "" and false when no rule matches.
//
// The returned string is the single source of truth for the date: the prompt
// instructs the model to use it verbatim, and nothing downstream recomputes it.
func ResolveRelativeDate(text string, now time.Time) (string, bool) {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "tomorrow") {
		return midnightDate(now.Add(24 * time.Hour)), true
	}

	if strings.Contains(lower, "next week") || strings.Contains(lower, "in a week") {
		return midnightDate(now.Add(7 * 24 * time.Hour)), true
	}

	if m := inDaysRe.FindStringSubmatch(lower); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil {
			return midnightDate(now.Add(time.Duration(days) * 24 * time.Hour)), true
		}
		// Unparseable digit run (overflow); fall through to the next rule.
	}

	if strings.Contains(lower, "today") {
		return midnightDate(now), true
	}

	return "", false
}
