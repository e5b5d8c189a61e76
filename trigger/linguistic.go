package trigger

import (
	"regexp"
	"strings"
)

// Linguistic matching is confirmation-only: a phrase match can boost a
// structural candidate of the same kind but never fires on its own.
// Matching runs over text with code blocks, inline code, and quoted
// material stripped first, so pasted or quoted phrasing cannot confirm
// anything. Turns that discuss the trigger system itself are skipped
// entirely: talking about checkpoints must never trigger a checkpoint.

var patterns = map[Kind][]*regexp.Regexp{
	KindTopicShift: compile(
		`(?i)\blet'?s (move|switch|turn) (on )?to\b`,
		`(?i)\bswitching (gears|topics|over) to\b`,
		`(?i)\bsetting that aside\b`,
		`(?i)\bon a different (note|topic)\b`,
		`(?i)\bnew (question|topic|direction):`,
	),
	KindBranchPoint: compile(
		`(?i)\b(two|three|several) (possible )?(options|approaches|paths|ways)\b`,
		`(?i)\balternatively,? we could\b`,
		`(?i)\beither we\b.*\bor we\b`,
		`(?i)\bfork in the road\b`,
		`(?i)\btrade-?offs? between\b`,
	),
	KindConstraint: compile(
		`(?i)\bhard (requirement|constraint|limit)\b`,
		`(?i)\b(must not|cannot|can'?t) (use|rely on|depend on|exceed)\b`,
		`(?i)\bblocked (by|on)\b`,
		`(?i)\bdeal-?breaker\b`,
		`(?i)\bwon'?t work because\b`,
		`(?i)\bturns out .{0,40}\b(is|are) (not |un)?(possible|supported|available)\b`,
	),
	KindSynthesis: compile(
		`(?i)\b(so|in) (summary|short|conclusion)\b`,
		`(?i)\bto sum (it )?up\b`,
		`(?i)\bthe (key )?takeaway\b`,
		`(?i)\bputting (it|this) (all )?together\b`,
		`(?i)\bthe (answer|verdict|upshot) (is|seems to be)\b`,
		`(?i)\bwhich means (that )?overall\b`,
	),
}

// metaBanList: substrings marking discussion OF the trigger/checkpoint
// machinery. Lowercase; matched against lowercased text.
var metaBanList = []string{
	"checkpoint",
	"trigger detector",
	"trigger system",
	"save-worthy",
	"memory engine",
	"auto-save",
	"dedup threshold",
}

var (
	fencedCode = regexp.MustCompile("(?s)```.*?```")
	inlineCode = regexp.MustCompile("`[^`\n]*`")
	quotedLine = regexp.MustCompile(`(?m)^[ \t]*>.*$`)
	quotedSpan = regexp.MustCompile(`"[^"\n]*"`)
)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// linguisticMatches returns the trigger kinds whose pattern sets match the
// turn. Meta-discussion returns no matches at all.
func linguisticMatches(text string) map[Kind]bool {
	if isMetaDiscussion(text) {
		return nil
	}
	stripped := stripQuotedMaterial(text)

	matched := make(map[Kind]bool)
	for kind, set := range patterns {
		for _, re := range set {
			if re.MatchString(stripped) {
				matched[kind] = true
				break
			}
		}
	}
	return matched
}

func isMetaDiscussion(text string) bool {
	lower := strings.ToLower(text)
	for _, banned := range metaBanList {
		if strings.Contains(lower, banned) {
			return true
		}
	}
	return false
}

// stripQuotedMaterial removes fenced code blocks, inline code, quote lines,
// and double-quoted spans, in that order.
func stripQuotedMaterial(text string) string {
	text = fencedCode.ReplaceAllString(text, " ")
	text = inlineCode.ReplaceAllString(text, " ")
	text = quotedLine.ReplaceAllString(text, " ")
	text = quotedSpan.ReplaceAllString(text, " ")
	return text
}
