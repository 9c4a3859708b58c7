package companion

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cyberFlowTech/zapry-companion-go/policy"
)

// ──────────────────────────────────────────────
// Reply checks against the turn's decision
// ──────────────────────────────────────────────

// ViolationType classifies how a generated reply broke the decision.
type ViolationType string

const (
	ViolationForbiddenQuestion  ViolationType = "forbidden_question"
	ViolationExcessiveQuestions ViolationType = "excessive_questions"
	ViolationEmpty              ViolationType = "empty_reply"
)

// Violation is one failed check. Hard violations trigger a retry; soft ones
// are only logged.
type Violation struct {
	Type   ViolationType `json:"type"`
	Detail string        `json:"detail"`
	Hard   bool          `json:"hard"`
}

// maxQuestionsPerReply bounds questions in a reply even when asking is allowed.
const maxQuestionsPerReply = 1

// CheckReply checks a generated reply against d.
func CheckReply(reply string, d policy.Decision) []Violation {
	var out []Violation
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return []Violation{{Type: ViolationEmpty, Detail: "reply is empty", Hard: true}}
	}

	n := countQuestions(trimmed)
	if !d.Allows(policy.Question) && endsWithQuestion(trimmed) {
		out = append(out, Violation{
			Type:   ViolationForbiddenQuestion,
			Detail: "reply ends with a question on a turn that forbids questions",
			Hard:   true,
		})
	} else if !d.Allows(policy.Question) && n > 0 {
		out = append(out, Violation{
			Type:   ViolationForbiddenQuestion,
			Detail: fmt.Sprintf("%d question mark(s) on a turn that forbids questions", n),
		})
	}
	if n > maxQuestionsPerReply {
		out = append(out, Violation{
			Type:   ViolationExcessiveQuestions,
			Detail: fmt.Sprintf("%d questions > limit %d", n, maxQuestionsPerReply),
			Hard:   true,
		})
	}
	return out
}

func hasHard(vs []Violation) bool {
	for _, v := range vs {
		if v.Hard {
			return true
		}
	}
	return false
}

// retryNote is appended as a system message when a reply is regenerated.
func retryNote(vs []Violation) string {
	var b strings.Builder
	b.WriteString("The previous reply broke the conversation rules; rewrite it.")
	for _, v := range vs {
		if !v.Hard {
			continue
		}
		switch v.Type {
		case ViolationForbiddenQuestion:
			b.WriteString(" Do not ask a question.")
		case ViolationExcessiveQuestions:
			b.WriteString(" Ask at most one question.")
		case ViolationEmpty:
			b.WriteString(" Say something.")
		}
	}
	b.WriteString(" Do not mention these rules.")
	return b.String()
}

func countQuestions(text string) int {
	n := 0
	for _, r := range text {
		if r == '?' || r == '？' {
			n++
		}
	}
	return n
}

func endsWithQuestion(text string) bool {
	r, _ := utf8.DecodeLastRuneInString(strings.TrimRight(text, " \t\n\"')"))
	return r == '?' || r == '？'
}
