package pipeline

import (
	"regexp"
	"strings"

	"github.com/kellogg/sentrychat/internal/domain/entity"
	"github.com/kellogg/sentrychat/internal/domain/stage"
	pkgerrors "github.com/kellogg/sentrychat/pkg/errors"
)

// promptLeakagePatterns flags responses that echo internal pipeline
// structure back to the visitor (§4.9, layer8_fast.py).
var promptLeakagePatterns = compileAll(true,
	`system prompt`, `my instructions are`, `i was told to`, `i am programmed to`,
	`my programming says`, `my rules are`, `<<<.*>>>`, `CONTEXT ABOUT KELLOGG`,
	`CURRENT QUESTION:`, `Layer \d+ `, `inference pipeline`, `jailbreak attempt`, `injection attempt`,
)

var inappropriatePatterns = compileAll(true,
	`\b(fuck|shit|damn|ass|bitch)\b`,
	`(kill|murder|attack|harm)\s+(yourself|himself|people)`,
	`(illegal|criminal)\s+activit`,
)

var privateInfoPatterns = compileAll(false,
	`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`,
	`(?:\d{1,3}\.){3}\d{1,3}`,
	`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
)

var negativeSelfPatterns = compileAll(true,
	`kellogg (is|was) (bad|terrible|awful|incompetent)`,
	`kellogg (doesn't|does not) know`,
	`kellogg (can't|cannot) (do|handle)`,
	`kellogg (failed|sucks)`,
	`wouldn't recommend.*kellogg`,
	`don't hire.*kellogg`,
)

func compileAll(caseInsensitive bool, patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if caseInsensitive {
			p = "(?i)" + p
		}
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// FastSafetyChecker is L8's pattern-based variant: a regex-only check with
// no model round-trip, used when the pipeline is configured for low latency
// (§4.9). Grounded on layer8_fast.py.
type FastSafetyChecker struct {
	safeEmails map[string]bool
}

func NewFastSafetyChecker(safeEmailAllowlist []string) *FastSafetyChecker {
	safe := make(map[string]bool, len(safeEmailAllowlist))
	for _, e := range safeEmailAllowlist {
		safe[strings.ToLower(e)] = true
	}
	return &FastSafetyChecker{safeEmails: safe}
}

// Check scans response for leakage, inappropriate content, private info, and
// negative self-talk. Unlike the LLM variant, it takes no context argument.
func (f *FastSafetyChecker) Check(response string) L8Result {
	var issues []entity.SafetyIssue

	for _, p := range promptLeakagePatterns {
		if p.MatchString(response) {
			issues = append(issues, entity.SafetyPromptLeakage)
			break
		}
	}
	for _, p := range inappropriatePatterns {
		if p.MatchString(response) {
			issues = append(issues, entity.SafetyInappropriate)
			break
		}
	}
	for _, p := range privateInfoPatterns {
		for _, m := range p.FindAllString(response, -1) {
			if !f.safeEmails[strings.ToLower(m)] {
				issues = append(issues, entity.SafetyPrivateInfo)
				break
			}
		}
	}
	for _, p := range negativeSelfPatterns {
		if p.MatchString(response) {
			issues = append(issues, entity.SafetyNegativeSelf)
			break
		}
	}

	if len(issues) == 0 {
		return L8Result{Result: stage.Passed(StatusL8Safe)}
	}

	return L8Result{
		Result: stage.Blocked(StatusL8Unsafe, string(pkgerrors.CodeSafetyFailed),
			safeFallbackResponse, "fast_pattern_match"),
		Issues: issues,
	}
}

// safeFallbackResponse is returned to the visitor whenever L8 blocks a
// draft, matching get_safe_fallback_response in both variants.
const safeFallbackResponse = "Let me rephrase that. I'd be happy to tell you about Kellogg's professional background and projects. What would you like to know?"
