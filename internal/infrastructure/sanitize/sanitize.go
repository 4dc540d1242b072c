// Package sanitize implements L1, the deterministic input sanitizer that
// runs before any LLM is consulted: length checks, Unicode normalization,
// homoglyph folding, invisible/control character stripping, HTML tag
// removal, whitespace collapsing, and a blocked-pattern regex table,
// grounded on the Python reference's Layer1Sanitizer (original_source
// pipeline/layer1_sanitize.go) but expressed with the ecosystem libraries
// named in the domain stack: golang.org/x/text/unicode/norm for NFKC and
// microcosm-cc/bluemonday for tag stripping, in place of the original's
// hand-rolled regex tag strip.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	pkgerrors "github.com/kellogg/sentrychat/pkg/errors"
)

const stageName = "L1"

// Status is L1's closed set of outcomes.
type Status string

const (
	StatusPassed        Status = "passed"
	StatusEmptyInput     Status = "empty_input"
	StatusInputTooLong   Status = "input_too_long"
	StatusBlockedPattern Status = "blocked_pattern"
)

// Result is L1's outcome: the sanitized text on success, or a classified
// error on rejection.
type Result struct {
	Status          Status
	Passed          bool
	SanitizedInput  string
	OriginalLength  int
	SanitizedLength int
	BlockedPattern  string
	Err             *pkgerrors.PipelineError
}

var invisibleChars = regexp.MustCompile(`[\x{200b}-\x{200f}\x{2028}-\x{202f}\x{2060}-\x{206f}\x{feff}\x{00ad}]`)
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
var multipleWhitespace = regexp.MustCompile(`[ \t]+`)
var multipleNewlines = regexp.MustCompile(`\n{3,}`)

// blockedPattern pairs a compiled regex with the audit reason tag it
// represents; matching order follows the Python reference so the same
// input blocks on the same reason in both implementations.
type blockedPattern struct {
	re     *regexp.Regexp
	reason string
}

var defaultBlockedPatterns = compilePatterns([]struct {
	pattern string
	reason  string
}{
	{`(?i)ignore\s+(all\s+)?previous\s+instructions?`, "instruction_override"},
	{`(?i)disregard\s+(all\s+)?previous\s+instructions?`, "instruction_override"},
	{`(?i)forget\s+(all\s+)?previous\s+instructions?`, "instruction_override"},
	{`(?i)system\s+prompt`, "prompt_extraction"},
	{`(?i)reveal\s+your\s+(instructions?|prompt|rules)`, "prompt_extraction"},
	{`(?i)show\s+me\s+your\s+(instructions?|prompt|rules)`, "prompt_extraction"},
	{`(?i)what\s+(are|is)\s+your\s+(instructions?|prompt|rules|system)`, "prompt_extraction"},
	{`(?i)you\s+are\s+now\s+(a|an|in)\s+`, "roleplay_attack"},
	{`(?i)pretend\s+(to\s+be|you\s+are)`, "roleplay_attack"},
	{`(?i)act\s+as\s+(if\s+you\s+(are|were)|a|an)\s+`, "roleplay_attack"},
	{`(?i)DAN\s+mode`, "roleplay_attack"},
	{`(?i)developer\s+mode`, "roleplay_attack"},
	{`(?i)jailbreak`, "explicit_jailbreak"},
	{`(?i)bypass\s+(your\s+)?(safety|restrictions?|rules?|filters?)`, "explicit_jailbreak"},
	{`(?i)override\s+(your\s+)?(safety|restrictions?|rules?)`, "explicit_jailbreak"},
	{`(?i)disable\s+(your\s+)?(safety|restrictions?|rules?)`, "explicit_jailbreak"},
	{`(?i)base64[:\s]`, "encoding_trick"},
	{`(?i)decode\s+this[:\s]`, "encoding_trick"},
	{`(?i)rot13[:\s]`, "encoding_trick"},
	// a prompt asking the model to disclose its own layer/stage labels is a
	// distinct reason tag from generic prompt extraction.
	{`(?i)(which|what)\s+(layer|stage|step)\s+(are\s+you|is\s+this)`, "layer_label_leakage"},
})

func compilePatterns(raw []struct {
	pattern string
	reason  string
}) []blockedPattern {
	out := make([]blockedPattern, 0, len(raw))
	for _, p := range raw {
		out = append(out, blockedPattern{re: regexp.MustCompile(p.pattern), reason: p.reason})
	}
	return out
}

// homoglyphs maps common Unicode confusables (Cyrillic/Greek lookalikes) to
// their Latin equivalent so an attacker cannot dodge the blocked-pattern
// table by substituting visually identical characters.
var homoglyphs = map[rune]rune{
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y', 'х': 'x', 'і': 'i', 'ј': 'j', 'ѕ': 's',
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H', 'О': 'O', 'Р': 'P', 'С': 'C', 'Т': 'T', 'Х': 'X',
	'α': 'a', 'ε': 'e', 'ι': 'i', 'ο': 'o', 'ρ': 'p', 'υ': 'u', 'χ': 'x',
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y', 'Ζ': 'Z',
}

// Sanitizer is the L1 façade. It holds no mutable state after construction,
// so a single instance is safe to share across request goroutines.
type Sanitizer struct {
	maxLength int
	patterns  []blockedPattern
	tagStrip  *bluemonday.Policy
}

// New builds a Sanitizer. extraPatterns lets deployments append additional
// blocked-pattern/reason pairs without forking the default table.
func New(maxLength int, extraPatterns ...[2]string) *Sanitizer {
	patterns := append([]blockedPattern(nil), defaultBlockedPatterns...)
	for _, p := range extraPatterns {
		patterns = append(patterns, blockedPattern{re: regexp.MustCompile(p[0]), reason: p[1]})
	}
	return &Sanitizer{
		maxLength: maxLength,
		patterns:  patterns,
		tagStrip:  bluemonday.StrictPolicy(),
	}
}

// Sanitize runs the full L1 pipeline against raw user input, in the order
// the Python reference applies its steps: length gate, NFKC normalization,
// homoglyph folding, invisible/control stripping, tag stripping, whitespace
// collapsing, then the blocked-pattern scan.
func (s *Sanitizer) Sanitize(input string) Result {
	originalLength := len([]rune(input))

	if strings.TrimSpace(input) == "" {
		return Result{
			Status: StatusEmptyInput, Passed: false, OriginalLength: originalLength,
			Err: pkgerrors.NewEmptyInput(stageName, "Please enter a message."),
		}
	}

	if originalLength > s.maxLength {
		return Result{
			Status: StatusInputTooLong, Passed: false, OriginalLength: originalLength,
			Err: pkgerrors.New(stageName, pkgerrors.CodeInputTooLong, "Your message is too long."),
		}
	}

	text := norm.NFKC.String(input)
	text = foldHomoglyphs(text)
	text = invisibleChars.ReplaceAllString(text, "")
	text = controlChars.ReplaceAllString(text, "")
	text = s.tagStrip.Sanitize(text)
	text = multipleWhitespace.ReplaceAllString(text, " ")
	text = multipleNewlines.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if text == "" {
		return Result{
			Status: StatusEmptyInput, Passed: false, OriginalLength: originalLength,
			Err: pkgerrors.NewEmptyInput(stageName, "Please enter a valid message."),
		}
	}

	for _, p := range s.patterns {
		if p.re.MatchString(text) {
			return Result{
				Status: StatusBlockedPattern, Passed: false,
				OriginalLength: originalLength, SanitizedLength: len([]rune(text)),
				BlockedPattern: p.reason,
				Err: pkgerrors.NewBlockedPattern(stageName,
					"I can only answer questions about Kellogg's professional background and projects.",
					p.reason),
			}
		}
	}

	sanitizedLength := len([]rune(text))
	if sanitizedLength > s.maxLength {
		return Result{
			Status: StatusInputTooLong, Passed: false,
			OriginalLength: originalLength, SanitizedLength: sanitizedLength,
			Err: pkgerrors.New(stageName, pkgerrors.CodeInputTooLong, "Your message is too long."),
		}
	}

	return Result{
		Status: StatusPassed, Passed: true,
		SanitizedInput:  text,
		OriginalLength:  originalLength,
		SanitizedLength: sanitizedLength,
	}
}

func foldHomoglyphs(s string) string {
	return strings.Map(func(r rune) rune {
		if repl, ok := homoglyphs[r]; ok {
			return repl
		}
		return r
	}, s)
}
