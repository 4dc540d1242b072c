package pipeline

import (
	"github.com/kellogg/sentrychat/internal/domain/stage"
	"github.com/kellogg/sentrychat/internal/infrastructure/sanitize"
	pkgerrors "github.com/kellogg/sentrychat/pkg/errors"
)

// SanitizeStage is L1: the deterministic, model-free normalization and
// blocked-pattern filter (§4.3). It is a thin adapter over the sanitize
// package's pure function, translating its Result into the pipeline's
// shared stage.Result envelope.
type SanitizeStage struct {
	sanitizer *sanitize.Sanitizer
}

func NewSanitizeStage(s *sanitize.Sanitizer) *SanitizeStage {
	return &SanitizeStage{sanitizer: s}
}

// Sanitizer exposes the underlying deterministic sanitizer so non-pipeline
// callers (the HTTP /contact handler) can reuse L1's own normalization
// without going through the stage envelope meant for the chat path.
func (l *SanitizeStage) Sanitizer() *sanitize.Sanitizer { return l.sanitizer }

func (l *SanitizeStage) Run(input string) L1Result {
	r := l.sanitizer.Sanitize(input)

	if r.Passed {
		return L1Result{Result: stage.Passed(StatusL1Passed), SanitizedText: r.SanitizedInput}
	}

	switch r.Status {
	case sanitize.StatusEmptyInput:
		return L1Result{Result: stage.Blocked(StatusL1EmptyInput, string(pkgerrors.CodeInputTooLong),
			"Please enter a message.", "empty_input")}
	case sanitize.StatusInputTooLong:
		return L1Result{Result: stage.Blocked(StatusL1TooLong, string(pkgerrors.CodeInputTooLong),
			"Your message is a bit long. Could you shorten it?", "input_too_long")}
	case sanitize.StatusBlockedPattern:
		return L1Result{Result: stage.Blocked(StatusL1BlockedPattern, string(pkgerrors.CodeBlockedInput),
			"I can only answer questions about Kellogg's professional background and projects.", r.BlockedPattern)}
	default:
		return L1Result{Result: stage.Blocked(StatusL1BlockedPattern, string(pkgerrors.CodeInternal),
			"I'm having some technical difficulties. Please try again.", "unknown")}
	}
}
