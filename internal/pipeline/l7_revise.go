package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kellogg/sentrychat/internal/domain/stage"
	"github.com/kellogg/sentrychat/internal/infrastructure/llm"
)

// revisionSystemPrompt mirrors Layer7Reviser.DEFAULT_SYSTEM_PROMPT (§4.8): a
// self-critique pass checking accuracy, tone, completeness, and formatting.
const revisionSystemPrompt = `You are a quality checker for a portfolio chat representing Kellogg.

Review the response below and check for these issues:

1. ACCURACY: Does the response only contain information from the provided context? Flag any claims not supported by context.
2. TONE: Is the tone professional yet friendly? Should sound like a real person, not a corporate bot.
3. COMPLETENESS: Does the response address the user's question? Is anything important missing?
4. FORMATTING: Is markdown used appropriately? Are there formatting issues?
5. LENGTH: Is the response appropriately sized? Not too short (unhelpful) or too long (rambling)?

If the response is good, respond with just: {"needs_revision": false}

If the response needs improvement, respond with:
{"needs_revision": true, "issues": ["list of specific issues"], "revised_response": "the improved response"}`

type revisionResponse struct {
	NeedsRevision   bool     `json:"needs_revision"`
	Issues          []string `json:"issues"`
	RevisedResponse string   `json:"revised_response"`
}

// Reviser is L7: a self-critique pass over a generated response, skipped for
// short responses to save latency (§4.8). Grounded on layer7_revise.py.
type Reviser struct {
	client           llm.Client
	model            string
	minLengthToRun   int
	minLengthToAccept int
}

func NewReviser(client llm.Client, model string, minLengthToRun, minLengthToAccept int) *Reviser {
	if minLengthToRun <= 0 {
		minLengthToRun = 200
	}
	if minLengthToAccept <= 0 {
		minLengthToAccept = 50
	}
	return &Reviser{client: client, model: model, minLengthToRun: minLengthToRun, minLengthToAccept: minLengthToAccept}
}

func formatRevisionRequest(response, contextBlob, originalQuestion string) string {
	truncatedContext := contextBlob
	if len(truncatedContext) > 2000 {
		truncatedContext = truncatedContext[:2000]
	}
	return fmt.Sprintf("ORIGINAL QUESTION:\n%s\n\nCONTEXT PROVIDED:\n```\n%s\n```\n\nRESPONSE TO REVIEW:\n```\n%s\n```\n\nReview the response and check for issues. Output JSON only.",
		originalQuestion, truncatedContext, response)
}

// Revise reviews response and returns either the original (skip/pass/error)
// or a revised draft. Revision errors never block the request: the original
// response passes through unchanged (§4.8).
func (r *Reviser) Revise(ctx context.Context, response, contextBlob, originalQuestion string) L7Result {
	if len(response) < r.minLengthToRun {
		return L7Result{
			Result:        stage.Passed(StatusL7Skipped),
			Response:      response,
			RevisionNotes: "Response too short for revision",
		}
	}

	var resp revisionResponse
	err := r.client.ChatJSON(ctx, llm.ChatRequest{
		Model: r.model,
		Messages: []llm.Message{
			{Role: "system", Content: revisionSystemPrompt},
			{Role: "user", Content: formatRevisionRequest(response, contextBlob, originalQuestion)},
		},
	}, &resp)
	if err != nil {
		return L7Result{Result: stage.Passed(StatusL7Error), Response: response, RevisionNotes: err.Error()}
	}

	if !resp.NeedsRevision {
		return L7Result{Result: stage.Passed(StatusL7Passed), Response: response}
	}

	if resp.RevisedResponse != "" && len(resp.RevisedResponse) > r.minLengthToAccept {
		return L7Result{
			Result:        stage.Passed(StatusL7Revised),
			Response:      resp.RevisedResponse,
			WasRevised:    true,
			RevisionNotes: strings.Join(resp.Issues, ", "),
		}
	}

	return L7Result{
		Result:        stage.Passed(StatusL7Passed),
		Response:      response,
		RevisionNotes: "Revision produced invalid response",
	}
}
