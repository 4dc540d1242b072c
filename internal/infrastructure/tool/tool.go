// Package tool implements the L6 tool-call loop: a small registry of tools
// the generator may invoke, a parser that extracts fenced ```tool_call```
// JSON blocks from generator output, and an executor that dispatches to a
// handler with a timeout. Grounded on the Python reference's
// tools/definitions.py and tools/executor.py, with the single handler
// (save-message) rewired onto the contact store package.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kellogg/sentrychat/internal/domain/entity"
)

// Parameter documents one argument a tool accepts, rendered into the
// system prompt's tool-catalog section.
type Parameter struct {
	Name        string
	Type        string // "string", "integer", "boolean"
	Description string
	Required    bool
}

// Definition is a tool's catalog entry: name, description, and parameters.
// Handlers are registered separately in the Executor so the catalog can be
// rendered without constructing an executor.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// PromptSection renders the definition into the "- **name**: ..." block
// format the generator's system prompt embeds, matching Tool.to_prompt_format.
func (d Definition) PromptSection() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- **%s**: %s\n  Parameters:\n", d.Name, d.Description)
	if len(d.Parameters) == 0 {
		b.WriteString("    (no parameters)\n")
		return strings.TrimRight(b.String(), "\n")
	}
	for _, p := range d.Parameters {
		req := "optional"
		if p.Required {
			req = "required"
		}
		fmt.Fprintf(&b, "    - %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SaveMessageTool is the one concrete tool this pipeline ships: it lets the
// generator hand off a visitor's message to the contact store.
var SaveMessageTool = Definition{
	Name:        "save_message_for_contact",
	Description: "Save a message from the visitor for the site owner to read later. Use this when a visitor explicitly wants to leave a message, send feedback, or make contact directly. Always confirm with the visitor what message they want to send before calling this tool.",
	Parameters: []Parameter{
		{Name: "message", Type: "string", Description: "The message content the visitor wants to send", Required: true},
		{Name: "visitor_name", Type: "string", Description: "The visitor's name if they provided it", Required: false},
		{Name: "visitor_email", Type: "string", Description: "The visitor's email if they provided it for follow-up", Required: false},
	},
}

// PromptSection renders the full tool-catalog section for the system
// prompt, including the worked example the reference prompt relies on to
// get models to reliably emit the fenced block.
func PromptSection(defs []Definition) string {
	if len(defs) == 0 {
		return ""
	}
	var sections []string
	for _, d := range defs {
		sections = append(sections, d.PromptSection())
	}
	return fmt.Sprintf(`
## TOOLS - READ CAREFULLY

When a visitor wants to make contact or leave a message, you MUST output this exact block:

`+"```tool_call\n"+`{"tool": "save_message_for_contact", "parameters": {"message": "MESSAGE_HERE", "visitor_name": "NAME_HERE", "visitor_email": "EMAIL_HERE"}}
`+"```"+`

This is the ONLY way to actually save messages. If you don't output this block, the message is NOT saved.

WHEN TO USE IT:
- Visitor says "send", "yes", "please send", "send it", "submit", "forward", or similar confirmation
- Visitor asks to leave a message, make contact, or provide feedback
- Do not keep asking for confirmation once they have said yes

%s
`, strings.Join(sections, "\n\n"))
}

// toolCallPattern matches a ```tool_call\n{...}\n``` fenced block.
var toolCallPattern = regexp.MustCompile("(?s)```tool_call\\s*\\n?\\s*(\\{.*?\\})\\s*\\n?```")

// ParseToolCalls extracts every well-formed tool call from a generator
// response, skipping blocks with invalid JSON or an unregistered tool name
// the same way the Python reference logs and skips rather than erroring.
func ParseToolCalls(response string, known map[string]bool) []entity.ToolCall {
	matches := toolCallPattern.FindAllStringSubmatch(response, -1)
	var calls []entity.ToolCall
	for _, m := range matches {
		var payload struct {
			Tool       string                 `json:"tool"`
			Parameters map[string]interface{} `json:"parameters"`
		}
		if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
			continue
		}
		if payload.Tool == "" || !known[payload.Tool] {
			continue
		}
		calls = append(calls, entity.ToolCall{Tool: payload.Tool, Parameters: payload.Parameters, RawMatch: m[0]})
	}
	return calls
}

// HasToolCalls reports whether response contains at least one fenced block.
func HasToolCalls(response string) bool {
	return toolCallPattern.MatchString(response)
}

// StripToolCalls removes every fenced tool_call block from response,
// leaving the surrounding conversational text the visitor actually sees.
func StripToolCalls(response string) string {
	return strings.TrimSpace(toolCallPattern.ReplaceAllString(response, ""))
}

// Handler executes one tool call and returns its result.
type Handler func(ctx context.Context, params map[string]interface{}) entity.ToolResult

// Executor dispatches parsed tool calls to registered handlers under a
// per-call timeout, matching §4.7's serial, bounded execution.
type Executor struct {
	handlers map[string]Handler
	timeout  time.Duration
}

func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{handlers: make(map[string]Handler), timeout: timeout}
}

// Register adds a handler for a tool name, overwriting any prior handler
// for the same name.
func (e *Executor) Register(name string, h Handler) {
	e.handlers[name] = h
}

// Known returns the set of registered tool names, used by ParseToolCalls to
// reject calls to tools this executor cannot run.
func (e *Executor) Known() map[string]bool {
	known := make(map[string]bool, len(e.handlers))
	for name := range e.handlers {
		known[name] = true
	}
	return known
}

// Execute runs a single tool call, applying the executor's timeout and
// recovering a handler panic into a failed ToolResult rather than crashing
// the request goroutine.
func (e *Executor) Execute(ctx context.Context, call entity.ToolCall) (result entity.ToolResult) {
	handler, ok := e.handlers[call.Tool]
	if !ok {
		return entity.ToolResult{Success: false, Tool: call.Tool, Result: fmt.Sprintf("Unknown tool: %s", call.Tool)}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = entity.ToolResult{Success: false, Tool: call.Tool, Result: fmt.Sprintf("tool panicked: %v", r)}
		}
	}()

	return handler(ctx, call.Parameters)
}

// ExecuteAll runs every call serially, matching the reference's
// execute_all, and is what L6's orchestration loop invokes between
// generator turns.
func (e *Executor) ExecuteAll(ctx context.Context, calls []entity.ToolCall) []entity.ToolResult {
	results := make([]entity.ToolResult, 0, len(calls))
	for _, c := range calls {
		results = append(results, e.Execute(ctx, c))
	}
	return results
}

// FormatResultsForPrompt renders tool results into the follow-up prompt
// block the generator sees on its re-invocation, matching
// format_tool_results_for_ai.
func FormatResultsForPrompt(results []entity.ToolResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("TOOL RESULTS:\n")
	for _, r := range results {
		status := "SUCCESS"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "- %s [%s]: %s\n", r.Tool, status, r.Result)
	}
	b.WriteString("\nNow respond to the visitor based on these tool results. Be natural and conversational.")
	return b.String()
}
