// Package gen turns natural-language task descriptions into executable
// source text by calling a generative model endpoint.
package gen

import (
	"context"
	"fmt"
	"strings"
)

// Prompt is one generation request. PriorCode and PriorError are set only
// on repair attempts; when present the model is asked to fix that specific
// failure instead of starting over.
type Prompt struct {
	Task       string
	PriorCode  string
	PriorError string
}

// Generator produces a single directly-executable code string per call.
// Implementations keep no state between calls; retry policy belongs to the
// caller.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// IsRepair reports whether this prompt carries failure context from a
// previous attempt.
func (p Prompt) IsRepair() bool {
	return p.PriorCode != "" || p.PriorError != ""
}

const instructionHeader = `Generate Python code for the following task: %s

Requirements:
- Return only executable Python code without any explanations
- Do NOT include markdown fences or triple backticks
- Make sure the code is complete and runnable
- Include necessary imports
- Add a main execution block if needed
- Handle potential errors gracefully`

// buildInstruction renders the fixed generation template. Given identical
// inputs the output is identical; only the variable fields differ between
// calls.
func buildInstruction(p Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, instructionHeader, p.Task)
	if p.IsRepair() {
		b.WriteString("\n\nThe previous attempt was:\n")
		b.WriteString(p.PriorCode)
		b.WriteString("\n\nIt failed with this error:\n")
		b.WriteString(p.PriorError)
		b.WriteString("\n\nFix this specific failure in the new code. Do not start over from scratch.")
	}
	return b.String()
}

// stripFences removes markdown decoration from a raw model reply so the
// returned value is directly executable. It prefers the first fenced block
// that yields non-empty code and drops a leading language tag line; when no
// block yields code it falls back to stripping the markers in place.
func stripFences(text string) string {
	txt := strings.TrimSpace(text)
	if !strings.Contains(txt, "```") {
		return txt
	}
	parts := strings.Split(txt, "```")
	for i := 1; i < len(parts); i += 2 {
		lines := strings.Split(parts[i], "\n")
		if len(lines) > 0 && strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[0])), "py") {
			lines = lines[1:]
		}
		code := strings.TrimSpace(strings.Join(lines, "\n"))
		if code != "" {
			return code
		}
	}
	txt = strings.ReplaceAll(txt, "```python", "")
	txt = strings.ReplaceAll(txt, "```", "")
	return strings.TrimSpace(txt)
}
