package generate

import "fmt"

// System prompts per mode. The selected-text prompt is stricter: the
// reader pointed at a specific passage, so the answer must not drift
// into the rest of the book.
const (
	fullBookSystemPrompt = `You are an assistant answering questions about a book. ` +
		`Answer using ONLY the information in the provided context. ` +
		`Each context entry is labeled with its source location in the book. ` +
		`If the context does not contain the answer, say you could not find ` +
		`the answer in the book. Be concise and factual.`

	selectedTextSystemPrompt = `You are an assistant answering questions about a passage ` +
		`the reader selected from a book. Answer using ONLY the selected text below. ` +
		`Do not use outside knowledge. If the selected text does not contain the ` +
		`answer, say so plainly. Be concise and factual.`
)

// systemPrompt returns the system message for a mode.
func systemPrompt(mode Mode) string {
	if mode == ModeSelectedText {
		return selectedTextSystemPrompt
	}
	return fullBookSystemPrompt
}

// userPrompt formats the context and question into the user message.
func userPrompt(req Request) string {
	label := "Context"
	if req.Mode == ModeSelectedText {
		label = "Selected text"
	}
	return fmt.Sprintf("%s:\n%s\n\nQuestion: %s", label, req.Context, req.Question)
}
