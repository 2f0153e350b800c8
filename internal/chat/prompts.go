package chat

import (
	"fmt"
	"strings"

	"github.com/studybuddy/backend/internal/store"
	"github.com/studybuddy/backend/internal/vectorstore"
)

const promptPreamble = `You are StudyBuddy, an enthusiastic and engaging AI tutor. Your goal is to make learning fun and memorable for students.

Please format your response to be visually appealing and student-friendly:
- Use **bold** for key concepts and important terms
- Use ## for main topics and ### for subtopics
- Use bullet points for lists
- Keep explanations clear but engaging
- Break complex topics into digestible chunks`

// buildPrompt assembles the hybrid context prompt. Sections appear in a fixed
// order when present: conversation summary, recent history, document
// excerpts, then the question. With no context at all it falls back to a
// general-knowledge template.
func buildPrompt(query, summary string, history []store.Message, chunks []vectorstore.Match) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n")

	hasContext := false

	if summary != "" {
		hasContext = true
		b.WriteString("\nSummary of the conversation so far:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}

	if len(history) > 0 {
		hasContext = true
		b.WriteString("\nRecent conversation (most recent first):\n")
		b.WriteString(renderHistory(history))
	}

	if len(chunks) > 0 {
		hasContext = true
		b.WriteString("\nContext from the student's documents:\n")
		for _, chunk := range chunks {
			fmt.Fprintf(&b, "Page %d:\n%s\n\n", chunk.Page, chunk.Text)
		}
	}

	if !hasContext {
		b.WriteString("\nThe student hasn't uploaded relevant documents for this question, so provide an engaging educational answer using your general knowledge. Use analogies and examples when helpful.\n")
	}

	b.WriteString("\nQuestion:\n")
	b.WriteString(query)
	b.WriteString("\n")

	if len(chunks) > 0 {
		b.WriteString("\nAnswer based on the document context above, weighting the most recent conversation turns highest, and feel free to add relevant general knowledge if helpful.")
	} else {
		b.WriteString("\nProvide a clear, engaging and encouraging educational answer.")
	}
	return b.String()
}

// renderHistory tags each recalled message with an explicit recency marker so
// the model can weight freshness. Newest turn first.
func renderHistory(history []store.Message) string {
	var b strings.Builder
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		rank := len(history) - i
		speaker := "Student"
		if msg.Role == store.RoleAssistant {
			speaker = "StudyBuddy"
		}
		if rank == 1 {
			fmt.Fprintf(&b, "[%d - most recent] %s: %s\n", rank, speaker, msg.Content)
		} else {
			fmt.Fprintf(&b, "[%d] %s: %s\n", rank, speaker, msg.Content)
		}
	}
	return b.String()
}
