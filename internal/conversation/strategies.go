package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/studybuddy/backend/provider"
)

// Classifier decides whether an exchange is worth folding into the session
// summary.
type Classifier interface {
	Classify(ctx context.Context, query, response string) (bool, error)
}

// Summarizer merges an exchange into the running session summary within a
// token budget, and can recompress an overgrown summary.
type Summarizer interface {
	Merge(ctx context.Context, summary, query, response string, tokenBudget int) (string, error)
	Compress(ctx context.Context, summary string, tokenBudget int) (string, error)
}

// Titler derives a short session title from the summary.
type Titler interface {
	Title(ctx context.Context, summary string) (string, error)
}

const classifierMaxTokens = 10

// LLMClassifier asks the model for a binary importance verdict. Only the
// exact label IMPORTANT counts as important.
type LLMClassifier struct {
	provider provider.Provider
}

func NewLLMClassifier(p provider.Provider) *LLMClassifier {
	return &LLMClassifier{provider: p}
}

func (c *LLMClassifier) Classify(ctx context.Context, query, response string) (bool, error) {
	prompt := fmt.Sprintf(`Decide if the following tutoring exchange contains educational content worth remembering for future sessions (concepts explained, questions about the study material, corrections). Greetings, thanks and small talk are not important.

Student: %s
Tutor: %s

Respond with exactly one word: IMPORTANT or NOT_IMPORTANT.`, query, response)

	verdict, err := c.provider.Generate(ctx, prompt, classifierMaxTokens)
	if err != nil {
		return false, fmt.Errorf("classifying exchange: %w", err)
	}
	return strings.TrimSpace(verdict) == "IMPORTANT", nil
}

// LLMSummarizer maintains the rolling summary through the completion model.
type LLMSummarizer struct {
	provider provider.Provider
}

func NewLLMSummarizer(p provider.Provider) *LLMSummarizer {
	return &LLMSummarizer{provider: p}
}

func (s *LLMSummarizer) Merge(ctx context.Context, summary, query, response string, tokenBudget int) (string, error) {
	var b strings.Builder
	b.WriteString("You maintain a running summary of a tutoring conversation. ")
	fmt.Fprintf(&b, "Update it with the new exchange below. Keep the topics studied, key concepts explained and the student's difficulties. Stay under %d tokens.\n\n", tokenBudget)
	if summary != "" {
		fmt.Fprintf(&b, "Current summary:\n%s\n\n", summary)
	}
	fmt.Fprintf(&b, "New exchange:\nStudent: %s\nTutor: %s\n\n", query, response)
	b.WriteString("Return only the updated summary.")

	merged, err := s.provider.Generate(ctx, b.String(), tokenBudget)
	if err != nil {
		return "", fmt.Errorf("merging summary: %w", err)
	}
	return strings.TrimSpace(merged), nil
}

func (s *LLMSummarizer) Compress(ctx context.Context, summary string, tokenBudget int) (string, error) {
	prompt := fmt.Sprintf(`Condense the following study-session summary. Preserve the topics studied and the key concepts, drop redundancy. Stay under %d tokens.

%s

Return only the condensed summary.`, tokenBudget, summary)

	compressed, err := s.provider.Generate(ctx, prompt, tokenBudget)
	if err != nil {
		return "", fmt.Errorf("compressing summary: %w", err)
	}
	return strings.TrimSpace(compressed), nil
}

const titleMaxTokens = 20

// LLMTitler names sessions after what was actually studied.
type LLMTitler struct {
	provider provider.Provider
}

func NewLLMTitler(p provider.Provider) *LLMTitler {
	return &LLMTitler{provider: p}
}

func (t *LLMTitler) Title(ctx context.Context, summary string) (string, error) {
	prompt := fmt.Sprintf(`Based on this study session summary, write a short descriptive title (at most 6 words) naming the subject studied. No quotes, no punctuation at the end.

%s`, summary)

	title, err := t.provider.Generate(ctx, prompt, titleMaxTokens)
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}
	return strings.Trim(strings.TrimSpace(title), `"`), nil
}
