package prompts

import (
	"fmt"
	"strings"
)

// SummarySeparator splits the per-article summaries in a batched completion.
const SummarySeparator = "---SUMMARY_SEPARATOR---"

// SummarizerSystemPrompt sets the role for news summarization.
const SummarizerSystemPrompt = `You are a news editor. You write short, neutral, factual summaries of news articles.
Rules:
- 2 to 3 sentences per article, at most 60 words
- no opinions, no speculation, no marketing language
- never invent facts that are not in the article
- plain text only, no markdown, no bullet points`

// SummaryArticle is the input for one article in a batch prompt.
type SummaryArticle struct {
	Title   string
	Content string
}

// maxPromptContentRunes caps each article body inside the prompt.
const maxPromptContentRunes = 1500

// BuildSummaryBatchPrompt asks for one summary per article, in order,
// separated by SummarySeparator.
func BuildSummaryBatchPrompt(articles []SummaryArticle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize each of the following %d articles.\n", len(articles))
	fmt.Fprintf(&b, "Return exactly %d summaries in the same order, separated by a line containing only %s.\n", len(articles), SummarySeparator)
	b.WriteString("Do not number the summaries and do not repeat the titles.\n\n")

	for i, a := range articles {
		content := []rune(a.Content)
		if len(content) > maxPromptContentRunes {
			content = content[:maxPromptContentRunes]
		}
		fmt.Fprintf(&b, "Article %d\nTitle: %s\nContent: %s\n\n", i+1, a.Title, string(content))
	}
	return b.String()
}

// SplitSummaries parses a batched completion. It returns nil when the number
// of parts doesn't match want, since a miscount means summaries can't be
// attributed to articles.
func SplitSummaries(completion string, want int) []string {
	parts := strings.Split(completion, SummarySeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) != want {
		return nil
	}
	return out
}
