package pipeline

import (
	"fmt"
	"strings"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/schema"
)

const answerSystemPrompt = `You are a brand guidelines expert assistant. You answer questions about brand playbooks.

Rules:
1. Answer ONLY from the numbered passages supplied with the question. Never use outside knowledge.
2. If the passages do not contain the answer, say clearly that the playbook does not cover it and set "insufficient_evidence" to true.
3. Quote the playbook's own wording and values (colors, sizes, ratios) when they answer the question.
4. Be specific and actionable.

Reply with a single JSON object and nothing else:
{
  "answer": string,
  "confidence": number between 0 and 1, your certainty that the answer is fully supported,
  "cited_passages": array of the passage numbers you used,
  "insufficient_evidence": boolean,
  "follow_up_questions": array of up to %d short questions the user could ask next
}`

const summarySystemPrompt = `You summarize brand playbooks. Using only the excerpts provided, write a condensed synopsis
that covers every major section in document order: brand purpose and voice, visual identity
(logo, color, typography, imagery), usage rules and any do/don't lists. Keep concrete values.
Reply with plain prose of at most %d words.`

// noEvidenceAnswer is returned verbatim when retrieval found nothing usable.
const noEvidenceAnswer = "I couldn't find relevant information in the brand playbook to answer your question."

// buildAnswerRequest assembles the generation request: the system instruction, the
// most recent history turns, then one user message holding the passages and the question.
func buildAnswerRequest(question string, passages []schema.RetrievedPassage, history []schema.ConversationTurn, historyTurns, maxFollowUps int, wantFollowUps bool) models.GenerateContentRequest {
	req := models.GenerateContentRequest{
		System:       fmt.Sprintf(answerSystemPrompt, maxFollowUps),
		JSONResponse: true,
	}
	for _, turn := range RecentTurns(history, historyTurns) {
		role := models.SpeakerUser
		if turn.Role == schema.RoleAssistant {
			role = models.SpeakerAssistant
		}
		req.Content = append(req.Content, models.TextContent(role, turn.Content))
	}

	var sb strings.Builder
	if len(passages) == 0 {
		sb.WriteString("No passages from the brand playbook matched this question.\n")
	} else {
		sb.WriteString("Passages from the brand playbook:\n")
		for i, p := range passages {
			fmt.Fprintf(&sb, "\n[%d] (%s)\n%s\n", i+1, locatorLabel(p.Chunk), p.Text)
		}
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\n", question)
	if wantFollowUps {
		fmt.Fprintf(&sb, "Include up to %d follow-up questions.\n", maxFollowUps)
	} else {
		sb.WriteString("Only include follow-up questions if the passages leave the answer incomplete.\n")
	}
	req.Content = append(req.Content, models.TextContent(models.SpeakerUser, sb.String()))
	return req
}

// buildSummaryRequest asks for a synopsis of the given chunks in sequence order.
func buildSummaryRequest(chunks []schema.Chunk, maxWords int) models.GenerateContentRequest {
	var sb strings.Builder
	sb.WriteString("Playbook excerpts in document order:\n")
	for _, c := range chunks {
		fmt.Fprintf(&sb, "\n(%s)\n%s\n", locatorLabel(c), c.Text)
	}
	sb.WriteString("\nWrite the synopsis now.")
	return models.GenerateContentRequest{
		System:  fmt.Sprintf(summarySystemPrompt, maxWords),
		Content: []models.Content{models.TextContent(models.SpeakerUser, sb.String())},
	}
}

// RecentTurns keeps the last n turns. Older turns are dropped, not summarized.
func RecentTurns(history []schema.ConversationTurn, n int) []schema.ConversationTurn {
	var turns []schema.ConversationTurn
	for _, t := range history {
		if strings.TrimSpace(t.Content) != "" {
			turns = append(turns, t)
		}
	}
	if n >= 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

func locatorLabel(c schema.Chunk) string {
	label := "section"
	switch c.Kind {
	case schema.KindTable:
		label = "table"
	case schema.KindSlideNote:
		label = "speaker notes"
	}
	if c.Locator > 0 {
		return fmt.Sprintf("%s, page/slide %d", label, c.Locator)
	}
	return label
}
