package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passages(scores ...float64) []schema.RetrievedPassage {
	out := make([]schema.RetrievedPassage, len(scores))
	for i, s := range scores {
		out[i] = schema.RetrievedPassage{
			Chunk: schema.Chunk{ID: fmt.Sprintf("c%d", i), DocumentID: "doc", Sequence: i, Text: fmt.Sprintf("passage %d", i), Locator: i + 1},
			Score: s,
		}
	}
	return out
}

func f(v float64) *float64 { return &v }

func TestConfidence(t *testing.T) {
	ps := passages(0.9, 0.7, 0.5, 0.3)

	assert.InDelta(t, 0.85, Confidence(f(0.8), []int{1}, ps, false, 0.3), 1e-9)
	assert.InDelta(t, 0.8, Confidence(nil, []int{1, 2}, ps, false, 0.3), 1e-9)
	assert.InDelta(t, 0.7, Confidence(nil, []int{9, 0}, ps, false, 0.3), 1e-9, "invalid citations fall back to the top three")
	assert.InDelta(t, 0.95, Confidence(f(1), []int{1}, passages(1), false, 0.3), 1e-9)
	assert.InDelta(t, 0.425, Confidence(f(0.8), []int{1}, ps, true, 0.3), 1e-9)
	assert.InDelta(t, 0.1, Confidence(f(0), []int{4}, passages(0.1), true, 0.3), 1e-9)

	assert.Equal(t, 0.0, Confidence(nil, nil, nil, false, 0.3))
	assert.InDelta(t, 0.3, Confidence(f(0.9), nil, nil, false, 0.3), 1e-9)
	assert.InDelta(t, 0.2, Confidence(f(0.4), nil, nil, true, 0.3), 1e-9)
}

func TestAnswerWithoutPassagesSkipsGeneration(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"answer":"made up"}`}
	qa := NewQAPipeline(gen, SynthesisOptions{}, nil)

	answer, err := qa.Run(context.Background(), models.Credential{}, AnswerRequest{Question: "what font?"})
	require.NoError(t, err)
	assert.Equal(t, 0, gen.calls())
	assert.True(t, answer.NoEvidence)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.Contains(t, answer.Text, "couldn't find relevant information")
	assert.Empty(t, answer.Passages)
}

func TestAnswerWithoutEvidenceWhenEnabled(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"answer":"The playbook does not say.","confidence":0.9,"insufficient_evidence":false}`}
	qa := NewQAPipeline(gen, SynthesisOptions{AnswerWithoutEvidence: true, NoEvidenceCeiling: 0.3}, nil)

	answer, err := qa.Run(context.Background(), models.Credential{}, AnswerRequest{Question: "what font?"})
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls())
	assert.True(t, answer.NoEvidence)
	assert.LessOrEqual(t, answer.Confidence, 0.3)
	assert.Contains(t, gen.reqs[0].Content[0].Text(), "No passages")
}

func TestAnswerParsesStructuredReply(t *testing.T) {
	gen := &scriptedGenerator{
		reply: "```json\n" + `{"answer":"Use 2x the logo height.","confidence":"0.8","cited_passages":[1,"2"],"insufficient_evidence":false,"follow_up_questions":["What about favicons?"]}` + "\n```",
		usage: models.TokenUsage{PromptTokens: 100, CompletionTokens: 20},
	}
	qa := NewQAPipeline(gen, SynthesisOptions{HistoryTurns: 6, MaxFollowUps: 3}, nil)

	answer, err := qa.Run(context.Background(), models.Credential{}, AnswerRequest{Question: "clear space?", Passages: passages(0.9, 0.7)})
	require.NoError(t, err)
	assert.Equal(t, "Use 2x the logo height.", answer.Text)
	assert.InDelta(t, 0.8, answer.Confidence, 1e-9)
	assert.Empty(t, answer.FollowUps, "follow-ups only when incomplete or requested")
	assert.Equal(t, 120, answer.Usage.Total())
	assert.Len(t, answer.Passages, 2)
	assert.True(t, gen.reqs[0].JSONResponse)
	assert.Contains(t, gen.reqs[0].Content[0].Text(), "[2] (section, page/slide 2)")
}

func TestAnswerFollowUps(t *testing.T) {
	reply := `{"answer":"Partly covered.","confidence":0.6,"cited_passages":[1],"insufficient_evidence":true,
		"follow_up_questions":["One?"," one? ","Two?","","Three?","Four?"]}`
	qa := NewQAPipeline(&scriptedGenerator{reply: reply}, SynthesisOptions{MaxFollowUps: 3}, nil)

	answer, err := qa.Run(context.Background(), models.Credential{}, AnswerRequest{Question: "q", Passages: passages(0.8)})
	require.NoError(t, err)
	assert.True(t, answer.Incomplete)
	assert.Equal(t, []string{"One?", "Two?", "Three?"}, answer.FollowUps)

	complete := `{"answer":"Done.","confidence":0.9,"follow_up_questions":["More?"]}`
	qa = NewQAPipeline(&scriptedGenerator{reply: complete}, SynthesisOptions{}, nil)
	answer, err = qa.Run(context.Background(), models.Credential{}, AnswerRequest{Question: "q", Passages: passages(0.8), WantFollowUps: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"More?"}, answer.FollowUps)
}

func TestAnswerMalformedOutputFallsBack(t *testing.T) {
	qa := NewQAPipeline(&scriptedGenerator{reply: "  The clear space is 2x.  "}, SynthesisOptions{}, nil)
	answer, err := qa.Run(context.Background(), models.Credential{}, AnswerRequest{Question: "q", Passages: passages(0.9)})
	require.NoError(t, err)
	assert.Equal(t, "The clear space is 2x.", answer.Text)
	assert.Equal(t, 0.0, answer.Confidence)
	assert.True(t, answer.Malformed)
	assert.Empty(t, answer.FollowUps)
}

func TestAnswerKeepsRecentHistoryOnly(t *testing.T) {
	gen := &scriptedGenerator{reply: `{"answer":"ok","confidence":0.5}`}
	qa := NewQAPipeline(gen, SynthesisOptions{HistoryTurns: 6}, nil)

	var history []schema.ConversationTurn
	for i := 0; i < 10; i++ {
		role := schema.RoleUser
		if i%2 == 1 {
			role = schema.RoleAssistant
		}
		history = append(history, schema.ConversationTurn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	_, err := qa.Run(context.Background(), models.Credential{}, AnswerRequest{Question: "q", Passages: passages(0.9), History: history})
	require.NoError(t, err)

	content := gen.reqs[0].Content
	require.Len(t, content, 7)
	assert.Equal(t, "turn 4", content[0].Text())
	assert.Equal(t, models.SpeakerUser, content[0].Role)
	assert.Equal(t, models.SpeakerAssistant, content[1].Role)
	assert.Contains(t, content[6].Text(), "Question: q")
}

func TestAnswerGenerationUnavailableKeepsQuestion(t *testing.T) {
	gen := &scriptedGenerator{err: ragerr.New(ragerr.KindGenerationUnavailable, "generate", errors.New("503")), usage: models.TokenUsage{PromptTokens: 50, Estimated: true}}
	qa := NewQAPipeline(gen, SynthesisOptions{}, nil)

	answer, err := qa.Run(context.Background(), models.Credential{}, AnswerRequest{Question: "what colors?", Passages: passages(0.9)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ragerr.ErrGenerationUnavailable))
	assert.True(t, ragerr.IsRetryable(err))
	assert.Equal(t, "what colors?", ragerr.QuestionOf(err))
	assert.Equal(t, 50, answer.Usage.PromptTokens)
}

func TestSummarize(t *testing.T) {
	gen := &scriptedGenerator{reply: "  A synopsis.  "}
	qa := NewQAPipeline(gen, SynthesisOptions{SummaryMaxChunks: 3}, nil)

	var chunks []schema.Chunk
	for i := 0; i < 9; i++ {
		chunks = append(chunks, schema.Chunk{Sequence: i, Text: fmt.Sprintf("chunk-%d", i)})
	}
	summary, _, err := qa.Summarize(context.Background(), models.Credential{}, chunks)
	require.NoError(t, err)
	assert.Equal(t, "A synopsis.", summary)
	prompt := gen.reqs[0].Content[0].Text()
	assert.Contains(t, prompt, "chunk-0")
	assert.Contains(t, prompt, "chunk-3")
	assert.Contains(t, prompt, "chunk-6")
	assert.NotContains(t, prompt, "chunk-1\n")

	_, _, err = qa.Summarize(context.Background(), models.Credential{}, nil)
	assert.True(t, errors.Is(err, ragerr.ErrNotFound))
}

func TestRecentTurns(t *testing.T) {
	turns := []schema.ConversationTurn{{Content: "a"}, {Content: " "}, {Content: "b"}, {Content: "c"}}
	assert.Len(t, RecentTurns(turns, 2), 2)
	assert.Equal(t, "b", RecentTurns(turns, 2)[0].Content)
	assert.Empty(t, RecentTurns(turns, 0))
}
