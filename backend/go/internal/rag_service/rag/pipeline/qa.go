package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
	"brandbook/backend/go/pkg/logger"
)

// SynthesisOptions are the answer synthesis policy knobs.
type SynthesisOptions struct {
	HistoryTurns      int
	MaxFollowUps      int
	NoEvidenceCeiling float64
	// AnswerWithoutEvidence still calls the model when retrieval found nothing.
	AnswerWithoutEvidence bool
	SummaryMaxChunks      int
	SummaryMaxWords       int
}

// SynthesisOptionsFromConfig converts the retrieval section of the config.
func SynthesisOptionsFromConfig(cfg config.RetrievalConfig) SynthesisOptions {
	return SynthesisOptions{
		HistoryTurns:          cfg.HistoryTurns,
		MaxFollowUps:          cfg.MaxFollowUps,
		NoEvidenceCeiling:     cfg.NoEvidenceCeiling,
		AnswerWithoutEvidence: cfg.AnswerWithoutEvidence,
		SummaryMaxChunks:      cfg.SummaryMaxChunks,
	}
}

// AnswerRequest is the input of one answer synthesis.
type AnswerRequest struct {
	Question      string
	Passages      []schema.RetrievedPassage
	History       []schema.ConversationTurn
	WantFollowUps bool
}

// QAPipeline turns retrieved passages into an answer with a confidence score and
// follow-up questions, and writes document synopses.
type QAPipeline struct {
	gen  interfaces.Generator
	opts SynthesisOptions
	log  *logger.Logger
}

// NewQAPipeline creates a new QAPipeline.
func NewQAPipeline(gen interfaces.Generator, opts SynthesisOptions, log *logger.Logger) *QAPipeline {
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.MaxFollowUps <= 0 || opts.MaxFollowUps > 3 {
		opts.MaxFollowUps = 3
	}
	if opts.NoEvidenceCeiling <= 0 {
		opts.NoEvidenceCeiling = 0.3
	}
	if opts.SummaryMaxChunks <= 0 {
		opts.SummaryMaxChunks = 60
	}
	if opts.SummaryMaxWords <= 0 {
		opts.SummaryMaxWords = 250
	}
	if log == nil {
		log = logger.New("QAPipeline", "", "")
	}
	return &QAPipeline{gen: gen, opts: opts, log: log}
}

// NoEvidenceAnswer is the fixed reply used when no passage cleared the relevance threshold.
func NoEvidenceAnswer() schema.Answer {
	return schema.Answer{Text: noEvidenceAnswer, Confidence: 0, NoEvidence: true, Passages: []schema.RetrievedPassage{}, FollowUps: []string{}}
}

// Run answers req.Question from req.Passages. Generation failures come back as
// generation_unavailable errors carrying the question; the returned Answer still
// holds the usage spent on the attempt.
func (p *QAPipeline) Run(ctx context.Context, cred models.Credential, req AnswerRequest) (schema.Answer, error) {
	if len(req.Passages) == 0 && !p.opts.AnswerWithoutEvidence {
		p.log.Info("No evidence for question, returning the insufficient-information answer")
		return NoEvidenceAnswer(), nil
	}

	p.log.Info(fmt.Sprintf("Building prompt with %d passages and %d history turns", len(req.Passages), len(req.History)))
	genReq := buildAnswerRequest(req.Question, req.Passages, req.History, p.opts.HistoryTurns, p.opts.MaxFollowUps, req.WantFollowUps)

	raw, usage, err := p.gen.Generate(ctx, cred, genReq)
	if err != nil {
		p.log.Error(fmt.Sprintf("LLM failed to generate answer: %v", err))
		return schema.Answer{Usage: usage}, withQuestion(err, req.Question)
	}

	answer := schema.Answer{
		Passages:   nonNil(req.Passages),
		Usage:      usage,
		NoEvidence: len(req.Passages) == 0,
		FollowUps:  []string{},
	}

	reply, ok := parseReply(raw)
	if !ok {
		p.log.WithError(models.ErrorInfo{
			Message: "model output is not the expected JSON object",
			Kind:    string(ragerr.KindMalformedGenerationOutput),
		}).Warn("Falling back to raw model output")
		answer.Text = strings.TrimSpace(raw)
		answer.Malformed = true
		return answer, nil
	}

	answer.Text = reply.Answer
	answer.Incomplete = reply.Insufficient
	answer.Confidence = Confidence(reply.Confidence, reply.Cited, req.Passages, reply.Insufficient, p.opts.NoEvidenceCeiling)
	if reply.Insufficient || req.WantFollowUps {
		answer.FollowUps = cleanFollowUps(reply.FollowUps, p.opts.MaxFollowUps)
	}
	p.log.Info(fmt.Sprintf("Generated answer with confidence %.2f and %d follow-ups", answer.Confidence, len(answer.FollowUps)))
	return answer, nil
}

// Summarize writes a synopsis from chunks already ordered by sequence. Long
// documents are sampled evenly so every part of the document is represented.
func (p *QAPipeline) Summarize(ctx context.Context, cred models.Credential, chunks []schema.Chunk) (string, models.TokenUsage, error) {
	if len(chunks) == 0 {
		return "", models.TokenUsage{}, ragerr.Newf(ragerr.KindNotFound, "summarize", "document has no indexed content")
	}
	selected := sampleEvenly(chunks, p.opts.SummaryMaxChunks)
	p.log.Info(fmt.Sprintf("Summarizing %d of %d chunks", len(selected), len(chunks)))

	raw, usage, err := p.gen.Generate(ctx, cred, buildSummaryRequest(selected, p.opts.SummaryMaxWords))
	if err != nil {
		p.log.Error(fmt.Sprintf("LLM failed to generate summary: %v", err))
		return "", usage, err
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", usage, ragerr.Newf(ragerr.KindMalformedGenerationOutput, "summarize", "model returned an empty summary")
	}
	return summary, usage, nil
}

type modelReply struct {
	Answer       string
	Confidence   *float64
	Cited        []int
	Insufficient bool
	FollowUps    []string
}

// parseReply extracts the JSON object from the model output, tolerating code
// fences and stray prose around it. Numbers given as strings are accepted.
func parseReply(raw string) (modelReply, bool) {
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return modelReply{}, false
	}
	var wire struct {
		Answer       string          `json:"answer"`
		Confidence   json.RawMessage `json:"confidence"`
		Cited        []interface{}   `json:"cited_passages"`
		Insufficient bool            `json:"insufficient_evidence"`
		FollowUps    []string        `json:"follow_up_questions"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return modelReply{}, false
	}
	if strings.TrimSpace(wire.Answer) == "" {
		return modelReply{}, false
	}

	reply := modelReply{
		Answer:       strings.TrimSpace(wire.Answer),
		Insufficient: wire.Insufficient,
		FollowUps:    wire.FollowUps,
	}
	if v, ok := parseNumber(wire.Confidence); ok {
		reply.Confidence = &v
	}
	for _, c := range wire.Cited {
		switch n := c.(type) {
		case float64:
			reply.Cited = append(reply.Cited, int(n))
		case string:
			if i, err := strconv.Atoi(strings.Trim(n, "[] ")); err == nil {
				reply.Cited = append(reply.Cited, i)
			}
		}
	}
	return reply, true
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func cleanFollowUps(in []string, limit int) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, q := range in {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}

func sampleEvenly(chunks []schema.Chunk, n int) []schema.Chunk {
	if len(chunks) <= n {
		return chunks
	}
	out := make([]schema.Chunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, chunks[i*len(chunks)/n])
	}
	return out
}

func withQuestion(err error, question string) error {
	var re *ragerr.Error
	if errors.As(err, &re) {
		re.Question = question
		return err
	}
	return &ragerr.Error{Kind: ragerr.KindGenerationUnavailable, Op: "answer", Question: question, Err: err}
}

func nonNil(p []schema.RetrievedPassage) []schema.RetrievedPassage {
	if p == nil {
		return []schema.RetrievedPassage{}
	}
	return p
}
