package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/pipeline"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
)

const maxQuestionRunes = 2000

// AskRequest is one question to the assistant.
type AskRequest struct {
	Question string
	// DocumentID restricts retrieval to one playbook when set.
	DocumentID string
	// History is used as-is when set. Otherwise the turns stored under SessionID are used.
	History   []schema.ConversationTurn
	SessionID string
	TopK      int
	FollowUps bool
	UserID    string
}

// Ask retrieves passages for the question and synthesizes an answer. Passages
// come back with the question's words highlighted. When a session id is given
// the question and answer are appended to the session.
func (s *Service) Ask(ctx context.Context, cred models.Credential, req AskRequest) (schema.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return schema.Answer{}, ragerr.Newf(ragerr.KindInvalidInput, "ask", "question is empty")
	}
	if utf8.RuneCountInString(question) > maxQuestionRunes {
		return schema.Answer{}, ragerr.Newf(ragerr.KindInvalidInput, "ask", "question is longer than %d characters", maxQuestionRunes)
	}
	k := req.TopK
	if k <= 0 {
		k = s.opts.TopK
	}
	k = min(k, maxTopK)

	history := req.History
	if len(history) == 0 && req.SessionID != "" {
		stored, err := s.deps.Sessions.Load(ctx, req.SessionID, s.opts.HistoryTurns)
		if err != nil {
			// A broken session store degrades to a question without history.
			s.log.WithField("session_id", req.SessionID).Warn(fmt.Sprintf("Failed to load session: %v", err))
		}
		history = stored
	}

	log := s.log.WithFields(map[string]interface{}{"document_id": req.DocumentID, "user_id": req.UserID})
	log.Info(fmt.Sprintf("Answering question with k=%d and %d history turns", k, len(history)))

	passages, spent, err := s.deps.Retriever.Run(ctx, cred, question, req.DocumentID, k)
	if err != nil {
		s.recordAsk(ctx, req, question, spent, 0, err)
		return schema.Answer{}, err
	}

	answer, err := s.deps.QA.Run(ctx, cred, pipeline.AnswerRequest{
		Question:      question,
		Passages:      passages,
		History:       history,
		WantFollowUps: req.FollowUps,
	})
	answer.Usage = answer.Usage.Add(spent)
	s.recordAsk(ctx, req, question, answer.Usage, answer.Confidence, err)
	if err != nil {
		return schema.Answer{Usage: answer.Usage}, err
	}

	for i := range answer.Passages {
		answer.Passages[i].Highlighted = pipeline.Highlight(answer.Passages[i].Text, question)
	}

	if req.SessionID != "" {
		now := s.now().UTC()
		err := s.deps.Sessions.Append(ctx, req.SessionID,
			schema.ConversationTurn{Role: schema.RoleUser, Content: question, Timestamp: now},
			schema.ConversationTurn{Role: schema.RoleAssistant, Content: answer.Text, Timestamp: now},
		)
		if err != nil {
			s.log.WithField("session_id", req.SessionID).Warn(fmt.Sprintf("Failed to append to session: %v", err))
		}
	}
	return answer, nil
}

func (s *Service) recordAsk(ctx context.Context, req AskRequest, question string, spent models.TokenUsage, confidence float64, err error) {
	s.record(ctx, models.UsageEvent{
		Operation:  models.OperationAsk,
		DocumentID: req.DocumentID,
		UserID:     req.UserID,
		Question:   question,
		Provider:   s.deps.Generation.Provider,
		Model:      s.deps.Generation.Model,
		Usage:      spent,
		Confidence: confidence,
	}, err)
}

// Summary is the result of Summarize.
type Summary struct {
	DocumentID  string   `json:"playbook_id"`
	Summary     string   `json:"summary"`
	KeySections []string `json:"key_sections"`
	Cached      bool     `json:"cached"`
}

// Summarize returns the document's synopsis. Synopses are cached in memory and
// in the registry, so the model is asked at most once per document.
func (s *Service) Summarize(ctx context.Context, cred models.Credential, userID, id string) (Summary, error) {
	if e, ok := s.summaries.Get(id); ok {
		return Summary{DocumentID: id, Summary: e.Summary, KeySections: e.KeySections, Cached: true}, nil
	}
	doc, err := s.deps.Registry.Get(ctx, "", id)
	if err != nil {
		return Summary{}, err
	}

	syn, err := s.deps.Indexer.Summarize(ctx, cred, id, doc.Summary, keySections)
	if err != nil {
		if !errors.Is(err, ragerr.ErrNotFound) {
			s.recordSummary(ctx, userID, id, syn.Usage, err)
		}
		return Summary{}, err
	}
	if !syn.Generated {
		s.summaries.Put(id, summaryEntry{Summary: syn.Text, KeySections: syn.KeySections})
		return Summary{DocumentID: id, Summary: syn.Text, KeySections: syn.KeySections, Cached: true}, nil
	}
	s.recordSummary(ctx, userID, id, syn.Usage, nil)

	if err := s.deps.Registry.SetSummary(ctx, id, syn.Text, s.now().UTC()); err != nil {
		s.log.WithField("document_id", id).Warn(fmt.Sprintf("Failed to persist summary: %v", err))
	}
	s.summaries.Put(id, summaryEntry{Summary: syn.Text, KeySections: syn.KeySections})
	return Summary{DocumentID: id, Summary: syn.Text, KeySections: syn.KeySections}, nil
}

func (s *Service) recordSummary(ctx context.Context, userID, id string, spent models.TokenUsage, err error) {
	s.record(ctx, models.UsageEvent{
		Operation:  models.OperationSummarize,
		DocumentID: id,
		UserID:     userID,
		Provider:   s.deps.Generation.Provider,
		Model:      s.deps.Generation.Model,
		Usage:      spent,
	}, err)
}
