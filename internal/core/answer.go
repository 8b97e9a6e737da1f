package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
)

// maxAuxResources bounds the external resources added to an answer prompt.
const maxAuxResources = 3

const answerSystemInstruction = `You are a friendly and professional course teaching assistant.
Answer the student's question using only the course content provided.
If the content does not contain the answer, reply exactly: "Based on the material I have, I could not find an answer to this question." Never make up an answer.
Where possible, cite which material the answer comes from.`

const answerTemplate = `Course content:
%s
%s
Student question:
%s

Your answer:`

type AnswerService struct {
	store    *store.SQLiteStore
	resolver *RetrieverResolver
	llm      Generator
	log      *logger.Logger
}

func NewAnswerService(db *store.SQLiteStore, resolver *RetrieverResolver, llm Generator, log *logger.Logger) *AnswerService {
	return &AnswerService{store: db, resolver: resolver, llm: llm, log: log}
}

// Answer answers question from chapter's material and records it in the query log.
func (s *AnswerService) Answer(ctx context.Context, user *store.User, chapter, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: question must not be empty", ErrValidation)
	}
	if s.llm == nil {
		return "", ErrUnavailable
	}

	retriever, err := s.resolver.Resolve(ctx, chapter)
	if err != nil {
		return "", err
	}
	chunks, err := retriever.Retrieve(ctx, question)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}
	s.log.Debug("Retrieved context", "chapter", chapter, "chunks", len(chunks))

	var resourcesSection string
	resources, err := s.store.ListResources(ctx, retriever.Chapter.Name, maxAuxResources)
	if err != nil {
		s.log.Warn("Failed to load external resources, answering without them", "chapter", chapter, "error", err)
	} else if len(resources) > 0 {
		var b strings.Builder
		b.WriteString("\nRelated external resources:\n")
		for _, r := range resources {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Description)
		}
		resourcesSection = b.String()
	}

	prompt := fmt.Sprintf(answerTemplate, formatContext(chunks), resourcesSection, question)
	answer, err := s.llm.GenerateText(ctx, answerSystemInstruction, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	entry := &store.RAGQueryLog{UserID: user.ID, Chapter: retriever.Chapter.Name, Question: question, Answer: answer}
	if err := s.store.CreateQueryLog(ctx, entry); err != nil {
		return "", fmt.Errorf("failed to record query log: %w", err)
	}
	return answer, nil
}
