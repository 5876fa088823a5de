// Package qa implements answer resolution: cache lookup, generation through
// the provider chain and opportunistic persistence of generated answers.
package qa

import (
	"context"
	"strings"

	"github.com/toniwang/geyago/internal/providers"
	"github.com/toniwang/geyago/internal/storage"
	"github.com/toniwang/geyago/pkg/errors"
	"github.com/toniwang/geyago/pkg/utils"
)

// Status tells the caller where an answer came from
type Status string

const (
	StatusCached    Status = "cached"
	StatusGenerated Status = "generated"
	StatusNotFound  Status = "not_found"
)

// Resolution is the outcome of resolving one question
type Resolution struct {
	Status Status `json:"status"`
	Answer string `json:"answer,omitempty"`
	Origin string `json:"origin,omitempty"` // "database", "cache" or a provider id
}

// Generator produces an answer for a question that is not in the bank.
// Implemented by providers.Manager; a stub in tests.
type Generator interface {
	Generate(ctx context.Context, question, options, questionType, providerID, model string) (*providers.GenerateResult, error)
}

// Service resolves questions against the bank first and the providers second
type Service struct {
	repo      *storage.QuestionRepository
	cache     *storage.AnswerCache
	generator Generator
	logger    *utils.Logger
}

// NewService creates the resolution service. cache may be nil-backed; its
// methods degrade to misses.
func NewService(repo *storage.QuestionRepository, cache *storage.AnswerCache, generator Generator, logger *utils.Logger) *Service {
	return &Service{
		repo:      repo,
		cache:     cache,
		generator: generator,
		logger:    logger,
	}
}

// Resolve answers a question. Lookup order is hot cache, then the question
// bank, then generation. Generated answers are persisted opportunistically:
// a storage failure is logged and the answer still returned. Resolution
// never fails because nothing was found; NotFound is a status, not an error.
func (s *Service) Resolve(ctx context.Context, question, options, questionType, providerID, model string) (*Resolution, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewValidation("question text is required")
	}

	if answer, ok := s.cache.Get(ctx, question); ok {
		return &Resolution{Status: StatusCached, Answer: answer, Origin: "cache"}, nil
	}

	stored, err := s.repo.FindExact(question)
	if err != nil {
		// Lookup failures surface; only the post-generation write-back is
		// allowed to fail silently.
		return nil, errors.NewDatabase("failed to query question bank", err)
	}
	if stored != nil {
		s.cache.Put(ctx, question, stored.Answer)
		return &Resolution{Status: StatusCached, Answer: stored.Answer, Origin: "database"}, nil
	}

	result, err := s.generator.Generate(ctx, question, options, questionType, providerID, model)
	if err != nil {
		if errors.IsValidation(err) {
			return nil, err
		}
		s.logger.WithQuestion(question).WithError(err).Warn("Answer generation failed")
		return &Resolution{Status: StatusNotFound}, nil
	}
	if !result.Found {
		return &Resolution{Status: StatusNotFound}, nil
	}

	if _, err := s.repo.Insert(question, result.Answer, options, questionType); err != nil {
		s.logger.WithQuestion(question).WithError(err).Error("Failed to persist generated answer")
	}
	s.cache.Put(ctx, question, result.Answer)

	return &Resolution{Status: StatusGenerated, Answer: result.Answer, Origin: result.Origin}, nil
}

// AddQuestion stores a question/answer pair directly. Duplicate question
// text is rejected so manual additions cannot shadow existing answers.
func (s *Service) AddQuestion(ctx context.Context, question, answer, options, questionType string) (*storage.Question, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.NewValidation("question text is required")
	}
	if strings.TrimSpace(answer) == "" {
		return nil, errors.NewValidation("answer text is required")
	}

	existing, err := s.repo.FindExact(question)
	if err != nil {
		return nil, errors.NewDatabase("failed to check existing question", err)
	}
	if existing != nil {
		return nil, errors.NewValidation("question already exists")
	}

	created, err := s.repo.Insert(question, answer, options, questionType)
	if err != nil {
		return nil, errors.NewDatabase("failed to store question", err)
	}
	s.cache.Put(ctx, question, answer)
	return created, nil
}

// DeleteQuestion removes a stored question by id
func (s *Service) DeleteQuestion(ctx context.Context, id uint) error {
	if id == 0 {
		return errors.NewValidation("question id is required")
	}
	stored, err := s.repo.FindByID(id)
	if err != nil {
		return errors.NewDatabase("failed to look up question", err)
	}
	if stored == nil {
		return errors.NewNotFound("question not found")
	}
	deleted, err := s.repo.Delete(id)
	if err != nil {
		return errors.NewDatabase("failed to delete question", err)
	}
	if deleted {
		s.cache.Invalidate(ctx, stored.Question)
	}
	return nil
}

// Search returns stored questions matching a keyword
func (s *Service) Search(keyword string) ([]storage.Question, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, errors.NewValidation("search keyword is required")
	}
	questions, err := s.repo.Search(keyword)
	if err != nil {
		return nil, errors.NewDatabase("failed to search questions", err)
	}
	return questions, nil
}

// Recent returns the newest stored questions
func (s *Service) Recent(limit int) ([]storage.Question, error) {
	questions, err := s.repo.Recent(limit)
	if err != nil {
		return nil, errors.NewDatabase("failed to list questions", err)
	}
	return questions, nil
}

// List returns a page of stored questions, newest first
func (s *Service) List(page, limit int) ([]storage.Question, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	questions, err := s.repo.List((page-1)*limit, limit)
	if err != nil {
		return nil, errors.NewDatabase("failed to list questions", err)
	}
	return questions, nil
}

// Count returns the number of stored questions
func (s *Service) Count() (int64, error) {
	count, err := s.repo.Count()
	if err != nil {
		return 0, errors.NewDatabase("failed to count questions", err)
	}
	return count, nil
}
