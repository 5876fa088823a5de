package storage

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/toniwang/geyago/pkg/utils"
)

// QuestionRepository provides data access for the question bank
type QuestionRepository struct {
	db     *gorm.DB
	logger *utils.Logger
}

// NewQuestionRepository creates a new repository
func NewQuestionRepository(db *Database, logger *utils.Logger) *QuestionRepository {
	return &QuestionRepository{
		db:     db.DB,
		logger: logger,
	}
}

// FindExact looks up a question by literal equality of question text.
// Returns (nil, nil) when there is no match. With duplicate rows the oldest
// one wins, matching insert order.
func (r *QuestionRepository) FindExact(questionText string) (*Question, error) {
	var question Question
	err := r.db.Where("question = ?", questionText).Order("id asc").First(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query question: %w", err)
	}
	return &question, nil
}

// FindByID looks up a question by primary key. Returns (nil, nil) when the
// id does not exist.
func (r *QuestionRepository) FindByID(id uint) (*Question, error) {
	var question Question
	err := r.db.First(&question, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query question: %w", err)
	}
	return &question, nil
}

// Insert stores a new question/answer pair
func (r *QuestionRepository) Insert(questionText, answer, options, questionType string) (*Question, error) {
	question := &Question{
		Question: questionText,
		Answer:   answer,
		Options:  options,
		Type:     questionType,
	}
	if err := r.db.Create(question).Error; err != nil {
		return nil, fmt.Errorf("failed to insert question: %w", err)
	}
	return question, nil
}

// Delete removes a question by id. Returns false without error when the id
// does not exist.
func (r *QuestionRepository) Delete(id uint) (bool, error) {
	result := r.db.Delete(&Question{}, id)
	if result.Error != nil {
		return false, fmt.Errorf("failed to delete question: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Recent returns the most recently created questions, newest first
func (r *QuestionRepository) Recent(limit int) ([]Question, error) {
	if limit <= 0 {
		limit = 10
	}
	var questions []Question
	err := r.db.Order("created_at desc, id desc").Limit(limit).Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

// List returns a page of questions, newest first
func (r *QuestionRepository) List(offset, limit int) ([]Question, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var questions []Question
	err := r.db.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, nil
}

// Search returns questions whose question, answer or options contain keyword
func (r *QuestionRepository) Search(keyword string) ([]Question, error) {
	pattern := "%" + keyword + "%"
	var questions []Question
	err := r.db.
		Where("question LIKE ? OR answer LIKE ? OR options LIKE ?", pattern, pattern, pattern).
		Order("created_at desc, id desc").
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search questions: %w", err)
	}
	return questions, nil
}

// Count returns the total number of stored questions
func (r *QuestionRepository) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&Question{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count questions: %w", err)
	}
	return count, nil
}
