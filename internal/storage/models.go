// Package storage defines the question bank models and storage access
package storage

import (
	"time"
)

// Question is one cached question/answer pair. Rows are immutable after
// insert and are only ever exact-matched by question text. The question
// column is not unique: two writers racing to insert the same question may
// both succeed, and reads resolve the tie by taking the oldest row.
type Question struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Question  string    `json:"question" gorm:"not null;index:idx_question_answer_question"`
	Answer    string    `json:"answer" gorm:"not null"`
	Options   string    `json:"options"`
	Type      string    `json:"type" gorm:"column:type;index:idx_question_answer_type"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName overrides gorm's pluralized default
func (Question) TableName() string {
	return "question_answer"
}
