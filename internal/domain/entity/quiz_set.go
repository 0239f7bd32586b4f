package entity

import (
	"time"
)

// Границы количества вопросов в наборе.
const (
	MinQuestionCount = 1
	MaxQuestionCount = 50
)

// QuizSet представляет набор зашифрованных вопросов с эскроу-наградой.
// Набор адресуется парой (authority, uniqueId); questionCount фиксируется
// при создании, а isInitialized становится true ровно в момент, когда
// добавлен последний блок (questionsAdded == questionCount), и обратно
// не сбрасывается.
type QuizSet struct {
	Address             Address   `gorm:"type:char(64);primaryKey" json:"address"`
	Authority           Identity  `gorm:"size:128;not null;index" json:"authority"`
	TopicAddress        Address   `gorm:"type:char(64);not null;index" json:"topic_address"` // нулевой адрес = без темы
	Name                string    `gorm:"size:100;not null" json:"name"`
	UniqueID            uint64    `gorm:"not null" json:"unique_id"`
	QuestionCount       uint32    `gorm:"not null" json:"question_count"`
	QuestionsAdded      uint32    `gorm:"not null;default:0" json:"questions_added"`
	IsInitialized       bool      `gorm:"not null;default:false" json:"is_initialized"`
	RewardAmount        uint64    `gorm:"not null;default:0" json:"reward_amount"`
	Winner              Identity  `gorm:"size:128;not null;default:''" json:"winner,omitempty"` // пустая строка = победитель не определён
	CorrectAnswersCount uint32    `gorm:"not null;default:0" json:"correct_answers_count"`
	IsRewardClaimed     bool      `gorm:"not null;default:false" json:"is_reward_claimed"`
	CreatedAt           time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (QuizSet) TableName() string {
	return "quiz_sets"
}

// HasTopic проверяет, привязан ли набор к теме.
func (q *QuizSet) HasTopic() bool {
	return !q.TopicAddress.IsZero()
}

// HasWinner проверяет, определён ли победитель.
func (q *QuizSet) HasWinner() bool {
	return !q.Winner.IsZero()
}

// IsOpenForQuestions проверяет, можно ли ещё добавлять блоки вопросов.
func (q *QuizSet) IsOpenForQuestions() bool {
	return !q.IsInitialized
}

// IsValidQuestionIndex проверяет индекс блока: 1-based, в пределах questionCount.
func (q *QuizSet) IsValidQuestionIndex(index uint32) bool {
	return index >= 1 && index <= q.QuestionCount
}

// IsValidQuestionCount проверяет количество вопросов набора против глобальных границ.
func IsValidQuestionCount(count uint32) bool {
	return count >= MinQuestionCount && count <= MaxQuestionCount
}
