package entity

import (
	"time"
)

// QuizHistory — запись журнала прохождения набора вопросов.
// Это журнал, а не справочник: записи только добавляются и никогда
// не изменяются. Метка времени входит в ключ (и в адрес), поэтому
// один участник может проходить один набор многократно, но повтор
// с той же меткой — конфликт (защита от реплея).
type QuizHistory struct {
	Address        Address   `gorm:"type:char(64);primaryKey" json:"address"`
	User           Identity  `gorm:"size:128;not null;uniqueIndex:idx_user_quiz_time,priority:1" json:"user"`
	QuizSetAddress Address   `gorm:"type:char(64);not null;uniqueIndex:idx_user_quiz_time,priority:2" json:"quiz_set_address"`
	CompletedAt    int64     `gorm:"not null;uniqueIndex:idx_user_quiz_time,priority:3" json:"completed_at"` // unix-секунды, часть ключа
	TopicAddress   Address   `gorm:"type:char(64);not null;index" json:"topic_address"`
	Score          uint32    `gorm:"not null" json:"score"`
	TotalQuestions uint32    `gorm:"not null" json:"total_questions"`
	IsWinner       bool      `gorm:"not null;default:false" json:"is_winner"`
	RewardClaimed  uint64    `gorm:"not null;default:0" json:"reward_claimed"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (QuizHistory) TableName() string {
	return "quiz_histories"
}
