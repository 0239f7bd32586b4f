package entity

import (
	"time"
)

// MaxNameLength — предельная длина имени темы и набора вопросов (в байтах).
const MaxNameLength = 100

// Topic представляет тему викторин. Имя глобально уникально и неизменяемо:
// адрес темы выводится только из имени, поэтому повторное создание
// завершается конфликтом, а не перезаписью.
type Topic struct {
	Address           Address   `gorm:"type:char(64);primaryKey" json:"address"`
	Name              string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Owner             Identity  `gorm:"size:128;not null" json:"owner"`
	IsActive          bool      `gorm:"not null;default:true" json:"is_active"`
	MinQuestionCount  uint32    `gorm:"not null;default:1" json:"min_question_count"`
	MinRewardAmount   uint64    `gorm:"not null;default:0" json:"min_reward_amount"`
	TotalQuizzes      uint32    `gorm:"not null;default:0" json:"total_quizzes"`
	TotalParticipants uint32    `gorm:"not null;default:0" json:"total_participants"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (Topic) TableName() string {
	return "topics"
}

// IsValidEntityName проверяет имя темы или набора вопросов: непустое и не длиннее лимита.
func IsValidEntityName(name string) bool {
	return len(name) > 0 && len(name) <= MaxNameLength
}
