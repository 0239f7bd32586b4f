package entity

import (
	"time"
)

// UserScore — накопительный счёт участника в теме. Одна запись на пару
// (user, topic); счётчики монотонно неубывающие, обновляются только
// атомарными инкрементами.
type UserScore struct {
	Address        Address   `gorm:"type:char(64);primaryKey" json:"address"`
	User           Identity  `gorm:"size:128;not null;uniqueIndex:idx_user_topic,priority:1" json:"user"`
	TopicAddress   Address   `gorm:"type:char(64);not null;uniqueIndex:idx_user_topic,priority:2" json:"topic_address"`
	Score          uint32    `gorm:"not null;default:0" json:"score"` // количество побед
	TotalCompleted uint32    `gorm:"not null;default:0" json:"total_completed"`
	TotalRewards   uint64    `gorm:"not null;default:0" json:"total_rewards"`
	LastActivity   time.Time `gorm:"not null" json:"last_activity"`
}

// TableName определяет имя таблицы для GORM
func (UserScore) TableName() string {
	return "user_scores"
}

// WinRate возвращает долю побед: score / totalCompleted.
// По определению 0 при нулевом количестве прохождений.
func (s *UserScore) WinRate() float64 {
	if s.TotalCompleted == 0 {
		return 0
	}
	return float64(s.Score) / float64(s.TotalCompleted)
}
