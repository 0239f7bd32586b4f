package entity

import (
	"time"
)

// Vault — эскроу-хранилище награды, привязанное к набору вопросов.
// Наполняется суммой rewardAmount в момент создания набора и обнуляется
// единственной выплатой победителю. Баланс никогда не бывает отрицательным
// и не выплачивается частями.
type Vault struct {
	Address        Address   `gorm:"type:char(64);primaryKey" json:"address"`
	QuizSetAddress Address   `gorm:"type:char(64);not null;uniqueIndex" json:"quiz_set_address"`
	Balance        uint64    `gorm:"not null;default:0" json:"balance"`
	FundedAt       time.Time `gorm:"not null" json:"funded_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Vault) TableName() string {
	return "vaults"
}

// IsFunded проверяет, что награда ещё не выплачена.
func (v *Vault) IsFunded() bool {
	return v.Balance > 0
}
