package entity

import (
	"time"
)

// Account — счёт участника в базовых единицах валюты. Из него списывается
// награда при создании набора вопросов, на него зачисляется выплата из
// эскроу. Списание условное (balance >= amount) и атомарное.
type Account struct {
	Address   Address   `gorm:"type:char(64);primaryKey" json:"address"`
	Identity  Identity  `gorm:"size:128;not null;uniqueIndex" json:"identity"`
	Balance   uint64    `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Account) TableName() string {
	return "accounts"
}
