package entity

import (
	"time"
)

// VerifierKeySize — размер ключевого материала для конфиденциального
// вычислителя (в байтах).
const VerifierKeySize = 32

// QuestionBlock хранит один вопрос набора в зашифрованном виде.
// Контент (текст вопроса и варианты) и правильный ответ — отдельные
// блоки фиксированного размера; nonce уникален на блок и участвует
// в выводе ключевого потока. Ровно один блок на (quizSet, questionIndex).
type QuestionBlock struct {
	Address          Address   `gorm:"type:char(64);primaryKey" json:"address"`
	QuizSetAddress   Address   `gorm:"type:char(64);not null;uniqueIndex:idx_quizset_question,priority:1" json:"quiz_set_address"`
	QuestionIndex    uint32    `gorm:"not null;uniqueIndex:idx_quizset_question,priority:2" json:"question_index"`
	EncryptedContent []byte    `gorm:"type:bytea;not null" json:"encrypted_content"`
	EncryptedAnswer  []byte    `gorm:"type:bytea;not null" json:"-"` // Никогда не отдаётся клиенту
	VerifierKey      []byte    `gorm:"type:bytea;not null" json:"-"` // Материал для вычислителя, скрыт
	Nonce            uint64    `gorm:"not null" json:"nonce"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (QuestionBlock) TableName() string {
	return "question_blocks"
}
