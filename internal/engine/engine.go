// Package engine описывает границу с внешним движком конфиденциальных
// вычислений. Движок получает шифроблок, кандидата открытого текста, nonce
// и ключ верификации, выполняет сравнение внутри своего контура и возвращает
// вердикт с аттестацией. Открытый текст вопроса наружу не выходит.
package engine

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

// ErrUnavailable означает, что движок недоступен или отверг запрос.
// Отличается от вердикта "не совпало": это отказ инфраструктуры.
var ErrUnavailable = errors.New("движок верификации недоступен")

// ErrUnknownRequest означает, что движок не знает такого идентификатора запроса
var ErrUnknownRequest = errors.New("неизвестный идентификатор запроса верификации")

// ComparisonRequest — задание на конфиденциальное сравнение ответа
type ComparisonRequest struct {
	// QuestionAddress — адрес блока вопроса в реестре
	QuestionAddress entity.Address
	// Ciphertext — зашифрованный блок ответа (64 байта)
	Ciphertext []byte
	// Candidate — кандидат открытого текста от участника
	Candidate []byte
	// Nonce — nonce блока, из которого выводится гамма
	Nonce uint64
	// VerifierKey — ключ верификации блока (32 байта)
	VerifierKey []byte
}

// ComparisonResult — вердикт движка по одному сравнению
type ComparisonResult struct {
	RequestID string
	// Matched — true, если кандидат совпал с расшифрованным ответом
	Matched bool
	// Attestation — HMAC-подпись вердикта ключом верификации блока
	Attestation []byte
}

// Engine — клиент движка конфиденциальных вычислений.
// Submit ставит сравнение в очередь и возвращает идентификатор запроса,
// Await блокируется до вердикта или отмены контекста.
type Engine interface {
	Submit(ctx context.Context, req ComparisonRequest) (string, error)
	Await(ctx context.Context, requestID string) (*ComparisonResult, error)
}

// ComputeAttestation подписывает вердикт ключом верификации блока.
// Подпись привязывает вердикт к конкретному запросу и адресу вопроса,
// чтобы ответ движка нельзя было переиспользовать для другого сравнения.
func ComputeAttestation(verifierKey []byte, requestID string, questionAddress entity.Address, matched bool) []byte {
	h := hmac.New(sha256.New, verifierKey)
	h.Write([]byte(requestID))
	h.Write(questionAddress[:])
	if matched {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	return h.Sum(nil)
}

// VerifyAttestation проверяет подпись вердикта
func VerifyAttestation(verifierKey []byte, requestID string, questionAddress entity.Address, matched bool, attestation []byte) bool {
	expected := ComputeAttestation(verifierKey, requestID, questionAddress, matched)
	return hmac.Equal(attestation, expected)
}
