package engine

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/cipherquiz-api/internal/codec"
)

// LocalEngine — движок сравнения в памяти процесса. Имитирует внешний
// конфиденциальный контур: расшифровка и сравнение происходят только внутри
// Submit, наружу выходит вердикт с аттестацией. Аппаратных гарантий не даёт
// и предназначен для разработки и тестов.
type LocalEngine struct {
	codec *codec.Codec

	mu      sync.Mutex
	pending map[string]*localVerdict

	// Latency задерживает готовность вердикта после Submit
	Latency time.Duration
	// FailSubmit заставляет Submit возвращать ErrUnavailable
	FailSubmit bool
	// Hang принимает запросы, но никогда не отдаёт вердикт
	Hang bool
}

type localVerdict struct {
	result  *ComparisonResult
	readyAt time.Time
	hang    bool
}

// NewLocalEngine создает движок с заданной схемой гаммы
func NewLocalEngine(c *codec.Codec) *LocalEngine {
	return &LocalEngine{
		codec:   c,
		pending: make(map[string]*localVerdict),
	}
}

// Submit расшифровывает блок и сравнивает с кандидатом внутри контура.
// Вердикт становится доступен через Await после Latency.
func (e *LocalEngine) Submit(_ context.Context, req ComparisonRequest) (string, error) {
	if e.FailSubmit {
		return "", fmt.Errorf("%w: submit rejected", ErrUnavailable)
	}

	requestID := uuid.New().String()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Hang {
		e.pending[requestID] = &localVerdict{hang: true}
		return requestID, nil
	}

	plaintext, err := e.codec.Decode(req.Ciphertext, req.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	matched := bytes.Equal(plaintext, req.Candidate)

	e.pending[requestID] = &localVerdict{
		result: &ComparisonResult{
			RequestID:   requestID,
			Matched:     matched,
			Attestation: ComputeAttestation(req.VerifierKey, requestID, req.QuestionAddress, matched),
		},
		readyAt: time.Now().Add(e.Latency),
	}
	return requestID, nil
}

// Await блокируется до готовности вердикта или отмены контекста
func (e *LocalEngine) Await(ctx context.Context, requestID string) (*ComparisonResult, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		e.mu.Lock()
		verdict, ok := e.pending[requestID]
		e.mu.Unlock()

		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
		}
		if !verdict.hang && !time.Now().Before(verdict.readyAt) {
			return verdict.result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
