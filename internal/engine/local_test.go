package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cipherquiz-api/internal/codec"
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
)

func testQuestionAddress() entity.Address {
	quizSet := entity.QuizSetAddress("author-1", 7)
	return entity.QuestionBlockAddress(quizSet, 1)
}

func testComparisonRequest(t *testing.T, c *codec.Codec, answer, candidate string) ComparisonRequest {
	t.Helper()

	const nonce = uint64(42)
	ciphertext, err := c.Encode([]byte(answer), nonce)
	require.NoError(t, err)

	verifierKey := make([]byte, entity.VerifierKeySize)
	for i := range verifierKey {
		verifierKey[i] = byte(i)
	}

	return ComparisonRequest{
		QuestionAddress: testQuestionAddress(),
		Ciphertext:      ciphertext,
		Candidate:       []byte(candidate),
		Nonce:           nonce,
		VerifierKey:     verifierKey,
	}
}

func TestLocalEngine_Submit_CorrectCandidate(t *testing.T) {
	// Arrange
	c := codec.NewDefault()
	eng := NewLocalEngine(c)
	req := testComparisonRequest(t, c, "4", "4")

	// Act
	requestID, err := eng.Submit(context.Background(), req)
	require.NoError(t, err)
	result, err := eng.Await(context.Background(), requestID)

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Matched, "правильный кандидат должен совпасть")
	assert.Equal(t, requestID, result.RequestID)
	assert.True(t, VerifyAttestation(req.VerifierKey, requestID, req.QuestionAddress, result.Matched, result.Attestation),
		"аттестация вердикта должна проверяться ключом верификации")
}

func TestLocalEngine_Submit_WrongCandidate(t *testing.T) {
	// Arrange
	c := codec.NewDefault()
	eng := NewLocalEngine(c)
	req := testComparisonRequest(t, c, "4", "5")

	// Act
	requestID, err := eng.Submit(context.Background(), req)
	require.NoError(t, err)
	result, err := eng.Await(context.Background(), requestID)

	// Assert
	require.NoError(t, err)
	assert.False(t, result.Matched, "неправильный кандидат не должен совпасть")
	assert.True(t, VerifyAttestation(req.VerifierKey, requestID, req.QuestionAddress, false, result.Attestation),
		"отрицательный вердикт тоже аттестуется")
}

func TestLocalEngine_FailSubmit(t *testing.T) {
	// Arrange
	c := codec.NewDefault()
	eng := NewLocalEngine(c)
	eng.FailSubmit = true
	req := testComparisonRequest(t, c, "4", "4")

	// Act
	_, err := eng.Submit(context.Background(), req)

	// Assert
	assert.ErrorIs(t, err, ErrUnavailable, "отказ движка должен отличаться от вердикта")
}

func TestLocalEngine_Hang_ContextTimeout(t *testing.T) {
	// Arrange
	c := codec.NewDefault()
	eng := NewLocalEngine(c)
	eng.Hang = true
	req := testComparisonRequest(t, c, "4", "4")

	requestID, err := eng.Submit(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Act
	_, err = eng.Await(ctx, requestID)

	// Assert
	assert.ErrorIs(t, err, context.DeadlineExceeded, "зависший запрос должен завершаться по таймауту контекста")
}

func TestLocalEngine_Await_UnknownRequest(t *testing.T) {
	// Arrange
	eng := NewLocalEngine(codec.NewDefault())

	// Act
	_, err := eng.Await(context.Background(), "no-such-request")

	// Assert
	assert.ErrorIs(t, err, ErrUnknownRequest)
}

func TestLocalEngine_Latency(t *testing.T) {
	// Arrange
	c := codec.NewDefault()
	eng := NewLocalEngine(c)
	eng.Latency = 30 * time.Millisecond
	req := testComparisonRequest(t, c, "4", "4")

	requestID, err := eng.Submit(context.Background(), req)
	require.NoError(t, err)

	// Act
	start := time.Now()
	result, err := eng.Await(context.Background(), requestID)
	elapsed := time.Since(start)

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond, "вердикт не должен быть готов раньше заданной задержки")
}

func TestVerifyAttestation_WrongKey(t *testing.T) {
	// Arrange
	addr := testQuestionAddress()
	key := []byte("0123456789abcdef0123456789abcdef")
	otherKey := []byte("fedcba9876543210fedcba9876543210")
	attestation := ComputeAttestation(key, "req-1", addr, true)

	// Act & Assert
	assert.False(t, VerifyAttestation(otherKey, "req-1", addr, true, attestation),
		"чужой ключ не должен проверять аттестацию")
}

func TestVerifyAttestation_TamperedVerdict(t *testing.T) {
	// Arrange
	addr := testQuestionAddress()
	key := []byte("0123456789abcdef0123456789abcdef")
	attestation := ComputeAttestation(key, "req-1", addr, false)

	// Act & Assert
	assert.False(t, VerifyAttestation(key, "req-1", addr, true, attestation),
		"подмена вердикта должна ломать аттестацию")
	assert.False(t, VerifyAttestation(key, "req-2", addr, false, attestation),
		"подмена идентификатора запроса должна ломать аттестацию")
}

func TestLocalEngine_ConcurrentSubmissions(t *testing.T) {
	// Arrange
	c := codec.NewDefault()
	eng := NewLocalEngine(c)

	type submission struct {
		requestID string
		expected  bool
	}
	candidates := []string{"4", "5", "4", "6"}
	results := make([]submission, len(candidates))

	// Act
	for i, candidate := range candidates {
		req := testComparisonRequest(t, c, "4", candidate)
		requestID, err := eng.Submit(context.Background(), req)
		require.NoError(t, err)
		results[i] = submission{requestID: requestID, expected: candidate == "4"}
	}

	// Assert
	seen := make(map[string]bool)
	for _, s := range results {
		assert.False(t, seen[s.requestID], "идентификаторы запросов не должны повторяться")
		seen[s.requestID] = true

		result, err := eng.Await(context.Background(), s.requestID)
		require.NoError(t, err)
		assert.Equal(t, s.expected, result.Matched)
	}
}
