package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	statusPending  = "pending"
	statusResolved = "resolved"
)

// HTTPEngine — клиент удалённого движка верификации по HTTP.
// Submit отправляет задание на POST {base}/v1/comparisons и ожидает 202
// с идентификатором запроса, Await опрашивает GET {base}/v1/comparisons/{id}
// до вердикта или отмены контекста.
type HTTPEngine struct {
	baseURL      string
	authToken    string
	pollInterval time.Duration
	httpClient   *http.Client
}

// NewHTTPEngine создает клиент движка. authToken добавляется как Bearer
// к каждому запросу, пустая строка отключает авторизацию.
func NewHTTPEngine(baseURL, authToken string, pollInterval time.Duration) (*HTTPEngine, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("engine base URL is required")
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &HTTPEngine{
		baseURL:      baseURL,
		authToken:    authToken,
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type submitRequest struct {
	QuestionAddress string `json:"question_address"`
	Ciphertext      []byte `json:"ciphertext"`
	Candidate       []byte `json:"candidate"`
	Nonce           uint64 `json:"nonce"`
	VerifierKey     []byte `json:"verifier_key"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	Matched     bool   `json:"matched"`
	Attestation []byte `json:"attestation"`
}

// Submit отправляет сравнение движку и возвращает идентификатор запроса
func (e *HTTPEngine) Submit(ctx context.Context, req ComparisonRequest) (string, error) {
	payload := submitRequest{
		QuestionAddress: req.QuestionAddress.String(),
		Ciphertext:      req.Ciphertext,
		Candidate:       req.Candidate,
		Nonce:           req.Nonce,
		VerifierKey:     req.VerifierKey,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode comparison request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/comparisons", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create comparison request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.authToken)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("%w: submit status=%d body=%s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to parse submit response: %v", ErrUnavailable, err)
	}
	if result.RequestID == "" {
		return "", fmt.Errorf("%w: empty request_id in submit response", ErrUnavailable)
	}
	return result.RequestID, nil
}

// Await опрашивает движок до вердикта или отмены контекста
func (e *HTTPEngine) Await(ctx context.Context, requestID string) (*ComparisonResult, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		result, done, err := e.poll(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *HTTPEngine) poll(ctx context.Context, requestID string) (*ComparisonResult, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/v1/comparisons/"+requestID, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create poll request: %w", err)
	}
	if e.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.authToken)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		// Сработавший дедлайн вызывающего — не отказ движка: http.Client
		// заворачивает его в *url.Error, классифицируем по причине контекста
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, false, fmt.Errorf("%w: poll status=%d body=%s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, false, fmt.Errorf("%w: failed to parse poll response: %v", ErrUnavailable, err)
	}

	if status.Status == statusPending {
		return nil, false, nil
	}
	if status.Status != statusResolved {
		return nil, false, fmt.Errorf("%w: unexpected status %q", ErrUnavailable, status.Status)
	}

	return &ComparisonResult{
		RequestID:   status.RequestID,
		Matched:     status.Matched,
		Attestation: status.Attestation,
	}, true, nil
}
