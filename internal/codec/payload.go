package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// minDelimitedSegments — минимум сегментов формата с разделителем:
// вопрос и хотя бы четыре варианта ответа.
const minDelimitedSegments = 5

// ErrMalformedContent возвращается, когда расшифрованный контент не разобран
// ни одним из поддерживаемых форматов. Вызывающий не подставляет контент
// по умолчанию и не угадывает.
var ErrMalformedContent = errors.New("malformed question content")

// QuestionPayload — расшифрованное содержимое блока вопроса.
type QuestionPayload struct {
	Question      string   `json:"question"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

// ParseQuestionPayload разбирает расшифрованный контент. Форматы пробуются
// по порядку: самоописывающий (JSON-объект с полями question/choices),
// затем формат с разделителем ("вопрос|вариант1|...", минимум 5 сегментов).
// Содержимое нечитаемого блока в ошибку не попадает, только длина.
func ParseQuestionPayload(data []byte) (*QuestionPayload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedContent)
	}

	if payload, ok := parseStructured(data); ok {
		return payload, nil
	}
	if payload, ok := parseDelimited(data); ok {
		return payload, nil
	}

	return nil, fmt.Errorf("%w: unrecognized format (%d bytes)", ErrMalformedContent, len(data))
}

// parseStructured пробует самоописывающий JSON-формат.
func parseStructured(data []byte) (*QuestionPayload, bool) {
	var payload QuestionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, false
	}
	if payload.Question == "" || len(payload.Choices) == 0 {
		return nil, false
	}
	return &payload, true
}

// parseDelimited пробует формат с разделителем "|".
func parseDelimited(data []byte) (*QuestionPayload, bool) {
	parts := strings.Split(string(data), "|")
	if len(parts) < minDelimitedSegments {
		return nil, false
	}
	for _, part := range parts {
		if part == "" {
			return nil, false
		}
	}
	return &QuestionPayload{
		Question: parts[0],
		Choices:  parts[1:],
	}, true
}
