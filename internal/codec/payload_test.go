package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuestionPayload_Delimited(t *testing.T) {
	// Act
	payload, err := ParseQuestionPayload([]byte("Столица Франции?|Лондон|Париж|Берлин|Мадрид"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Столица Франции?", payload.Question)
	assert.Equal(t, []string{"Лондон", "Париж", "Берлин", "Мадрид"}, payload.Choices)
	assert.Empty(t, payload.CorrectAnswer, "Формат с разделителем не содержит правильного ответа")
}

func TestParseQuestionPayload_DelimitedExtraChoices(t *testing.T) {
	// Act: сегментов больше пяти — все хвостовые становятся вариантами
	payload, err := ParseQuestionPayload([]byte("q|a|b|c|d|e|f"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "q", payload.Question)
	assert.Len(t, payload.Choices, 6)
}

func TestParseQuestionPayload_Structured(t *testing.T) {
	// Arrange
	data := []byte(`{"question":"2+2?","choices":["3","4","5","6"],"correctAnswer":"4"}`)

	// Act
	payload, err := ParseQuestionPayload(data)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "2+2?", payload.Question)
	assert.Equal(t, []string{"3", "4", "5", "6"}, payload.Choices)
	assert.Equal(t, "4", payload.CorrectAnswer)
}

func TestParseQuestionPayload_StructuredWithoutAnswer(t *testing.T) {
	// Act
	payload, err := ParseQuestionPayload([]byte(`{"question":"q","choices":["a","b"]}`))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "q", payload.Question)
	assert.Len(t, payload.Choices, 2)
}

func TestParseQuestionPayload_Malformed(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"пустой контент", []byte{}},
		{"мусор без разделителей", []byte("just some text")},
		{"четыре сегмента вместо пяти", []byte("q|a|b|c")},
		{"пустой сегмент", []byte("q||b|c|d")},
		{"JSON без question", []byte(`{"choices":["a","b","c","d"]}`)},
		{"JSON без choices", []byte(`{"question":"q"}`)},
		{"бинарный мусор", []byte{0x01, 0x02, 0x03, 0xFF}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseQuestionPayload(tc.data)
			assert.ErrorIs(t, err, ErrMalformedContent, "Нечитаемый контент должен давать ErrMalformedContent")
		})
	}
}

func TestParseQuestionPayload_StructuredTriedFirst(t *testing.T) {
	// Arrange: JSON, содержащий разделители внутри значений
	data := []byte(`{"question":"a|b?","choices":["c|d","e","f","g"]}`)

	// Act
	payload, err := ParseQuestionPayload(data)

	// Assert: самоописывающий формат имеет приоритет
	require.NoError(t, err)
	assert.Equal(t, "a|b?", payload.Question)
	assert.Equal(t, "c|d", payload.Choices[0])
}
