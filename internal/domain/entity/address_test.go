package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	// Arrange
	parts := [][]byte{[]byte("alice"), uint64LE(7)}

	// Act
	first := Derive("quiz_set", parts...)
	second := Derive("quiz_set", parts...)

	// Assert
	assert.Equal(t, first, second, "Одинаковые входы должны давать одинаковый адрес")
	assert.False(t, first.IsZero(), "Производный адрес не должен быть нулевым")
}

func TestDerive_NamespaceSeparation(t *testing.T) {
	// Arrange
	seed := []byte("Mathematics")

	// Act
	topicAddr := Derive("topic", seed)
	vaultAddr := Derive("vault", seed)

	// Assert: одинаковые сиды в разных пространствах имён дают разные адреса
	assert.NotEqual(t, topicAddr, vaultAddr, "Разные пространства имён должны давать разные адреса")
}

func TestDerive_PartOrderMatters(t *testing.T) {
	// Act
	ab := Derive("test", []byte("a"), []byte("b"))
	ba := Derive("test", []byte("b"), []byte("a"))

	// Assert
	assert.NotEqual(t, ab, ba, "Порядок частей сида должен влиять на адрес")
}

func TestDerive_NoConcatenationAmbiguity(t *testing.T) {
	// Act: ("ab","c") и ("a","bc") дают одну конкатенацию, но разные адреса
	first := Derive("test", []byte("ab"), []byte("c"))
	second := Derive("test", []byte("a"), []byte("bc"))

	// Assert
	assert.NotEqual(t, first, second, "Length-префикс частей должен исключать неоднозначность конкатенации")
}

func TestAddressHelpers_MatchRawDerive(t *testing.T) {
	// Arrange
	authority := Identity("creator-1")
	quizSet := QuizSetAddress(authority, 42)

	// Act & Assert: хелперы — единственная каноническая раскладка сидов
	assert.Equal(t, Derive("topic", []byte("Science")), TopicAddress("Science"))
	assert.Equal(t, Derive("quiz_set", authority.Bytes(), uint64LE(42)), quizSet)
	assert.Equal(t, Derive("question_block", quizSet[:], uint32LE(3)), QuestionBlockAddress(quizSet, 3))
	assert.Equal(t, Derive("vault", quizSet[:]), VaultAddress(quizSet))
}

func TestQuestionBlockAddress_DistinctPerIndex(t *testing.T) {
	// Arrange
	quizSet := QuizSetAddress("creator-1", 1)

	// Act
	addresses := make(map[Address]bool)
	for i := uint32(1); i <= 50; i++ {
		addresses[QuestionBlockAddress(quizSet, i)] = true
	}

	// Assert
	assert.Len(t, addresses, 50, "Каждый индекс вопроса должен давать уникальный адрес")
}

func TestQuizHistoryAddress_TimestampInSeed(t *testing.T) {
	// Arrange
	quizSet := QuizSetAddress("creator-1", 1)

	// Act
	first := QuizHistoryAddress("user-1", quizSet, 1700000000)
	second := QuizHistoryAddress("user-1", quizSet, 1700000001)

	// Assert: метка времени входит в сид, повторные прохождения различимы
	assert.NotEqual(t, first, second, "Разные метки времени должны давать разные адреса записей журнала")
}

func TestParseAddress_Roundtrip(t *testing.T) {
	// Arrange
	original := TopicAddress("History")

	// Act
	parsed, err := ParseAddress(original.String())

	// Assert
	require.NoError(t, err, "ParseAddress не должен возвращать ошибку для валидного hex")
	assert.Equal(t, original, parsed, "Адрес должен восстанавливаться из hex-представления")
}

func TestParseAddress_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"пустая строка", ""},
		{"не hex", "zz00000000000000000000000000000000000000000000000000000000000000"},
		{"короткий hex", "abcdef"},
		{"лишние символы", TopicAddress("x").String() + "00"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAddress(tc.input)
			assert.Error(t, err, "ParseAddress должен возвращать ошибку для невалидного входа")
		})
	}
}

func TestAddress_ScanValue_Roundtrip(t *testing.T) {
	// Arrange
	original := VaultAddress(QuizSetAddress("creator-1", 9))

	// Act
	val, err := original.Value()
	require.NoError(t, err, "Value не должен возвращать ошибку")

	var scanned Address
	err = scanned.Scan(val)

	// Assert
	require.NoError(t, err, "Scan не должен возвращать ошибку для значения из Value")
	assert.Equal(t, original, scanned, "Адрес должен переживать цикл Value/Scan")
}

func TestAddress_Scan_Bytes(t *testing.T) {
	// Arrange
	original := TopicAddress("Geography")
	var scanned Address

	// Act: драйвер может вернуть колонку как []byte
	err := scanned.Scan([]byte(original.String()))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, original, scanned)
}

func TestAddress_Scan_Nil(t *testing.T) {
	// Arrange
	var addr Address

	// Act
	err := addr.Scan(nil)

	// Assert
	require.NoError(t, err, "Scan не должен возвращать ошибку для NULL")
	assert.True(t, addr.IsZero(), "NULL должен давать нулевой адрес")
}

func TestAddress_Scan_InvalidType(t *testing.T) {
	// Arrange
	var addr Address

	// Act
	err := addr.Scan(12345)

	// Assert
	assert.Error(t, err, "Scan должен возвращать ошибку для неподдерживаемого типа")
}

func TestAddress_JSON_Roundtrip(t *testing.T) {
	// Arrange
	original := UserScoreAddress("user-1", TopicAddress("Math"))

	// Act
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Address
	err = json.Unmarshal(data, &decoded)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, original, decoded, "Адрес должен переживать JSON-сериализацию")
	assert.Equal(t, `"`+original.String()+`"`, string(data), "Адрес должен сериализоваться как hex-строка")
}
