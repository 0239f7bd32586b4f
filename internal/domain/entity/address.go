package entity

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
)

// AddressSize — размер адреса в байтах (SHA-256).
const AddressSize = 32

// addressScheme — тег версии раскладки сидов. Входит в прообраз хеша,
// поэтому смена раскладки меняет все адреса; менять только вместе с ней.
const addressScheme = "caq1"

// Пространства имён адресации. Единственная каноническая раскладка:
// адрес любой сущности выводится только через хелперы ниже.
const (
	nsAccount       = "account"
	nsTopic         = "topic"
	nsQuizSet       = "quiz_set"
	nsQuestionBlock = "question_block"
	nsUserScore     = "user_score"
	nsQuizHistory   = "quiz_history"
	nsVault         = "vault"
)

// Address — детерминированный адрес сущности в реестре.
// Хранится в БД и сериализуется в JSON как hex-строка (64 символа).
type Address [AddressSize]byte

// Identity — непрозрачный идентификатор участника (владелец темы,
// автор викторины, победитель). Управление ключами вне системы.
type Identity string

// Bytes возвращает идентификатор как байтовую последовательность для сидов.
func (i Identity) Bytes() []byte {
	return []byte(i)
}

// IsZero сообщает, что идентификатор не задан.
func (i Identity) IsZero() bool {
	return i == ""
}

// Derive вычисляет адрес по пространству имён и упорядоченным частям сида.
// Функция чистая и детерминированная: одинаковые входы всегда дают один адрес,
// разные — разные с криптографической вероятностью. Каждая часть кодируется
// с length-префиксом (uvarint), чтобы исключить неоднозначность конкатенации:
// ("ab","c") и ("a","bc") дают разные адреса.
func Derive(namespace string, parts ...[]byte) Address {
	h := sha256.New()
	h.Write([]byte(addressScheme))
	writeSeedPart(h, []byte(namespace))
	for _, p := range parts {
		writeSeedPart(h, p)
	}
	var addr Address
	h.Sum(addr[:0])
	return addr
}

func writeSeedPart(h hash.Hash, p []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(p)))
	h.Write(lenBuf[:n])
	h.Write(p)
}

// AccountAddress возвращает адрес счёта участника.
func AccountAddress(identity Identity) Address {
	return Derive(nsAccount, identity.Bytes())
}

// TopicAddress возвращает адрес темы. Сид строится только из имени,
// поэтому повторное создание темы с тем же именем — конфликт адреса.
func TopicAddress(name string) Address {
	return Derive(nsTopic, []byte(name))
}

// QuizSetAddress возвращает адрес набора вопросов.
// uniqueID различает наборы одного автора.
func QuizSetAddress(authority Identity, uniqueID uint64) Address {
	return Derive(nsQuizSet, authority.Bytes(), uint64LE(uniqueID))
}

// QuestionBlockAddress возвращает адрес блока вопроса внутри набора.
// questionIndex начинается с 1.
func QuestionBlockAddress(quizSet Address, questionIndex uint32) Address {
	return Derive(nsQuestionBlock, quizSet[:], uint32LE(questionIndex))
}

// UserScoreAddress возвращает адрес записи счёта участника в теме.
func UserScoreAddress(user Identity, topic Address) Address {
	return Derive(nsUserScore, user.Bytes(), topic[:])
}

// QuizHistoryAddress возвращает адрес записи журнала прохождения.
// Метка времени входит в сид: один участник может проходить набор многократно.
func QuizHistoryAddress(user Identity, quizSet Address, completedAt int64) Address {
	return Derive(nsQuizHistory, user.Bytes(), quizSet[:], int64LE(completedAt))
}

// VaultAddress возвращает адрес эскроу-хранилища набора вопросов.
func VaultAddress(quizSet Address) Address {
	return Derive(nsVault, quizSet[:])
}

func uint64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func uint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func int64LE(v int64) []byte {
	return uint64LE(uint64(v))
}

// ParseAddress разбирает hex-представление адреса.
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("invalid address length: got %d bytes, want %d", len(b), AddressSize)
	}
	var addr Address
	copy(addr[:], b)
	return addr, nil
}

// String возвращает hex-представление адреса.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero сообщает, что адрес не задан.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Short возвращает укороченную форму адреса для логов.
func (a Address) Short() string {
	return hex.EncodeToString(a[:4])
}

// Scan реализует интерфейс sql.Scanner для Address.
// Используется GORM для чтения hex-колонки из базы.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return errors.New("failed to scan Address: expected string or []byte")
	}

	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value реализует интерфейс driver.Valuer для Address.
// Используется GORM для записи адреса в базу как hex-строки.
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

// MarshalJSON сериализует адрес как hex-строку.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON разбирает адрес из hex-строки.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
