package websocket

// Типы событий реестра
const (
	// ANSWER_VERIFIED сообщает вердикт проверки ответа
	ANSWER_VERIFIED = "ANSWER_VERIFIED"

	// QUIZ_SET_INITIALIZED сообщает, что набор собран и готов к прохождению
	QUIZ_SET_INITIALIZED = "QUIZ_SET_INITIALIZED"

	// QUIZ_WINNER сообщает о фиксации победителя набора
	QUIZ_WINNER = "QUIZ_WINNER"

	// VAULT_CLAIMED сообщает о выплате эскроу победителю
	VAULT_CLAIMED = "VAULT_CLAIMED"
)

// Event — конверт события, уходящего клиентам
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
