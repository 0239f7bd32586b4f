package helper

// ChoiceOption представляет вариант ответа для фронтенда
type ChoiceOption struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// ConvertChoicesToObjects преобразует массив строк в массив объектов с id и text.
// ID использует 0-based индексацию, совпадающую с порядком вариантов в блоке.
func ConvertChoicesToObjects(choices []string) []ChoiceOption {
	converted := make([]ChoiceOption, len(choices))
	for i, choice := range choices {
		// Дополнительная проверка на пустые строки
		if choice == "" {
			choice = "(пустой вариант)"
		}
		converted[i] = ChoiceOption{ID: i, Text: choice}
	}
	return converted
}
