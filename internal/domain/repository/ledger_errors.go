package repository

import "errors"

var (
	// ErrDuplicateIndex означает, что блок вопроса по этому индексу уже существует.
	ErrDuplicateIndex = errors.New("question block already exists at this index")
	// ErrIndexOutOfRange означает, что индекс вопроса вне диапазона [1, questionCount].
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrQuizSetInitialized означает, что набор уже собран полностью и блоки больше не принимает.
	ErrQuizSetInitialized = errors.New("quiz set is already initialized")
	// ErrInvalidQuestionCount означает, что количество вопросов нарушает минимум темы или глобальные границы.
	ErrInvalidQuestionCount = errors.New("invalid question count")
	// ErrInsufficientReward означает, что награда меньше минимума темы.
	ErrInsufficientReward = errors.New("reward amount below topic minimum")
	// ErrInsufficientFunds означает, что на счёте автора не хватает средств для эскроу.
	ErrInsufficientFunds = errors.New("insufficient account balance")
	// ErrDuplicateCompletion означает повтор записи журнала с тем же ключом (user, quizSet, completedAt).
	ErrDuplicateCompletion = errors.New("completion already recorded at this timestamp")
	// ErrNoWinnerSet означает попытку выплаты до определения победителя.
	ErrNoWinnerSet = errors.New("winner is not set")
	// ErrAlreadyClaimed означает, что награда уже выплачена.
	ErrAlreadyClaimed = errors.New("reward already claimed")
	// ErrWinnerAlreadySet означает, что победитель уже зафиксирован другой попыткой.
	ErrWinnerAlreadySet = errors.New("winner already set")
)
