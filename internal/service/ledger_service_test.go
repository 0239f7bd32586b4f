package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/cipherquiz-api/internal/codec"
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

// ============================================================================
// Моки репозиториев реестра
// Используются также в vault_service_test.go и score_service_test.go
// ============================================================================

// MockTopicRepository реализует repository.TopicRepository
type MockTopicRepository struct {
	mock.Mock
}

func (m *MockTopicRepository) Create(topic *entity.Topic) error {
	args := m.Called(topic)
	return args.Error(0)
}

func (m *MockTopicRepository) GetByAddress(address entity.Address) (*entity.Topic, error) {
	args := m.Called(address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Topic), args.Error(1)
}

func (m *MockTopicRepository) GetByName(name string) (*entity.Topic, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Topic), args.Error(1)
}

func (m *MockTopicRepository) List(activeOnly bool, limit, offset int) ([]entity.Topic, int64, error) {
	args := m.Called(activeOnly, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.Topic), args.Get(1).(int64), args.Error(2)
}

// MockQuizSetRepository реализует repository.QuizSetRepository
type MockQuizSetRepository struct {
	mock.Mock
}

func (m *MockQuizSetRepository) CreateWithFunding(quizSet *entity.QuizSet, vault *entity.Vault) error {
	args := m.Called(quizSet, vault)
	return args.Error(0)
}

func (m *MockQuizSetRepository) GetByAddress(address entity.Address) (*entity.QuizSet, error) {
	args := m.Called(address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.QuizSet), args.Error(1)
}

func (m *MockQuizSetRepository) ListByAuthority(authority entity.Identity, limit, offset int) ([]entity.QuizSet, int64, error) {
	args := m.Called(authority, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.QuizSet), args.Get(1).(int64), args.Error(2)
}

func (m *MockQuizSetRepository) ListByTopic(topic entity.Address, limit, offset int) ([]entity.QuizSet, int64, error) {
	args := m.Called(topic, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.QuizSet), args.Get(1).(int64), args.Error(2)
}

func (m *MockQuizSetRepository) SetWinner(address entity.Address, winner entity.Identity, correctAnswers uint32) error {
	args := m.Called(address, winner, correctAnswers)
	return args.Error(0)
}

func (m *MockQuizSetRepository) ClaimReward(address entity.Address, claimer entity.Identity) (uint64, error) {
	args := m.Called(address, claimer)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockQuizSetRepository) GetVault(quizSet entity.Address) (*entity.Vault, error) {
	args := m.Called(quizSet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Vault), args.Error(1)
}

// MockQuestionBlockRepository реализует repository.QuestionBlockRepository
type MockQuestionBlockRepository struct {
	mock.Mock
}

func (m *MockQuestionBlockRepository) Create(block *entity.QuestionBlock) (bool, error) {
	args := m.Called(block)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuestionBlockRepository) GetByAddress(address entity.Address) (*entity.QuestionBlock, error) {
	args := m.Called(address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.QuestionBlock), args.Error(1)
}

func (m *MockQuestionBlockRepository) GetByQuizSetAndIndex(quizSet entity.Address, index uint32) (*entity.QuestionBlock, error) {
	args := m.Called(quizSet, index)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.QuestionBlock), args.Error(1)
}

func (m *MockQuestionBlockRepository) ListByQuizSet(quizSet entity.Address) ([]entity.QuestionBlock, error) {
	args := m.Called(quizSet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.QuestionBlock), args.Error(1)
}

// MockScoreRepository реализует repository.ScoreRepository
type MockScoreRepository struct {
	mock.Mock
}

func (m *MockScoreRepository) ApplyCompletion(history *entity.QuizHistory) error {
	args := m.Called(history)
	return args.Error(0)
}

func (m *MockScoreRepository) GetUserScore(user entity.Identity, topic entity.Address) (*entity.UserScore, error) {
	args := m.Called(user, topic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.UserScore), args.Error(1)
}

func (m *MockScoreRepository) ListByUser(user entity.Identity) ([]entity.UserScore, error) {
	args := m.Called(user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.UserScore), args.Error(1)
}

func (m *MockScoreRepository) TopicLeaderboard(topic entity.Address, limit int) ([]entity.UserScore, error) {
	args := m.Called(topic, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.UserScore), args.Error(1)
}

func (m *MockScoreRepository) GlobalLeaderboard(limit int) ([]repository.GlobalScore, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.GlobalScore), args.Error(1)
}

func (m *MockScoreRepository) ListHistory(user entity.Identity, limit, offset int) ([]entity.QuizHistory, int64, error) {
	args := m.Called(user, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.QuizHistory), args.Get(1).(int64), args.Error(2)
}

// MockAccountRepository реализует repository.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetOrCreate(identity entity.Identity, initialBalance uint64) (*entity.Account, error) {
	args := m.Called(identity, initialBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByIdentity(identity entity.Identity) (*entity.Account, error) {
	args := m.Called(identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Account), args.Error(1)
}

func (m *MockAccountRepository) Credit(identity entity.Identity, amount uint64) error {
	args := m.Called(identity, amount)
	return args.Error(0)
}

// ============================================================================
// Хелперы
// ============================================================================

type ledgerMocks struct {
	topicRepo    *MockTopicRepository
	quizSetRepo  *MockQuizSetRepository
	questionRepo *MockQuestionBlockRepository
	scoreRepo    *MockScoreRepository
	accountRepo  *MockAccountRepository
}

func createTestLedgerService(cfg LedgerConfig) (*LedgerService, *ledgerMocks) {
	m := &ledgerMocks{
		topicRepo:    new(MockTopicRepository),
		quizSetRepo:  new(MockQuizSetRepository),
		questionRepo: new(MockQuestionBlockRepository),
		scoreRepo:    new(MockScoreRepository),
		accountRepo:  new(MockAccountRepository),
	}
	svc := NewLedgerService(m.topicRepo, m.quizSetRepo, m.questionRepo, m.scoreRepo, m.accountRepo, codec.NewDefault(), cfg)
	return svc, m
}

func defaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		InitialBalance: 1000000,
		VerifierSeed:   "test-verifier-seed",
	}
}

// validContent — корректный контент вопроса в формате с разделителем
// Контент обязан умещаться в 64-байтовый блок вместе с UTF-8 кириллицей.
const validContent = "Столица?|Париж|Лондон|Рим|Бонн"

// ============================================================================
// Тесты для CreateTopic
// ============================================================================

func TestLedgerService_CreateTopic_Success(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	m.topicRepo.On("Create", mock.AnythingOfType("*entity.Topic")).Return(nil)

	// Act
	topic, err := svc.CreateTopic("alice", "История", 3, 500)

	// Assert
	require.NoError(t, err, "Создание темы должно быть успешным")
	assert.Equal(t, entity.TopicAddress("История"), topic.Address, "Адрес темы выводится из имени")
	assert.Equal(t, entity.Identity("alice"), topic.Owner)
	assert.True(t, topic.IsActive, "Новая тема активна")
	assert.Equal(t, uint32(3), topic.MinQuestionCount)
	assert.Equal(t, uint64(500), topic.MinRewardAmount)
	m.topicRepo.AssertExpectations(t)
}

func TestLedgerService_CreateTopic_DuplicateName(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	m.topicRepo.On("Create", mock.AnythingOfType("*entity.Topic")).Return(apperrors.ErrAlreadyExists)

	// Act
	topic, err := svc.CreateTopic("alice", "История", 1, 0)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists, "Повтор имени темы — конфликт, а не перезапись")
	assert.Nil(t, topic)
}

func TestLedgerService_CreateTopic_Validation(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())

	// Act: пустой владелец
	_, err := svc.CreateTopic("", "История", 1, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// Act: пустое имя
	_, err = svc.CreateTopic("alice", "", 1, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// Act: имя длиннее лимита
	long := make([]byte, entity.MaxNameLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = svc.CreateTopic("alice", string(long), 1, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// Assert: до репозитория дойти не должны
	m.topicRepo.AssertNotCalled(t, "Create")
}

// ============================================================================
// Тесты для CreateQuizSet
// ============================================================================

func TestLedgerService_CreateQuizSet_Success(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())

	var capturedVault *entity.Vault
	m.accountRepo.On("GetOrCreate", entity.Identity("alice"), uint64(1000000)).
		Return(&entity.Account{Identity: "alice", Balance: 1000000}, nil)
	m.quizSetRepo.On("CreateWithFunding", mock.AnythingOfType("*entity.QuizSet"), mock.AnythingOfType("*entity.Vault")).
		Run(func(args mock.Arguments) {
			capturedVault = args.Get(1).(*entity.Vault)
		}).
		Return(nil)

	// Act: набор без темы (нулевой адрес)
	quizSet, err := svc.CreateQuizSet("alice", entity.Address{}, "Мой набор", 42, 5, 500)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, entity.QuizSetAddress("alice", 42), quizSet.Address, "Адрес выводится из (authority, uniqueID)")
	assert.Equal(t, uint32(5), quizSet.QuestionCount)
	assert.False(t, quizSet.IsInitialized, "Набор собирается блоками, не при создании")
	require.NotNil(t, capturedVault, "Эскроу создаётся вместе с набором")
	assert.Equal(t, uint64(500), capturedVault.Balance, "Эскроу наполнено на rewardAmount")
	assert.Equal(t, quizSet.Address, capturedVault.QuizSetAddress)
	m.quizSetRepo.AssertExpectations(t)
	m.accountRepo.AssertExpectations(t)
	// Минимумы темы не проверяются для набора без темы
	m.topicRepo.AssertNotCalled(t, "GetByAddress")
}

func TestLedgerService_CreateQuizSet_TopicMinimums(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	topicAddr := entity.TopicAddress("История")
	m.topicRepo.On("GetByAddress", topicAddr).Return(&entity.Topic{
		Address:          topicAddr,
		Name:             "История",
		IsActive:         true,
		MinQuestionCount: 5,
		MinRewardAmount:  1000,
	}, nil)

	// Act: вопросов меньше минимума темы
	_, err := svc.CreateQuizSet("alice", topicAddr, "Набор", 1, 3, 2000)
	assert.ErrorIs(t, err, repository.ErrInvalidQuestionCount)

	// Act: награда меньше минимума темы
	_, err = svc.CreateQuizSet("alice", topicAddr, "Набор", 1, 10, 500)
	assert.ErrorIs(t, err, repository.ErrInsufficientReward)

	// Assert: состояние не менялось
	m.quizSetRepo.AssertNotCalled(t, "CreateWithFunding")
	m.accountRepo.AssertNotCalled(t, "GetOrCreate")
}

func TestLedgerService_CreateQuizSet_InactiveTopic(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	topicAddr := entity.TopicAddress("Архив")
	m.topicRepo.On("GetByAddress", topicAddr).Return(&entity.Topic{
		Address:  topicAddr,
		Name:     "Архив",
		IsActive: false,
	}, nil)

	// Act
	_, err := svc.CreateQuizSet("alice", topicAddr, "Набор", 1, 5, 0)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "Неактивная тема не принимает новые наборы")
	m.quizSetRepo.AssertNotCalled(t, "CreateWithFunding")
}

func TestLedgerService_CreateQuizSet_QuestionCountBounds(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())

	// Act
	_, errZero := svc.CreateQuizSet("alice", entity.Address{}, "Набор", 1, 0, 0)
	_, errAbove := svc.CreateQuizSet("alice", entity.Address{}, "Набор", 1, entity.MaxQuestionCount+1, 0)

	// Assert
	assert.ErrorIs(t, errZero, apperrors.ErrValidation)
	assert.ErrorIs(t, errAbove, apperrors.ErrValidation)
	m.quizSetRepo.AssertNotCalled(t, "CreateWithFunding")
}

func TestLedgerService_CreateQuizSet_InsufficientFunds(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	m.accountRepo.On("GetOrCreate", entity.Identity("poor"), uint64(1000000)).
		Return(&entity.Account{Identity: "poor", Balance: 10}, nil)
	m.quizSetRepo.On("CreateWithFunding", mock.Anything, mock.Anything).
		Return(repository.ErrInsufficientFunds)

	// Act
	_, err := svc.CreateQuizSet("poor", entity.Address{}, "Дорогой набор", 1, 5, 99999999)

	// Assert
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)
}

// ============================================================================
// Тесты для AddQuestionBlock
// ============================================================================

func testQuizSet(authority entity.Identity, questionCount uint32) *entity.QuizSet {
	return &entity.QuizSet{
		Address:       entity.QuizSetAddress(authority, 7),
		Authority:     authority,
		Name:          "Тестовый набор",
		UniqueID:      7,
		QuestionCount: questionCount,
	}
}

func TestLedgerService_AddQuestionBlock_Success(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 3)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)
	m.questionRepo.On("Create", mock.AnythingOfType("*entity.QuestionBlock")).Return(false, nil)

	// Act
	block, initialized, err := svc.AddQuestionBlock("alice", quizSet.Address, 1, validContent, "Париж", 77, nil)

	// Assert
	require.NoError(t, err)
	assert.False(t, initialized, "Первый блок из трёх не собирает набор")
	assert.Equal(t, entity.QuestionBlockAddress(quizSet.Address, 1), block.Address)
	assert.Len(t, block.EncryptedContent, codec.BlockSize, "Контент хранится блоком фиксированного размера")
	assert.Len(t, block.EncryptedAnswer, codec.BlockSize)
	assert.Len(t, block.VerifierKey, entity.VerifierKeySize, "Ключ верификации выведен из секрета сервиса")
	assert.Equal(t, uint64(77), block.Nonce)

	// Блок расшифровывается обратно тем же кодеком
	c := codec.NewDefault()
	plaintext, err := c.Decode(block.EncryptedContent, block.Nonce)
	require.NoError(t, err)
	assert.Equal(t, validContent, string(plaintext))
	answer, err := c.Decode(block.EncryptedAnswer, block.Nonce)
	require.NoError(t, err)
	assert.Equal(t, "Париж", string(answer))
	m.questionRepo.AssertExpectations(t)
}

func TestLedgerService_AddQuestionBlock_WrongCaller(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 3)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	// Act
	_, _, err := svc.AddQuestionBlock("mallory", quizSet.Address, 1, validContent, "Париж", 1, nil)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "Блоки добавляет только автор набора")
	m.questionRepo.AssertNotCalled(t, "Create")
}

func TestLedgerService_AddQuestionBlock_IndexOutOfRange(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 3)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	// Act: индексы нумеруются с единицы
	_, _, errZero := svc.AddQuestionBlock("alice", quizSet.Address, 0, validContent, "Париж", 1, nil)
	_, _, errAbove := svc.AddQuestionBlock("alice", quizSet.Address, 4, validContent, "Париж", 1, nil)

	// Assert
	assert.ErrorIs(t, errZero, repository.ErrIndexOutOfRange)
	assert.ErrorIs(t, errAbove, repository.ErrIndexOutOfRange)
	m.questionRepo.AssertNotCalled(t, "Create")
}

func TestLedgerService_AddQuestionBlock_AlreadyInitialized(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 3)
	quizSet.QuestionsAdded = 3
	quizSet.IsInitialized = true
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	// Act
	_, _, err := svc.AddQuestionBlock("alice", quizSet.Address, 2, validContent, "Париж", 1, nil)

	// Assert
	assert.ErrorIs(t, err, repository.ErrQuizSetInitialized, "Собранный набор неизменяем")
	m.questionRepo.AssertNotCalled(t, "Create")
}

func TestLedgerService_AddQuestionBlock_MalformedContent(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 3)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	// Act: меньше пяти сегментов и не JSON
	_, _, err := svc.AddQuestionBlock("alice", quizSet.Address, 1, "вопрос|один вариант", "x", 1, nil)

	// Assert
	assert.ErrorIs(t, err, codec.ErrMalformedContent, "Нечитаемый контент не шифруется и не сохраняется")
	m.questionRepo.AssertNotCalled(t, "Create")
}

func TestLedgerService_AddQuestionBlock_LastBlockInitializes(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 2)
	quizSet.QuestionsAdded = 1
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)
	m.questionRepo.On("Create", mock.AnythingOfType("*entity.QuestionBlock")).Return(true, nil)

	// Act
	_, initialized, err := svc.AddQuestionBlock("alice", quizSet.Address, 2, validContent, "Париж", 2, nil)

	// Assert
	require.NoError(t, err)
	assert.True(t, initialized, "Последний блок собирает набор")
}

func TestLedgerService_AddQuestionBlock_NoSeedNoKey(t *testing.T) {
	// Arrange: сервис без секрета верификации
	svc, m := createTestLedgerService(LedgerConfig{InitialBalance: 1000})
	quizSet := testQuizSet("alice", 3)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	// Act: автор ключ не передал
	_, _, err := svc.AddQuestionBlock("alice", quizSet.Address, 1, validContent, "Париж", 1, nil)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrValidation, "Без секрета сервиса ключ обязателен")
	m.questionRepo.AssertNotCalled(t, "Create")
}

func TestLedgerService_AddEncryptedQuestionBlock_SizeEnforced(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 3)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	good := make([]byte, codec.BlockSize)
	short := make([]byte, codec.BlockSize-1)
	key := make([]byte, entity.VerifierKeySize)

	// Act / Assert: размеры проверяются строго
	_, _, err := svc.AddEncryptedQuestionBlock("alice", quizSet.Address, 1, short, good, key, 1)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = svc.AddEncryptedQuestionBlock("alice", quizSet.Address, 1, good, short, key, 1)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, _, err = svc.AddEncryptedQuestionBlock("alice", quizSet.Address, 1, good, good, key[:16], 1)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	m.questionRepo.AssertNotCalled(t, "Create")
}

func TestLedgerService_AddEncryptedQuestionBlock_StoredVerbatim(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 1)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	content := make([]byte, codec.BlockSize)
	answer := make([]byte, codec.BlockSize)
	key := make([]byte, entity.VerifierKeySize)
	for i := range content {
		content[i] = byte(i)
		answer[i] = byte(255 - i)
	}

	var captured *entity.QuestionBlock
	m.questionRepo.On("Create", mock.AnythingOfType("*entity.QuestionBlock")).
		Run(func(args mock.Arguments) {
			captured = args.Get(0).(*entity.QuestionBlock)
		}).
		Return(true, nil)

	// Act
	_, initialized, err := svc.AddEncryptedQuestionBlock("alice", quizSet.Address, 1, content, answer, key, 9)

	// Assert: сервис не трогает байты, зашифрованные автором
	require.NoError(t, err)
	assert.True(t, initialized)
	require.NotNil(t, captured)
	assert.Equal(t, content, captured.EncryptedContent)
	assert.Equal(t, answer, captured.EncryptedAnswer)
	assert.Equal(t, uint64(9), captured.Nonce)
}

// ============================================================================
// Тесты для GetQuestionPayload
// ============================================================================

func TestLedgerService_GetQuestionPayload_HidesAnswer(t *testing.T) {
	// Arrange: структурированный контент несёт правильный ответ внутри
	svc, m := createTestLedgerService(defaultLedgerConfig())
	c := codec.NewDefault()
	content := `{"question":"2+2?","choices":["3","4"],"correctAnswer":"4"}`
	encrypted, err := c.Encode([]byte(content), 5)
	require.NoError(t, err)

	quizSetAddr := entity.QuizSetAddress("alice", 7)
	m.questionRepo.On("GetByQuizSetAndIndex", quizSetAddr, uint32(1)).Return(&entity.QuestionBlock{
		Address:          entity.QuestionBlockAddress(quizSetAddr, 1),
		QuizSetAddress:   quizSetAddr,
		QuestionIndex:    1,
		EncryptedContent: encrypted,
		Nonce:            5,
	}, nil)

	// Act
	payload, err := svc.GetQuestionPayload(quizSetAddr, 1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "2+2?", payload.Question)
	assert.Equal(t, []string{"3", "4"}, payload.Choices)
	assert.Empty(t, payload.CorrectAnswer, "Правильный ответ наружу не выходит")
}

// ============================================================================
// Тесты для RecordCompletion
// ============================================================================

func TestLedgerService_RecordCompletion_Success(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	topicAddr := entity.TopicAddress("История")
	quizSet := testQuizSet("alice", 5)
	quizSet.TopicAddress = topicAddr
	quizSet.RewardAmount = 500
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)
	m.scoreRepo.On("ApplyCompletion", mock.AnythingOfType("*entity.QuizHistory")).Return(nil)

	completedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Act
	history, err := svc.RecordCompletion("bob", quizSet.Address, 4, completedAt, false)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, entity.QuizHistoryAddress("bob", quizSet.Address, completedAt.Unix()), history.Address)
	assert.Equal(t, topicAddr, history.TopicAddress, "Тема набора попадает в журнал")
	assert.Equal(t, uint32(4), history.Score)
	assert.Equal(t, uint32(5), history.TotalQuestions)
	assert.False(t, history.IsWinner)
	assert.Zero(t, history.RewardClaimed, "Публичная запись без награды")
	m.scoreRepo.AssertExpectations(t)
}

func TestLedgerService_RecordCompletion_ScoreAboveQuestionCount(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 5)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	// Act
	_, err := svc.RecordCompletion("bob", quizSet.Address, 6, time.Now(), false)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrValidation, "Счёт не может превышать число вопросов")
	m.scoreRepo.AssertNotCalled(t, "ApplyCompletion")
}

func TestLedgerService_RecordCompletion_SelfDeclaredWinner(t *testing.T) {
	// Arrange: победитель набора не назначен
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 5)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	// Act
	_, err := svc.RecordCompletion("bob", quizSet.Address, 5, time.Now(), true)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "Самодекларация победы невозможна")
	m.scoreRepo.AssertNotCalled(t, "ApplyCompletion")
}

func TestLedgerService_RecordCompletion_WinnerGetsReward(t *testing.T) {
	// Arrange: победитель зафиксирован протоколом верификации
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 5)
	quizSet.Winner = "bob"
	quizSet.RewardAmount = 500
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)
	m.scoreRepo.On("ApplyCompletion", mock.AnythingOfType("*entity.QuizHistory")).Return(nil)

	// Act
	history, err := svc.RecordCompletion("bob", quizSet.Address, 5, time.Now(), true)

	// Assert
	require.NoError(t, err)
	assert.True(t, history.IsWinner)
	assert.Equal(t, uint64(500), history.RewardClaimed, "Награда победителя фиксируется в журнале")
}

func TestLedgerService_RecordCompletion_Duplicate(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 5)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)
	m.scoreRepo.On("ApplyCompletion", mock.AnythingOfType("*entity.QuizHistory")).
		Return(repository.ErrDuplicateCompletion)

	// Act
	_, err := svc.RecordCompletion("bob", quizSet.Address, 3, time.Now(), false)

	// Assert
	assert.ErrorIs(t, err, repository.ErrDuplicateCompletion)
}

func TestLedgerService_RecordCompletion_ConcurrentSerialized(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	quizSet := testQuizSet("alice", 5)
	m.quizSetRepo.On("GetByAddress", quizSet.Address).Return(quizSet, nil)

	// Записи одного участника по одному набору не должны перекрываться
	var inFlight int32
	var applied int32
	m.scoreRepo.On("ApplyCompletion", mock.AnythingOfType("*entity.QuizHistory")).
		Run(func(args mock.Arguments) {
			n := atomic.AddInt32(&inFlight, 1)
			assert.LessOrEqual(t, n, int32(1), "Конкурентные фиксации должны идти по очереди")
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			atomic.AddInt32(&applied, 1)
		}).
		Return(nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	const workers = 8

	// Act
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.RecordCompletion("bob", quizSet.Address, 3, base.Add(time.Duration(i)*time.Second), false)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Assert
	assert.Equal(t, int32(workers), atomic.LoadInt32(&applied), "Каждая фиксация должна дойти до репозитория")
}

// ============================================================================
// Тесты для GetAccount
// ============================================================================

func TestLedgerService_GetAccount_CreatesOnFirstUse(t *testing.T) {
	// Arrange
	svc, m := createTestLedgerService(defaultLedgerConfig())
	account := &entity.Account{
		Address:  entity.AccountAddress("bob"),
		Identity: "bob",
		Balance:  1000000,
	}
	m.accountRepo.On("GetOrCreate", entity.Identity("bob"), uint64(1000000)).Return(account, nil)

	// Act
	got, err := svc.GetAccount("bob")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000), got.Balance, "Первое обращение открывает счёт со стартовым балансом")

	// Пустая личность отклоняется до репозитория
	_, err = svc.GetAccount("  ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
