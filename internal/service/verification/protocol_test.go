package verification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/cipherquiz-api/internal/codec"
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	"github.com/yourusername/cipherquiz-api/internal/engine"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

// ============================================================================
// Фейки для протокола верификации
// Общие для protocol_test.go и attempt_test.go
// ============================================================================

// stubEngine позволяет задать поведение Submit и Await по отдельности
type stubEngine struct {
	submitFn func(req engine.ComparisonRequest) (string, error)
	awaitFn  func(ctx context.Context, requestID string) (*engine.ComparisonResult, error)
}

func (s *stubEngine) Submit(_ context.Context, req engine.ComparisonRequest) (string, error) {
	return s.submitFn(req)
}

func (s *stubEngine) Await(ctx context.Context, requestID string) (*engine.ComparisonResult, error) {
	return s.awaitFn(ctx, requestID)
}

// fakeQuestionRepo хранит блоки вопросов в памяти
type fakeQuestionRepo struct {
	mu     sync.Mutex
	blocks map[string]*entity.QuestionBlock
}

func newFakeQuestionRepo() *fakeQuestionRepo {
	return &fakeQuestionRepo{blocks: make(map[string]*entity.QuestionBlock)}
}

func blockKey(quizSet entity.Address, index uint32) string {
	return fmt.Sprintf("%s|%d", quizSet.String(), index)
}

func (r *fakeQuestionRepo) add(block *entity.QuestionBlock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[blockKey(block.QuizSetAddress, block.QuestionIndex)] = block
}

func (r *fakeQuestionRepo) Create(block *entity.QuestionBlock) (bool, error) {
	r.add(block)
	return false, nil
}

func (r *fakeQuestionRepo) GetByAddress(address entity.Address) (*entity.QuestionBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, block := range r.blocks {
		if block.Address == address {
			return block, nil
		}
	}
	return nil, fmt.Errorf("%w: question block", apperrors.ErrNotFound)
}

func (r *fakeQuestionRepo) GetByQuizSetAndIndex(quizSet entity.Address, index uint32) (*entity.QuestionBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	block, ok := r.blocks[blockKey(quizSet, index)]
	if !ok {
		return nil, fmt.Errorf("%w: question block %d", apperrors.ErrNotFound, index)
	}
	return block, nil
}

func (r *fakeQuestionRepo) ListByQuizSet(quizSet entity.Address) ([]entity.QuestionBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.QuestionBlock
	for _, block := range r.blocks {
		if block.QuizSetAddress == quizSet {
			out = append(out, *block)
		}
	}
	return out, nil
}

// fakeQuizSetRepo хранит наборы в памяти; SetWinner повторяет CAS-семантику
// настоящего хранилища (победитель фиксируется не более одного раза)
type fakeQuizSetRepo struct {
	mu   sync.Mutex
	sets map[entity.Address]*entity.QuizSet
}

func newFakeQuizSetRepo(sets ...*entity.QuizSet) *fakeQuizSetRepo {
	r := &fakeQuizSetRepo{sets: make(map[entity.Address]*entity.QuizSet)}
	for _, s := range sets {
		r.sets[s.Address] = s
	}
	return r
}

func (r *fakeQuizSetRepo) CreateWithFunding(quizSet *entity.QuizSet, vault *entity.Vault) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[quizSet.Address] = quizSet
	return nil
}

func (r *fakeQuizSetRepo) GetByAddress(address entity.Address) (*entity.QuizSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[address]
	if !ok {
		return nil, fmt.Errorf("%w: quiz set %s", apperrors.ErrNotFound, address.Short())
	}
	snapshot := *set
	return &snapshot, nil
}

func (r *fakeQuizSetRepo) ListByAuthority(authority entity.Identity, limit, offset int) ([]entity.QuizSet, int64, error) {
	return nil, 0, nil
}

func (r *fakeQuizSetRepo) ListByTopic(topic entity.Address, limit, offset int) ([]entity.QuizSet, int64, error) {
	return nil, 0, nil
}

func (r *fakeQuizSetRepo) SetWinner(address entity.Address, winner entity.Identity, correctAnswers uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sets[address]
	if !ok {
		return fmt.Errorf("%w: quiz set %s", apperrors.ErrNotFound, address.Short())
	}
	if !set.Winner.IsZero() {
		return repository.ErrWinnerAlreadySet
	}
	set.Winner = winner
	set.CorrectAnswersCount = correctAnswers
	return nil
}

func (r *fakeQuizSetRepo) ClaimReward(address entity.Address, claimer entity.Identity) (uint64, error) {
	return 0, fmt.Errorf("%w: claim is not supported by fake", apperrors.ErrValidation)
}

func (r *fakeQuizSetRepo) GetVault(quizSet entity.Address) (*entity.Vault, error) {
	return nil, fmt.Errorf("%w: vault", apperrors.ErrNotFound)
}

// winnerOf возвращает текущего победителя набора
func (r *fakeQuizSetRepo) winnerOf(address entity.Address) entity.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets[address].Winner
}

// completionCall — одна зафиксированная запись прохождения
type completionCall struct {
	user     entity.Identity
	quizSet  entity.Address
	score    uint32
	isWinner bool
}

type fakeCompletions struct {
	mu    sync.Mutex
	calls []completionCall
	err   error
}

func (f *fakeCompletions) RecordCompletion(user entity.Identity, quizSet entity.Address, score uint32, completedAt time.Time, isWinner bool) (*entity.QuizHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, completionCall{user: user, quizSet: quizSet, score: score, isWinner: isWinner})
	ts := completedAt.Unix()
	return &entity.QuizHistory{
		Address:        entity.QuizHistoryAddress(user, quizSet, ts),
		User:           user,
		QuizSetAddress: quizSet,
		CompletedAt:    ts,
		Score:          score,
		IsWinner:       isWinner,
	}, nil
}

func (f *fakeCompletions) recorded() []completionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]completionCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeScores struct {
	mu     sync.Mutex
	topics []entity.Address
}

func (f *fakeScores) InvalidateLeaderboards(topic entity.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
}

func (f *fakeScores) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics)
}

type notifierCall struct {
	recipient      string
	quizSetName    string
	rewardAmount   uint64
	idempotencyKey string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
}

func (f *fakeNotifier) SendWinnerNotification(_ context.Context, recipient, quizSetName string, rewardAmount uint64, idempotencyKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifierCall{recipient: recipient, quizSetName: quizSetName, rewardAmount: rewardAmount, idempotencyKey: idempotencyKey})
	return nil
}

func (f *fakeNotifier) notifications() []notifierCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notifierCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeCache реализует SetNX поверх обычной map; без TTL
type fakeCache struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{keys: make(map[string]bool)}
}

func (c *fakeCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func (c *fakeCache) SetJSON(key string, value interface{}, expiration time.Duration) error {
	return nil
}

func (c *fakeCache) GetJSON(key string, dest interface{}) error {
	return apperrors.ErrNotFound
}

func (c *fakeCache) SetNX(key string, value interface{}, expiration time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

// ============================================================================
// Построитель фикстуры: инициализированный набор с настоящими шифроблоками
// ============================================================================

type quizFixture struct {
	quizSet   *entity.QuizSet
	quizRepo  *fakeQuizSetRepo
	questions *fakeQuestionRepo
	codec     *codec.Codec
}

// buildQuizFixture собирает набор из len(answers) вопросов: каждый ответ
// зашифрован настоящим кодеком, ключ верификации детерминирован по индексу
func buildQuizFixture(t *testing.T, answers []string) *quizFixture {
	t.Helper()

	cdc := codec.NewDefault()
	authority := entity.Identity("quiz-author")
	addr := entity.QuizSetAddress(authority, 7)
	quizSet := &entity.QuizSet{
		Address:        addr,
		Authority:      authority,
		Name:           "Столицы мира",
		UniqueID:       7,
		QuestionCount:  uint32(len(answers)),
		QuestionsAdded: uint32(len(answers)),
		IsInitialized:  true,
		RewardAmount:   5000,
		CreatedAt:      time.Now(),
	}

	questions := newFakeQuestionRepo()
	for i, answer := range answers {
		index := uint32(i + 1)
		nonce := uint64(1000 + i)

		encAnswer, err := cdc.Encode([]byte(answer), nonce)
		require.NoError(t, err, "ответ должен зашифроваться")
		// Кириллица в UTF-8 занимает два байта, контент держим короче блока
		content := fmt.Sprintf("Вопрос %d|А|Б|В|Г", index)
		encContent, err := cdc.Encode([]byte(content), nonce)
		require.NoError(t, err, "контент должен зашифроваться")

		key := make([]byte, entity.VerifierKeySize)
		key[0] = byte(index)

		questions.add(&entity.QuestionBlock{
			Address:          entity.QuestionBlockAddress(addr, index),
			QuizSetAddress:   addr,
			QuestionIndex:    index,
			EncryptedContent: encContent,
			EncryptedAnswer:  encAnswer,
			VerifierKey:      key,
			Nonce:            nonce,
			CreatedAt:        time.Now(),
		})
	}

	return &quizFixture{
		quizSet:   quizSet,
		quizRepo:  newFakeQuizSetRepo(quizSet),
		questions: questions,
		codec:     cdc,
	}
}

// protocol собирает протокол поверх фикстуры с заданным движком
func (f *quizFixture) protocol(eng engine.Engine) (*Protocol, *fakeCompletions, *fakeScores, *fakeNotifier) {
	completions := &fakeCompletions{}
	scores := &fakeScores{}
	notifier := &fakeNotifier{}
	p := NewProtocol(nil, &Dependencies{
		QuizSetRepo:  f.quizRepo,
		QuestionRepo: f.questions,
		CacheRepo:    newFakeCache(),
		Engine:       eng,
		Completions:  completions,
		Scores:       scores,
		Notifier:     notifier,
	})
	return p, completions, scores, notifier
}

// ============================================================================
// Тесты VerifyAnswer
// ============================================================================

func TestProtocol_VerifyAnswer_CorrectCandidate(t *testing.T) {
	// Arrange
	fix := buildQuizFixture(t, []string{"Москва"})
	p, _, _, _ := fix.protocol(engine.NewLocalEngine(fix.codec))

	// Act
	result, err := p.VerifyAnswer(context.Background(), "user-1", fix.quizSet.Address, 1, "Москва", time.Second)

	// Assert
	require.NoError(t, err, "Проверка верного ответа должна пройти")
	assert.True(t, result.Matched, "Вердикт должен быть 'совпало'")
	assert.Equal(t, StateResolvedCorrect, result.State, "Состояние должно быть resolved_correct")
	assert.Equal(t, uint32(1), result.QuestionIndex)
	assert.NotEmpty(t, result.RequestID, "Идентификатор запроса должен быть присвоен")
}

func TestProtocol_VerifyAnswer_WrongCandidate(t *testing.T) {
	// Arrange
	fix := buildQuizFixture(t, []string{"Москва"})
	p, _, _, _ := fix.protocol(engine.NewLocalEngine(fix.codec))

	// Act
	result, err := p.VerifyAnswer(context.Background(), "user-1", fix.quizSet.Address, 1, "Петербург", time.Second)

	// Assert
	require.NoError(t, err, "Неверный ответ — это вердикт, а не ошибка")
	assert.False(t, result.Matched, "Вердикт должен быть 'не совпало'")
	assert.Equal(t, StateResolvedIncorrect, result.State)
}

func TestProtocol_VerifyAnswer_EmptyCandidate(t *testing.T) {
	fix := buildQuizFixture(t, []string{"Москва"})
	p, _, _, _ := fix.protocol(engine.NewLocalEngine(fix.codec))

	_, err := p.VerifyAnswer(context.Background(), "user-1", fix.quizSet.Address, 1, "", time.Second)

	assert.ErrorIs(t, err, apperrors.ErrValidation, "Пустой кандидат должен отклоняться валидацией")
}

func TestProtocol_VerifyAnswer_UnknownQuestion(t *testing.T) {
	fix := buildQuizFixture(t, []string{"Москва"})
	p, _, _, _ := fix.protocol(engine.NewLocalEngine(fix.codec))

	_, err := p.VerifyAnswer(context.Background(), "user-1", fix.quizSet.Address, 5, "Москва", time.Second)

	assert.ErrorIs(t, err, apperrors.ErrNotFound, "Несуществующий индекс вопроса должен давать ErrNotFound")
}

func TestProtocol_VerifyAnswer_EngineUnavailable(t *testing.T) {
	// Arrange: движок отвергает задания
	fix := buildQuizFixture(t, []string{"Москва"})
	eng := engine.NewLocalEngine(fix.codec)
	eng.FailSubmit = true
	p, _, _, _ := fix.protocol(eng)

	// Act
	_, err := p.VerifyAnswer(context.Background(), "user-1", fix.quizSet.Address, 1, "Москва", time.Second)

	// Assert: отказ инфраструктуры пробрасывается, локального сравнения нет
	assert.ErrorIs(t, err, engine.ErrUnavailable, "Недоступность движка должна пробрасываться как есть")
}

func TestProtocol_VerifyAnswer_Timeout(t *testing.T) {
	// Arrange: движок принимает задание, но вердикт не приходит
	fix := buildQuizFixture(t, []string{"Москва"})
	eng := engine.NewLocalEngine(fix.codec)
	eng.Hang = true
	p, _, _, _ := fix.protocol(eng)

	// Act
	start := time.Now()
	_, err := p.VerifyAnswer(context.Background(), "user-1", fix.quizSet.Address, 1, "Москва", 50*time.Millisecond)

	// Assert
	assert.ErrorIs(t, err, ErrComputationTimeout, "Отсутствие вердикта должно завершаться таймаутом вычисления")
	assert.Less(t, time.Since(start), 2*time.Second, "Ожидание должно прерваться по своему таймауту")
}

func TestProtocol_VerifyAnswer_InvalidAttestation(t *testing.T) {
	// Arrange: движок возвращает вердикт с негодной подписью
	fix := buildQuizFixture(t, []string{"Москва"})
	eng := &stubEngine{
		submitFn: func(req engine.ComparisonRequest) (string, error) {
			return "req-forged", nil
		},
		awaitFn: func(ctx context.Context, requestID string) (*engine.ComparisonResult, error) {
			return &engine.ComparisonResult{
				RequestID:   requestID,
				Matched:     true,
				Attestation: []byte("мусор вместо подписи"),
			}, nil
		},
	}
	p, _, _, _ := fix.protocol(eng)

	// Act
	_, err := p.VerifyAnswer(context.Background(), "user-1", fix.quizSet.Address, 1, "Москва", time.Second)

	// Assert: вердикт без валидной аттестации не принимается
	assert.ErrorIs(t, err, ErrAttestationInvalid, "Вердикт с негодной аттестацией должен отклоняться")
}

// ============================================================================
// Тесты HandleCallback
// ============================================================================

func TestProtocol_HandleCallback_ResolvesWaiter(t *testing.T) {
	// Arrange: движок принимает задание, но вердикт доставляется только callback-ом
	fix := buildQuizFixture(t, []string{"Москва"})
	reqCh := make(chan engine.ComparisonRequest, 1)
	eng := &stubEngine{
		submitFn: func(req engine.ComparisonRequest) (string, error) {
			reqCh <- req
			return "req-cb-1", nil
		},
		awaitFn: func(ctx context.Context, _ string) (*engine.ComparisonResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	// Без кеша дедупликация выключена и ранний callback можно повторять
	p := NewProtocol(nil, &Dependencies{
		QuizSetRepo:  fix.quizRepo,
		QuestionRepo: fix.questions,
		Engine:       eng,
		Completions:  &fakeCompletions{},
	})

	type verifyOutcome struct {
		result *Result
		err    error
	}
	outcomeCh := make(chan verifyOutcome, 1)
	go func() {
		result, err := p.VerifyAnswer(context.Background(), "user-1", fix.quizSet.Address, 1, "Москва", 2*time.Second)
		outcomeCh <- verifyOutcome{result: result, err: err}
	}()

	captured := <-reqCh
	attestation := engine.ComputeAttestation(captured.VerifierKey, "req-cb-1", captured.QuestionAddress, true)

	// Act: доставляем вердикт callback-ом, повторяя до регистрации ожидающего
	require.Eventually(t, func() bool {
		return p.HandleCallback("req-cb-1", true, attestation) == nil
	}, time.Second, 5*time.Millisecond, "Callback должен разбудить ожидающую проверку")

	// Assert
	outcome := <-outcomeCh
	require.NoError(t, outcome.err, "Проверка должна завершиться вердиктом из callback-а")
	assert.True(t, outcome.result.Matched)
	assert.Equal(t, StateResolvedCorrect, outcome.result.State)
	assert.Equal(t, "req-cb-1", outcome.result.RequestID)
}

func TestProtocol_HandleCallback_DuplicateIgnored(t *testing.T) {
	// Arrange
	fix := buildQuizFixture(t, []string{"Москва"})
	p, _, _, _ := fix.protocol(engine.NewLocalEngine(fix.codec))

	// Act: первый callback по неизвестному запросу, затем его повтор
	first := p.HandleCallback("req-nobody-waits", true, []byte("sig"))
	second := p.HandleCallback("req-nobody-waits", true, []byte("sig"))

	// Assert
	assert.ErrorIs(t, first, apperrors.ErrNotFound, "Callback без ожидающего должен давать ErrNotFound")
	assert.NoError(t, second, "Повторная доставка должна тихо игнорироваться")
}

func TestProtocol_HandleCallback_EmptyRequestID(t *testing.T) {
	fix := buildQuizFixture(t, []string{"Москва"})
	p, _, _, _ := fix.protocol(engine.NewLocalEngine(fix.codec))

	err := p.HandleCallback("", true, []byte("sig"))

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
