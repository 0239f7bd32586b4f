package service

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/yourusername/cipherquiz-api/internal/codec"
	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
)

// LedgerConfig — настройки реестра
type LedgerConfig struct {
	// InitialBalance — стартовый баланс счёта при первом обращении участника
	InitialBalance uint64
	// VerifierSeed — секрет для вывода ключей верификации блоков,
	// когда автор не передал собственный ключ
	VerifierSeed string
}

// LedgerService предоставляет операции реестра: темы, наборы вопросов,
// зашифрованные блоки и записи прохождений
type LedgerService struct {
	topicRepo    repository.TopicRepository
	quizSetRepo  repository.QuizSetRepository
	questionRepo repository.QuestionBlockRepository
	scoreRepo    repository.ScoreRepository
	accountRepo  repository.AccountRepository
	codec        *codec.Codec
	cfg          LedgerConfig

	// completionLocks сериализует записи прохождений по ключу (user, quizSet)
	completionLocks sync.Map
}

// NewLedgerService создает новый сервис реестра
func NewLedgerService(
	topicRepo repository.TopicRepository,
	quizSetRepo repository.QuizSetRepository,
	questionRepo repository.QuestionBlockRepository,
	scoreRepo repository.ScoreRepository,
	accountRepo repository.AccountRepository,
	c *codec.Codec,
	cfg LedgerConfig,
) *LedgerService {
	return &LedgerService{
		topicRepo:    topicRepo,
		quizSetRepo:  quizSetRepo,
		questionRepo: questionRepo,
		scoreRepo:    scoreRepo,
		accountRepo:  accountRepo,
		codec:        c,
		cfg:          cfg,
	}
}

// CreateTopic создает новую тему. Имя служит ключом: адрес темы выводится
// из имени, повторное имя даёт ErrAlreadyExists.
func (s *LedgerService) CreateTopic(owner entity.Identity, name string, minQuestionCount uint32, minRewardAmount uint64) (*entity.Topic, error) {
	if strings.TrimSpace(string(owner)) == "" {
		return nil, fmt.Errorf("%w: owner is required", apperrors.ErrValidation)
	}
	if !entity.IsValidEntityName(name) {
		return nil, fmt.Errorf("%w: topic name must be 1..%d bytes", apperrors.ErrValidation, entity.MaxNameLength)
	}

	topic := &entity.Topic{
		Address:          entity.TopicAddress(name),
		Name:             name,
		Owner:            owner,
		IsActive:         true,
		MinQuestionCount: minQuestionCount,
		MinRewardAmount:  minRewardAmount,
	}

	if err := s.topicRepo.Create(topic); err != nil {
		return nil, err
	}

	log.Printf("[LedgerService] Тема %q создана, адрес %s", name, topic.Address.Short())
	return topic, nil
}

// GetTopic возвращает тему по адресу
func (s *LedgerService) GetTopic(address entity.Address) (*entity.Topic, error) {
	return s.topicRepo.GetByAddress(address)
}

// GetTopicByName возвращает тему по имени
func (s *LedgerService) GetTopicByName(name string) (*entity.Topic, error) {
	return s.topicRepo.GetByName(name)
}

// ListTopics возвращает темы с пагинацией
func (s *LedgerService) ListTopics(activeOnly bool, page, pageSize int) ([]entity.Topic, int64, error) {
	limit, offset := normalizePage(page, pageSize)
	return s.topicRepo.List(activeOnly, limit, offset)
}

// CreateQuizSet создает набор вопросов и финансирует его эскроу со счёта
// автора. Нулевой topicAddress означает набор без темы; привязанная тема
// диктует минимумы вопросов и награды.
func (s *LedgerService) CreateQuizSet(
	authority entity.Identity,
	topicAddress entity.Address,
	name string,
	uniqueID uint64,
	questionCount uint32,
	rewardAmount uint64,
) (*entity.QuizSet, error) {
	if strings.TrimSpace(string(authority)) == "" {
		return nil, fmt.Errorf("%w: authority is required", apperrors.ErrValidation)
	}
	if !entity.IsValidEntityName(name) {
		return nil, fmt.Errorf("%w: quiz set name must be 1..%d bytes", apperrors.ErrValidation, entity.MaxNameLength)
	}
	if !entity.IsValidQuestionCount(questionCount) {
		return nil, fmt.Errorf("%w: question count must be %d..%d", apperrors.ErrValidation, entity.MinQuestionCount, entity.MaxQuestionCount)
	}

	// Минимумы темы проверяются до любых изменений состояния
	if !topicAddress.IsZero() {
		topic, err := s.topicRepo.GetByAddress(topicAddress)
		if err != nil {
			return nil, err
		}
		if !topic.IsActive {
			return nil, fmt.Errorf("%w: topic %q is not active", apperrors.ErrForbidden, topic.Name)
		}
		if questionCount < topic.MinQuestionCount {
			return nil, fmt.Errorf("%w: topic %q requires at least %d questions", repository.ErrInvalidQuestionCount, topic.Name, topic.MinQuestionCount)
		}
		if rewardAmount < topic.MinRewardAmount {
			return nil, fmt.Errorf("%w: topic %q requires reward of at least %d", repository.ErrInsufficientReward, topic.Name, topic.MinRewardAmount)
		}
	}

	// Счёт автора появляется при первом обращении
	if _, err := s.accountRepo.GetOrCreate(authority, s.cfg.InitialBalance); err != nil {
		return nil, fmt.Errorf("failed to ensure authority account: %w", err)
	}

	address := entity.QuizSetAddress(authority, uniqueID)
	quizSet := &entity.QuizSet{
		Address:       address,
		Authority:     authority,
		TopicAddress:  topicAddress,
		Name:          name,
		UniqueID:      uniqueID,
		QuestionCount: questionCount,
		RewardAmount:  rewardAmount,
	}
	vault := &entity.Vault{
		Address:        entity.VaultAddress(address),
		QuizSetAddress: address,
		Balance:        rewardAmount,
		FundedAt:       time.Now(),
	}

	if err := s.quizSetRepo.CreateWithFunding(quizSet, vault); err != nil {
		return nil, err
	}

	log.Printf("[LedgerService] Набор %q создан автором %s, адрес %s, эскроу %d", name, authority, address.Short(), rewardAmount)
	return quizSet, nil
}

// GetQuizSet возвращает набор по адресу
func (s *LedgerService) GetQuizSet(address entity.Address) (*entity.QuizSet, error) {
	return s.quizSetRepo.GetByAddress(address)
}

// ListQuizSetsByAuthority возвращает наборы автора с пагинацией
func (s *LedgerService) ListQuizSetsByAuthority(authority entity.Identity, page, pageSize int) ([]entity.QuizSet, int64, error) {
	limit, offset := normalizePage(page, pageSize)
	return s.quizSetRepo.ListByAuthority(authority, limit, offset)
}

// ListQuizSetsByTopic возвращает наборы темы с пагинацией
func (s *LedgerService) ListQuizSetsByTopic(topic entity.Address, page, pageSize int) ([]entity.QuizSet, int64, error) {
	limit, offset := normalizePage(page, pageSize)
	return s.quizSetRepo.ListByTopic(topic, limit, offset)
}

// AddQuestionBlock шифрует вопрос и ответ и кладёт блок в реестр.
// Добавлять блоки может только автор набора. Возвращает блок и признак
// того, что набор стал собранным этим вызовом.
func (s *LedgerService) AddQuestionBlock(
	caller entity.Identity,
	quizSetAddress entity.Address,
	questionIndex uint32,
	content string,
	answer string,
	nonce uint64,
	verifierKey []byte,
) (*entity.QuestionBlock, bool, error) {
	quizSet, err := s.authorizeBlockInsert(caller, quizSetAddress, questionIndex)
	if err != nil {
		return nil, false, err
	}

	// Содержимое должно разбираться до шифрования: хранить мусор нельзя
	if _, err := codec.ParseQuestionPayload([]byte(content)); err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(answer) == "" {
		return nil, false, fmt.Errorf("%w: answer is required", apperrors.ErrValidation)
	}

	encryptedContent, err := s.codec.Encode([]byte(content), nonce)
	if err != nil {
		return nil, false, err
	}
	encryptedAnswer, err := s.codec.Encode([]byte(answer), nonce)
	if err != nil {
		return nil, false, err
	}

	if len(verifierKey) == 0 {
		verifierKey, err = s.deriveVerifierKey(quizSetAddress, questionIndex)
		if err != nil {
			return nil, false, err
		}
	} else if len(verifierKey) != entity.VerifierKeySize {
		return nil, false, fmt.Errorf("%w: verifier key must be %d bytes", apperrors.ErrValidation, entity.VerifierKeySize)
	}

	block := &entity.QuestionBlock{
		Address:          entity.QuestionBlockAddress(quizSetAddress, questionIndex),
		QuizSetAddress:   quizSetAddress,
		QuestionIndex:    questionIndex,
		EncryptedContent: encryptedContent,
		EncryptedAnswer:  encryptedAnswer,
		VerifierKey:      verifierKey,
		Nonce:            nonce,
	}

	initialized, err := s.questionRepo.Create(block)
	if err != nil {
		return nil, false, err
	}

	if initialized {
		log.Printf("[LedgerService] Набор %s собран: добавлен последний блок %d/%d", quizSetAddress.Short(), questionIndex, quizSet.QuestionCount)
	}
	return block, initialized, nil
}

// AddEncryptedQuestionBlock кладёт в реестр блок, зашифрованный на стороне
// автора. Сервис открытого текста не видит: блоки принимаются строго по
// размерам и при вставке не расшифровываются.
func (s *LedgerService) AddEncryptedQuestionBlock(
	caller entity.Identity,
	quizSetAddress entity.Address,
	questionIndex uint32,
	encryptedContent []byte,
	encryptedAnswer []byte,
	verifierKey []byte,
	nonce uint64,
) (*entity.QuestionBlock, bool, error) {
	quizSet, err := s.authorizeBlockInsert(caller, quizSetAddress, questionIndex)
	if err != nil {
		return nil, false, err
	}

	if len(encryptedContent) != codec.BlockSize {
		return nil, false, fmt.Errorf("%w: encrypted content must be exactly %d bytes", apperrors.ErrValidation, codec.BlockSize)
	}
	if len(encryptedAnswer) != codec.BlockSize {
		return nil, false, fmt.Errorf("%w: encrypted answer must be exactly %d bytes", apperrors.ErrValidation, codec.BlockSize)
	}
	if len(verifierKey) != entity.VerifierKeySize {
		return nil, false, fmt.Errorf("%w: verifier key must be %d bytes", apperrors.ErrValidation, entity.VerifierKeySize)
	}

	block := &entity.QuestionBlock{
		Address:          entity.QuestionBlockAddress(quizSetAddress, questionIndex),
		QuizSetAddress:   quizSetAddress,
		QuestionIndex:    questionIndex,
		EncryptedContent: encryptedContent,
		EncryptedAnswer:  encryptedAnswer,
		VerifierKey:      verifierKey,
		Nonce:            nonce,
	}

	initialized, err := s.questionRepo.Create(block)
	if err != nil {
		return nil, false, err
	}

	if initialized {
		log.Printf("[LedgerService] Набор %s собран: добавлен последний блок %d/%d", quizSetAddress.Short(), questionIndex, quizSet.QuestionCount)
	}
	return block, initialized, nil
}

// authorizeBlockInsert проверяет права вызывающего и состояние набора
// перед вставкой блока
func (s *LedgerService) authorizeBlockInsert(caller entity.Identity, quizSetAddress entity.Address, questionIndex uint32) (*entity.QuizSet, error) {
	quizSet, err := s.quizSetRepo.GetByAddress(quizSetAddress)
	if err != nil {
		return nil, err
	}

	// Авторизация до каких-либо побочных эффектов
	if caller != quizSet.Authority {
		return nil, fmt.Errorf("%w: only the quiz set authority may add question blocks", apperrors.ErrUnauthorized)
	}

	if !quizSet.IsValidQuestionIndex(questionIndex) {
		return nil, fmt.Errorf("%w: index %d is outside 1..%d", repository.ErrIndexOutOfRange, questionIndex, quizSet.QuestionCount)
	}
	if quizSet.IsInitialized {
		return nil, fmt.Errorf("%w: quiz set %s", repository.ErrQuizSetInitialized, quizSetAddress.Short())
	}
	return quizSet, nil
}

// GetQuestionBlock возвращает блок по набору и индексу
func (s *LedgerService) GetQuestionBlock(quizSet entity.Address, index uint32) (*entity.QuestionBlock, error) {
	return s.questionRepo.GetByQuizSetAndIndex(quizSet, index)
}

// GetQuestionPayload расшифровывает и разбирает содержимое вопроса для показа
// участнику. Правильный ответ из структурированного содержимого вырезается.
func (s *LedgerService) GetQuestionPayload(quizSet entity.Address, index uint32) (*codec.QuestionPayload, error) {
	block, err := s.questionRepo.GetByQuizSetAndIndex(quizSet, index)
	if err != nil {
		return nil, err
	}

	plaintext, err := s.codec.Decode(block.EncryptedContent, block.Nonce)
	if err != nil {
		return nil, err
	}
	payload, err := codec.ParseQuestionPayload(plaintext)
	if err != nil {
		return nil, err
	}

	// Ответ наружу не выходит
	payload.CorrectAnswer = ""
	return payload, nil
}

// QuestionView — блок вопроса вместе с расшифрованной вопросной стороной
type QuestionView struct {
	Block   *entity.QuestionBlock
	Payload *codec.QuestionPayload
}

// ListQuestionViews возвращает блоки набора в порядке индексов вместе с
// расшифрованными вопросами. Ответные блоки не расшифровываются.
func (s *LedgerService) ListQuestionViews(quizSet entity.Address) ([]QuestionView, error) {
	blocks, err := s.questionRepo.ListByQuizSet(quizSet)
	if err != nil {
		return nil, err
	}

	views := make([]QuestionView, 0, len(blocks))
	for i := range blocks {
		block := &blocks[i]
		plaintext, err := s.codec.Decode(block.EncryptedContent, block.Nonce)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", block.QuestionIndex, err)
		}
		payload, err := codec.ParseQuestionPayload(plaintext)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", block.QuestionIndex, err)
		}
		payload.CorrectAnswer = ""
		views = append(views, QuestionView{Block: block, Payload: payload})
	}
	return views, nil
}

// RecordCompletion фиксирует прохождение набора участником: добавляет запись
// журнала и обновляет счёт в теме. Повтор с тем же временем завершения
// отклоняется как дубликат. isWinner выставляет только протокол верификации
// для попытки, которая зафиксировала победителя: самодекларация побед
// через публичную запись невозможна.
func (s *LedgerService) RecordCompletion(user entity.Identity, quizSetAddress entity.Address, score uint32, completedAt time.Time, isWinner bool) (*entity.QuizHistory, error) {
	if strings.TrimSpace(string(user)) == "" {
		return nil, fmt.Errorf("%w: user is required", apperrors.ErrValidation)
	}

	quizSet, err := s.quizSetRepo.GetByAddress(quizSetAddress)
	if err != nil {
		return nil, err
	}
	if score > quizSet.QuestionCount {
		return nil, fmt.Errorf("%w: score %d exceeds question count %d", apperrors.ErrValidation, score, quizSet.QuestionCount)
	}
	if isWinner && quizSet.Winner != user {
		return nil, fmt.Errorf("%w: %s is not the registered winner", apperrors.ErrUnauthorized, user)
	}

	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	completedAtUnix := completedAt.Unix()

	var reward uint64
	if isWinner {
		reward = quizSet.RewardAmount
	}

	history := &entity.QuizHistory{
		Address:        entity.QuizHistoryAddress(user, quizSetAddress, completedAtUnix),
		User:           user,
		QuizSetAddress: quizSetAddress,
		CompletedAt:    completedAtUnix,
		TopicAddress:   quizSet.TopicAddress,
		Score:          score,
		TotalQuestions: quizSet.QuestionCount,
		IsWinner:       isWinner,
		RewardClaimed:  reward,
	}

	// Записи одного участника по одному набору сериализуются,
	// чтобы конкурентные фиксации не теряли инкременты
	unlock := s.lockCompletion(string(user) + "|" + quizSetAddress.String())
	defer unlock()

	if err := s.scoreRepo.ApplyCompletion(history); err != nil {
		return nil, err
	}

	log.Printf("[LedgerService] Прохождение записано: user=%s quizSet=%s score=%d/%d winner=%t",
		user, quizSetAddress.Short(), score, quizSet.QuestionCount, isWinner)
	return history, nil
}

// GetAccount возвращает счёт участника, создавая его при первом обращении
func (s *LedgerService) GetAccount(identity entity.Identity) (*entity.Account, error) {
	if strings.TrimSpace(string(identity)) == "" {
		return nil, fmt.Errorf("%w: identity is required", apperrors.ErrValidation)
	}
	return s.accountRepo.GetOrCreate(identity, s.cfg.InitialBalance)
}

func (s *LedgerService) lockCompletion(key string) func() {
	muIface, _ := s.completionLocks.LoadOrStore(key, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// deriveVerifierKey выводит ключ верификации блока из секрета сервиса,
// адреса набора и индекса вопроса
func (s *LedgerService) deriveVerifierKey(quizSet entity.Address, index uint32) ([]byte, error) {
	if s.cfg.VerifierSeed == "" {
		return nil, fmt.Errorf("%w: verifier key is required when no verifier seed is configured", apperrors.ErrValidation)
	}
	r := hkdf.New(sha256.New, []byte(s.cfg.VerifierSeed), quizSet[:], []byte(fmt.Sprintf("verifier:%d", index)))
	key := make([]byte, entity.VerifierKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive verifier key: %w", err)
	}
	return key, nil
}

// normalizePage переводит page/pageSize в limit/offset с разумными границами
func normalizePage(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return pageSize, (page - 1) * pageSize
}
