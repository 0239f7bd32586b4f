package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/engine"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
	"github.com/yourusername/cipherquiz-api/internal/websocket"
)

// callbackDedupTTL ограничивает жизнь маркера обработанного callback-а
const callbackDedupTTL = 10 * time.Minute

// Protocol проводит проверку ответов через движок и доводит попытки
// прохождения до фиксации в реестре
type Protocol struct {
	config *Config
	deps   *Dependencies

	// waiters — каналы ожидания вердиктов по идентификатору запроса,
	// через них callback-и движка будят заблокированные проверки
	waiters sync.Map
}

type engineOutcome struct {
	result *engine.ComparisonResult
	err    error
}

// NewProtocol создает протокол верификации
func NewProtocol(config *Config, deps *Dependencies) *Protocol {
	if config == nil {
		config = DefaultConfig()
	}
	return &Protocol{
		config: config,
		deps:   deps,
	}
}

// VerifyAnswer проверяет один ответ участника через движок. Шифроблок,
// кандидат, nonce и ключ верификации уходят движку; вердикт принимается
// только с корректной аттестацией. timeout == 0 берёт ResultTimeout из
// конфигурации. Недоступность движка и таймаут — это отказ проверки:
// открытый текст локально не сравнивается никогда.
func (p *Protocol) VerifyAnswer(
	ctx context.Context,
	user entity.Identity,
	quizSetAddress entity.Address,
	questionIndex uint32,
	candidate string,
	timeout time.Duration,
) (*Result, error) {
	if candidate == "" {
		return nil, fmt.Errorf("%w: answer candidate is required", apperrors.ErrValidation)
	}
	if timeout <= 0 {
		timeout = p.config.ResultTimeout
	}

	block, err := p.deps.QuestionRepo.GetByQuizSetAndIndex(quizSetAddress, questionIndex)
	if err != nil {
		return nil, err
	}

	// 1. Submitted: задание уходит движку
	req := engine.ComparisonRequest{
		QuestionAddress: block.Address,
		Ciphertext:      block.EncryptedAnswer,
		Candidate:       []byte(candidate),
		Nonce:           block.Nonce,
		VerifierKey:     block.VerifierKey,
	}
	requestID, err := p.deps.Engine.Submit(ctx, req)
	if err != nil {
		log.Printf("[Verification] Движок отверг задание (user=%s block=%s): %v", user, block.Address.Short(), err)
		return nil, err
	}

	// 2. Pending: ждём вердикт не дольше timeout
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan engineOutcome, 1)
	p.waiters.Store(requestID, ch)
	defer p.waiters.Delete(requestID)

	go func() {
		result, awaitErr := p.deps.Engine.Await(waitCtx, requestID)
		select {
		case ch <- engineOutcome{result: result, err: awaitErr}:
		default:
		}
	}()

	var outcome engineOutcome
	select {
	case outcome = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if outcome.err != nil {
		switch {
		case errors.Is(outcome.err, context.DeadlineExceeded):
			log.Printf("[Verification] Таймаут вердикта (user=%s request=%s, лимит %v)", user, requestID, timeout)
			return nil, fmt.Errorf("%w: request %s", ErrComputationTimeout, requestID)
		case errors.Is(outcome.err, context.Canceled):
			return nil, outcome.err
		default:
			log.Printf("[Verification] Ошибка ожидания вердикта (user=%s request=%s): %v", user, requestID, outcome.err)
			return nil, outcome.err
		}
	}

	// 3. Вердикт принимается только с корректной аттестацией
	verdict := outcome.result
	if !engine.VerifyAttestation(block.VerifierKey, verdict.RequestID, block.Address, verdict.Matched, verdict.Attestation) {
		log.Printf("[Verification] Негодная аттестация вердикта (user=%s request=%s)", user, verdict.RequestID)
		return nil, fmt.Errorf("%w: request %s", ErrAttestationInvalid, verdict.RequestID)
	}

	state := StateResolvedIncorrect
	if verdict.Matched {
		state = StateResolvedCorrect
	}
	result := &Result{
		RequestID:       verdict.RequestID,
		QuestionAddress: block.Address,
		QuestionIndex:   questionIndex,
		State:           state,
		Matched:         verdict.Matched,
	}

	p.notifyVerdict(user, quizSetAddress, result)
	return result, nil
}

// HandleCallback принимает вердикт, доставленный движком через callback,
// и будит ожидающую проверку. Повторная доставка того же запроса
// игнорируется. Возвращает ErrNotFound, если запрос никому не нужен.
func (p *Protocol) HandleCallback(requestID string, matched bool, attestation []byte) error {
	if requestID == "" {
		return fmt.Errorf("%w: request id is required", apperrors.ErrValidation)
	}

	// Дедупликация повторных доставок
	if p.deps.CacheRepo != nil {
		set, err := p.deps.CacheRepo.SetNX("verification:callback:"+requestID, "1", callbackDedupTTL)
		if err != nil {
			log.Printf("[Verification] Ошибка маркера дедупликации callback %s: %v", requestID, err)
		} else if !set {
			log.Printf("[Verification] Повторный callback %s проигнорирован", requestID)
			return nil
		}
	}

	chIface, ok := p.waiters.Load(requestID)
	if !ok {
		return fmt.Errorf("%w: verification request %s", apperrors.ErrNotFound, requestID)
	}
	ch := chIface.(chan engineOutcome)

	select {
	case ch <- engineOutcome{result: &engine.ComparisonResult{
		RequestID:   requestID,
		Matched:     matched,
		Attestation: attestation,
	}}:
	default:
		// Вердикт уже доставлен другим путём
	}
	return nil
}

// notifyVerdict отправляет участнику событие с вердиктом
func (p *Protocol) notifyVerdict(user entity.Identity, quizSetAddress entity.Address, result *Result) {
	if p.deps.Hub == nil {
		return
	}
	event := map[string]interface{}{
		"quiz_set":       quizSetAddress.String(),
		"question_index": result.QuestionIndex,
		"matched":        result.Matched,
		"request_id":     result.RequestID,
	}
	if err := p.deps.Hub.SendJSONToActor(string(user), websocket.ANSWER_VERIFIED, event); err != nil {
		log.Printf("[Verification] Не удалось отправить событие вердикта участнику %s: %v", user, err)
	}
}
