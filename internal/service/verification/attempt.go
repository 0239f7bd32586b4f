package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	"github.com/yourusername/cipherquiz-api/internal/engine"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
	"github.com/yourusername/cipherquiz-api/internal/websocket"
)

// Причины отказа проверки в составе попытки
const (
	reasonTimeout            = "computation_timeout"
	reasonEngineUnavailable  = "engine_unavailable"
	reasonAttestationInvalid = "attestation_invalid"
	reasonInternal           = "internal_error"
)

// RunQuizAttempt проверяет все ответы попытки через движок и доводит её до
// фиксации. Ответы проверяются параллельно, по одному на каждый вопрос
// набора. Победитель объявляется только после получения ВСЕХ вердиктов и
// только если все ответы верны; первый успевший выигрывает CAS. Прохождение
// записывается только при полном наборе вердиктов: отказ хотя бы одной
// проверки оставляет реестр нетронутым, попытку можно повторить.
func (p *Protocol) RunQuizAttempt(
	ctx context.Context,
	user entity.Identity,
	quizSetAddress entity.Address,
	answers []string,
	timeout time.Duration,
) (*AttemptResult, error) {
	if strings.TrimSpace(string(user)) == "" {
		return nil, fmt.Errorf("%w: user is required", apperrors.ErrValidation)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: answers are required", apperrors.ErrValidation)
	}
	if len(answers) > p.config.MaxBatch {
		return nil, fmt.Errorf("%w: at most %d answers per attempt", apperrors.ErrValidation, p.config.MaxBatch)
	}

	quizSet, err := p.deps.QuizSetRepo.GetByAddress(quizSetAddress)
	if err != nil {
		return nil, err
	}
	if !quizSet.IsInitialized {
		return nil, fmt.Errorf("%w: quiz set %s is not fully initialized", apperrors.ErrValidation, quizSetAddress.Short())
	}
	if len(answers) != int(quizSet.QuestionCount) {
		return nil, fmt.Errorf("%w: quiz set has %d questions, got %d answers", apperrors.ErrValidation, quizSet.QuestionCount, len(answers))
	}

	log.Printf("[Verification] Попытка прохождения: user=%s quizSet=%s вопросов=%d", user, quizSetAddress.Short(), len(answers))

	// 1. Параллельная проверка всех ответов
	items := make([]AttemptItem, len(answers))
	var wg sync.WaitGroup
	for i := range answers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			index := uint32(i + 1)
			result, verifyErr := p.VerifyAnswer(ctx, user, quizSetAddress, index, answers[i], timeout)
			items[i] = buildAttemptItem(index, result, verifyErr)
		}(i)
	}
	wg.Wait()

	// 2. Подсчёт вердиктов
	allResolved := true
	var correct uint32
	for _, item := range items {
		switch item.State {
		case StateResolvedCorrect:
			correct++
		case StateResolvedIncorrect:
		default:
			allResolved = false
		}
	}

	attempt := &AttemptResult{
		QuizSetAddress: quizSetAddress,
		User:           user,
		Items:          items,
		CorrectCount:   correct,
		AllResolved:    allResolved,
	}

	if !allResolved {
		log.Printf("[Verification] Попытка не доведена: не все вердикты получены (user=%s quizSet=%s)", user, quizSetAddress.Short())
		return attempt, nil
	}

	// 3. Объявление победителя: все вердикты получены, все ответы верны
	if correct == uint32(len(answers)) {
		casWon := false
		if !quizSet.HasWinner() {
			err := p.deps.QuizSetRepo.SetWinner(quizSetAddress, user, correct)
			switch {
			case err == nil:
				casWon = true
				p.announceWinner(ctx, user, quizSet, correct)
			case errors.Is(err, repository.ErrWinnerAlreadySet):
				log.Printf("[Verification] Победитель набора %s уже зафиксирован, попытка user=%s проиграла гонку", quizSetAddress.Short(), user)
			default:
				return nil, fmt.Errorf("failed to set winner: %w", err)
			}
		}
		if casWon {
			attempt.BecameWinner = true
		} else {
			// Победитель мог быть зафиксирован более ранней попыткой этого же
			// пользователя, чья фиксация прохождения не дошла до конца.
			// Флаг победителя выводится из реестра, а не из исхода CAS:
			// иначе повтор попытки навсегда потерял бы зачёт победы.
			current, err := p.deps.QuizSetRepo.GetByAddress(quizSetAddress)
			if err != nil {
				return nil, err
			}
			attempt.BecameWinner = current.Winner == user
		}
	}

	// 4. Фиксация прохождения
	history, err := p.deps.Completions.RecordCompletion(user, quizSetAddress, correct, time.Now(), attempt.BecameWinner)
	if err != nil {
		return nil, err
	}
	attempt.History = history

	if p.deps.Scores != nil {
		p.deps.Scores.InvalidateLeaderboards(quizSet.TopicAddress)
	}

	return attempt, nil
}

// announceWinner рассылает событие о победителе и уведомляет его
func (p *Protocol) announceWinner(ctx context.Context, winner entity.Identity, quizSet *entity.QuizSet, correct uint32) {
	log.Printf("[Verification] Победитель набора %s: %s (%d верных ответов)", quizSet.Address.Short(), winner, correct)

	if p.deps.Hub != nil {
		event := map[string]interface{}{
			"quiz_set":        quizSet.Address.String(),
			"winner":          string(winner),
			"correct_answers": correct,
			"reward_amount":   quizSet.RewardAmount,
		}
		if err := p.deps.Hub.BroadcastJSON(websocket.QUIZ_WINNER, event); err != nil {
			log.Printf("[Verification] Не удалось разослать событие о победителе: %v", err)
		}
	}

	if p.deps.Notifier != nil {
		idempotencyKey := "winner:" + quizSet.Address.String()
		if err := p.deps.Notifier.SendWinnerNotification(ctx, string(winner), quizSet.Name, quizSet.RewardAmount, idempotencyKey); err != nil {
			log.Printf("[Verification] Не удалось уведомить победителя %s: %v", winner, err)
		}
	}
}

// buildAttemptItem переводит итог одной проверки в элемент попытки
func buildAttemptItem(index uint32, result *Result, err error) AttemptItem {
	if err == nil {
		return AttemptItem{
			QuestionIndex: index,
			State:         result.State,
			Matched:       result.Matched,
			RequestID:     result.RequestID,
		}
	}

	item := AttemptItem{
		QuestionIndex: index,
		State:         StateFailed,
	}
	switch {
	case errors.Is(err, ErrComputationTimeout):
		item.FailReason = reasonTimeout
	case errors.Is(err, engine.ErrUnavailable):
		item.FailReason = reasonEngineUnavailable
	case errors.Is(err, ErrAttestationInvalid):
		item.FailReason = reasonAttestationInvalid
	default:
		item.FailReason = reasonInternal
	}
	return item
}
