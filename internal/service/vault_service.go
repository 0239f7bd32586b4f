package service

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/yourusername/cipherquiz-api/internal/domain/entity"
	"github.com/yourusername/cipherquiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/cipherquiz-api/internal/pkg/errors"
	"github.com/yourusername/cipherquiz-api/internal/websocket"
)

// VaultService управляет выплатой эскроу победителям
type VaultService struct {
	quizSetRepo repository.QuizSetRepository
	accountRepo repository.AccountRepository
	hub         *websocket.Hub

	// claimLocks сериализует попытки выплаты по адресу набора
	claimLocks sync.Map
}

// NewVaultService создает новый сервис эскроу
func NewVaultService(
	quizSetRepo repository.QuizSetRepository,
	accountRepo repository.AccountRepository,
	hub *websocket.Hub,
) *VaultService {
	return &VaultService{
		quizSetRepo: quizSetRepo,
		accountRepo: accountRepo,
		hub:         hub,
	}
}

// Claim выплачивает эскроу набора. Выплата возможна только зафиксированному
// победителю и ровно один раз: повтор получает ErrAlreadyClaimed, эскроу
// после выплаты пуст.
func (s *VaultService) Claim(claimer entity.Identity, quizSetAddress entity.Address) (uint64, error) {
	if strings.TrimSpace(string(claimer)) == "" {
		return 0, fmt.Errorf("%w: claimer is required", apperrors.ErrValidation)
	}

	// Конкурентные попытки по одному набору идут по очереди,
	// итог решает условный UPDATE внутри транзакции
	muIface, _ := s.claimLocks.LoadOrStore(quizSetAddress.String(), &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	amount, err := s.quizSetRepo.ClaimReward(quizSetAddress, claimer)
	if err != nil {
		return 0, err
	}

	log.Printf("[VaultService] Эскроу %s выплачено победителю %s: %d", quizSetAddress.Short(), claimer, amount)

	if s.hub != nil {
		event := map[string]interface{}{
			"quiz_set": quizSetAddress.String(),
			"winner":   string(claimer),
			"amount":   amount,
		}
		if err := s.hub.BroadcastJSON(websocket.VAULT_CLAIMED, event); err != nil {
			log.Printf("[VaultService] Не удалось разослать событие выплаты: %v", err)
		}
	}

	return amount, nil
}

// GetVault возвращает эскроу-хранилище набора
func (s *VaultService) GetVault(quizSet entity.Address) (*entity.Vault, error) {
	return s.quizSetRepo.GetVault(quizSet)
}

// GetBalance возвращает баланс счёта участника
func (s *VaultService) GetBalance(identity entity.Identity) (uint64, error) {
	account, err := s.accountRepo.GetByIdentity(identity)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}
