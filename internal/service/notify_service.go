package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// NotifyService sends transactional notifications to participants.
type NotifyService interface {
	SendWinnerNotification(ctx context.Context, recipient, quizSetName string, rewardAmount uint64, idempotencyKey string) error
}

// NoopNotifyService is used when notifications are disabled.
type NoopNotifyService struct{}

func (s *NoopNotifyService) SendWinnerNotification(ctx context.Context, recipient, quizSetName string, rewardAmount uint64, idempotencyKey string) error {
	log.Printf("[NotifyService] noop winner notification to=%s quizSet=%q reward=%d", recipient, quizSetName, rewardAmount)
	return nil
}

// ResendNotifyService sends notifications via Resend REST API.
type ResendNotifyService struct {
	from   string
	client *resend.Client
}

func NewResendNotifyService(apiKey, from string) (*ResendNotifyService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("notification from address is required")
	}
	return &ResendNotifyService{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (s *ResendNotifyService) SendWinnerNotification(ctx context.Context, recipient, quizSetName string, rewardAmount uint64, idempotencyKey string) error {
	if recipient == "" || quizSetName == "" {
		return fmt.Errorf("recipient and quizSetName are required")
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{recipient},
		Subject: "You won a quiz!",
		Text:    fmt.Sprintf("Congratulations! You are the winner of %q. Your reward of %d is ready to claim.", quizSetName, rewardAmount),
		Html:    fmt.Sprintf("<p>Congratulations! You are the winner of <strong>%s</strong>.</p><p>Your reward of <strong>%d</strong> is ready to claim.</p>", quizSetName, rewardAmount),
	}

	options := &resend.SendEmailOptions{}
	if strings.TrimSpace(idempotencyKey) != "" {
		options.IdempotencyKey = strings.TrimSpace(idempotencyKey)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && (netErr.Timeout() || netErr.Temporary()) {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
