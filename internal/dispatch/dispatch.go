// Package dispatch реализует батч-джоб отправки одобренных выплат в PayPal.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/credpulse-system/internal/model"
	"github.com/mmeshcher/credpulse-system/internal/repository"
)

// Store описывает операции хранилища, используемые диспетчером.
type Store interface {
	ListPayoutsByStatus(ctx context.Context, status model.PayoutStatus, limit int) ([]model.PayoutRequest, error)
	ClaimPayout(ctx context.Context, id int64) error
	CompletePayout(ctx context.Context, id int64, providerTxID string) error
	FailPayout(ctx context.Context, id int64, errText string) error
}

// Provider описывает контракт внешнего платёжного провайдера.
type Provider interface {
	GetAccessToken(ctx context.Context) (string, error)
	SendPayout(ctx context.Context, accessToken, receiverEmail string, usdCents int64) (string, error)
}

// Summary содержит итог одного запуска джоба.
type Summary struct {
	Found     int `json:"found_count"`
	Processed int `json:"processed_count"`
}

// Dispatcher периодически отправляет одобренные заявки платёжному провайдеру.
// Единственной защитой от двойной отправки служит атомарный переход
// approved -> processing на уровне хранилища, поэтому запуски могут пересекаться.
type Dispatcher struct {
	store          Store
	provider       Provider
	logger         *zap.Logger
	batchSize      int
	perItemTimeout time.Duration
}

// NewDispatcher создаёт диспетчер выплат с указанным размером батча.
func NewDispatcher(store Store, provider Provider, logger *zap.Logger, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Dispatcher{
		store:          store,
		provider:       provider,
		logger:         logger,
		batchSize:      batchSize,
		perItemTimeout: 30 * time.Second,
	}
}

// Run выполняет один проход: выбирает одобренные заявки (старые первыми), получает
// один токен провайдера на весь батч и отправляет выплаты по одной. Ошибка одной
// заявки не прерывает обработку остальных. Пустой батч — успех с нулевым счётчиком.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	requests, err := d.store.ListPayoutsByStatus(ctx, model.PayoutStatusApproved, d.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("list approved payouts: %w", err)
	}

	summary := Summary{Found: len(requests)}
	if len(requests) == 0 {
		return summary, nil
	}

	// Один токен на весь батч; без токена ни одна заявка не переводится в processing.
	token, err := d.acquireToken(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("acquire paypal token: %w", err)
	}

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if d.processOne(ctx, token, req) {
			summary.Processed++
		}
	}

	return summary, nil
}

func (d *Dispatcher) acquireToken(ctx context.Context) (string, error) {
	var token string

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, err := d.provider.GetAccessToken(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		token = t
		return nil
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

// processOne отправляет одну выплату и возвращает true при успешном завершении.
func (d *Dispatcher) processOne(ctx context.Context, token string, req model.PayoutRequest) bool {
	// Барьер видимости: заявку забирает ровно один запуск джоба.
	if err := d.store.ClaimPayout(ctx, req.ID); err != nil {
		if errors.Is(err, repository.ErrPayoutStatusConflict) {
			d.logger.Info("payout already claimed, skipping",
				zap.Int64("payoutID", req.ID))
		} else {
			d.logger.Error("claim payout error",
				zap.Int64("payoutID", req.ID), zap.Error(err))
		}
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, d.perItemTimeout)
	defer cancel()

	providerTxID, err := d.provider.SendPayout(callCtx, token, req.PayPalEmail, req.USDCents)
	if err != nil {
		// Текст ошибки сохраняется в заявке для разбора оператором. Баланс не
		// возвращается: после таймаута провайдер мог успеть выплатить.
		d.logger.Error("payout failed",
			zap.Int64("payoutID", req.ID), zap.Error(err))

		if failErr := d.store.FailPayout(ctx, req.ID, err.Error()); failErr != nil {
			d.logger.Error("mark payout failed error",
				zap.Int64("payoutID", req.ID), zap.Error(failErr))
		}
		return false
	}

	if err := d.store.CompletePayout(ctx, req.ID, providerTxID); err != nil {
		d.logger.Error("complete payout error",
			zap.Int64("payoutID", req.ID), zap.Error(err))
		return false
	}

	d.logger.Info("payout completed",
		zap.Int64("payoutID", req.ID),
		zap.String("providerBatchID", providerTxID))

	return true
}

// StartScheduler запускает периодический запуск джоба с указанным интервалом
// и блокируется до отмены контекста.
func (d *Dispatcher) StartScheduler(ctx context.Context, interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			summary, err := d.Run(ctx)
			if err != nil {
				d.logger.Error("dispatch run error", zap.Error(err))
				return
			}
			if summary.Found > 0 {
				d.logger.Info("dispatch run finished",
					zap.Int("found", summary.Found),
					zap.Int("processed", summary.Processed))
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("schedule dispatch job: %w", err)
	}

	sched.Start()

	<-ctx.Done()
	return sched.Shutdown()
}
