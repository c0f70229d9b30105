package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerNotifier отключает недоступный канал уведомлений, пока тот не восстановится.
// Пока автомат разомкнут, события этого канала отбрасываются без попытки отправки.
type BreakerNotifier struct {
	next    Notifier
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewBreakerNotifier оборачивает канал уведомлений автоматическим выключателем
func NewBreakerNotifier(name string, next Notifier, logger *zap.Logger) *BreakerNotifier {
	n := &BreakerNotifier{next: next, logger: logger}
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notifier-" + name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("notifier circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return n
}

func (n *BreakerNotifier) Notify(ctx context.Context, event LedgerEvent) error {
	_, err := n.breaker.Execute(func() (interface{}, error) {
		return nil, n.next.Notify(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("канал %s недоступен: %w", n.breaker.Name(), err)
	}
	return err
}

// State текущее состояние выключателя
func (n *BreakerNotifier) State() gobreaker.State {
	return n.breaker.State()
}
