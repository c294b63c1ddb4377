package notify

import (
	"context"
	"fmt"
	"time"

	"Gin_postgres_redis_lending/metrics"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const webhookService = "lending-notify"

// Webhook 把事件 POST 到外部地址，熔断器保护下游
type Webhook struct {
	url     string
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	name := "webhook"
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // Max requests allowed in half-open state
		Interval:    15 * time.Second, // Window to track failures
		Timeout:     30 * time.Second, // Time to wait before half-open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(webhookService, cbName).Set(stateValue(to))
			log.WithFields(log.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("Circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(webhookService, name).Set(0)

	return &Webhook{
		url: url,
		client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0),
		breaker: cb,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	}
	return 0
}

func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	_, err := w.breaker.Execute(func() (interface{}, error) {
		resp, err := w.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(ev).
			Post(w.url)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("webhook %s: status %d", w.url, resp.StatusCode())
		}
		return nil, nil
	})
	switch err {
	case nil:
		return nil
	case gobreaker.ErrOpenState:
		return fmt.Errorf("circuit breaker %s is open (webhook unavailable)", w.breaker.Name())
	case gobreaker.ErrTooManyRequests:
		return fmt.Errorf("circuit breaker %s: too many requests in half-open state", w.breaker.Name())
	}
	return err
}

// State 熔断器当前状态
func (w *Webhook) State() string { return w.breaker.State().String() }
