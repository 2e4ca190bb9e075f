// Package gateway реализует единую точку выхода ко всем вызовам CRM API
// с глобальным ограничением темпа запросов.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ErrRateLimitExceeded возвращается, когда вызов получил повторный 429
// после единственной повторной попытки.
var ErrRateLimitExceeded = errors.New("gateway: rate limit exceeded")

// errThrottled — внутренний признак ответа 429 для цикла повторов.
var errThrottled = errors.New("gateway: throttled")

// RemoteError описывает неуспешный ответ CRM, не связанный с троттлингом.
// Такие ответы не повторяются: интерпретация тела остаётся за вызывающим.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gateway: remote error: status %d: %s", e.Status, e.Body)
}

const (
	defaultPoolSize = 8

	// Интервалы между вызовами в зависимости от остатка суточной квоты.
	gapDefault = 3 * time.Second
	gapMedium  = 3500 * time.Millisecond
	gapLong    = 4 * time.Second

	headerDailyLimit     = "X-HubSpot-RateLimit-Daily"
	headerDailyRemaining = "X-HubSpot-RateLimit-Daily-Remaining"
)

// rateState хранит общее для всех вызовов состояние темпа запросов.
// Резервирование момента следующего вызова и обновление квоты выполняются
// только под mu: два конкурентных вызова не должны одновременно решить,
// что интервал уже истёк.
type rateState struct {
	mu             sync.Mutex
	next           time.Time
	gap            time.Duration
	dailyLimit     int
	dailyRemaining int
}

// Gateway — единственная точка обращения к CRM API. Все вызовы проходят
// через общий пул ограниченного размера и глобальный минимальный интервал.
type Gateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	sem        chan struct{}
	state      rateState
	backoff    func() time.Duration
	logger     *zap.Logger
}

// New создаёт шлюз для указанного адреса CRM API.
// poolSize ограничивает число одновременных вызовов; 0 означает значение по умолчанию.
func New(baseURL, token string, poolSize int, logger *zap.Logger) *Gateway {
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: cleanhttp.DefaultPooledClient(),
		sem:        make(chan struct{}, poolSize),
		logger:     logger,
	}
	g.state.gap = gapDefault
	g.backoff = g.throttleDelay

	return g
}

// SetMinGap явно задаёт минимальный интервал между вызовами.
// Единственный способ сузить интервал после автоматического расширения.
func (g *Gateway) SetMinGap(d time.Duration) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	g.state.gap = d
}

// MinGap возвращает текущий минимальный интервал между вызовами.
func (g *Gateway) MinGap() time.Duration {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()
	return g.state.gap
}

// Do выполняет вызов CRM API, соблюдая пул и минимальный интервал.
// На ответ 429 вызов повторяется ровно один раз после паузы; повторный 429
// возвращается как ErrRateLimitExceeded. Остальные неуспешные ответы
// возвращаются как *RemoteError без повторов.
func (g *Gateway) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-g.sem }()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		payload = b
	}

	var result []byte
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		return g.backoff(), false
	})

	err := retry.Do(ctx, retry.WithMaxRetries(1, backoff), func(ctx context.Context) error {
		resp, err := g.doOnce(ctx, method, path, payload)
		if err != nil {
			if errors.Is(err, errThrottled) {
				g.logger.Warn("crm call throttled, retrying once",
					zap.String("method", method), zap.String("path", path))
				return retry.RetryableError(err)
			}
			return err
		}
		result = resp
		return nil
	})
	if err != nil {
		if errors.Is(err, errThrottled) {
			return nil, ErrRateLimitExceeded
		}
		return nil, err
	}

	return result, nil
}

// doOnce выполняет ровно один HTTP-вызов, дождавшись своего слота.
func (g *Gateway) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	slot := g.reserveSlot()
	if err := sleepUntil(ctx, slot); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	g.updateQuota(resp.Header)

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errThrottled
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// reserveSlot атомарно резервирует момент следующего вызова: слот не раньше
// предыдущего плюс текущий интервал, независимо от числа конкурентных вызовов.
func (g *Gateway) reserveSlot() time.Time {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()

	now := time.Now()
	slot := g.state.next
	if slot.Before(now) {
		slot = now
	}
	g.state.next = slot.Add(g.state.gap)

	return slot
}

// updateQuota читает заголовки суточной квоты и пересчитывает интервал.
// Интервал во время работы только расширяется; сузить его может лишь SetMinGap.
func (g *Gateway) updateQuota(h http.Header) {
	limit, errLimit := strconv.Atoi(h.Get(headerDailyLimit))
	remaining, errRemaining := strconv.Atoi(h.Get(headerDailyRemaining))
	if errLimit != nil || errRemaining != nil || limit <= 0 {
		return
	}

	g.state.mu.Lock()
	defer g.state.mu.Unlock()

	g.state.dailyLimit = limit
	g.state.dailyRemaining = remaining

	gap := gapForQuota(remaining, limit)
	if gap > g.state.gap {
		g.logger.Info("daily quota low, widening call gap",
			zap.Int("remaining", remaining),
			zap.Int("limit", limit),
			zap.Duration("gap", gap))
		g.state.gap = gap
	}
}

// throttleDelay вычисляет паузу перед повтором после 429 по тем же
// порогам квоты, что и интервал между вызовами.
func (g *Gateway) throttleDelay() time.Duration {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()

	if g.state.dailyLimit <= 0 {
		return gapDefault
	}
	return gapForQuota(g.state.dailyRemaining, g.state.dailyLimit)
}

func gapForQuota(remaining, limit int) time.Duration {
	ratio := float64(remaining) / float64(limit)
	switch {
	case ratio < 0.05:
		return gapLong
	case ratio < 0.20:
		return gapMedium
	default:
		return gapDefault
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
