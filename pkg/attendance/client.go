package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	rand "math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Teskh/production-sub001/config"
	"github.com/Teskh/production-sub001/internal/model"
)

const (
	maxResponseSize = 2 * 1024 * 1024 // 2MB
	maxRetryDelay   = 5 * time.Second
)

// ErrProviderStatus 考勤系统返回非 2xx 状态
var ErrProviderStatus = errors.New("考勤系统返回异常状态")

// FetchError 单个工人的考勤拉取失败，仅影响该工人
type FetchError struct {
	WorkerID string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("拉取工人 %s 考勤失败: %v", e.WorkerID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// statusError 携带 HTTP 状态码，用于判断是否可重试
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", ErrProviderStatus.Error(), e.code)
}

func (e *statusError) Unwrap() error { return ErrProviderStatus }

// eventsResponse 考勤系统响应体
type eventsResponse struct {
	Events []struct {
		WorkerID  string    `json:"worker_id"`
		Timestamp time.Time `json:"timestamp"`
		EventType string    `json:"event_type"`
	} `json:"events"`
}

// Client 外部考勤系统 HTTP 客户端
// GET {base_url}/api/v1/workers/{worker_id}/events?date=YYYY-MM-DD
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewClient 创建考勤客户端
func NewClient(cfg *config.AttendanceConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// FetchEvents 拉取工人某日的打卡事件
// 返回的错误总是 *FetchError；事件顺序不做保证
func (c *Client) FetchEvents(ctx context.Context, workerID string, date time.Time) ([]model.AttendanceEvent, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt, c.baseDelay)
			c.logger.Debug("考勤拉取重试",
				zap.String("worker_id", workerID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, &FetchError{WorkerID: workerID, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		events, err := c.fetchOnce(ctx, workerID, date)
		if err == nil {
			return events, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	return nil, &FetchError{WorkerID: workerID, Err: lastErr}
}

func (c *Client) fetchOnce(ctx context.Context, workerID string, date time.Time) ([]model.AttendanceEvent, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workers/%s/events?%s",
		c.baseURL,
		url.PathEscape(workerID),
		url.Values{"date": {date.Format("2006-01-02")}}.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求考勤系统失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, &statusError{code: resp.StatusCode}
	}

	var body eventsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return nil, fmt.Errorf("解析考勤响应失败: %w", err)
	}

	events := make([]model.AttendanceEvent, 0, len(body.Events))
	for _, e := range body.Events {
		eventType := model.AttendanceEventType(e.EventType)
		if eventType != model.EventClockIn && eventType != model.EventClockOut {
			c.logger.Warn("忽略未知打卡类型",
				zap.String("worker_id", workerID),
				zap.String("event_type", e.EventType),
			)
			continue
		}
		// 响应中缺省 worker_id 时以请求参数为准
		wid := e.WorkerID
		if wid == "" {
			wid = workerID
		}
		events = append(events, model.AttendanceEvent{
			WorkerID:  wid,
			Timestamp: e.Timestamp,
			EventType: eventType,
		})
	}
	return events, nil
}

// retryable 传输错误、429 与 5xx 可重试；上下文取消与其余 4xx 不重试
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// retryDelay 指数退避 + 全抖动，上限 maxRetryDelay
func retryDelay(attempt int, base time.Duration) time.Duration {
	backoff := maxRetryDelay
	if attempt <= 16 {
		backoff = base << (attempt - 1)
	}
	if backoff <= 0 || backoff > maxRetryDelay {
		backoff = maxRetryDelay
	}
	half := backoff / 2
	return half + time.Duration(rand.Int64N(int64(half)+1)) //nolint:gosec // 非加密用途的退避抖动
}
