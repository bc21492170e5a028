package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// fetchOutcome はHTTPステータスコードに基づく取得結果の分類。
type fetchOutcome int

const (
	// outcomeOK は取得成功（200）。
	outcomeOK fetchOutcome = iota
	// outcomeRejected は連携の見直しが必要なステータス（401/403/404/410）。
	outcomeRejected
	// outcomeTransient は時間をおけば回復しうるステータス（429/5xx）。
	outcomeTransient
	// outcomeFailed はその他のステータス。
	outcomeFailed
)

// retryPolicy は一時的な失敗に対する再試行の設定。
type retryPolicy struct {
	attempts     int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// defaultRetryPolicy は取得タイムアウト内に収まる短い指数バックオフ。
var defaultRetryPolicy = retryPolicy{
	attempts:     3,
	initialDelay: 200 * time.Millisecond,
	maxDelay:     2 * time.Second,
}

// classifyStatus はHTTPステータスコードを取得結果に分類する。
func classifyStatus(statusCode int) fetchOutcome {
	switch {
	case statusCode == http.StatusOK:
		return outcomeOK
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return outcomeRejected
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return outcomeRejected
	case statusCode == http.StatusTooManyRequests:
		return outcomeTransient
	case statusCode >= 500:
		return outcomeTransient
	default:
		return outcomeFailed
	}
}

// delay は再試行回数（0始まり）に対する待機時間を返す。初回から2倍ずつ増加し、maxDelayで頭打ち。
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.initialDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > p.maxDelay {
			return p.maxDelay
		}
	}
	return d
}

// doWithRetry はリクエストを送信し、一時的なステータス（429/5xx）の間は指数バックオフで再試行する。
// 送信ごとにlimiterの許可を待つ。最後に受け取ったレスポンスを返すため、ステータスの判定は呼び出し側で行う。
// 通信エラーは再試行せずに返す。
func doWithRetry(ctx context.Context, client *http.Client, limiter *rate.Limiter, policy retryPolicy, newRequest func() (*http.Request, error), logger *slog.Logger, userID string) (*http.Response, error) {
	attempts := policy.attempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; ; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("レート制限の待機が中断されました: %w", err)
			}
		}

		req, err := newRequest()
		if err != nil {
			return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if classifyStatus(resp.StatusCode) != outcomeTransient || attempt+1 >= attempts {
			return resp, nil
		}
		resp.Body.Close()

		wait := policy.delay(attempt)
		logger.Warn("外部カレンダーが一時的なエラーを返したため再試行します",
			slog.String("user_id", userID),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
