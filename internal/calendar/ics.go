package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/coachcal/internal/availability"
	"github.com/hitoshi/coachcal/internal/model"
)

// FeedGuard はICSフィードURLの検証とSSRF防止済みHTTPクライアントの生成を行う。
type FeedGuard interface {
	NormalizeFeedURL(rawURL string) (string, error)
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// ICSClient はICS購読フィードからbusy区間を取得するクライアント。
// フィードはユーザーが登録した任意のURLのため、SSRF防止済みのクライアントで取得する。
type ICSClient struct {
	guard       FeedGuard
	limiter     *rate.Limiter
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	retry       retryPolicy
}

// NewICSClient はICSClientの新しいインスタンスを生成する。
func NewICSClient(guard FeedGuard, limiter *rate.Limiter, logger *slog.Logger, timeout time.Duration, maxBodySize int64) *ICSClient {
	return &ICSClient{
		guard:       guard,
		limiter:     limiter,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		retry:       defaultRetryPolicy,
	}
}

// FetchBusy はフィードを取得し、[timeMin, timeMax) に重なるbusy区間を返す。
// 繰り返し予定は範囲内で展開する。
func (c *ICSClient) FetchBusy(ctx context.Context, conn *model.CalendarConnection, timeMin, timeMax time.Time) ([]model.BusyInterval, error) {
	feedURL, err := c.guard.NormalizeFeedURL(conn.FeedURL)
	if err != nil {
		c.logger.Error("ICSフィードURLの検証に失敗しました",
			slog.String("user_id", conn.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", availability.ErrProviderRejected, err)
	}

	client := c.guard.NewSafeClient(c.timeout, c.maxBodySize)
	newRequest := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/calendar, */*")
		return req, nil
	}

	resp, err := doWithRetry(ctx, client, c.limiter, c.retry, newRequest, c.logger, conn.UserID)
	if err != nil {
		c.logger.Error("ICSフィードの取得に失敗しました",
			slog.String("user_id", conn.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ICSフィードの取得に失敗: %w", err)
	}
	defer resp.Body.Close()

	switch classifyStatus(resp.StatusCode) {
	case outcomeOK:
	case outcomeRejected:
		c.logger.Warn("ICSフィードが取得できない状態です",
			slog.String("user_id", conn.UserID),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", availability.ErrProviderRejected, resp.StatusCode)
	default:
		return nil, fmt.Errorf("ICSフィードがステータス %d を返しました", resp.StatusCode)
	}

	// 上限を1バイト超えて読み、超過を検出する
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取りに失敗: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, fmt.Errorf("ICSフィードのサイズが上限 %d バイトを超えています", c.maxBodySize)
	}

	busy, err := parseICSBusy(bytes.NewReader(body), timeMin, timeMax, conn.Location, c.logger)
	if err != nil {
		c.logger.Error("ICSフィードのパースに失敗しました",
			slog.String("user_id", conn.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ICSフィードのパースに失敗: %w", err)
	}
	return busy, nil
}
