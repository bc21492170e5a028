package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/coachcal/internal/availability"
	"github.com/hitoshi/coachcal/internal/model"
)

// DefaultFreeBusyEndpoint は Google Calendar freeBusy API のエンドポイント。
const DefaultFreeBusyEndpoint = "https://www.googleapis.com/calendar/v3/freeBusy"

// defaultFreeBusyMaxBodySize はfreeBusy APIのレスポンスとして読み取る最大バイト数。
const defaultFreeBusyMaxBodySize int64 = 5 << 20

// userAgent は外部カレンダーへのリクエストに付与するUser-Agent。
const userAgent = "Coachcal/1.0 Availability Engine"

// FreeBusyClient は freeBusy API のクライアント。
// 連携に含まれる全カレンダーのbusy区間を1回のリクエストでまとめて取得する。
type FreeBusyClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
	retry      retryPolicy

	maxBodySize int64
}

// NewFreeBusyClient はFreeBusyClientの新しいインスタンスを生成する。
// endpointが空の場合はDefaultFreeBusyEndpointを使用する。
// limiterは外部APIの呼び出し頻度を制限する（nilの場合は制限なし）。
func NewFreeBusyClient(httpClient *http.Client, limiter *rate.Limiter, endpoint string, logger *slog.Logger) *FreeBusyClient {
	if endpoint == "" {
		endpoint = DefaultFreeBusyEndpoint
	}
	return &FreeBusyClient{
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
		endpoint:   endpoint,
		retry:      defaultRetryPolicy,

		maxBodySize: defaultFreeBusyMaxBodySize,
	}
}

type freeBusyRequest struct {
	TimeMin string         `json:"timeMin"`
	TimeMax string         `json:"timeMax"`
	Items   []freeBusyItem `json:"items"`
}

type freeBusyItem struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]freeBusyCalendar `json:"calendars"`
}

type freeBusyCalendar struct {
	Busy   []freeBusyPeriod `json:"busy"`
	Errors []freeBusyError  `json:"errors"`
}

type freeBusyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type freeBusyError struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// FetchBusy は連携のカレンダー群について [timeMin, timeMax) のbusy区間を取得する。
// 認可エラー（401/403）と存在しないカレンダー（404/410）は ErrProviderRejected をラップして返す。
// 429/5xxは短い指数バックオフで再試行する。
// いずれかのカレンダーでエラーが返された場合、結果全体をエラーとする。
func (c *FreeBusyClient) FetchBusy(ctx context.Context, conn *model.CalendarConnection, timeMin, timeMax time.Time) ([]model.BusyInterval, error) {
	if len(conn.CalendarIDs) == 0 {
		return []model.BusyInterval{}, nil
	}

	reqBody := freeBusyRequest{
		TimeMin: timeMin.UTC().Format(time.RFC3339),
		TimeMax: timeMax.UTC().Format(time.RFC3339),
		Items:   make([]freeBusyItem, 0, len(conn.CalendarIDs)),
	}
	for _, id := range conn.CalendarIDs {
		reqBody.Items = append(reqBody.Items, freeBusyItem{ID: id})
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	newRequest := func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	}

	start := time.Now()
	resp, err := doWithRetry(ctx, c.httpClient, c.limiter, c.retry, newRequest, c.logger, conn.UserID)
	if err != nil {
		c.logger.Error("freeBusy APIの呼び出しに失敗しました",
			slog.String("user_id", conn.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("freeBusy APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	switch classifyStatus(resp.StatusCode) {
	case outcomeOK:
	case outcomeRejected:
		c.logger.Warn("freeBusy APIが認可エラーを返しました",
			slog.String("user_id", conn.UserID),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: status %d", availability.ErrProviderRejected, resp.StatusCode)
	default:
		c.logger.Error("freeBusy APIがエラーステータスを返しました",
			slog.String("user_id", conn.UserID),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("freeBusy APIがステータス %d を返しました", resp.StatusCode)
	}

	// 上限を1バイト超えて読み、超過を検出する
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		c.logger.Error("freeBusy APIのレスポンスが上限を超えました",
			slog.String("user_id", conn.UserID),
			slog.Int64("max_body_size", c.maxBodySize),
		)
		return nil, fmt.Errorf("freeBusy APIのレスポンスが上限 %d バイトを超えています", c.maxBodySize)
	}

	var result freeBusyResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("freeBusy APIのレスポンスのパースに失敗しました",
			slog.String("user_id", conn.UserID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	busy := make([]model.BusyInterval, 0)
	for _, id := range conn.CalendarIDs {
		cal, ok := result.Calendars[id]
		if !ok {
			return nil, fmt.Errorf("レスポンスにカレンダー %s が含まれていません", id)
		}
		if len(cal.Errors) > 0 {
			return nil, fmt.Errorf("カレンダー %s の取得でエラーが返されました: %s/%s", id, cal.Errors[0].Domain, cal.Errors[0].Reason)
		}
		for _, p := range cal.Busy {
			busy = append(busy, model.BusyInterval{
				Start:    p.Start.UTC(),
				End:      p.End.UTC(),
				SourceID: id,
			})
		}
	}

	c.logger.Debug("freeBusy APIからbusy区間を取得しました",
		slog.String("user_id", conn.UserID),
		slog.Int("calendar_count", len(conn.CalendarIDs)),
		slog.Int("busy_count", len(busy)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return busy, nil
}
