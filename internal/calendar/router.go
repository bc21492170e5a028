// Package calendar は外部カレンダーから予定ありの時間帯（busy）を取得するクライアントを提供する。
// Google Calendar の freeBusy API、ICS（iCalendar）購読フィード、
// および連携のプロバイダに応じた振り分けを含む。
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/coachcal/internal/availability"
	"github.com/hitoshi/coachcal/internal/model"
)

// コンパイル時にインターフェースの実装を検証する。
var (
	_ availability.CalendarClient = (*Router)(nil)
	_ availability.CalendarClient = (*FreeBusyClient)(nil)
	_ availability.CalendarClient = (*ICSClient)(nil)
)

// Router はカレンダー連携のプロバイダに応じてクライアントを振り分ける。
type Router struct {
	clients map[model.CalendarProvider]availability.CalendarClient
}

// NewRouter はRouterの新しいインスタンスを生成する。
func NewRouter(google, ics availability.CalendarClient) *Router {
	return &Router{
		clients: map[model.CalendarProvider]availability.CalendarClient{
			model.CalendarProviderGoogle: google,
			model.CalendarProviderICS:    ics,
		},
	}
}

// FetchBusy は連携のプロバイダに対応するクライアントでbusy区間を取得する。
// 未対応のプロバイダは ErrUnknownProvider をラップしたエラーを返す。
func (r *Router) FetchBusy(ctx context.Context, conn *model.CalendarConnection, timeMin, timeMax time.Time) ([]model.BusyInterval, error) {
	client, ok := r.clients[conn.Provider]
	if !ok || client == nil {
		return nil, fmt.Errorf("%w: %q", availability.ErrUnknownProvider, conn.Provider)
	}
	return client.FetchBusy(ctx, conn, timeMin, timeMax)
}
