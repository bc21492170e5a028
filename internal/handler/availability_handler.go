package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/coachcal/internal/availability"
	"github.com/hitoshi/coachcal/internal/middleware"
	"github.com/hitoshi/coachcal/internal/model"
)

// maxGroupMembers はアドホックなグループ検索で指定できるメンバー数の上限。
const maxGroupMembers = 50

// AvailabilityServiceInterface は空き時間検索ハンドラーが依存するサービスのインターフェース。
type AvailabilityServiceInterface interface {
	GetUserAvailability(ctx context.Context, userID string, rangeStart, rangeEnd time.Time, minDurationMinutes int) ([]model.FreeSlot, error)
	CheckSlotAvailable(ctx context.Context, userID string, start, end time.Time) (bool, error)
	FindGroupAvailability(ctx context.Context, gq availability.GroupQuery) (*model.GroupAvailabilityResult, error)
	FindGroupAvailabilityForGroup(ctx context.Context, groupID string, gq availability.GroupQuery) (*model.GroupAvailabilityResult, error)
}

// AvailabilityHandler は空き時間検索のHTTPハンドラー。
type AvailabilityHandler struct {
	service AvailabilityServiceInterface
	logger  *slog.Logger
}

// NewAvailabilityHandler はAvailabilityHandlerの新しいインスタンスを生成する。
func NewAvailabilityHandler(service AvailabilityServiceInterface, logger *slog.Logger) *AvailabilityHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityHandler{service: service, logger: logger}
}

// userAvailabilityResponse はユーザー空き時間のレスポンス。
type userAvailabilityResponse struct {
	UserID string           `json:"user_id"`
	Slots  []model.FreeSlot `json:"slots"`
}

// slotCheckResponse は枠の空き確認のレスポンス。
type slotCheckResponse struct {
	UserID    string    `json:"user_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// groupAvailabilityRequest はアドホックなグループ検索のリクエストボディ。
// 省略したフィールドはサービス側のデフォルト値で補完される。
type groupAvailabilityRequest struct {
	MemberIDs          []string   `json:"member_ids"`
	Start              *time.Time `json:"start"`
	End                *time.Time `json:"end"`
	MinDurationMinutes *int       `json:"min_duration"`
	MaxSlots           int        `json:"max_slots"`
	Timezone           string     `json:"timezone"`
}

// GetUserAvailability はGET /api/users/{id}/availability を処理する。
// start, end（RFC3339）は必須。min_durationの省略時は60分、tz指定時はその地域時刻で返す。
func (h *AvailabilityHandler) GetUserAvailability(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}
	userID := chi.URLParam(r, "id")
	q := r.URL.Query()

	start, end, err := parseRange(q.Get("start"), q.Get("end"), true)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError(err.Error()))
		return
	}
	minDuration := availability.DefaultMinDurationMinutes
	if v := q.Get("min_duration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError("min_duration must be an integer"))
			return
		}
		minDuration = n
	}

	slots, err := h.service.GetUserAvailability(r.Context(), userID, start, end, minDuration)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if tz := q.Get("tz"); tz != "" {
		slots, err = availability.ConvertToTimezone(slots, tz)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
	}
	if slots == nil {
		slots = []model.FreeSlot{}
	}

	writeJSON(w, http.StatusOK, userAvailabilityResponse{UserID: userID, Slots: slots})
}

// CheckSlot はGET /api/users/{id}/availability/check を処理する。
func (h *AvailabilityHandler) CheckSlot(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}
	userID := chi.URLParam(r, "id")
	q := r.URL.Query()

	start, end, err := parseRange(q.Get("start"), q.Get("end"), true)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError(err.Error()))
		return
	}

	ok, err := h.service.CheckSlotAvailable(r.Context(), userID, start, end)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, slotCheckResponse{
		UserID:    userID,
		Start:     start,
		End:       end,
		Available: ok,
	})
}

// FindGroupAvailability はPOST /api/availability/group を処理する。
func (h *AvailabilityHandler) FindGroupAvailability(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}

	var req groupAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	if len(req.MemberIDs) > maxGroupMembers {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidQueryError(fmt.Sprintf("member_ids must not exceed %d", maxGroupMembers)))
		return
	}

	gq := availability.GroupQuery{
		MemberIDs:          req.MemberIDs,
		MinDurationMinutes: req.MinDurationMinutes,
		MaxSlots:           req.MaxSlots,
		Timezone:           req.Timezone,
	}
	if req.Start != nil {
		gq.RangeStart = *req.Start
	}
	if req.End != nil {
		gq.RangeEnd = *req.End
	}

	result, err := h.service.FindGroupAvailability(r.Context(), gq)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeGroupResult(w, r, result, req.Timezone)
}

// FindGroupAvailabilityForGroup はGET /api/groups/{id}/availability を処理する。
// start, endは省略可能で、省略時は現在時刻から先読み日数分を検索する。
func (h *AvailabilityHandler) FindGroupAvailabilityForGroup(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}
	groupID := chi.URLParam(r, "id")
	q := r.URL.Query()

	start, end, err := parseRange(q.Get("start"), q.Get("end"), false)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError(err.Error()))
		return
	}
	gq := availability.GroupQuery{
		RangeStart: start,
		RangeEnd:   end,
		Timezone:   q.Get("tz"),
	}
	if v := q.Get("min_duration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError("min_duration must be an integer"))
			return
		}
		gq.MinDurationMinutes = &n
	}
	if v := q.Get("max_slots"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError("max_slots must be an integer"))
			return
		}
		gq.MaxSlots = n
	}

	result, err := h.service.FindGroupAvailabilityForGroup(r.Context(), groupID, gq)
	if errors.Is(err, availability.ErrGroupNotFound) {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewGroupNotFoundError(groupID))
		return
	}
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeGroupResult(w, r, result, gq.Timezone)
}

// writeGroupResult はグループ検索結果を書き込む。tzが指定されていればスロットをその地域時刻で表現する。
func (h *AvailabilityHandler) writeGroupResult(w http.ResponseWriter, r *http.Request, result *model.GroupAvailabilityResult, tz string) {
	if tz != "" {
		slots, err := availability.ConvertToTimezone(result.Slots, tz)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		result.Slots = slots
	}
	writeJSON(w, http.StatusOK, result)
}

// handleServiceError はサービス層のエラーを分類に応じたHTTPレスポンスに変換する。
func (h *AvailabilityHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := availability.KindOf(err)
	if ok {
		writeAPIErrorResponse(w, mapKindToHTTPStatus(kind), apiErrorForKind(kind, err))
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("リクエストが完了前に中断されました",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewInternalError())
		return
	}

	h.logger.Error("空き時間検索で内部エラーが発生しました",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapKindToHTTPStatus はエラー分類をHTTPステータスコードにマッピングする。
func mapKindToHTTPStatus(kind availability.Kind) int {
	switch kind {
	case availability.KindConfiguration:
		return http.StatusNotFound
	case availability.KindValidation:
		return http.StatusBadRequest
	case availability.KindTimezone:
		return http.StatusUnprocessableEntity
	case availability.KindExternalProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func apiErrorForKind(kind availability.Kind, err error) *model.APIError {
	var e *availability.Error
	errors.As(err, &e)

	switch kind {
	case availability.KindConfiguration:
		if errors.Is(err, availability.ErrGroupNotFound) {
			return model.NewGroupNotFoundError(unwrapMessage(e))
		}
		return model.NewUserNotFoundError(e.UserID)
	case availability.KindValidation:
		return model.NewInvalidQueryError(unwrapMessage(e))
	case availability.KindTimezone:
		return model.NewInvalidTimezoneError(unwrapMessage(e))
	case availability.KindExternalProvider:
		return model.NewProviderFailedError()
	default:
		return model.NewInternalError()
	}
}

func unwrapMessage(e *availability.Error) string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// requireCaller は呼び出し元が識別済みかを確認し、未識別なら401を書き込んでfalseを返す。
func requireCaller(w http.ResponseWriter, r *http.Request) bool {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return false
	}
	return true
}

// parseRange はRFC3339の開始・終了時刻を解析する。
// requiredがfalseの場合、空文字はゼロ値として返す。
func parseRange(startRaw, endRaw string, required bool) (time.Time, time.Time, error) {
	var start, end time.Time
	if startRaw == "" || endRaw == "" {
		if required {
			return start, end, errors.New("start and end are required")
		}
	}
	if startRaw != "" {
		t, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return start, end, fmt.Errorf("start must be RFC3339: %q", startRaw)
		}
		start = t
	}
	if endRaw != "" {
		t, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return start, end, fmt.Errorf("end must be RFC3339: %q", endRaw)
		}
		end = t
	}
	return start, end, nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse はAPIErrorを統一エラーフォーマットで書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}
