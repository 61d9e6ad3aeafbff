package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gramlink/internal/model"
)

// ChannelServiceInterface はチャンネルハンドラーが必要とするサービスインターフェース。
type ChannelServiceInterface interface {
	// CreateChannel は新しいチャンネルを作成する。
	CreateChannel(ctx context.Context, sess *model.Session, title, description string) *model.CommandResult
	// DeleteChannel はチャンネルを削除する。
	DeleteChannel(ctx context.Context, sess *model.Session, channelID string) *model.CommandResult
	// ListChannels は連携アカウントのチャンネル一覧を返す。失敗時は空リスト。
	ListChannels(ctx context.Context, sess *model.Session) []model.ChannelInfo
	// InviteUser はユーザーにチャンネルへの招待リンクを送信する。
	InviteUser(ctx context.Context, sess *model.Session, channelID, username string) *model.CommandResult
}

// ChannelHandler はチャンネル操作のHTTPハンドラー。
type ChannelHandler struct {
	service ChannelServiceInterface
}

// NewChannelHandler はChannelHandlerを生成する。
func NewChannelHandler(service ChannelServiceInterface) *ChannelHandler {
	return &ChannelHandler{service: service}
}

// createChannelRequest はチャンネル作成リクエストのボディ。
type createChannelRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// inviteUserRequest はユーザー招待リクエストのボディ。
type inviteUserRequest struct {
	Username string `json:"username"`
}

// listChannelsResponse はチャンネル一覧レスポンス。
type listChannelsResponse struct {
	Channels []model.ChannelInfo `json:"channels"`
}

// CreateChannel はチャンネル作成を処理する。
// POST /api/channels
func (h *ChannelHandler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req createChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	result := h.service.CreateChannel(r.Context(), session, req.Title, req.Description)
	writeCommandResult(w, result)
}

// DeleteChannel はチャンネル削除を処理する。
// DELETE /api/channels/{id}
func (h *ChannelHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	result := h.service.DeleteChannel(r.Context(), session, chi.URLParam(r, "id"))
	writeCommandResult(w, result)
}

// ListChannels はチャンネル一覧を返す。
// 取得に失敗した場合でもエラーにせず空リストを返す。
// GET /api/channels
func (h *ChannelHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	channels := h.service.ListChannels(r.Context(), session)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listChannelsResponse{Channels: channels})
}

// InviteUser はチャンネルへの招待リンク送信を処理する。
// POST /api/channels/{id}/invite
func (h *ChannelHandler) InviteUser(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req inviteUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	result := h.service.InviteUser(r.Context(), session, chi.URLParam(r, "id"), req.Username)
	writeCommandResult(w, result)
}
