package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/gramlink/internal/model"
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	// SendMessage は宛先にテキストメッセージを送信する。
	SendMessage(ctx context.Context, sess *model.Session, peer, body string) *model.CommandResult
	// ForwardMessage はメッセージを別のチャンネルへ転送する。
	ForwardMessage(ctx context.Context, sess *model.Session, fromPeerID, toPeerID, messageID string) *model.CommandResult
	// EditMessage は送信済みメッセージの本文を編集する。
	EditMessage(ctx context.Context, sess *model.Session, peerID, messageID, body string) *model.CommandResult
	// DeleteMessage はメッセージを削除する。
	DeleteMessage(ctx context.Context, sess *model.Session, peerID, messageID string) *model.CommandResult
}

// MessageHandler はメッセージ操作のHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

// sendMessageRequest はメッセージ送信リクエストのボディ。
// peerは数値IDまたは@付きユーザー名。
type sendMessageRequest struct {
	Peer string `json:"peer"`
	Body string `json:"body"`
}

// forwardMessageRequest はメッセージ転送リクエストのボディ。
type forwardMessageRequest struct {
	FromPeerID string `json:"from_peer_id"`
	ToPeerID   string `json:"to_peer_id"`
	MessageID  string `json:"message_id"`
}

// editMessageRequest はメッセージ編集リクエストのボディ。
type editMessageRequest struct {
	PeerID    string `json:"peer_id"`
	MessageID string `json:"message_id"`
	Body      string `json:"body"`
}

// deleteMessageRequest はメッセージ削除リクエストのボディ。
type deleteMessageRequest struct {
	PeerID    string `json:"peer_id"`
	MessageID string `json:"message_id"`
}

// SendMessage はメッセージ送信を処理する。
// POST /api/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	result := h.service.SendMessage(r.Context(), session, req.Peer, req.Body)
	writeCommandResult(w, result)
}

// ForwardMessage はメッセージ転送を処理する。
// POST /api/messages/forward
func (h *MessageHandler) ForwardMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req forwardMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	result := h.service.ForwardMessage(r.Context(), session, req.FromPeerID, req.ToPeerID, req.MessageID)
	writeCommandResult(w, result)
}

// EditMessage はメッセージ編集を処理する。
// POST /api/messages/edit
func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	result := h.service.EditMessage(r.Context(), session, req.PeerID, req.MessageID, req.Body)
	writeCommandResult(w, result)
}

// DeleteMessage はメッセージ削除を処理する。
// POST /api/messages/delete
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req deleteMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	result := h.service.DeleteMessage(r.Context(), session, req.PeerID, req.MessageID)
	writeCommandResult(w, result)
}
