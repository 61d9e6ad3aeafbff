// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/gramlink/internal/middleware"
	"github.com/hitoshi/gramlink/internal/model"
)

// LinkServiceInterface はアカウント連携ハンドラーが必要とするサービスインターフェース。
type LinkServiceInterface interface {
	// GenerateQR はQRログイン用のPNG画像を生成する。生成できない場合はnil。
	GenerateQR(ctx context.Context, sess *model.Session) []byte
	// InitiatePhoneLogin は電話番号を検証し確認コードの送信を要求する。
	InitiatePhoneLogin(ctx context.Context, sess *model.Session, phone string) *model.PhoneLoginResult
	// CompletePhoneLogin は確認コードを検証しログインを完了する。
	CompletePhoneLogin(ctx context.Context, sess *model.Session, code string) *model.CodeLoginResult
	// TerminateSession はリモートログアウトとローカル状態の破棄を行う。
	TerminateSession(ctx context.Context, sess *model.Session) bool
	// LinkedAccount は連携済みアカウント情報を返す。未連携の場合はnil。
	LinkedAccount(ctx context.Context, sess *model.Session) *model.LinkedAccount
	// IsLoggedIn はネットワーク側でログイン済みかを返す。
	IsLoggedIn(ctx context.Context, sess *model.Session) bool
}

// SessionServiceInterface はセッションの確立と直列化に必要なインターフェース。
type SessionServiceInterface interface {
	// EnsureSession はユーザーのアクティブセッションを取得または新規作成する。
	EnsureSession(ctx context.Context, userID, ipAddress, userAgent string) (*model.Session, error)
	// WithUserLease はユーザー単位のリースを取得してfnを実行する。
	WithUserLease(userID string, fn func() error) error
}

// LinkHandlerConfig はアカウント連携ハンドラーの設定。
type LinkHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// LinkHandler はアカウント連携（QR・電話番号ログイン・切断）のHTTPハンドラー。
type LinkHandler struct {
	linkService    LinkServiceInterface
	sessionService SessionServiceInterface
	config         LinkHandlerConfig
}

// NewLinkHandler はLinkHandlerを生成する。
func NewLinkHandler(linkService LinkServiceInterface, sessionService SessionServiceInterface, config LinkHandlerConfig) *LinkHandler {
	return &LinkHandler{
		linkService:    linkService,
		sessionService: sessionService,
		config:         config,
	}
}

// startLinkRequest は連携開始リクエストのボディ。
// user_idは認証済みUI層から渡される信頼済みの値。
type startLinkRequest struct {
	UserID string `json:"user_id"`
}

// startLinkResponse は連携開始レスポンス。
type startLinkResponse struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// phoneLoginRequest は電話番号ログイン開始リクエストのボディ。
type phoneLoginRequest struct {
	Phone string `json:"phone"`
}

// codeLoginRequest は確認コード検証リクエストのボディ。
type codeLoginRequest struct {
	Code string `json:"code"`
}

// StartLink はユーザーの連携セッションを確立しセッションCookieを発行する。
// 既にアクティブなセッションがある場合はそれを再利用する。
// POST /api/link/start
func (h *LinkHandler) StartLink(w http.ResponseWriter, r *http.Request) {
	var req startLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}
	if req.UserID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("user_id is required."))
		return
	}

	session, err := h.sessionService.EnsureSession(r.Context(), req.UserID, clientIP(r), r.UserAgent())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// セッション識別子をHTTP Only Cookieとして発行
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.SessionIdentifier,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(startLinkResponse{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// GenerateQR はQRログイン用のPNG画像を返す。
// 既にログイン済み、またはコード入力待ちの場合は204 No Contentを返す。
// GET /api/link/qr
func (h *LinkHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var png []byte
	err := h.sessionService.WithUserLease(session.UserID, func() error {
		png = h.linkService.GenerateQR(r.Context(), session)
		return nil
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if png == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}

// InitiatePhoneLogin は電話番号ログインを開始し確認コードの送信を要求する。
// POST /api/link/phone
func (h *LinkHandler) InitiatePhoneLogin(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req phoneLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	var result *model.PhoneLoginResult
	if err := h.sessionService.WithUserLease(session.UserID, func() error {
		result = h.linkService.InitiatePhoneLogin(r.Context(), session, req.Phone)
		return nil
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.RateLimited {
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", strconv.Itoa(result.WaitSeconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}

// CompletePhoneLogin は確認コードを検証しログインを完了する。
// POST /api/link/code
func (h *LinkHandler) CompletePhoneLogin(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req codeLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestBodyError())
		return
	}

	var result *model.CodeLoginResult
	if err := h.sessionService.WithUserLease(session.UserID, func() error {
		result = h.linkService.CompletePhoneLogin(r.Context(), session, req.Code)
		return nil
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// TerminateSession はネットワーク側のログアウトとローカル状態の破棄を行う。
// リモート側が失敗してもローカルのセッションは必ず無効化される。
// POST /api/link/terminate
func (h *LinkHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	var clean bool
	if err := h.sessionService.WithUserLease(session.UserID, func() error {
		clean = h.linkService.TerminateSession(r.Context(), session)
		return nil
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"clean": clean})
}

// linkStatusResponse は連携状態レスポンス。
type linkStatusResponse struct {
	Active   bool                 `json:"active"`
	LoggedIn bool                 `json:"logged_in"`
	Account  *model.LinkedAccount `json:"account,omitempty"`
}

// Status は連携セッションの現在状態と連携済みアカウント情報を返す。
// GET /api/link/status
func (h *LinkHandler) Status(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	resp := linkStatusResponse{Active: true}
	if h.linkService.IsLoggedIn(r.Context(), session) {
		resp.LoggedIn = true
		resp.Account = h.linkService.LinkedAccount(r.Context(), session)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- 共通ヘルパー ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// sessionFromRequest はリクエストコンテキストからセッションを取得する。
// セッションミドルウェア通過後のリクエストでのみ有効。取得できない場合は
// 401を書き込みfalseを返す。
func sessionFromRequest(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewSessionNotFoundError())
		return nil, false
	}
	return session, true
}

// clientIP はリクエスト元のIPアドレスを返す。
// リバースプロキシ配下ではX-Forwarded-Forの先頭を優先する。
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	return r.RemoteAddr
}

// invalidRequestBodyError はJSONボディ解析失敗のエラーを生成する。
func invalidRequestBodyError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "Could not parse the request body.",
		Category: "validation",
		Action:   "Send a valid JSON body.",
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Try again in a few moments.",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidationFailure:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeConnectorFailure:
		return http.StatusBadGateway
	case model.ErrCodeNotAuthorized:
		return http.StatusForbidden
	case model.ErrCodeSessionNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeCommandResult はコマンド結果をHTTPレスポンスとして書き込む。
// レート制限時は429とRetry-Afterヘッダーを返し、それ以外は200で結果をそのまま返す。
func writeCommandResult(w http.ResponseWriter, result *model.CommandResult) {
	status := http.StatusOK
	if result.RateLimited {
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", strconv.Itoa(result.WaitSeconds))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(result)
}
