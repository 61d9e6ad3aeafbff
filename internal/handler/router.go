package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/gramlink/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// サービス
	LinkService    LinkServiceInterface
	SessionService SessionServiceInterface
	ChannelService ChannelServiceInterface
	MessageService MessageServiceInterface

	// 連携ハンドラー設定
	LinkConfig LinkHandlerConfig

	// Prometheusメトリクスのハンドラー（promhttp.Handler）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → SecurityHeaders
//	（認証必須ルートはさらに Session → CSRF → RateLimit(General)）
//
// 連携開始（/api/link/start）はCookie発行前のためセッションチェックの外に置く。
// ログイン系エンドポイント（/api/link/phone, /api/link/code）には
// コネクタのレート制限を予防する専用レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	linkHandler := NewLinkHandler(deps.LinkService, deps.SessionService, deps.LinkConfig)
	channelHandler := NewChannelHandler(deps.ChannelService)
	messageHandler := NewMessageHandler(deps.MessageService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// 連携開始（信頼済みUI層からのuser_idでセッションCookieを発行）
	r.Post("/api/link/start", linkHandler.StartLink)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アカウント連携
		r.Route("/api/link", func(r chi.Router) {
			r.Get("/qr", linkHandler.GenerateQR)
			r.Get("/status", linkHandler.Status)
			r.Post("/terminate", linkHandler.TerminateSession)

			// ログイン系はコネクタ側レート制限の予防として専用レート制限を追加
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/phone", linkHandler.InitiatePhoneLogin)
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/code", linkHandler.CompletePhoneLogin)
		})

		// チャンネル管理
		r.Route("/api/channels", func(r chi.Router) {
			r.Get("/", channelHandler.ListChannels)
			r.Post("/", channelHandler.CreateChannel)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", channelHandler.DeleteChannel)
				r.Post("/invite", channelHandler.InviteUser)
			})
		})

		// メッセージ操作
		r.Route("/api/messages", func(r chi.Router) {
			r.Post("/", messageHandler.SendMessage)
			r.Post("/forward", messageHandler.ForwardMessage)
			r.Post("/edit", messageHandler.EditMessage)
			r.Post("/delete", messageHandler.DeleteMessage)
		})
	})

	return r
}
