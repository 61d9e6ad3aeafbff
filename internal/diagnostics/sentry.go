package diagnostics

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// sentryReporter はSentryをバックエンドとするReporter実装。
type sentryReporter struct {
	hub *sentry.Hub
}

// New はReporterを生成する。dsnが空の場合はno-op実装を返す。
func New(dsn, environment string) (Reporter, error) {
	if dsn == "" {
		return NewNoop(), nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize diagnostics client: %w", err)
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	return &sentryReporter{hub: hub}, nil
}

// CaptureError は障害をセッション文脈と構造化メタデータ付きで報告する。
func (r *sentryReporter) CaptureError(err error, sessionCtx SessionContext, metadata map[string]any) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		if sessionCtx.SessionID != "" {
			scope.SetTag("session_id", sessionCtx.SessionID)
		}
		if sessionCtx.UserID != "" {
			scope.SetUser(sentry.User{ID: sessionCtx.UserID})
		}
		if len(metadata) > 0 {
			scope.SetContext("operation", metadata)
		}
		r.hub.CaptureException(err)
	})
}

// Breadcrumb は直近の操作の痕跡を記録する。
func (r *sentryReporter) Breadcrumb(message string, metadata map[string]any) {
	r.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Message:   message,
		Data:      metadata,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}, nil)
}

// Close は未送信のレポートをフラッシュする。
func (r *sentryReporter) Close() {
	r.hub.Flush(2 * time.Second)
}
