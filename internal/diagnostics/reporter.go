// Package diagnostics は障害の外部報告（エラーレポートとパンくず）を提供する。
// レポーティングキーが未設定の場合は全操作がno-opになるため、
// 呼び出し側は設定の有無を意識せずに利用できる。
package diagnostics

import "github.com/hitoshi/gramlink/internal/model"

// SessionContext はレポートに付与するセッション文脈。
// セッション識別子そのものは秘匿情報のため含めない。
type SessionContext struct {
	SessionID string
	UserID    string
}

// SessionContextFrom はセッションからレポート用の文脈を作る。nil安全。
func SessionContextFrom(session *model.Session) SessionContext {
	if session == nil {
		return SessionContext{}
	}
	return SessionContext{
		SessionID: session.ID,
		UserID:    session.UserID,
	}
}

// Reporter は診断シンクのインターフェース。
type Reporter interface {
	// CaptureError は障害をセッション文脈と構造化メタデータ付きで報告する。
	CaptureError(err error, sessionCtx SessionContext, metadata map[string]any)

	// Breadcrumb は直近の操作の痕跡を記録する。エラー報告時に文脈として添付される。
	Breadcrumb(message string, metadata map[string]any)

	// Close は未送信のレポートをフラッシュする。シャットダウン時に呼ぶ。
	Close()
}

// noopReporter は何もしないReporter。キー未設定時に使用する。
type noopReporter struct{}

// NewNoop はno-opのReporterを返す。
func NewNoop() Reporter {
	return noopReporter{}
}

func (noopReporter) CaptureError(error, SessionContext, map[string]any) {}
func (noopReporter) Breadcrumb(string, map[string]any)                 {}
func (noopReporter) Close()                                            {}
