// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/gramlink/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
// 行は非アクティブ化後も監査履歴として保持し、物理削除しない。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindActiveByUserID は指定ユーザーの正となるアクティブセッションを取得する。
	// is_activeかつ未期限切れのセッションのうち、最も最近アクティビティのあった
	// 1件を返す。該当がない場合はnilを返す。
	FindActiveByUserID(ctx context.Context, userID string) (*model.Session, error)

	// FindByIdentifier はセッション識別子でセッションを検索する。
	// アクティブかつ未期限切れのもののみ返す。見つからない場合はnilを返す。
	FindByIdentifier(ctx context.Context, identifier string) (*model.Session, error)

	// UpdateActivity は指定セッションのlast_activity_atを現在時刻に更新する。
	UpdateActivity(ctx context.Context, sessionID string) error

	// Deactivate は指定セッションをis_active=falseにする。冪等。
	Deactivate(ctx context.Context, sessionID string) error

	// ListExpiredActive はis_activeのまま期限切れになったセッションを返す。
	// クリーンアップワーカーがディレクトリ破棄と非アクティブ化に使用する。
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Session, error)
}
