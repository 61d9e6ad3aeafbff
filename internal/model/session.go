// Package model はドメインモデルを定義する。
package model

import "time"

// Session はユーザーとメッセージングネットワークの接続状態を表す永続セッション。
// 1ユーザーにつき正とみなすアクティブセッションは常に最大1件
// （最も最近アクティビティのあったもの）として扱う。
// 行はログアウト後も監査履歴として保持し、削除しない。
type Session struct {
	ID                string
	UserID            string
	SessionIdentifier string // 256bitエントロピーの不透明トークン。推測不能かつ一意。
	SessionPath       string // コネクタのローカル状態を保存する専用ディレクトリ
	IsActive          bool
	LastActivityAt    time.Time
	ExpiresAt         time.Time
	IPAddress         string
	UserAgent         string
	CreatedAt         time.Time
}

// Expired は基準時刻nowがExpiresAtを過ぎているかを返す。
// IsActiveの値に関わらず、期限切れセッションは無効として扱う。
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Usable はセッションが認証済み操作に利用可能かを返す。
// アクティブかつ未期限切れの場合のみtrue。
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && !s.Expired(now)
}

// LinkedAccount はメッセージングネットワーク側のログイン済みアカウント情報。
// コネクタ内部のオブジェクトをUI層へ渡さないための平坦な表現。
type LinkedAccount struct {
	AccountID int64  `json:"account_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}
