// Package model はドメインモデルを定義する。
package model

// PhoneLoginResult は電話番号ログイン開始（コード送信要求）の分類済み結果。
// 認証オーケストレータはコネクタの応答を必ずこのタグ付き結果に変換して返し、
// 例外を呼び出し元へ伝播させない。
type PhoneLoginResult struct {
	Success      bool   `json:"success"`
	LoggedIn     bool   `json:"logged_in"`
	CodeRequired bool   `json:"code_required,omitempty"`
	CodeType     string `json:"code_type,omitempty"` // app, sms, call
	RateLimited  bool   `json:"rate_limited,omitempty"`
	WaitSeconds  int    `json:"wait_seconds,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

// CodeLoginResult は確認コード検証の結果。
type CodeLoginResult struct {
	Success  bool   `json:"success"`
	LoggedIn bool   `json:"logged_in"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CommandResult は全コマンドラッパー共通の結果フォーマット。
// 成功時はMessage、失敗時はErrorに短い英文を設定する。
// コネクタのレート制限に該当した場合はRateLimitedとWaitSecondsを設定する。
type CommandResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
	RateLimited bool   `json:"rate_limited,omitempty"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
}

// ChannelInfo はチャンネル一覧操作で返すチャンネル概要。
// コネクタのピアレコードのうちchannel/group/supergroupのみを写像する。
type ChannelInfo struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
	Type     string `json:"type"`
}
