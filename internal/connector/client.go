package connector

import "context"

// Client はセッションに紐づくコネクタハンドルのインターフェース。
// リクエストスコープで生成され、永続化されない。各操作は同期呼び出しで、
// ブリッジとの往復の間は呼び出し元をブロックする。
//
// 全操作はコネクタ固有の失敗（レート制限、未認可、部分認可）を
// エラー値として返す。panicは使用しない。
type Client interface {
	// Status は現在の認可状態を取得する。
	Status(ctx context.Context) (AuthStatus, error)

	// LoggedUser はログイン済みアカウントのプロフィールを取得する。
	// ログインしていない場合はErrNotAuthorizedを返す。
	LoggedUser(ctx context.Context) (*Profile, error)

	// RequestQR はQRログインチャレンジを要求する。
	RequestQR(ctx context.Context) (*QRToken, error)

	// SendCode は指定の電話番号へ確認コードの送信を要求する。
	// レート制限時はFloodWaitErrorを返す。
	SendCode(ctx context.Context, phone string) (*SentCode, error)

	// SignIn は確認コードでログインを完了し、結果の認可状態を返す。
	SignIn(ctx context.Context, code string) (AuthStatus, error)

	// Logout はリモート側のセッションを破棄する。
	Logout(ctx context.Context) error

	// CreateChannel はチャンネルを作成し、そのピアを返す。
	CreateChannel(ctx context.Context, title, description string) (*Peer, error)

	// DeleteChannel は指定チャンネルを削除する。
	DeleteChannel(ctx context.Context, channelID int64) error

	// ListDialogs はアカウントのダイアログ（ピア）一覧を取得する。
	ListDialogs(ctx context.Context) ([]Peer, error)

	// ExportInviteLink は指定チャンネルの招待リンクを発行する。
	ExportInviteLink(ctx context.Context, channelID int64) (string, error)

	// SendMessage は指定ピアへテキストメッセージを送る。
	// peerは数値IDまたは正規化済みユーザー名（先頭@付き）。
	SendMessage(ctx context.Context, peer, text string) (*MessageRef, error)

	// ForwardMessage はメッセージを別ピアへ転送する。
	ForwardMessage(ctx context.Context, fromPeerID, toPeerID, messageID int64) (*MessageRef, error)

	// EditMessage は送信済みメッセージの本文を書き換える。
	EditMessage(ctx context.Context, peerID, messageID int64, text string) error

	// DeleteMessage は送信済みメッセージを削除する。
	DeleteMessage(ctx context.Context, peerID, messageID int64) error
}
