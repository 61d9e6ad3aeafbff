// Package connector は外部プロトコルコネクタ（ブリッジ）との境界を提供する。
// ワイヤプロトコル自体はブリッジ側の責務であり、本パッケージは
// セッションディレクトリに紐づくハンドルの生成・呼び出し・破棄のみを扱う。
//
// ブリッジの応答は文字列ディスクリミネータを持つJSONだが、境界で必ず
// 閉じたタグ付き型へ変換し、未知の値はUnknownバリアントに写像する。
// 型付けされていないマップをこのパッケージの外へ出してはならない。
package connector

// AuthStatus はコネクタが報告する認可状態の閉じた列挙。
type AuthStatus string

const (
	// AuthLoggedOut はログインフローが開始されていない状態。
	AuthLoggedOut AuthStatus = "logged_out"
	// AuthAwaitingCode は確認コードの入力待ち状態。
	AuthAwaitingCode AuthStatus = "awaiting_code"
	// AuthLoggedIn は完全にログイン済みの状態。
	AuthLoggedIn AuthStatus = "logged_in"
	// AuthUnknown はコネクタが未知の状態を報告した場合。前方互換のための値。
	AuthUnknown AuthStatus = "unknown"
)

// ParseAuthStatus はブリッジの文字列をAuthStatusへ変換する。
// 未知の値はAuthUnknownに写像する。
func ParseAuthStatus(s string) AuthStatus {
	switch s {
	case "logged_out":
		return AuthLoggedOut
	case "awaiting_code":
		return AuthAwaitingCode
	case "logged_in":
		return AuthLoggedIn
	default:
		return AuthUnknown
	}
}

// CodeChannel は確認コードの配送経路の閉じた列挙。
type CodeChannel string

const (
	// CodeChannelApp はメッセージングアプリ内メッセージでの配送。
	CodeChannelApp CodeChannel = "app"
	// CodeChannelSMS はSMSでの配送。
	CodeChannelSMS CodeChannel = "sms"
	// CodeChannelCall は音声通話での配送。
	CodeChannelCall CodeChannel = "call"
	// CodeChannelUnknown は未知の配送経路。前方互換のための値。
	CodeChannelUnknown CodeChannel = "unknown"
)

// ParseCodeChannel はブリッジの文字列をCodeChannelへ変換する。
func ParseCodeChannel(s string) CodeChannel {
	switch s {
	case "app":
		return CodeChannelApp
	case "sms":
		return CodeChannelSMS
	case "call":
		return CodeChannelCall
	default:
		return CodeChannelUnknown
	}
}

// SentCode はコード送信要求が受理されたことを表す記述子。
type SentCode struct {
	Channel CodeChannel // 配送経路
	Timeout int         // コードの有効秒数（ブリッジが報告する場合のみ）
}

// PeerKind はダイアログ一覧のピア種別の閉じた列挙。
type PeerKind string

const (
	PeerKindChannel    PeerKind = "channel"
	PeerKindGroup      PeerKind = "group"
	PeerKindSupergroup PeerKind = "supergroup"
	PeerKindUser       PeerKind = "user"
	PeerKindUnknown    PeerKind = "unknown"
)

// ParsePeerKind はブリッジの文字列をPeerKindへ変換する。
func ParsePeerKind(s string) PeerKind {
	switch s {
	case "channel":
		return PeerKindChannel
	case "group":
		return PeerKindGroup
	case "supergroup":
		return PeerKindSupergroup
	case "user":
		return PeerKindUser
	default:
		return PeerKindUnknown
	}
}

// IsChannelLike はピアがチャンネル一覧の対象（channel/group/supergroup）かを返す。
func (k PeerKind) IsChannelLike() bool {
	switch k {
	case PeerKindChannel, PeerKindGroup, PeerKindSupergroup:
		return true
	default:
		return false
	}
}

// Peer はダイアログ一覧の1エントリ。
type Peer struct {
	ID       int64
	Kind     PeerKind
	Title    string
	Username string
}

// Profile はログイン済みアカウントのプロフィール。
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// QRToken はQRログインチャレンジ。URLをQRコード画像として描画して提示する。
type QRToken struct {
	URL       string // ログイントークンを含むURL
	ExpiresIn int    // トークンの有効秒数
}

// MessageRef は送信・転送されたメッセージへの参照。
type MessageRef struct {
	ID     int64
	PeerID int64
}
