package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// BridgeClient はHTTPブリッジ経由でコネクタを呼び出すClient実装。
// ブリッジはセッションディレクトリ単位でコネクタの状態を管理するデーモンで、
// 全呼び出しにsession_pathとアプリケーション資格情報を添付する。
type BridgeClient struct {
	httpClient  *http.Client
	logger      *slog.Logger
	baseURL     string
	apiID       string
	apiHash     string
	sessionPath string
}

// BridgeConfig はBridgeClientの生成に必要な設定。
type BridgeConfig struct {
	BaseURL string
	APIID   string
	APIHash string
}

// NewBridgeClient はBridgeClientの新しいインスタンスを生成する。
// sessionPathはこのハンドルが束縛されるセッションディレクトリ。
func NewBridgeClient(httpClient *http.Client, logger *slog.Logger, cfg BridgeConfig, sessionPath string) *BridgeClient {
	return &BridgeClient{
		httpClient:  httpClient,
		logger:      logger,
		baseURL:     cfg.BaseURL,
		apiID:       cfg.APIID,
		apiHash:     cfg.APIHash,
		sessionPath: sessionPath,
	}
}

// bridgeRequest はブリッジへのリクエストボディ。
type bridgeRequest struct {
	Method      string `json:"method"`
	SessionPath string `json:"session_path"`
	APIID       string `json:"api_id"`
	APIHash     string `json:"api_hash"`
	Params      any    `json:"params,omitempty"`
}

// bridgeError はブリッジのエラー応答。
// WaitSecondsは構造化されたレート制限フィールドで、設定されていれば
// エラーテキストのパターン照合より優先される。
type bridgeError struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
}

// bridgeEnvelope はブリッジ応答の共通エンベロープ。
type bridgeEnvelope struct {
	OK     bool            `json:"ok"`
	Error  *bridgeError    `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// call はブリッジの1メソッドを呼び出し、結果をoutへデコードする。
// outがnilの場合は結果を破棄する。
func (c *BridgeClient) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(bridgeRequest{
		Method:      method,
		SessionPath: c.sessionPath,
		APIID:       c.apiID,
		APIHash:     c.apiHash,
		Params:      params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode bridge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/call", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Gramlink/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("bridge call failed",
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("bridge call %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read bridge response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("bridge returned error status",
			slog.String("method", method),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("bridge returned status %d for %s", resp.StatusCode, method)
	}

	var envelope bridgeEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to parse bridge response: %w", err)
	}

	if !envelope.OK {
		return c.mapBridgeError(method, envelope.Error)
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to parse bridge result for %s: %w", method, err)
		}
	}

	return nil
}

// mapBridgeError はブリッジのエラー応答を型付きエラーへ変換する。
// 構造化されたwait_secondsフィールドを優先し、なければエラーテキストの
// FLOOD_WAIT_nパターンをフォールバックとして照合する。
func (c *BridgeClient) mapBridgeError(method string, be *bridgeError) error {
	if be == nil {
		return fmt.Errorf("bridge call %s failed without error detail", method)
	}

	if be.WaitSeconds > 0 {
		return &FloodWaitError{Seconds: be.WaitSeconds}
	}
	if seconds, ok := ParseFloodWait(be.Message); ok {
		return &FloodWaitError{Seconds: seconds}
	}

	switch be.Type {
	case "UNAUTHORIZED":
		return fmt.Errorf("%w: %s", ErrNotAuthorized, method)
	default:
		return fmt.Errorf("bridge call %s failed: %s: %s", method, be.Type, be.Message)
	}
}

// --- ワイヤ表現（文字列ディスクリミネータ付き）。本パッケージ外へは出さない ---

type wireStatus struct {
	Status string `json:"status"`
}

type wireProfile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type wireQRToken struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

type wireSentCode struct {
	Sent     bool   `json:"sent"`
	CodeType string `json:"code_type"`
	Timeout  int    `json:"timeout"`
}

type wirePeer struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

type wireDialogs struct {
	Peers []wirePeer `json:"peers"`
}

type wireInviteLink struct {
	Link string `json:"link"`
}

type wireMessageRef struct {
	ID     int64 `json:"id"`
	PeerID int64 `json:"peer_id"`
}

// Status は現在の認可状態を取得する。
func (c *BridgeClient) Status(ctx context.Context) (AuthStatus, error) {
	var out wireStatus
	if err := c.call(ctx, "session.status", nil, &out); err != nil {
		return AuthUnknown, err
	}
	return ParseAuthStatus(out.Status), nil
}

// LoggedUser はログイン済みアカウントのプロフィールを取得する。
func (c *BridgeClient) LoggedUser(ctx context.Context) (*Profile, error) {
	var out wireProfile
	if err := c.call(ctx, "session.loggedUser", nil, &out); err != nil {
		return nil, err
	}
	return &Profile{
		ID:        out.ID,
		Username:  out.Username,
		FirstName: out.FirstName,
		LastName:  out.LastName,
		Phone:     out.Phone,
	}, nil
}

// RequestQR はQRログインチャレンジを要求する。
func (c *BridgeClient) RequestQR(ctx context.Context) (*QRToken, error) {
	var out wireQRToken
	if err := c.call(ctx, "auth.requestQR", nil, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, fmt.Errorf("bridge returned empty QR login token")
	}
	return &QRToken{URL: out.URL, ExpiresIn: out.ExpiresIn}, nil
}

// SendCode は指定の電話番号へ確認コードの送信を要求する。
func (c *BridgeClient) SendCode(ctx context.Context, phone string) (*SentCode, error) {
	params := map[string]string{"phone": phone}
	var out wireSentCode
	if err := c.call(ctx, "auth.sendCode", params, &out); err != nil {
		return nil, err
	}
	if !out.Sent {
		return nil, nil
	}
	return &SentCode{
		Channel: ParseCodeChannel(out.CodeType),
		Timeout: out.Timeout,
	}, nil
}

// SignIn は確認コードでログインを完了し、結果の認可状態を返す。
func (c *BridgeClient) SignIn(ctx context.Context, code string) (AuthStatus, error) {
	params := map[string]string{"code": code}
	var out wireStatus
	if err := c.call(ctx, "auth.signIn", params, &out); err != nil {
		return AuthUnknown, err
	}
	return ParseAuthStatus(out.Status), nil
}

// Logout はリモート側のセッションを破棄する。
func (c *BridgeClient) Logout(ctx context.Context) error {
	return c.call(ctx, "auth.logout", nil, nil)
}

// CreateChannel はチャンネルを作成し、そのピアを返す。
func (c *BridgeClient) CreateChannel(ctx context.Context, title, description string) (*Peer, error) {
	params := map[string]string{"title": title, "description": description}
	var out wirePeer
	if err := c.call(ctx, "channels.create", params, &out); err != nil {
		return nil, err
	}
	return &Peer{
		ID:       out.ID,
		Kind:     ParsePeerKind(out.Type),
		Title:    out.Title,
		Username: out.Username,
	}, nil
}

// DeleteChannel は指定チャンネルを削除する。
func (c *BridgeClient) DeleteChannel(ctx context.Context, channelID int64) error {
	params := map[string]int64{"channel_id": channelID}
	return c.call(ctx, "channels.delete", params, nil)
}

// ListDialogs はアカウントのダイアログ（ピア）一覧を取得する。
func (c *BridgeClient) ListDialogs(ctx context.Context) ([]Peer, error) {
	var out wireDialogs
	if err := c.call(ctx, "dialogs.list", nil, &out); err != nil {
		return nil, err
	}
	peers := make([]Peer, 0, len(out.Peers))
	for _, p := range out.Peers {
		peers = append(peers, Peer{
			ID:       p.ID,
			Kind:     ParsePeerKind(p.Type),
			Title:    p.Title,
			Username: p.Username,
		})
	}
	return peers, nil
}

// ExportInviteLink は指定チャンネルの招待リンクを発行する。
func (c *BridgeClient) ExportInviteLink(ctx context.Context, channelID int64) (string, error) {
	params := map[string]int64{"channel_id": channelID}
	var out wireInviteLink
	if err := c.call(ctx, "channels.exportInvite", params, &out); err != nil {
		return "", err
	}
	if out.Link == "" {
		return "", fmt.Errorf("bridge returned empty invite link")
	}
	return out.Link, nil
}

// SendMessage は指定ピアへテキストメッセージを送る。
func (c *BridgeClient) SendMessage(ctx context.Context, peer, text string) (*MessageRef, error) {
	params := map[string]string{"peer": peer, "text": text}
	var out wireMessageRef
	if err := c.call(ctx, "messages.send", params, &out); err != nil {
		return nil, err
	}
	return &MessageRef{ID: out.ID, PeerID: out.PeerID}, nil
}

// ForwardMessage はメッセージを別ピアへ転送する。
func (c *BridgeClient) ForwardMessage(ctx context.Context, fromPeerID, toPeerID, messageID int64) (*MessageRef, error) {
	params := map[string]string{
		"from_peer_id": strconv.FormatInt(fromPeerID, 10),
		"to_peer_id":   strconv.FormatInt(toPeerID, 10),
		"message_id":   strconv.FormatInt(messageID, 10),
	}
	var out wireMessageRef
	if err := c.call(ctx, "messages.forward", params, &out); err != nil {
		return nil, err
	}
	return &MessageRef{ID: out.ID, PeerID: out.PeerID}, nil
}

// EditMessage は送信済みメッセージの本文を書き換える。
func (c *BridgeClient) EditMessage(ctx context.Context, peerID, messageID int64, text string) error {
	params := map[string]string{
		"peer_id":    strconv.FormatInt(peerID, 10),
		"message_id": strconv.FormatInt(messageID, 10),
		"text":       text,
	}
	return c.call(ctx, "messages.edit", params, nil)
}

// DeleteMessage は送信済みメッセージを削除する。
func (c *BridgeClient) DeleteMessage(ctx context.Context, peerID, messageID int64) error {
	params := map[string]string{
		"peer_id":    strconv.FormatInt(peerID, 10),
		"message_id": strconv.FormatInt(messageID, 10),
	}
	return c.call(ctx, "messages.delete", params, nil)
}

// compile-time interface check
var _ Client = (*BridgeClient)(nil)
