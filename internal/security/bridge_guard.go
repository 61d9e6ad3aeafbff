// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// BridgeGuardService はコネクタブリッジへの通信を保護するインターフェース。
// ブリッジURLは運用者設定値だが、設定ミスでクラウドメタデータIP等へ
// 向いてしまう事故を防ぐため、起動時検証と専用HTTPクライアントを提供する。
type BridgeGuardService interface {
	// ValidateBridgeURL はブリッジURLの静的検証を行う。
	// http/https以外のスキーム、空ホストを拒否する。
	// ループバックは許可する（ブリッジは同一ホストで動かすのが既定のため）。
	ValidateBridgeURL(rawURL string) error

	// NewBridgeClient はブリッジ通信用のHTTPクライアントを生成する。
	// ループバック宛の場合は素のクライアント、それ以外はsafeurlにより
	// プライベートIP・リンクローカル・メタデータIPへの到達を遮断した
	// クライアントを返す。
	NewBridgeClient(bridgeURL string, timeout time.Duration) *http.Client
}

// allowedBridgeSchemes はブリッジURLで許可されるスキーム。
var allowedBridgeSchemes = []string{"http", "https"}

// bridgeGuard はBridgeGuardServiceの実装。
type bridgeGuard struct{}

// NewBridgeGuard はBridgeGuardServiceの新しいインスタンスを生成する。
func NewBridgeGuard() *bridgeGuard {
	return &bridgeGuard{}
}

// ValidateBridgeURL はブリッジURLの静的検証を行う。
func (g *bridgeGuard) ValidateBridgeURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty bridge URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid bridge URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedBridgeScheme(scheme) {
		return fmt.Errorf("disallowed bridge URL scheme: %s (allowed: %v)", scheme, allowedBridgeSchemes)
	}

	if parsed.Hostname() == "" {
		return fmt.Errorf("empty host in bridge URL: %s", rawURL)
	}

	return nil
}

// NewBridgeClient はブリッジ通信用のHTTPクライアントを生成する。
func (g *bridgeGuard) NewBridgeClient(bridgeURL string, timeout time.Duration) *http.Client {
	if isLoopbackBridge(bridgeURL) {
		return &http.Client{Timeout: timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedBridgeSchemes...).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// isAllowedBridgeScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedBridgeScheme(scheme string) bool {
	for _, allowed := range allowedBridgeSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isLoopbackBridge はブリッジURLがループバック宛かを判定する。
func isLoopbackBridge(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
