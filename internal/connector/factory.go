package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/gramlink/internal/diagnostics"
	"github.com/hitoshi/gramlink/internal/model"
	"github.com/hitoshi/gramlink/internal/security"
)

// SessionDeactivator はファクトリがセッション終端時に必要とする永続化操作。
type SessionDeactivator interface {
	// Deactivate は指定セッションをis_active=falseにする。冪等。
	Deactivate(ctx context.Context, sessionID string) error
}

// FactoryConfig はFactoryの生成に必要な設定。
type FactoryConfig struct {
	BridgeURL string
	APIID     string
	APIHash   string
	Timeout   time.Duration
}

// Factory はセッションに紐づくコネクタハンドルを生成・破棄する。
// ハンドルはリクエストスコープであり、プールや再利用は行わない。
type Factory struct {
	httpClient  *http.Client
	logger      *slog.Logger
	reporter    diagnostics.Reporter
	sessionRepo SessionDeactivator
	cfg         FactoryConfig
}

// NewFactory はFactoryの新しいインスタンスを生成する。
// ブリッジURLの検証は起動時に済んでいる前提（app層でValidateBridgeURLを呼ぶ）。
func NewFactory(
	guard security.BridgeGuardService,
	logger *slog.Logger,
	reporter diagnostics.Reporter,
	sessionRepo SessionDeactivator,
	cfg FactoryConfig,
) *Factory {
	return &Factory{
		httpClient:  guard.NewBridgeClient(cfg.BridgeURL, cfg.Timeout),
		logger:      logger,
		reporter:    reporter,
		sessionRepo: sessionRepo,
		cfg:         cfg,
	}
}

// InitializeClient はセッションのディレクトリに束縛されたハンドルを生成する。
// セッションディレクトリが無ければ0700で作成する。
// 失敗はエラー値として返し、panicさせない。
func (f *Factory) InitializeClient(session *model.Session) (Client, error) {
	if session == nil {
		return nil, fmt.Errorf("cannot initialize connector client: session is nil")
	}
	if session.SessionPath == "" {
		return nil, fmt.Errorf("cannot initialize connector client: session %s has no session path", session.ID)
	}

	if err := os.MkdirAll(session.SessionPath, 0o700); err != nil {
		f.logger.Error("failed to prepare session directory",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to prepare session directory: %w", err)
	}

	client := NewBridgeClient(f.httpClient, f.logger, BridgeConfig{
		BaseURL: f.cfg.BridgeURL,
		APIID:   f.cfg.APIID,
		APIHash: f.cfg.APIHash,
	}, session.SessionPath)

	return client, nil
}

// IsAuthorized はハンドルが完全ログイン状態かを返す。
// 問い合わせに失敗した場合は安全側に倒してfalseを返す。
func (f *Factory) IsAuthorized(ctx context.Context, client Client) bool {
	if client == nil {
		return false
	}
	status, err := client.Status(ctx)
	if err != nil {
		f.logger.Warn("authorization status check failed",
			slog.String("error", err.Error()),
		)
		return false
	}
	return status == AuthLoggedIn
}

// LoggedUser はログイン済みアカウント情報を平坦な表現で返す。
// 未ログインや取得失敗時はnilを返す。
func (f *Factory) LoggedUser(ctx context.Context, client Client) *model.LinkedAccount {
	if client == nil {
		return nil
	}
	profile, err := client.LoggedUser(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotAuthorized) {
			f.logger.Warn("failed to fetch logged user",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	if profile == nil {
		return nil
	}
	return &model.LinkedAccount{
		AccountID: profile.ID,
		Username:  profile.Username,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Phone:     profile.Phone,
	}
}

// SafeLogout はセッションを確実に終端する。
// リモートログアウトはベストエフォートで試み、結果に関わらず
// 永続セッションの非アクティブ化とディレクトリ破棄まで必ず進める。
// 全手順が成功した場合のみtrueを返す。
func (f *Factory) SafeLogout(ctx context.Context, client Client, session *model.Session) bool {
	if session == nil {
		return false
	}

	clean := true
	sessionCtx := diagnostics.SessionContextFrom(session)

	if client != nil {
		f.reporter.Breadcrumb("teardown: remote logout", map[string]any{
			"session_id": session.ID,
		})
		if err := client.Logout(ctx); err != nil && !errors.Is(err, ErrNotAuthorized) {
			clean = false
			f.logger.Warn("remote logout failed, continuing teardown",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			f.reporter.CaptureError(err, sessionCtx, map[string]any{
				"operation": "safe_logout.remote",
			})
		}
	}

	f.reporter.Breadcrumb("teardown: deactivate session record", map[string]any{
		"session_id": session.ID,
	})
	if err := f.sessionRepo.Deactivate(ctx, session.ID); err != nil {
		clean = false
		f.logger.Error("failed to deactivate session record",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		f.reporter.CaptureError(err, sessionCtx, map[string]any{
			"operation": "safe_logout.deactivate",
		})
	}

	f.reporter.Breadcrumb("teardown: purge session directory", map[string]any{
		"session_id": session.ID,
	})
	if err := PurgeSessionDir(session.SessionPath); err != nil {
		clean = false
		f.logger.Error("failed to purge session directory",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		f.reporter.CaptureError(err, sessionCtx, map[string]any{
			"operation": "safe_logout.purge",
		})
	}

	f.logger.Info("session terminated",
		slog.String("session_id", session.ID),
		slog.Bool("clean", clean),
	)
	return clean
}

// PurgeSessionDir はセッションディレクトリのローカル状態を破棄する。
// ロックファイルを先に消してからコネクタの状態ファイルを消し、
// 最後にディレクトリ本体を削除する。一部の削除に失敗しても残りを
// 試行し、失敗をまとめて返す。ディレクトリが存在しない場合は成功扱い。
func PurgeSessionDir(dir string) error {
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read session directory: %w", err)
	}

	var errs []error

	// ロックファイルを先に解放しないと、コネクタ実装によっては
	// 状態ファイルの削除が失敗する。
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove lock file %s: %w", entry.Name(), err))
		}
	}

	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", entry.Name(), err))
		}
	}

	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove session directory: %w", err))
	}

	return errors.Join(errs...)
}
