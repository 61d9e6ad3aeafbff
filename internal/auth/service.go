// Package auth はメッセージングネットワークへのログインフローを統括する。
// QRログイン、電話番号ログイン、セッション終端の各フローはコネクタの
// 応答を必ず分類済みの結果型へ変換し、例外やpanicを上位へ伝播させない。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/hitoshi/gramlink/internal/connector"
	"github.com/hitoshi/gramlink/internal/diagnostics"
	"github.com/hitoshi/gramlink/internal/metrics"
	"github.com/hitoshi/gramlink/internal/model"
)

// 入力検証パターン。検証はネットワーク呼び出しの前に行う。
var (
	phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{1,14}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{5}$`)
)

// qrImageSize はQRコード画像の一辺のピクセル数。
const qrImageSize = 200

// ClientFactory は認証フローが必要とするコネクタハンドル操作。
type ClientFactory interface {
	InitializeClient(session *model.Session) (connector.Client, error)
	IsAuthorized(ctx context.Context, client connector.Client) bool
	LoggedUser(ctx context.Context, client connector.Client) *model.LinkedAccount
	SafeLogout(ctx context.Context, client connector.Client, session *model.Session) bool
}

// SessionStore は認証フローが必要とするセッション操作。
type SessionStore interface {
	GetActiveSession(ctx context.Context, userID string) (*model.Session, error)
	ValidateOwnership(session *model.Session, userID string) bool
}

// Service は認証オーケストレータ。
type Service struct {
	factory    ClientFactory
	sessionSvc SessionStore
	logger     *slog.Logger
	reporter   diagnostics.Reporter
	metrics    metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	factory ClientFactory,
	sessionSvc SessionStore,
	logger *slog.Logger,
	reporter diagnostics.Reporter,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		factory:    factory,
		sessionSvc: sessionSvc,
		logger:     logger,
		reporter:   reporter,
		metrics:    collector,
	}
}

// GenerateQR はQRログインチャレンジを要求し、PNG画像として描画して返す。
// 失敗した場合はnilを返す。呼び出し元はnilを「現在QRを提示できない」として扱う。
func (s *Service) GenerateQR(ctx context.Context, sess *model.Session) (png []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("QR生成中にpanicが発生しました",
				slog.String("session_id", sess.ID),
				slog.Any("panic", r),
			)
			s.reporter.CaptureError(fmt.Errorf("panic during QR generation: %v", r),
				diagnostics.SessionContextFrom(sess), map[string]any{"operation": "qr.generate"})
			png = nil
		}
	}()

	client, err := s.factory.InitializeClient(sess)
	if err != nil {
		s.logger.Error("QR生成用ハンドルの初期化に失敗",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordLoginAttempt("qr", "failure")
		return nil
	}

	// ログイン済み・コード入力待ちの場合はQRを提示しない
	status, err := client.Status(ctx)
	if err != nil {
		s.logger.Warn("QR生成前の状態確認に失敗",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordLoginAttempt("qr", "failure")
		return nil
	}
	if status == connector.AuthLoggedIn || status == connector.AuthAwaitingCode {
		return nil
	}

	token, err := client.RequestQR(ctx)
	if err != nil {
		s.logger.Error("QRログイントークンの取得に失敗",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		s.reporter.CaptureError(err, diagnostics.SessionContextFrom(sess),
			map[string]any{"operation": "qr.request"})
		s.metrics.RecordLoginAttempt("qr", "failure")
		return nil
	}

	q, err := qrcode.New(token.URL, qrcode.Medium)
	if err != nil {
		s.logger.Error("QRコードの描画に失敗",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordLoginAttempt("qr", "failure")
		return nil
	}

	img, err := q.PNG(qrImageSize)
	if err != nil {
		s.logger.Error("QRコードのPNGエンコードに失敗",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordLoginAttempt("qr", "failure")
		return nil
	}

	s.reporter.Breadcrumb("QR login challenge issued", map[string]any{
		"session_id": sess.ID,
	})
	s.metrics.RecordLoginAttempt("qr", "success")
	return img
}

// InitiatePhoneLogin は電話番号ログインを開始する（確認コードの送信要求）。
// 電話番号はE.164形式で検証し、不正な場合はコネクタを呼ばずに失敗を返す。
func (s *Service) InitiatePhoneLogin(ctx context.Context, sess *model.Session, phone string) (result *model.PhoneLoginResult) {
	defer func() {
		if r := recover(); r != nil {
			s.recordPanic(sess, "phone.initiate", r)
			result = &model.PhoneLoginResult{
				Success: false,
				Error:   "An unexpected error occurred. Try again.",
			}
		}
	}()

	if !phonePattern.MatchString(phone) {
		return &model.PhoneLoginResult{
			Success: false,
			Error:   "Phone number must be in E.164 format (e.g. +818012345678).",
		}
	}

	client, err := s.factory.InitializeClient(sess)
	if err != nil {
		s.metrics.RecordLoginAttempt("phone", "failure")
		return &model.PhoneLoginResult{
			Success: false,
			Error:   "Could not reach the messaging network.",
		}
	}

	// 既にログイン済みならコード送信は不要
	if s.factory.IsAuthorized(ctx, client) {
		return &model.PhoneLoginResult{
			Success:  true,
			LoggedIn: true,
			Message:  "This account is already connected.",
		}
	}

	start := time.Now()
	sent, err := client.SendCode(ctx, phone)
	s.metrics.RecordConnectorLatency("auth.sendCode", time.Since(start))
	if err != nil {
		return s.classifyPhoneFailure(sess, err)
	}
	if sent == nil {
		s.metrics.RecordConnectorCall("auth.sendCode", "failure")
		s.metrics.RecordLoginAttempt("phone", "failure")
		return &model.PhoneLoginResult{
			Success: false,
			Error:   "The messaging network did not accept the code request. Try QR login instead.",
		}
	}

	s.reporter.Breadcrumb("verification code requested", map[string]any{
		"session_id": sess.ID,
		"channel":    string(sent.Channel),
	})
	s.metrics.RecordConnectorCall("auth.sendCode", "success")
	s.metrics.RecordLoginAttempt("phone", "code_sent")
	return &model.PhoneLoginResult{
		Success:      true,
		CodeRequired: true,
		CodeType:     string(sent.Channel),
		Message:      codeChannelMessage(sent.Channel),
	}
}

// classifyPhoneFailure はコード送信失敗をレート制限とその他に分類する。
func (s *Service) classifyPhoneFailure(sess *model.Session, err error) *model.PhoneLoginResult {
	if seconds, ok := connector.AsFloodWait(err); ok {
		s.metrics.RecordConnectorCall("auth.sendCode", "rate_limited")
		s.metrics.RecordFloodWait(seconds)
		s.metrics.RecordLoginAttempt("phone", "rate_limited")
		s.logger.Warn("コード送信がレート制限されました",
			slog.String("session_id", sess.ID),
			slog.Int("wait_seconds", seconds),
		)
		return &model.PhoneLoginResult{
			Success:     false,
			RateLimited: true,
			WaitSeconds: seconds,
			Error:       fmt.Sprintf("The messaging network is rate limiting this account. Wait %d seconds before retrying.", seconds),
		}
	}

	s.metrics.RecordConnectorCall("auth.sendCode", "failure")
	s.metrics.RecordLoginAttempt("phone", "failure")
	s.logger.Error("コード送信に失敗しました",
		slog.String("session_id", sess.ID),
		slog.String("error", err.Error()),
	)
	s.reporter.CaptureError(err, diagnostics.SessionContextFrom(sess),
		map[string]any{"operation": "auth.sendCode"})
	return &model.PhoneLoginResult{
		Success: false,
		Error:   "Could not send the verification code. Try QR login instead.",
	}
}

// codeChannelMessage は配送経路ごとのユーザー向けメッセージを返す。
func codeChannelMessage(channel connector.CodeChannel) string {
	switch channel {
	case connector.CodeChannelApp:
		return "A verification code was sent to your messaging app."
	case connector.CodeChannelSMS:
		return "A verification code was sent via SMS."
	case connector.CodeChannelCall:
		return "You will receive a phone call with the verification code."
	default:
		return "A verification code was sent."
	}
}

// CompletePhoneLogin は確認コードでログインを完了する。
// コードは5桁の数字で検証し、不正な場合はコネクタを呼ばずに失敗を返す。
func (s *Service) CompletePhoneLogin(ctx context.Context, sess *model.Session, code string) (result *model.CodeLoginResult) {
	defer func() {
		if r := recover(); r != nil {
			s.recordPanic(sess, "phone.complete", r)
			result = &model.CodeLoginResult{
				Success: false,
				Error:   "An unexpected error occurred. Try again.",
			}
		}
	}()

	if !codePattern.MatchString(code) {
		return &model.CodeLoginResult{
			Success: false,
			Error:   "Verification code must be 5 digits.",
		}
	}

	client, err := s.factory.InitializeClient(sess)
	if err != nil {
		s.metrics.RecordLoginAttempt("code", "failure")
		return &model.CodeLoginResult{
			Success: false,
			Error:   "Could not reach the messaging network.",
		}
	}

	start := time.Now()
	status, err := client.SignIn(ctx, code)
	s.metrics.RecordConnectorLatency("auth.signIn", time.Since(start))
	if err != nil {
		if seconds, ok := connector.AsFloodWait(err); ok {
			s.metrics.RecordConnectorCall("auth.signIn", "rate_limited")
			s.metrics.RecordFloodWait(seconds)
			s.metrics.RecordLoginAttempt("code", "rate_limited")
			return &model.CodeLoginResult{
				Success: false,
				Error:   fmt.Sprintf("The messaging network is rate limiting this account. Wait %d seconds before retrying.", seconds),
			}
		}
		s.metrics.RecordConnectorCall("auth.signIn", "failure")
		s.metrics.RecordLoginAttempt("code", "failure")
		s.logger.Warn("コード検証に失敗しました",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		return &model.CodeLoginResult{
			Success: false,
			Error:   "The verification code was not accepted.",
		}
	}

	s.metrics.RecordConnectorCall("auth.signIn", "success")
	if status != connector.AuthLoggedIn {
		s.metrics.RecordLoginAttempt("code", "incomplete")
		return &model.CodeLoginResult{
			Success: false,
			Error:   "Login did not complete. Start the login flow again.",
		}
	}

	s.reporter.Breadcrumb("phone login completed", map[string]any{
		"session_id": sess.ID,
	})
	s.metrics.RecordLoginAttempt("code", "success")
	s.logger.Info("電話番号ログインが完了しました",
		slog.String("session_id", sess.ID),
		slog.String("user_id", sess.UserID),
	)
	return &model.CodeLoginResult{
		Success:  true,
		LoggedIn: true,
		Message:  "Account connected.",
	}
}

// TerminateSession はセッションを安全に終端する。
// ハンドル初期化に失敗してもローカルの非アクティブ化とディレクトリ破棄は
// 必ず実行する。どんな障害でも上位へpanicを伝播させない。
func (s *Service) TerminateSession(ctx context.Context, sess *model.Session) (clean bool) {
	defer func() {
		if r := recover(); r != nil {
			s.recordPanic(sess, "session.terminate", r)
			clean = false
		}
	}()

	if sess == nil {
		return false
	}

	s.reporter.Breadcrumb("session teardown started", map[string]any{
		"session_id": sess.ID,
	})

	client, err := s.factory.InitializeClient(sess)
	if err != nil {
		s.logger.Warn("終端用ハンドルの初期化に失敗、ローカル終端のみ実行",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		client = nil
	}

	clean = s.factory.SafeLogout(ctx, client, sess)
	s.metrics.RecordConnectorCall("auth.logout", outcomeLabel(clean))
	return clean
}

// LinkedAccount はセッションに紐づくログイン済みアカウント情報を返す。
// 未ログインや障害時はnilを返す。
func (s *Service) LinkedAccount(ctx context.Context, sess *model.Session) *model.LinkedAccount {
	client, err := s.factory.InitializeClient(sess)
	if err != nil {
		return nil
	}
	return s.factory.LoggedUser(ctx, client)
}

// IsLoggedIn はセッションのハンドルが完全ログイン状態かを返す。
func (s *Service) IsLoggedIn(ctx context.Context, sess *model.Session) bool {
	client, err := s.factory.InitializeClient(sess)
	if err != nil {
		return false
	}
	return s.factory.IsAuthorized(ctx, client)
}

// HasActiveSession は指定ユーザーがアクティブセッションを持つかを返す。
func (s *Service) HasActiveSession(ctx context.Context, userID string) bool {
	sess, err := s.sessionSvc.GetActiveSession(ctx, userID)
	if err != nil {
		s.logger.Error("アクティブセッションの確認に失敗",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return sess != nil && sess.Usable(time.Now())
}

// ValidateSessionOwnership はセッションが指定ユーザーの所有かを検証する。
func (s *Service) ValidateSessionOwnership(sess *model.Session, userID string) error {
	if sess == nil {
		return model.NewSessionNotFoundError()
	}
	if !s.sessionSvc.ValidateOwnership(sess, userID) {
		return errors.New("session does not belong to the requesting user")
	}
	return nil
}

// recordPanic は回復したpanicをログと診断シンクに記録する。
func (s *Service) recordPanic(sess *model.Session, operation string, r any) {
	s.logger.Error("認証フロー中にpanicから回復しました",
		slog.String("operation", operation),
		slog.Any("panic", r),
	)
	s.reporter.CaptureError(fmt.Errorf("panic during %s: %v", operation, r),
		diagnostics.SessionContextFrom(sess), map[string]any{"operation": operation})
}

// outcomeLabel はbool結果をメトリクスのラベル値へ変換する。
func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
