// Package command はメッセージングネットワークへのコマンドラッパーを提供する。
// 全操作は「ローカル検証 → コネクタ呼び出し → 分類済み結果」の一様な形を持ち、
// 検証に失敗した場合はコネクタを一切呼ばない。障害は操作名付きでログと
// 診断シンクに記録し、必ず失敗結果へ変換する。panicは上位へ伝播させない。
package command

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gramlink/internal/connector"
	"github.com/hitoshi/gramlink/internal/diagnostics"
	"github.com/hitoshi/gramlink/internal/metrics"
	"github.com/hitoshi/gramlink/internal/model"
	"github.com/hitoshi/gramlink/internal/security"
)

// ClientFactory はコマンドラッパーが必要とするコネクタハンドル操作。
type ClientFactory interface {
	InitializeClient(session *model.Session) (connector.Client, error)
}

// Service はコマンドラッパーのサービス層。
type Service struct {
	factory  ClientFactory
	stripper security.MarkupStripperService
	logger   *slog.Logger
	reporter diagnostics.Reporter
	metrics  metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	factory ClientFactory,
	stripper security.MarkupStripperService,
	logger *slog.Logger,
	reporter diagnostics.Reporter,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		factory:  factory,
		stripper: stripper,
		logger:   logger,
		reporter: reporter,
		metrics:  collector,
	}
}

// initClient はセッションのハンドルを初期化する。
// 失敗した場合は分類済みの失敗結果を返す。
func (s *Service) initClient(sess *model.Session, op string) (connector.Client, *model.CommandResult) {
	client, err := s.factory.InitializeClient(sess)
	if err != nil {
		s.logger.Error("ハンドル初期化に失敗",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return nil, &model.CommandResult{
			Success: false,
			Error:   "Could not reach the messaging network.",
		}
	}
	return client, nil
}

// failure はコネクタ呼び出しの失敗を分類済みの結果へ変換する。
// レート制限・未認可・一般障害の順に判定する。
func (s *Service) failure(sess *model.Session, op string, err error) *model.CommandResult {
	if seconds, ok := connector.AsFloodWait(err); ok {
		s.metrics.RecordConnectorCall(op, "rate_limited")
		s.metrics.RecordFloodWait(seconds)
		s.logger.Warn("コネクタ呼び出しがレート制限されました",
			slog.String("operation", op),
			slog.Int("wait_seconds", seconds),
		)
		return &model.CommandResult{
			Success:     false,
			RateLimited: true,
			WaitSeconds: seconds,
			Error:       fmt.Sprintf("The messaging network is rate limiting this account. Wait %d seconds before retrying.", seconds),
		}
	}

	s.metrics.RecordConnectorCall(op, "failure")
	s.logger.Error("コネクタ呼び出しに失敗しました",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	s.reporter.CaptureError(err, diagnostics.SessionContextFrom(sess),
		map[string]any{"operation": op})

	if isNotAuthorized(err) {
		return &model.CommandResult{
			Success: false,
			Error:   "This account is not connected to the messaging network.",
		}
	}
	return &model.CommandResult{
		Success: false,
		Error:   "Could not reach the messaging network.",
	}
}

// success は成功結果を生成し、メトリクスを記録する。
func (s *Service) success(op, message string, elapsed time.Duration) *model.CommandResult {
	s.metrics.RecordConnectorCall(op, "success")
	s.metrics.RecordConnectorLatency(op, elapsed)
	return &model.CommandResult{Success: true, Message: message}
}

// recoverCommand は操作中のpanicを回復し、一般失敗結果へ変換する。
func (s *Service) recoverCommand(sess *model.Session, op string, result **model.CommandResult) {
	if r := recover(); r != nil {
		s.logger.Error("コマンド実行中にpanicから回復しました",
			slog.String("operation", op),
			slog.Any("panic", r),
		)
		s.reporter.CaptureError(fmt.Errorf("panic during %s: %v", op, r),
			diagnostics.SessionContextFrom(sess), map[string]any{"operation": op})
		*result = &model.CommandResult{
			Success: false,
			Error:   "An unexpected error occurred. Try again.",
		}
	}
}

// validationFailure は入力検証エラーの結果を生成する。コネクタは呼ばれていない。
func validationFailure(message string) *model.CommandResult {
	return &model.CommandResult{Success: false, Error: message}
}

func isNotAuthorized(err error) bool {
	return errors.Is(err, connector.ErrNotAuthorized)
}
