// Package session はセッションライフサイクルのドメインロジックを提供する。
// セッション行はユーザーとメッセージングネットワークの接続の正であり、
// アプリ認証（セッション識別子Cookie）とコネクタ状態ディレクトリの
// 両方の所有者になる。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/gramlink/internal/metrics"
	"github.com/hitoshi/gramlink/internal/model"
	"github.com/hitoshi/gramlink/internal/repository"
)

// identifierBytes はセッション識別子のエントロピー長（256bit）。
const identifierBytes = 32

// Config はセッションサービスの設定。
type Config struct {
	// BaseDir はセッションディレクトリを作成する親ディレクトリ。
	BaseDir string
	// Expiry はセッションの有効期間。
	Expiry time.Duration
}

// Service はセッションライフサイクルのサービス層。
// 1ユーザーにつきアクティブセッションは最大1件を保つ。
type Service struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
	cfg         Config
	lease       *userLease
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	cfg Config,
) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		logger:      logger,
		metrics:     collector,
		cfg:         cfg,
		lease:       newUserLease(),
	}
}

// WithUserLease は指定ユーザーのリースを取得してfnを実行する。
// ログイン・ログアウトのフローを直列化するために使う。
func (s *Service) WithUserLease(userID string, fn func() error) error {
	release := s.lease.Acquire(userID)
	defer release()
	return fn()
}

// GetActiveSession は指定ユーザーの正となるアクティブセッションを返す。
// 該当がない場合はnilを返す。
func (s *Service) GetActiveSession(ctx context.Context, userID string) (*model.Session, error) {
	session, err := s.sessionRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アクティブセッションの取得に失敗しました: %w", err)
	}
	return session, nil
}

// FindByIdentifier はセッション識別子からアクティブなセッションを返す。
// 該当がない場合はnilを返す。
func (s *Service) FindByIdentifier(ctx context.Context, identifier string) (*model.Session, error) {
	if identifier == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("セッションの検索に失敗しました: %w", err)
	}
	return session, nil
}

// CreateSession は新しいセッション行とセッションディレクトリを作成する。
// 識別子は256bitエントロピーの不透明トークン。ディレクトリは0700で作成する。
func (s *Service) CreateSession(ctx context.Context, userID, ipAddress, userAgent string) (*model.Session, error) {
	identifier, err := generateIdentifier()
	if err != nil {
		return nil, fmt.Errorf("セッション識別子の生成に失敗しました: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:                uuid.New().String(),
		UserID:            userID,
		SessionIdentifier: identifier,
		IsActive:          true,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(s.cfg.Expiry),
		IPAddress:         ipAddress,
		UserAgent:         userAgent,
		CreatedAt:         now,
	}
	session.SessionPath = filepath.Join(s.cfg.BaseDir, session.ID)

	if err := os.MkdirAll(session.SessionPath, 0o700); err != nil {
		return nil, fmt.Errorf("セッションディレクトリの作成に失敗しました: %w", err)
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		// 行が作れなかったディレクトリは孤児になるため片付ける
		if rmErr := os.RemoveAll(session.SessionPath); rmErr != nil {
			s.logger.Warn("孤児セッションディレクトリの削除に失敗",
				slog.String("path", session.SessionPath),
				slog.String("error", rmErr.Error()),
			)
		}
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	s.metrics.RecordSessionOpened()
	s.logger.Info("セッションを作成しました",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
	)
	return session, nil
}

// EnsureSession は指定ユーザーのアクティブセッションを取得し、
// なければ作成して返す。ユーザーリースの下で実行され、同一ユーザーの
// 並行呼び出しでもセッションは1件しか作られない。
func (s *Service) EnsureSession(ctx context.Context, userID, ipAddress, userAgent string) (*model.Session, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	var session *model.Session
	err = s.WithUserLease(userID, func() error {
		existing, err := s.sessionRepo.FindActiveByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("アクティブセッションの取得に失敗しました: %w", err)
		}
		if existing != nil {
			session = existing
			return nil
		}

		created, err := s.CreateSession(ctx, userID, ipAddress, userAgent)
		if err != nil {
			return err
		}
		session = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateActivity はセッションのlast_activity_atを現在時刻に更新する。
func (s *Service) UpdateActivity(ctx context.Context, sessionID string) error {
	if err := s.sessionRepo.UpdateActivity(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションのアクティビティ更新に失敗しました: %w", err)
	}
	return nil
}

// Deactivate は指定セッションを非アクティブ化する。冪等。
func (s *Service) Deactivate(ctx context.Context, sessionID string) error {
	if err := s.sessionRepo.Deactivate(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションの非アクティブ化に失敗しました: %w", err)
	}
	s.metrics.RecordSessionTerminated()
	return nil
}

// ValidateOwnership はセッションが指定ユーザーの所有かを検証する。
func (s *Service) ValidateOwnership(session *model.Session, userID string) bool {
	return session != nil && session.UserID == userID
}

// generateIdentifier は256bitエントロピーのセッション識別子を生成する。
func generateIdentifier() (string, error) {
	buf := make([]byte, identifierBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
