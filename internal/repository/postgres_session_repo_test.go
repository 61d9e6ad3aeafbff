package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/gramlink/internal/model"
)

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// NewPostgresSessionRepoが正しく初期化されることを検証
func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Sessionモデルのフィールドが正しく構築されることを検証
func TestPostgresSessionRepo_SessionModel_Fields(t *testing.T) {
	now := time.Now()
	session := &model.Session{
		ID:                "session-id-1",
		UserID:            "user-id-1",
		SessionIdentifier: "identifier-abc",
		SessionPath:       "/var/lib/gramlink/sessions/user-id-1",
		IsActive:          true,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(5 * 24 * time.Hour),
		CreatedAt:         now,
	}

	if session.ID != "session-id-1" {
		t.Errorf("session.ID = %q, want %q", session.ID, "session-id-1")
	}
	if session.SessionIdentifier != "identifier-abc" {
		t.Errorf("session.SessionIdentifier = %q, want %q", session.SessionIdentifier, "identifier-abc")
	}
	if !session.IsActive {
		t.Error("session.IsActive should be true")
	}
}

// 期限切れセッションがUsableでないことを検証
// （DB接続なしでロジックのみ検証）
func TestPostgresSessionRepo_ExpiredSession_NotUsable(t *testing.T) {
	now := time.Now()
	session := &model.Session{
		ID:        "session-id-2",
		UserID:    "user-id-1",
		IsActive:  true,
		ExpiresAt: now.Add(-1 * time.Hour),
	}

	if !session.Expired(now) {
		t.Error("expected session to be expired")
	}
	if session.Usable(now) {
		t.Error("expired session should not be usable")
	}
}

// 非アクティブセッションがUsableでないことを検証
func TestPostgresSessionRepo_InactiveSession_NotUsable(t *testing.T) {
	now := time.Now()
	session := &model.Session{
		ID:        "session-id-3",
		UserID:    "user-id-1",
		IsActive:  false,
		ExpiresAt: now.Add(24 * time.Hour),
	}

	if session.Usable(now) {
		t.Error("inactive session should not be usable")
	}
}
