package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/gramlink/internal/metrics"
	"github.com/hitoshi/gramlink/internal/model"
	"github.com/hitoshi/gramlink/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

// mockSessionRepo はSessionRepositoryのモック実装。
type mockSessionRepo struct {
	mu                   sync.Mutex
	createFunc           func(ctx context.Context, session *model.Session) error
	findActiveFunc       func(ctx context.Context, userID string) (*model.Session, error)
	findByIdentifierFunc func(ctx context.Context, identifier string) (*model.Session, error)
	updateActivityFunc   func(ctx context.Context, sessionID string) error
	deactivateFunc       func(ctx context.Context, sessionID string) error
	listExpiredFunc      func(ctx context.Context, now time.Time, limit int) ([]*model.Session, error)
	created              []*model.Session
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	m.created = append(m.created, session)
	m.mu.Unlock()
	if m.createFunc != nil {
		return m.createFunc(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.Session, error) {
	if m.findActiveFunc != nil {
		return m.findActiveFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockSessionRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.Session, error) {
	if m.findByIdentifierFunc != nil {
		return m.findByIdentifierFunc(ctx, identifier)
	}
	return nil, nil
}

func (m *mockSessionRepo) UpdateActivity(ctx context.Context, sessionID string) error {
	if m.updateActivityFunc != nil {
		return m.updateActivityFunc(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionRepo) Deactivate(ctx context.Context, sessionID string) error {
	if m.deactivateFunc != nil {
		return m.deactivateFunc(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Session, error) {
	if m.listExpiredFunc != nil {
		return m.listExpiredFunc(ctx, now, limit)
	}
	return nil, nil
}

var _ repository.SessionRepository = (*mockSessionRepo)(nil)

// mockUserRepo はUserRepositoryのモック実装。
type mockUserRepo struct {
	findByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.User{ID: id}, nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

func newTestService(t *testing.T, sessionRepo *mockSessionRepo, userRepo *mockUserRepo) *Service {
	t.Helper()
	return NewService(sessionRepo, userRepo, newTestLogger(), metrics.NopCollector{}, Config{
		BaseDir: t.TempDir(),
		Expiry:  5 * 24 * time.Hour,
	})
}

func TestCreateSession_GeneratesUniqueIdentifiers(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := newTestService(t, repo, &mockUserRepo{})

	s1, err := svc.CreateSession(context.Background(), "user-1", "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("CreateSession がエラーを返した: %v", err)
	}
	s2, err := svc.CreateSession(context.Background(), "user-2", "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("CreateSession がエラーを返した: %v", err)
	}

	if len(s1.SessionIdentifier) != identifierBytes*2 {
		t.Errorf("識別子の長さ = %d, want %d (hex)", len(s1.SessionIdentifier), identifierBytes*2)
	}
	if s1.SessionIdentifier == s2.SessionIdentifier {
		t.Error("セッション識別子は一意であるべき")
	}
	if s1.ID == s2.ID {
		t.Error("セッションIDは一意であるべき")
	}
}

func TestCreateSession_CreatesPrivateDirectory(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := newTestService(t, repo, &mockUserRepo{})

	session, err := svc.CreateSession(context.Background(), "user-1", "127.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("CreateSession がエラーを返した: %v", err)
	}

	info, err := os.Stat(session.SessionPath)
	if err != nil {
		t.Fatalf("セッションディレクトリが作成されるべき: %v", err)
	}
	if !info.IsDir() {
		t.Error("セッションパスはディレクトリであるべき")
	}
	if info.Mode().Perm() != 0o700 {
		t.Errorf("パーミッション = %o, want 700", info.Mode().Perm())
	}
}

func TestCreateSession_SetsExpiryAndActive(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := newTestService(t, repo, &mockUserRepo{})

	before := time.Now()
	session, err := svc.CreateSession(context.Background(), "user-1", "10.0.0.1", "agent")
	if err != nil {
		t.Fatalf("CreateSession がエラーを返した: %v", err)
	}

	if !session.IsActive {
		t.Error("新規セッションはアクティブであるべき")
	}
	wantExpiry := before.Add(5 * 24 * time.Hour)
	if session.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || session.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want ~%v", session.ExpiresAt, wantExpiry)
	}
	if session.IPAddress != "10.0.0.1" || session.UserAgent != "agent" {
		t.Error("IPアドレスとUser-Agentが記録されるべき")
	}
}

func TestCreateSession_RepoFailureCleansUpDirectory(t *testing.T) {
	repo := &mockSessionRepo{
		createFunc: func(ctx context.Context, session *model.Session) error {
			return errors.New("db down")
		},
	}
	svc := newTestService(t, repo, &mockUserRepo{})

	_, err := svc.CreateSession(context.Background(), "user-1", "127.0.0.1", "agent")
	if err == nil {
		t.Fatal("行作成失敗時にエラーが返されるべき")
	}

	if len(repo.created) != 1 {
		t.Fatal("Createが1回呼ばれるべき")
	}
	if _, statErr := os.Stat(repo.created[0].SessionPath); !os.IsNotExist(statErr) {
		t.Error("行が作れなかったセッションディレクトリは削除されるべき")
	}
}

func TestEnsureSession_ReturnsExistingSession(t *testing.T) {
	existing := &model.Session{ID: "sess-1", UserID: "user-1", IsActive: true}
	repo := &mockSessionRepo{
		findActiveFunc: func(ctx context.Context, userID string) (*model.Session, error) {
			return existing, nil
		},
	}
	svc := newTestService(t, repo, &mockUserRepo{})

	session, err := svc.EnsureSession(context.Background(), "user-1", "127.0.0.1", "agent")
	if err != nil {
		t.Fatalf("EnsureSession がエラーを返した: %v", err)
	}
	if session != existing {
		t.Error("既存のアクティブセッションが返されるべき")
	}
	if len(repo.created) != 0 {
		t.Error("既存セッションがある場合は新規作成しないべき")
	}
}

func TestEnsureSession_CreatesWhenNoneExists(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := newTestService(t, repo, &mockUserRepo{})

	session, err := svc.EnsureSession(context.Background(), "user-1", "127.0.0.1", "agent")
	if err != nil {
		t.Fatalf("EnsureSession がエラーを返した: %v", err)
	}
	if session == nil {
		t.Fatal("セッションが作成されるべき")
	}
	if len(repo.created) != 1 {
		t.Errorf("Create呼び出し回数 = %d, want 1", len(repo.created))
	}
}

func TestEnsureSession_UnknownUser(t *testing.T) {
	repo := &mockSessionRepo{}
	userRepo := &mockUserRepo{
		findByIDFunc: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	svc := newTestService(t, repo, userRepo)

	_, err := svc.EnsureSession(context.Background(), "ghost", "127.0.0.1", "agent")
	if err == nil {
		t.Fatal("存在しないユーザーでエラーが返されるべき")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("USER_NOT_FOUNDエラーであるべき: got %v", err)
	}
}

func TestEnsureSession_ConcurrentCallsCreateOneSession(t *testing.T) {
	var mu sync.Mutex
	var stored *model.Session
	repo := &mockSessionRepo{
		findActiveFunc: func(ctx context.Context, userID string) (*model.Session, error) {
			mu.Lock()
			defer mu.Unlock()
			return stored, nil
		},
		createFunc: func(ctx context.Context, session *model.Session) error {
			mu.Lock()
			defer mu.Unlock()
			stored = session
			return nil
		},
	}
	svc := newTestService(t, repo, &mockUserRepo{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.EnsureSession(context.Background(), "user-1", "127.0.0.1", "agent"); err != nil {
				t.Errorf("EnsureSession がエラーを返した: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(repo.created) != 1 {
		t.Errorf("並行呼び出しでもセッションは1件だけ作られるべき: got %d", len(repo.created))
	}
}

func TestFindByIdentifier_EmptyIdentifier(t *testing.T) {
	repo := &mockSessionRepo{
		findByIdentifierFunc: func(ctx context.Context, identifier string) (*model.Session, error) {
			t.Error("空識別子でリポジトリが呼ばれるべきではない")
			return nil, nil
		},
	}
	svc := newTestService(t, repo, &mockUserRepo{})

	session, err := svc.FindByIdentifier(context.Background(), "")
	if err != nil {
		t.Fatalf("FindByIdentifier がエラーを返した: %v", err)
	}
	if session != nil {
		t.Error("空識別子はnilを返すべき")
	}
}

func TestValidateOwnership(t *testing.T) {
	svc := newTestService(t, &mockSessionRepo{}, &mockUserRepo{})

	session := &model.Session{ID: "sess-1", UserID: "user-1"}
	if !svc.ValidateOwnership(session, "user-1") {
		t.Error("所有者のセッションはtrueであるべき")
	}
	if svc.ValidateOwnership(session, "user-2") {
		t.Error("他ユーザーのセッションはfalseであるべき")
	}
	if svc.ValidateOwnership(nil, "user-1") {
		t.Error("nilセッションはfalseであるべき")
	}
}

func TestWithUserLease_SerializesSameUser(t *testing.T) {
	svc := newTestService(t, &mockSessionRepo{}, &mockUserRepo{})

	var inCritical int32
	var mu sync.Mutex
	maxConcurrent := 0

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.WithUserLease("user-1", func() error {
				mu.Lock()
				inCritical++
				if int(inCritical) > maxConcurrent {
					maxConcurrent = int(inCritical)
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inCritical--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxConcurrent != 1 {
		t.Errorf("同一ユーザーのリース内同時実行数 = %d, want 1", maxConcurrent)
	}
}
