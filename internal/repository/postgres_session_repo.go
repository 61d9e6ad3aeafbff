package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/gramlink/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

const sessionColumns = `id, user_id, session_identifier, session_path, is_active,
	 last_activity_at, expires_at, ip_address, user_agent, created_at`

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, session_identifier, session_path, is_active,
		 last_activity_at, expires_at, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		session.ID, session.UserID, session.SessionIdentifier, session.SessionPath,
		session.IsActive, session.LastActivityAt, session.ExpiresAt,
		session.IPAddress, session.UserAgent, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindActiveByUserID は指定ユーザーの正となるアクティブセッションを取得する。
// 最も最近アクティビティのあった1件のみを正として扱う。
func (r *PostgresSessionRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1 AND is_active AND expires_at > now()
		 ORDER BY last_activity_at DESC
		 LIMIT 1`,
		userID,
	)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return session, nil
}

// FindByIdentifier はセッション識別子でアクティブなセッションを検索する。
func (r *PostgresSessionRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE session_identifier = $1 AND is_active AND expires_at > now()`,
		identifier,
	)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session by identifier: %w", err)
	}
	return session, nil
}

// UpdateActivity は指定セッションのlast_activity_atを現在時刻に更新する。
func (r *PostgresSessionRepo) UpdateActivity(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity_at = now() WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

// Deactivate は指定セッションをis_active=falseにする。
// 既に非アクティブの場合も成功として扱う（冪等）。行は削除しない。
func (r *PostgresSessionRepo) Deactivate(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE WHERE id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}
	return nil
}

// ListExpiredActive はis_activeのまま期限切れになったセッションを返す。
func (r *PostgresSessionRepo) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE is_active AND expires_at <= $1
		 ORDER BY expires_at
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired sessions: %w", err)
	}
	return sessions, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession は1行をmodel.Sessionに読み取る。
func scanSession(row rowScanner) (*model.Session, error) {
	session := &model.Session{}
	err := row.Scan(
		&session.ID, &session.UserID, &session.SessionIdentifier, &session.SessionPath,
		&session.IsActive, &session.LastActivityAt, &session.ExpiresAt,
		&session.IPAddress, &session.UserAgent, &session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
