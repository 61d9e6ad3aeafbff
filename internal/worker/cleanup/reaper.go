// Package cleanup は期限切れセッションの後始末ジョブを提供する。
// is_activeのまま期限切れになったセッションを定期バッチで検出し、
// コネクタのローカル状態ディレクトリを破棄してから非アクティブ化する。
// 行自体は監査履歴として保持し、削除しない。
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/gramlink/internal/connector"
	"github.com/hitoshi/gramlink/internal/metrics"
	"github.com/hitoshi/gramlink/internal/model"
)

// SessionStore は後始末ジョブが必要とするセッション永続化インターフェース。
type SessionStore interface {
	// ListExpiredActive はis_activeのまま期限切れになったセッションを返す。
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]*model.Session, error)
	// Deactivate は指定セッションをis_active=falseにする。冪等。
	Deactivate(ctx context.Context, sessionID string) error
}

// ReaperJob は期限切れセッションの後始末ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な処理を保証する。
type ReaperJob struct {
	sessions       SessionStore
	logger         *slog.Logger
	metrics        metrics.MetricsCollector
	BatchSize      int // 1回のバッチで処理するセッション数（デフォルト: 100）
	maxConcurrency int
}

// NewReaperJob は新しいReaperJobを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewReaperJob(sessions SessionStore, logger *slog.Logger, collector metrics.MetricsCollector, maxConcurrency int) *ReaperJob {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &ReaperJob{
		sessions:       sessions,
		logger:         logger,
		metrics:        collector,
		BatchSize:      100,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーで後始末ジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *ReaperJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッション後始末ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", j.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("セッション後始末の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッション後始末ジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("セッション後始末の実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run は期限切れセッションをバッチ単位で取得し、並列で後始末を実行する。
// semaphoreパターンで最大並列数を制御する。
// 冪等: 処理対象がない場合でもエラーにならない。
func (j *ReaperJob) Run(ctx context.Context) error {
	start := time.Now()
	var reaped int

	for {
		sessions, err := j.sessions.ListExpiredActive(ctx, time.Now(), j.BatchSize)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			break
		}

		// semaphoreパターンで並列数を制御
		sem := make(chan struct{}, j.maxConcurrency)
		var wg sync.WaitGroup

		for _, session := range sessions {
			wg.Add(1)
			sem <- struct{}{}

			go func(s *model.Session) {
				defer wg.Done()
				defer func() { <-sem }()
				j.reap(ctx, s)
			}(session)
		}
		wg.Wait()

		reaped += len(sessions)
		if len(sessions) < j.BatchSize {
			break
		}
	}

	if reaped > 0 {
		j.logger.Info("セッション後始末ジョブが完了しました",
			slog.Int("reaped_count", reaped),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return nil
}

// reap は1件のセッションのローカル状態を破棄し、非アクティブ化する。
// ディレクトリ破棄に失敗しても非アクティブ化は必ず実行する。
func (j *ReaperJob) reap(ctx context.Context, session *model.Session) {
	if err := connector.PurgeSessionDir(session.SessionPath); err != nil {
		j.logger.Warn("セッションディレクトリの破棄に失敗しました",
			slog.String("session_id", session.ID),
			slog.String("session_path", session.SessionPath),
			slog.String("error", err.Error()),
		)
	}

	if err := j.sessions.Deactivate(ctx, session.ID); err != nil {
		j.logger.Error("セッションの非アクティブ化に失敗しました",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	j.metrics.RecordSessionTerminated()
	j.logger.Info("期限切れセッションを後始末しました",
		slog.String("session_id", session.ID),
		slog.String("user_id", session.UserID),
	)
}
