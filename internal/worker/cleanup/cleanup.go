// Package cleanup はセッションとオンライン状態の定期クリーンアップジョブを提供する。
// 期限切れのセッションを削除し、一定時間操作のないユーザーをオフラインにする。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れセッションとアイドルユーザーのクリーンアップジョブ。
// 冪等であり、何度実行しても結果は変わらない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	IdleThreshold time.Duration // この時間操作のないユーザーをオフラインにする（デフォルト: 30分）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		IdleThreshold: 30 * time.Minute,
	}
}

// Run は期限切れのセッションを削除し、アイドル状態のユーザーをオフラインにする。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		j.logger.Error("セッションクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	interval := fmt.Sprintf("%d seconds", int64(j.IdleThreshold.Seconds()))
	offlineCount, err := j.exec(ctx,
		`UPDATE users SET is_online = false, updated_at = now()
		 WHERE is_online AND last_active_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		j.logger.Error("オンライン状態の更新に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("idle_threshold", j.IdleThreshold),
		)
		return fmt.Errorf("オンライン状態の更新に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int64("offline_count", offlineCount),
		slog.Duration("idle_threshold", j.IdleThreshold),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

func (j *CleanupJob) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("影響件数の取得に失敗: %w", err)
	}
	return n, nil
}

// Start はintervalごとにRunを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	// エラーはRun内でログ出力済み
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
