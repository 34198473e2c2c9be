// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 期限切れのWebセッションを削除し、全員が退出したまま放置された通話を終了させる。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
)

// SessionPurger は期限切れセッションを削除する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// IdleCallFinder は放置された通話を検索する。
type IdleCallFinder interface {
	ListIdle(ctx context.Context, idleSince time.Time, limit int) ([]*model.Call, error)
}

// CallExpirer は通話をidleとして終了させる。
type CallExpirer interface {
	Expire(ctx context.Context, callType, id string) (*model.Call, error)
}

// Recorder はクリーンアップ結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordSessionsPurged(count int64)
}

// Config はクリーンアップジョブの設定。
type Config struct {
	// IdleTimeout は最後の退出（参加者がいない場合は作成）からこの時間が経過した通話を終了させる。
	IdleTimeout time.Duration
	// BatchSize は1回の実行で終了させる通話の上限。
	BatchSize int
	// MaxConcurrency は通話終了処理の最大並列数。
	MaxConcurrency int
}

// CleanupJob は期限切れデータの削除ジョブ。
// 冪等であり、削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	sessions SessionPurger
	idle     IdleCallFinder
	calls    CallExpirer
	recorder Recorder
	logger   *slog.Logger
	config   Config
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// 設定のゼロ値はデフォルト（IdleTimeout 2時間、BatchSize 100、MaxConcurrency 4）に置き換える。
func NewCleanupJob(sessions SessionPurger, idle IdleCallFinder, calls CallExpirer, recorder Recorder, logger *slog.Logger, config Config) *CleanupJob {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 2 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	return &CleanupJob{
		sessions: sessions,
		idle:     idle,
		calls:    calls,
		recorder: recorder,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// Run はセッション削除と放置通話の終了を1回実行する。
// 片方が失敗してももう片方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	purged, sessErr := j.purgeSessions(ctx)
	expired, callErr := j.expireIdleCalls(ctx)

	if err := errors.Join(sessErr, callErr); err != nil {
		return err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("sessions_purged", purged),
		slog.Int("calls_expired", expired),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) purgeSessions(ctx context.Context) (int64, error) {
	n, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}
	if j.recorder != nil {
		j.recorder.RecordSessionsPurged(n)
	}
	return n, nil
}

// expireIdleCalls は放置された通話を並列数を制限しながら終了させる。
// 個々の通話の終了失敗はログに残し、次回の実行で再試行される。
func (j *CleanupJob) expireIdleCalls(ctx context.Context) (int, error) {
	idleSince := j.now().Add(-j.config.IdleTimeout)
	calls, err := j.idle.ListIdle(ctx, idleSince, j.config.BatchSize)
	if err != nil {
		j.logger.Error("放置通話の検索に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("放置通話の検索に失敗: %w", err)
	}
	if len(calls) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, j.config.MaxConcurrency)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		expired int
	)

	for _, c := range calls {
		wg.Add(1)
		sem <- struct{}{}

		go func(c *model.Call) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := j.calls.Expire(ctx, c.Type, c.ID); err != nil {
				j.logger.Error("放置通話の終了に失敗しました",
					slog.String("call_id", c.ID),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			expired++
			mu.Unlock()
		}(c)
	}

	wg.Wait()
	return expired, nil
}
