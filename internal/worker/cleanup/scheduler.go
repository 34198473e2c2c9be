package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Runner は1回分のジョブを実行する。
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler はジョブを一定間隔で実行する。
type Scheduler struct {
	job    Runner
	logger *slog.Logger
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(job Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{job: job, logger: logger}
}

// Start は起動直後に1回、その後はinterval間隔でジョブを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("クリーンアップスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("クリーンアップスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.job.Run(ctx); err != nil {
		s.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
