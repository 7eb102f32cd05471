// Package refresh は割り当てキャッシュのバックグラウンド再取得を提供する。
// 鮮度ウィンドウを超過したキャッシュキーを定期的に洗い出し、
// ポータルAPIから再取得してキャッシュを更新するスケジューラを含む。
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pizzaportal/assignhub/internal/model"
	"github.com/pizzaportal/assignhub/internal/portalapi"
	"github.com/pizzaportal/assignhub/internal/store"
)

// APIClient は再取得に必要なポータルAPI呼び出しのインターフェース。
type APIClient interface {
	FetchByStore(ctx context.Context, storeID string) ([]*model.Assignment, error)
	FetchByUser(ctx context.Context, userID int64) ([]*model.Assignment, error)
}

// Cache は再取得対象の列挙と更新のインターフェース。
type Cache interface {
	StaleKeys(maxAge time.Duration) []store.CacheKey
	SetStoreAssignments(storeID string, assignments []*model.Assignment)
	SetUserAssignments(userID int64, assignments []*model.Assignment)
}

// MetricsRecorder は再取得結果のメトリクス記録インターフェース。
// nilの場合は記録をスキップする。
type MetricsRecorder interface {
	RecordCacheRefreshSuccess()
	RecordCacheRefreshFailure()
}

// Config はSchedulerの生成パラメータ。
type Config struct {
	MaxAge         time.Duration // キャッシュ鮮度ウィンドウ（デフォルト5分）
	MaxConcurrency int           // 再取得の最大並列数（デフォルト10）
	ServiceToken   string        // 上流呼び出し用のサービストークン（未設定可）
}

// Scheduler は失効キャッシュの再取得スケジューラ。
// ティッカーで失効キーを取得し、semaphoreパターンで
// 最大並列数を制御しながら再取得を実行する。
type Scheduler struct {
	cache          Cache
	client         APIClient
	logger         *slog.Logger
	metrics        MetricsRecorder
	maxAge         time.Duration
	maxConcurrency int
	serviceToken   string
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// MaxAgeが0以下の場合は5分、MaxConcurrencyが0以下の場合は10を使用する。
func NewScheduler(cache Cache, client APIClient, logger *slog.Logger, metrics MetricsRecorder, cfg Config) *Scheduler {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = store.DefaultMaxAge
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		cache:          cache,
		client:         client,
		logger:         logger,
		metrics:        metrics,
		maxAge:         maxAge,
		maxConcurrency: maxConcurrency,
		serviceToken:   cfg.ServiceToken,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("キャッシュ再取得スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("max_age", s.maxAge),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("キャッシュ再取得スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は失効キャッシュキーを1回洗い出し、並列で再取得を実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	keys := s.cache.StaleKeys(s.maxAge)
	if len(keys) == 0 {
		s.logger.Info("再取得対象のキャッシュキーはありません")
		return
	}

	s.logger.Info("キャッシュ再取得サイクルを開始します",
		slog.Int("key_count", len(keys)),
	)

	if s.serviceToken != "" {
		ctx = portalapi.ContextWithToken(ctx, s.serviceToken)
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(k store.CacheKey) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.refreshKey(ctx, k); err != nil {
				s.logger.Error("キャッシュの再取得に失敗しました",
					slog.String("cache_key", string(k)),
					slog.String("error", err.Error()),
				)
				if s.metrics != nil {
					s.metrics.RecordCacheRefreshFailure()
				}
				return
			}
			if s.metrics != nil {
				s.metrics.RecordCacheRefreshSuccess()
			}
		}(key)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("キャッシュ再取得サイクルが完了しました",
		slog.Int("key_count", len(keys)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
}

// refreshKey はキャッシュキーを再取得対象に解決し、上流から取り直す。
func (s *Scheduler) refreshKey(ctx context.Context, key store.CacheKey) error {
	if storeID, ok := strings.CutPrefix(string(key), "store:"); ok {
		assignments, err := s.client.FetchByStore(ctx, storeID)
		if err != nil {
			return err
		}
		s.cache.SetStoreAssignments(storeID, assignments)
		return nil
	}

	if rawUserID, ok := strings.CutPrefix(string(key), "user:"); ok {
		userID, err := strconv.ParseInt(rawUserID, 10, 64)
		if err != nil {
			return fmt.Errorf("キャッシュキーのユーザーIDが不正です: %q", key)
		}
		assignments, err := s.client.FetchByUser(ctx, userID)
		if err != nil {
			return err
		}
		s.cache.SetUserAssignments(userID, assignments)
		return nil
	}

	return fmt.Errorf("未知のキャッシュキー形式です: %q", key)
}
