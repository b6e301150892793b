// Package feed はユーザーごとに重複しないランダム記事フィードのドメインロジックを提供する。
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/wikifeed/internal/metrics"
	"github.com/hitoshi/wikifeed/internal/model"
	"github.com/hitoshi/wikifeed/internal/repository"
	"github.com/hitoshi/wikifeed/internal/wikipedia"
)

// DefaultMaxAttempts は未配信記事を探す試行回数の既定値。
const DefaultMaxAttempts = 12

// ServiceConfig はServiceの設定。
type ServiceConfig struct {
	Lang        string // 記事の言語コード（サマリーAPIの言語と一致させる）
	MaxAttempts int    // 1リクエストあたりの最大試行回数
}

// Service はランダム記事の選択サービス。
// 上流のランダム記事を取得 → 除外判定 → 記事保存 → 配信済み判定 → 配信記録
// のループを、未配信の記事が見つかるか試行回数を使い切るまで繰り返す。
type Service struct {
	source      wikipedia.SummarySource
	users       repository.UserRepository
	articles    repository.ArticleRepository
	exposures   repository.ExposureRepository
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	lang        string
	maxAttempts int
}

// NewService はServiceの新しいインスタンスを生成する。
// MaxAttemptsが0以下の場合はDefaultMaxAttemptsを使用する。
func NewService(
	source wikipedia.SummarySource,
	users repository.UserRepository,
	articles repository.ArticleRepository,
	exposures repository.ExposureRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg ServiceConfig,
) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		source:      source,
		users:       users,
		articles:    articles,
		exposures:   exposures,
		metrics:     collector,
		logger:      logger,
		lang:        cfg.Lang,
		maxAttempts: cfg.MaxAttempts,
	}
}

// NextArticle はhandleのユーザーがまだ見ていない記事を1件選び、配信記録をしてから返す。
// 試行回数内に見つからない場合はNO_UNSEEN_ARTICLEエラーを返す（再試行すればよい通常の状態）。
// 上流の取得失敗はUPSTREAM_FETCH_FAILEDとしてそのまま返し、ループは継続しない。
func (s *Service) NextArticle(ctx context.Context, handle string) (*model.ServedArticle, error) {
	userID, err := s.users.Ensure(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの解決に失敗しました: %w", err)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		served, outcome, err := s.attempt(ctx, userID)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordSelectionAttempt(outcome)

		if served != nil {
			s.logger.Info("article served",
				slog.String("user", handle),
				slog.Int64("article_id", served.ArticleID),
				slog.Int("attempt", attempt),
			)
			return served, nil
		}

		s.logger.Debug("article rejected",
			slog.String("user", handle),
			slog.String("outcome", outcome),
			slog.Int("attempt", attempt),
		)
	}

	s.metrics.RecordSelectionExhausted()
	s.logger.Info("no unseen article within attempt budget",
		slog.String("user", handle),
		slog.Int("attempts", s.maxAttempts),
	)
	return nil, model.NewNoUnseenArticleError(s.maxAttempts)
}

// attempt は1回分の試行を行う。
// 配信できた場合は記事を、却下した場合はnilと却下理由を返す。
func (s *Service) attempt(ctx context.Context, userID int64) (*model.ServedArticle, string, error) {
	start := time.Now()
	summary, err := s.source.RandomSummary(ctx)
	s.metrics.RecordSummaryLatency(time.Since(start))
	if err != nil {
		return nil, "", model.NewUpstreamFetchFailedError(err.Error())
	}

	// 曖昧さ回避など標準以外のページは除外
	if !summary.IsStandard() {
		return nil, metrics.OutcomeNonStandard, nil
	}
	if !summary.HasRequiredFields() {
		return nil, metrics.OutcomeMalformed, nil
	}

	articleID, err := s.articles.Ensure(ctx, s.lang, summary.PageID, summary.Title, summary.DesktopURL)
	if err != nil {
		return nil, "", fmt.Errorf("記事の保存に失敗しました: %w", err)
	}

	seen, err := s.exposures.Has(ctx, userID, articleID)
	if err != nil {
		return nil, "", fmt.Errorf("配信記録の確認に失敗しました: %w", err)
	}
	if seen {
		return nil, metrics.OutcomeSeen, nil
	}

	// 応答を返す前に配信を記録する。
	// 同一ユーザーの並行リクエストが先に記録した場合は既出として次の試行へ進む。
	if err := s.exposures.Record(ctx, userID, articleID); err != nil {
		if errors.Is(err, repository.ErrExposureExists) {
			return nil, metrics.OutcomeRaceLost, nil
		}
		return nil, "", fmt.Errorf("配信記録の作成に失敗しました: %w", err)
	}

	return &model.ServedArticle{
		ArticleID: articleID,
		Title:     summary.Title,
		URL:       summary.DesktopURL,
		Summary: model.ArticleSummary{
			Extract:   summary.Extract,
			Thumbnail: summary.Thumbnail,
		},
	}, metrics.OutcomeServed, nil
}
