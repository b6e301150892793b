// Package reaction は配信済み記事へのユーザーの反応を記録する。
package reaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/wikifeed/internal/metrics"
	"github.com/hitoshi/wikifeed/internal/model"
	"github.com/hitoshi/wikifeed/internal/repository"
)

// Service は反応記録サービス。
type Service struct {
	users     repository.UserRepository
	exposures repository.ExposureRepository
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	exposures repository.ExposureRepository,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		users:     users,
		exposures: exposures,
		metrics:   collector,
		logger:    logger,
	}
}

// React はhandleのユーザーがarticleIDの記事にreactionを付けたことを記録する。
// 該当する配信記録がない場合も成功として扱い、記録は変更しない。
func (s *Service) React(ctx context.Context, handle string, articleID int64, reaction model.Reaction) error {
	if !reaction.Valid() {
		return model.NewInvalidRequestError(fmt.Sprintf("reaction must be one of like, skip, block: %q", reaction))
	}

	userID, err := s.users.Ensure(ctx, handle)
	if err != nil {
		return fmt.Errorf("ユーザーの解決に失敗しました: %w", err)
	}

	matched, err := s.exposures.UpdateReaction(ctx, userID, articleID, reaction)
	if err != nil {
		return fmt.Errorf("反応の記録に失敗しました: %w", err)
	}

	if !matched {
		s.logger.Info("reaction without exposure ignored",
			slog.String("user", handle),
			slog.Int64("article_id", articleID),
			slog.String("reaction", string(reaction)),
		)
		return nil
	}

	s.metrics.RecordReaction(string(reaction))
	s.logger.Info("reaction recorded",
		slog.String("user", handle),
		slog.Int64("article_id", articleID),
		slog.String("reaction", string(reaction)),
	)
	return nil
}
