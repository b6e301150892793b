package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/wikifeed/internal/model"
)

// SQLExposureRepo はdatabase/sqlを使用した配信記録リポジトリ。
// 各文は即時コミットされ、複数文にまたがるトランザクションは張らない。
type SQLExposureRepo struct {
	db *sql.DB
}

// NewSQLExposureRepo はSQLExposureRepoを生成する。
func NewSQLExposureRepo(db *sql.DB) *SQLExposureRepo {
	return &SQLExposureRepo{db: db}
}

// Has は配信記録が存在するかを返す。
func (r *SQLExposureRepo) Has(ctx context.Context, userID, articleID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM user_articles WHERE user_id = $1 AND article_id = $2`,
		userID, articleID,
	).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check exposure: %w", err)
	}

	return true, nil
}

// Record は配信記録を新規作成する。
// UNIQUE(user_id, article_id)制約に当たった場合はErrExposureExistsを返す。
// 並行リクエストとの競合に負けた場合もこれに含まれ、呼び出し側は配信済みとして扱う。
func (r *SQLExposureRepo) Record(ctx context.Context, userID, articleID int64) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO user_articles (user_id, article_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, article_id) DO NOTHING`,
		userID, articleID,
	)
	if err != nil {
		return fmt.Errorf("failed to record exposure: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %d article %d: %w", userID, articleID, ErrExposureExists)
	}

	return nil
}

// UpdateReaction は配信記録に反応を記録する。
// 該当行がない場合は何も更新せずfalseを返す。エラーにはしない。
func (r *SQLExposureRepo) UpdateReaction(ctx context.Context, userID, articleID int64, reaction model.Reaction) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_articles SET reacted = TRUE, reaction = $1
		 WHERE user_id = $2 AND article_id = $3`,
		string(reaction), userID, articleID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update reaction: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Find は配信記録を取得する。見つからない場合はnilを返す。
func (r *SQLExposureRepo) Find(ctx context.Context, userID, articleID int64) (*model.Exposure, error) {
	e := &model.Exposure{}
	var reaction sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, article_id, reacted, reaction
		 FROM user_articles WHERE user_id = $1 AND article_id = $2`,
		userID, articleID,
	).Scan(&e.UserID, &e.ArticleID, &e.Reacted, &reaction)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find exposure: %w", err)
	}

	if reaction.Valid {
		rv := model.Reaction(reaction.String)
		e.Reaction = &rv
	}

	return e, nil
}

// compile-time interface check
var _ ExposureRepository = (*SQLExposureRepo)(nil)
