package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/wikifeed/internal/model"
)

// SQLArticleRepo はdatabase/sqlを使用した記事リポジトリ。
type SQLArticleRepo struct {
	db *sql.DB
}

// NewSQLArticleRepo はSQLArticleRepoを生成する。
func NewSQLArticleRepo(db *sql.DB) *SQLArticleRepo {
	return &SQLArticleRepo{db: db}
}

// Ensure は(lang, pageID)に対応する記事IDを返す。存在しない場合は作成する。
// UNIQUE(lang, page_id)制約を利用したINSERT ON CONFLICTで実装し、
// 競合時はキー列のみを自身で上書きするためtitle/urlは最初の値のまま維持される。
func (r *SQLArticleRepo) Ensure(ctx context.Context, lang string, pageID int64, title, url string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO articles (lang, page_id, title, url) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (lang, page_id) DO UPDATE SET lang = excluded.lang
		 RETURNING id`,
		lang, pageID, title, url,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("article %s/%d: %w", lang, pageID, ErrNotResolved)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to ensure article: %w", err)
	}

	return id, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *SQLArticleRepo) FindByID(ctx context.Context, id int64) (*model.Article, error) {
	return r.findOne(ctx,
		`SELECT id, lang, page_id, title, url FROM articles WHERE id = $1`,
		id,
	)
}

// FindByPageID は(lang, pageID)で記事を取得する。見つからない場合はnilを返す。
func (r *SQLArticleRepo) FindByPageID(ctx context.Context, lang string, pageID int64) (*model.Article, error) {
	return r.findOne(ctx,
		`SELECT id, lang, page_id, title, url FROM articles WHERE lang = $1 AND page_id = $2`,
		lang, pageID,
	)
}

func (r *SQLArticleRepo) findOne(ctx context.Context, query string, args ...any) (*model.Article, error) {
	a := &model.Article{}
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&a.ID, &a.Lang, &a.PageID, &a.Title, &a.URL)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find article: %w", err)
	}

	return a, nil
}

// compile-time interface check
var _ ArticleRepository = (*SQLArticleRepo)(nil)
