// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/wikifeed/internal/model"
)

var (
	// ErrExposureExists は同一ユーザー・記事の配信記録が既に存在することを示す。
	// 配信記録の一意性がフィードの正しさの根拠となる。
	ErrExposureExists = errors.New("exposure already recorded")

	// ErrNotResolved は挿入直後にIDを解決できなかったことを示す。
	// 正しい並行制御下では発生しない永続化層の異常。
	ErrNotResolved = errors.New("id could not be resolved after insert")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Ensure はhandleに対応するユーザーIDを返す。存在しない場合は作成する。
	// 冪等であり、同じhandleに対しては常に同じIDを返す。
	Ensure(ctx context.Context, handle string) (int64, error)
}

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// Ensure は(lang, pageID)に対応する記事IDを返す。存在しない場合は作成する。
	// 既に存在する場合、引数のtitle/urlは破棄され既存の値は更新されない。
	Ensure(ctx context.Context, lang string, pageID int64, title, url string) (int64, error)

	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Article, error)

	// FindByPageID は(lang, pageID)で記事を取得する。見つからない場合はnilを返す。
	FindByPageID(ctx context.Context, lang string, pageID int64) (*model.Article, error)
}

// ExposureRepository はユーザーへの記事配信記録（user_articles）の永続化インターフェース。
type ExposureRepository interface {
	// Has は配信記録が存在するかを返す。
	Has(ctx context.Context, userID, articleID int64) (bool, error)

	// Record は配信記録を新規作成する。
	// 既に存在する場合はErrExposureExistsを返す。
	// 同一ユーザーの並行リクエストが同じ記事を先に記録した場合もErrExposureExistsとなり、
	// 選択側はその記事を配信済みとして扱って次の候補へ進む（リクエストは失敗させない）。
	Record(ctx context.Context, userID, articleID int64) error

	// UpdateReaction は配信記録に反応を記録し、reactedをtrueにする。
	// 該当する配信記録がない場合は何もせず、falseとnilを返す。
	UpdateReaction(ctx context.Context, userID, articleID int64, reaction model.Reaction) (bool, error)

	// Find は配信記録を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userID, articleID int64) (*model.Exposure, error)
}
