// Package model はドメインモデルを定義する。
package model

// Article はWikipediaの記事を表す。
// (Lang, PageID) の組で一意となり、初回取得時に作成された後は更新されない。
type Article struct {
	ID     int64
	Lang   string
	PageID int64
	Title  string
	URL    string
}

// Reaction は配信済み記事に対するユーザーの反応を表す。
type Reaction string

const (
	// ReactionLike は記事を気に入ったことを示す。
	ReactionLike Reaction = "like"
	// ReactionSkip は記事を読み飛ばしたことを示す。
	ReactionSkip Reaction = "skip"
	// ReactionBlock は記事を今後表示したくないことを示す。
	ReactionBlock Reaction = "block"
)

// Valid は定義済みの反応値かどうかを返す。
func (r Reaction) Valid() bool {
	switch r {
	case ReactionLike, ReactionSkip, ReactionBlock:
		return true
	default:
		return false
	}
}

// Exposure はユーザーに記事を配信した事実を表す。
// (UserID, ArticleID) の組につき高々1行しか存在しない。
// 作成後に変更されるのは反応の記録のみ。
type Exposure struct {
	UserID    int64
	ArticleID int64
	Reacted   bool
	Reaction  *Reaction
}

// RandomSummary は上流のランダム記事サマリーAPIのレスポンスを表す。
// 必須項目の欠落はゼロ値で表す。
type RandomSummary struct {
	Type       string
	PageID     int64
	Title      string
	DesktopURL string
	Extract    *string
	Thumbnail  *string
}

// IsStandard は通常の記事ページかどうかを返す。
// typeが未指定または "standard" の場合のみtrue（曖昧さ回避ページ等は除外）。
func (s *RandomSummary) IsStandard() bool {
	return s.Type == "" || s.Type == "standard"
}

// HasRequiredFields はページID、タイトル、デスクトップURLがすべて揃っているかを返す。
func (s *RandomSummary) HasRequiredFields() bool {
	return s.PageID != 0 && s.Title != "" && s.DesktopURL != ""
}

// ArticleSummary は配信記事に添える概要。上流の値をそのまま渡す。
type ArticleSummary struct {
	Extract   *string `json:"extract"`
	Thumbnail *string `json:"thumbnail"`
}

// ServedArticle はユーザーに配信した記事のペイロード。
type ServedArticle struct {
	ArticleID int64          `json:"article_id"`
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Summary   ArticleSummary `json:"summary"`
}
