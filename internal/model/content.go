package model

import "fmt"

// ContentFormat は記事本文の出力形式を表す。
type ContentFormat string

const (
	// ContentFormatMarkdown はATX見出しのMarkdown形式。デフォルト。
	ContentFormatMarkdown ContentFormat = "markdown"
	// ContentFormatText はプレーンテキスト形式。
	ContentFormatText ContentFormat = "text"
)

// ParseContentFormat はクエリパラメータから出力形式を解析する。
// 空文字列はMarkdownとして扱う。
func ParseContentFormat(s string) (ContentFormat, error) {
	switch ContentFormat(s) {
	case "", ContentFormatMarkdown:
		return ContentFormatMarkdown, nil
	case ContentFormatText:
		return ContentFormatText, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// ArticleContent は任意URLから取得・正規化した記事本文。
// URLはリダイレクト解決後の最終URL。
type ArticleContent struct {
	Title   *string       `json:"title"`
	URL     string        `json:"url"`
	Format  ContentFormat `json:"format"`
	Content string        `json:"content"`
}
