package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は抽出済みの記事本文HTMLを変換前に無害化するインターフェース。
type ContentSanitizerService interface {
	// Sanitize は許可リストにないタグと属性を除去したHTMLを返す。
	// scriptやstyleは中身ごと除去される。見出し・表・リスト・リンクなど本文構造は残す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// ContentSanitizer はbluemondayのポリシーを保持する。並行利用可能。
type ContentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
// UGCポリシーを基にする（javascript:等のスキームとon*属性は除去される）。
// 記事内リンクは相対URL（/wiki/...）のまま変換されるため相対URLは許可する。
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.UGCPolicy()
	p.AllowRelativeURLs(true)
	p.RequireNoFollowOnLinks(false)

	return &ContentSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ ContentSanitizerService = (*ContentSanitizer)(nil)
