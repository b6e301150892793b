package content

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hitoshi/wikifeed/internal/security"
)

// 見出しと本文コンテナの探索順。先に見つかったものを使う。
var (
	headingSelectors = []string{"h1#firstHeading", "title"}
	mainSelectors    = []string{"#mw-content-text .mw-parser-output", "#mw-content-text"}
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Normalizer は記事ページHTMLから定型要素を除いた本文を抽出し、Markdown・テキストに変換する。
// 並行利用可能。
type Normalizer struct {
	matchers  []goquery.Matcher
	sanitizer security.ContentSanitizerService
	markdown  *md.Converter
}

// NewNormalizer はrulesを除去ルールとするNormalizerを生成する。
// sanitizerは変換直前の本文に適用される。
func NewNormalizer(rules []Rule, sanitizer security.ContentSanitizerService) (*Normalizer, error) {
	matchers := make([]goquery.Matcher, 0, len(rules))
	for _, r := range rules {
		sel, err := compileRule(r)
		if err != nil {
			return nil, err
		}
		matchers = append(matchers, sel)
	}
	return &Normalizer{
		matchers:  matchers,
		sanitizer: sanitizer,
		markdown:  md.NewConverter("", true, &md.Options{HeadingStyle: "atx"}),
	}, nil
}

// Extract は見出しテキストと定型要素を除去した本文HTMLを返す。
// 見出しが見つからない場合のtitleはnil。
// 本文コンテナが見つからない場合は入力HTML全体（body）を本文とし、同じ除去ルールを適用する。
func (n *Normalizer) Extract(rawHTML string) (*string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, "", fmt.Errorf("HTMLのパースに失敗しました: %w", err)
	}

	title := headingText(doc)

	// 本文コンテナがなければ入力全体を本文とみなす
	container := findFirst(doc.Selection, mainSelectors)
	if container == nil {
		container = doc.Find("body")
	}

	for _, m := range n.matchers {
		container.FindMatcher(m).Remove()
	}

	fragment, err := container.Html()
	if err != nil {
		return nil, "", fmt.Errorf("本文HTMLの生成に失敗しました: %w", err)
	}
	return title, fragment, nil
}

// ToMarkdown は本文HTMLをATX見出しのMarkdownに変換する。
func (n *Normalizer) ToMarkdown(fragment string) (string, error) {
	out, err := n.markdown.ConvertString(n.sanitizer.Sanitize(fragment))
	if err != nil {
		return "", fmt.Errorf("Markdown変換に失敗しました: %w", err)
	}
	return collapse(out), nil
}

// ToText は本文HTMLの可視テキストノードを改行区切りで連結したテキストに変換する。
func (n *Normalizer) ToText(fragment string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(n.sanitizer.Sanitize(fragment)), body)
	if err != nil {
		return "", fmt.Errorf("HTMLのパースに失敗しました: %w", err)
	}

	var texts []string
	for _, node := range nodes {
		collectText(node, &texts)
	}

	lines := strings.Split(strings.Join(texts, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return collapse(strings.Join(lines, "\n")), nil
}

// collapse は3つ以上連続する改行を2つにまとめ、前後の空白を除去する。
func collapse(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(excessNewlines.ReplaceAllString(s, "\n\n"))
}

func collectText(node *html.Node, texts *[]string) {
	switch node.Type {
	case html.TextNode:
		*texts = append(*texts, node.Data)
		return
	case html.ElementNode:
		switch node.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template:
			return
		}
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, texts)
	}
}

func headingText(doc *goquery.Document) *string {
	for _, sel := range headingSelectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return &t
		}
	}
	return nil
}

func findFirst(s *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := s.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}
