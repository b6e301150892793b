package content

import (
	"strings"
	"testing"

	"github.com/hitoshi/wikifeed/internal/security"
)

// articlePage はWikipediaの記事ページを模したHTML。
// 定型要素には本文に現れない目印の文字列を入れてある。
const articlePage = `<!DOCTYPE html>
<html><head><title>東京 - Wikipedia</title><link rel="stylesheet" href="/x.css"></head>
<body>
<h1 id="firstHeading">東京</h1>
<div id="mw-content-text"><div class="mw-parser-output">
<div class="hatnote">HATNOTE_TEXT</div>
<table class="infobox"><tr><th>人口</th><td>INFOBOX_POPULATION</td></tr></table>
<div id="toc" class="toc"><ul><li>TOC_ENTRY</li></ul></div>
<p>東京は日本の首都である。<sup class="reference"><a href="#cite_note-1">[1]</a></sup></p>
<h2>歴史<span class="mw-editsection">[EDIT_LINK]</span></h2>
<p>江戸から続く都市。</p>
<div class="navbox">NAVBOX_TEXT</div>
<div class="vertical-navbox">VNAVBOX_TEXT</div>
<table class="sidebar"><tr><td>SIDEBAR_TEXT</td></tr></table>
<div class="mw-kartographer-container">MAP_TEXT</div>
<figure role="navigation">FIGURE_NAV_TEXT</figure>
<div class="reflist"><ol class="references"><li id="cite_note-1">REFLIST_CITATION</li></ol></div>
<ol class="references"><li>BARE_REFERENCES</li></ol>
<script>SCRIPT_TEXT()</script>
<style>.STYLE_TEXT{}</style>
<noscript>NOSCRIPT_TEXT</noscript>
</div></div>
</body></html>`

var boilerplateMarkers = []string{
	"HATNOTE_TEXT", "INFOBOX_POPULATION", "TOC_ENTRY", "[1]", "EDIT_LINK",
	"NAVBOX_TEXT", "VNAVBOX_TEXT", "SIDEBAR_TEXT", "MAP_TEXT", "FIGURE_NAV_TEXT",
	"REFLIST_CITATION", "BARE_REFERENCES", "SCRIPT_TEXT", "STYLE_TEXT", "NOSCRIPT_TEXT",
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	rules, err := DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules がエラーを返した: %v", err)
	}
	n, err := NewNormalizer(rules, security.NewContentSanitizer())
	if err != nil {
		t.Fatalf("NewNormalizer がエラーを返した: %v", err)
	}
	return n
}

func TestExtract_RemovesBoilerplate(t *testing.T) {
	n := newTestNormalizer(t)

	title, fragment, err := n.Extract(articlePage)
	if err != nil {
		t.Fatalf("Extract がエラーを返した: %v", err)
	}

	if title == nil || *title != "東京" {
		t.Errorf("title = %v, want 東京", title)
	}
	for _, marker := range boilerplateMarkers {
		if strings.Contains(fragment, marker) {
			t.Errorf("fragment still contains %q", marker)
		}
	}
	for _, want := range []string{"東京は日本の首都である。", "歴史", "江戸から続く都市。"} {
		if !strings.Contains(fragment, want) {
			t.Errorf("fragment lost narrative text %q", want)
		}
	}
}

// 見出しがない場合はtitle要素を使う
func TestExtract_TitleFallback(t *testing.T) {
	n := newTestNormalizer(t)

	title, _, err := n.Extract(`<html><head><title>  Fallback Title </title></head>
<body><div id="mw-content-text"><p>本文</p></div></body></html>`)
	if err != nil {
		t.Fatalf("Extract がエラーを返した: %v", err)
	}
	if title == nil || *title != "Fallback Title" {
		t.Errorf("title = %v, want Fallback Title", title)
	}
}

func TestExtract_NoTitle(t *testing.T) {
	n := newTestNormalizer(t)

	title, _, err := n.Extract(`<div id="mw-content-text"><p>本文</p></div>`)
	if err != nil {
		t.Fatalf("Extract がエラーを返した: %v", err)
	}
	if title != nil {
		t.Errorf("title = %q, want nil", *title)
	}
}

// 本文コンテナがない場合は入力全体を本文とし、定型要素は同様に除去する
func TestExtract_NoContainerUsesWholeInput(t *testing.T) {
	n := newTestNormalizer(t)
	input := `<html><body><h1 id="firstHeading">X</h1><p>kept narrative</p><table class="infobox"><tr><td>INFOBOX_ROW</td></tr></table></body></html>`

	title, fragment, err := n.Extract(input)
	if err != nil {
		t.Fatalf("Extract がエラーを返した: %v", err)
	}
	if title == nil || *title != "X" {
		t.Errorf("title = %v, want X", title)
	}
	if !strings.Contains(fragment, "kept narrative") {
		t.Errorf("fragment lost narrative text: %q", fragment)
	}
	if strings.Contains(fragment, "INFOBOX_ROW") {
		t.Errorf("fragment still contains infobox: %q", fragment)
	}
}

// コンテナで包まれていない断片でも情報ボックスと参考文献は出力に残らない
func TestConversions_BareFragmentDropsBoilerplate(t *testing.T) {
	n := newTestNormalizer(t)
	input := `<table class="infobox"><tr><td>INFOBOX_CELL</td></tr></table><p>Body</p>` +
		`<div class="reflist"><ol class="references"><li>REFTEXT</li></ol></div>`

	_, fragment, err := n.Extract(input)
	if err != nil {
		t.Fatalf("Extract がエラーを返した: %v", err)
	}

	md, err := n.ToMarkdown(fragment)
	if err != nil {
		t.Fatalf("ToMarkdown がエラーを返した: %v", err)
	}
	text, err := n.ToText(fragment)
	if err != nil {
		t.Fatalf("ToText がエラーを返した: %v", err)
	}

	for name, out := range map[string]string{"markdown": md, "text": text} {
		if !strings.Contains(out, "Body") {
			t.Errorf("%s lost narrative text: %q", name, out)
		}
		for _, marker := range []string{"INFOBOX_CELL", "REFTEXT"} {
			if strings.Contains(out, marker) {
				t.Errorf("%s still contains %q: %q", name, marker, out)
			}
		}
	}
}

func TestToMarkdown_ArticlePage(t *testing.T) {
	n := newTestNormalizer(t)
	_, fragment, err := n.Extract(articlePage)
	if err != nil {
		t.Fatalf("Extract がエラーを返した: %v", err)
	}

	got, err := n.ToMarkdown(fragment)
	if err != nil {
		t.Fatalf("ToMarkdown がエラーを返した: %v", err)
	}

	if !strings.Contains(got, "## 歴史") {
		t.Errorf("markdown should use ATX headings:\n%s", got)
	}
	if !strings.Contains(got, "東京は日本の首都である。") {
		t.Errorf("markdown lost narrative text:\n%s", got)
	}
	for _, marker := range boilerplateMarkers {
		if strings.Contains(got, marker) {
			t.Errorf("markdown still contains %q", marker)
		}
	}
	if got != strings.TrimSpace(got) {
		t.Error("markdown should be trimmed")
	}
}

func TestToText_ArticlePage(t *testing.T) {
	n := newTestNormalizer(t)
	_, fragment, err := n.Extract(articlePage)
	if err != nil {
		t.Fatalf("Extract がエラーを返した: %v", err)
	}

	got, err := n.ToText(fragment)
	if err != nil {
		t.Fatalf("ToText がエラーを返した: %v", err)
	}

	if !strings.HasPrefix(got, "東京は日本の首都である。") {
		t.Errorf("text should start with the first paragraph:\n%s", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("text should not contain markup:\n%s", got)
	}
	for _, marker := range boilerplateMarkers {
		if strings.Contains(got, marker) {
			t.Errorf("text still contains %q", marker)
		}
	}
}

// 3つ以上の連続改行は必ず2つにまとめられる
func TestConversions_CollapseNewlines(t *testing.T) {
	n := newTestNormalizer(t)
	fragments := []string{
		"<p>a</p>\n\n\n\n<p>b</p>",
		"<div>a\n\n\n\n\n\nb</div>",
		"<p>a</p><div>   \n  \n   \n</div><p>b</p>",
		"<pre>x\n\n\n\ny</pre>",
		"<ul><li>1</li>\n\n\n<li>2</li></ul>\n\n\n\n<h3>h</h3>",
	}

	for _, f := range fragments {
		md, err := n.ToMarkdown(f)
		if err != nil {
			t.Fatalf("ToMarkdown(%q) がエラーを返した: %v", f, err)
		}
		if strings.Contains(md, "\n\n\n") {
			t.Errorf("ToMarkdown(%q) = %q contains 3+ newlines", f, md)
		}

		text, err := n.ToText(f)
		if err != nil {
			t.Fatalf("ToText(%q) がエラーを返した: %v", f, err)
		}
		if strings.Contains(text, "\n\n\n") {
			t.Errorf("ToText(%q) = %q contains 3+ newlines", f, text)
		}
	}
}

func TestToText_StripsTrailingWhitespacePerLine(t *testing.T) {
	n := newTestNormalizer(t)

	got, err := n.ToText("<p>行1   </p><p>行2\t</p>\n<p>  行3</p>")
	if err != nil {
		t.Fatalf("ToText がエラーを返した: %v", err)
	}
	for _, line := range strings.Split(got, "\n") {
		if line != strings.TrimRight(line, " \t") {
			t.Errorf("line %q has trailing whitespace", line)
		}
	}
	if !strings.Contains(got, "行1\n行2") {
		t.Errorf("text = %q, want 行1 and 行2 on consecutive lines", got)
	}
	if !strings.Contains(got, "  行3") {
		t.Errorf("leading whitespace of a line must be kept: %q", got)
	}
}

func TestCollapse(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a\n\n\nb", "a\n\nb"},
		{"a\n\n\n\n\n\nb", "a\n\nb"},
		{"a\n\nb", "a\n\nb"},
		{"\n\n  a  \n\n", "a"},
		{"a\r\n\r\n\r\nb", "a\n\nb"},
	}
	for _, tt := range tests {
		if got := collapse(tt.in); got != tt.want {
			t.Errorf("collapse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewNormalizer_InvalidRule(t *testing.T) {
	_, err := NewNormalizer([]Rule{{Selector: "div["}}, security.NewContentSanitizer())
	if err == nil {
		t.Fatal("不正なセレクタの場合はエラーを返すべき")
	}
}
