// Package content は任意URLの記事ページを取得し、本文をMarkdownまたはプレーンテキストに正規化する。
package content

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

//go:embed boilerplate.yaml
var defaultRulesYAML []byte

// Rule は本文から除去する定型要素の定義。
type Rule struct {
	Selector    string `yaml:"selector"`
	Description string `yaml:"description"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ErrNoRules はルールファイルに有効なルールが1件もないことを示す。
var ErrNoRules = errors.New("boilerplate rule table is empty")

// DefaultRules は埋め込みのルール表を返す。
func DefaultRules() ([]Rule, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRules はpathのYAMLからルール表を読み込む。pathが空の場合は埋め込みのルール表を返す。
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ルールファイルの読み込みに失敗しました: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// ParseRules はYAMLのルール表を解析し、各セレクタが有効なCSSセレクタであることを検証する。
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("ルール表のパースに失敗しました: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, ErrNoRules
	}
	for i, r := range f.Rules {
		f.Rules[i].Selector = strings.TrimSpace(r.Selector)
		if _, err := compileRule(f.Rules[i]); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return f.Rules, nil
}

func compileRule(r Rule) (cascadia.Selector, error) {
	if r.Selector == "" {
		return nil, errors.New("empty selector")
	}
	sel, err := cascadia.Compile(r.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", r.Selector, err)
	}
	return sel, nil
}
