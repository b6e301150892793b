// Package wikipedia はWikipedia REST APIとの連携機能を提供する。
// ランダム記事サマリーの取得を行う。
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wikifeed/internal/model"
)

const (
	// randomSummaryEndpoint はランダム記事サマリーAPIのエンドポイント。%sには言語コードが入る。
	randomSummaryEndpoint = "https://%s.wikipedia.org/api/rest_v1/page/random/summary"
	// maxSummarySize はサマリーレスポンスの最大読み取りサイズ。
	maxSummarySize = 1 << 20
)

// SummarySource はランダム記事サマリーの取得元。
// 上流は呼び出しごとに一様ランダムな記事を返し、既出記事を除外する手段を持たない。
// テストでは決定的な実装に差し替える。
type SummarySource interface {
	RandomSummary(ctx context.Context) (*model.RandomSummary, error)
}

// Client はWikipediaランダム記事サマリーAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはタイムアウトを設定したものを渡すこと。リダイレクトは標準の挙動で追従する。
func NewClient(httpClient *http.Client, logger *slog.Logger, lang, userAgent string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
		endpoint:   fmt.Sprintf(randomSummaryEndpoint, lang),
	}
}

// summaryResponse はREST APIのsummaryレスポンスのうち使用するフィールド。
type summaryResponse struct {
	Type        string  `json:"type"`
	PageID      int64   `json:"pageid"`
	Title       string  `json:"title"`
	Extract     *string `json:"extract"`
	ContentURLs *struct {
		Desktop *struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
	Thumbnail *struct {
		Source *string `json:"source"`
	} `json:"thumbnail"`
}

// RandomSummary はランダムな記事のサマリーを1件取得する。
// 200以外のステータスやJSONの解析失敗はエラーとして返す。
// 必須フィールドの欠落はエラーにせず、ゼロ値のまま返す（呼び出し側で判定する）。
func (c *Client) RandomSummary(ctx context.Context) (*model.RandomSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ランダム記事サマリーAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ランダム記事サマリーAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("ランダム記事サマリーAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSummarySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var raw summaryResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		c.logger.Error("ランダム記事サマリーAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return raw.toModel(), nil
}

// toModel はAPIレスポンスをドメインモデルに変換する。
func (r *summaryResponse) toModel() *model.RandomSummary {
	s := &model.RandomSummary{
		Type:    r.Type,
		PageID:  r.PageID,
		Title:   r.Title,
		Extract: r.Extract,
	}
	if r.ContentURLs != nil && r.ContentURLs.Desktop != nil {
		s.DesktopURL = r.ContentURLs.Desktop.Page
	}
	if r.Thumbnail != nil {
		s.Thumbnail = r.Thumbnail.Source
	}
	return s
}

// compile-time interface check
var _ SummarySource = (*Client)(nil)
