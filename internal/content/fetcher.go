package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/net/html/charset"

	"github.com/hitoshi/wikifeed/internal/metrics"
	"github.com/hitoshi/wikifeed/internal/model"
	"github.com/hitoshi/wikifeed/internal/security"
)

// DefaultMaxSize は本文レスポンスの最大サイズの既定値（5MB）。これを超える応答はエラーとする。
const DefaultMaxSize int64 = 5 << 20

// FetcherConfig はFetcherの設定。
type FetcherConfig struct {
	UserAgent string
	MaxSize   int64
}

// Fetcher は任意URLの記事ページを取得し、指定形式に正規化する。
type Fetcher struct {
	client     *http.Client
	guard      security.SSRFGuardService
	normalizer *Normalizer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	userAgent  string
	maxSize    int64
}

// NewFetcher はFetcherを生成する。
// guardがnilの場合は接続先の検証を行わず、URLの形式のみを検証する（開発環境用）。
// clientのタイムアウトが取得全体の上限となる。リダイレクトはclientの設定に従って追従する。
func NewFetcher(
	client *http.Client,
	guard security.SSRFGuardService,
	normalizer *Normalizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg FetcherConfig,
) *Fetcher {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Fetcher{
		client:     client,
		guard:      guard,
		normalizer: normalizer,
		metrics:    collector,
		logger:     logger,
		userAgent:  cfg.UserAgent,
		maxSize:    cfg.MaxSize,
	}
}

// Fetch はrawURLを取得し、本文をformat形式に変換して返す。
// 通信エラー、2xx以外のステータス、上限サイズ超過はUPSTREAM_FETCH_FAILEDとして原因を含めて返す。
// 返却するURLはリダイレクト解決後の最終URL。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, format model.ContentFormat) (*model.ArticleContent, error) {
	if err := f.validate(rawURL); err != nil {
		f.metrics.RecordContentFetch(metrics.ContentRejected)
		f.logger.Warn("content url rejected",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, security.ErrBlockedDestination) {
			return nil, model.NewSSRFBlockedError()
		}
		return nil, model.NewInvalidURLError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		f.metrics.RecordContentFetch(metrics.ContentRejected)
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	body, finalURL, err := f.get(req)
	if err != nil {
		f.metrics.RecordContentFetch(metrics.ContentUpstreamErr)
		f.logger.Warn("content fetch failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamFetchFailedError(err.Error())
	}

	title, fragment, err := f.normalizer.Extract(body)
	if err != nil {
		return nil, err
	}

	var converted string
	switch format {
	case model.ContentFormatText:
		converted, err = f.normalizer.ToText(fragment)
	default:
		format = model.ContentFormatMarkdown
		converted, err = f.normalizer.ToMarkdown(fragment)
	}
	if err != nil {
		return nil, err
	}

	f.metrics.RecordContentFetch(metrics.ContentOK)
	return &model.ArticleContent{
		Title:   title,
		URL:     finalURL,
		Format:  format,
		Content: converted,
	}, nil
}

func (f *Fetcher) validate(rawURL string) error {
	if f.guard == nil {
		return security.ParseHTTPURL(rawURL, false)
	}
	return f.guard.ValidateURL(rawURL)
}

// get はリクエストを送信し、宣言された文字コードでデコードした本文と最終URLを返す。
func (f *Fetcher) get(req *http.Request) (string, string, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return "", "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if int64(len(raw)) > f.maxSize {
		return "", "", fmt.Errorf("レスポンスが上限サイズ(%dバイト)を超えています", f.maxSize)
	}

	reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", "", fmt.Errorf("文字コードの判定に失敗しました: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", "", fmt.Errorf("レスポンスボディのデコードに失敗しました: %w", err)
	}

	return string(body), resp.Request.URL.String(), nil
}
