package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wikifeed/internal/middleware"
	"github.com/hitoshi/wikifeed/internal/model"
)

// ArticleSelector は未配信記事の選択を行うサービスのインターフェース。
type ArticleSelector interface {
	NextArticle(ctx context.Context, handle string) (*model.ServedArticle, error)
}

// ContentFetcher は任意URLの本文取得を行うサービスのインターフェース。
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string, format model.ContentFormat) (*model.ArticleContent, error)
}

// ArticleHandler は記事配信と本文取得のHTTPハンドラー。
type ArticleHandler struct {
	selector ArticleSelector
	fetcher  ContentFetcher
	logger   *slog.Logger
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(selector ArticleSelector, fetcher ContentFetcher, logger *slog.Logger) *ArticleHandler {
	return &ArticleHandler{
		selector: selector,
		fetcher:  fetcher,
		logger:   logger,
	}
}

// NextArticle はユーザーがまだ見ていない記事を1件返す。
// GET /next_article?user={handle}
func (h *ArticleHandler) NextArticle(w http.ResponseWriter, r *http.Request) {
	handle, ok := requireUser(w, r)
	if !ok {
		return
	}

	article, err := h.selector.NextArticle(r.Context(), handle)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, article)
}

// ArticleContent は指定URLの記事本文を正規化して返す。
// GET /article_content?url={url}&format={markdown|text}
func (h *ArticleHandler) ArticleContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rawURL := q.Get("url")
	if rawURL == "" {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("query parameter 'url' is required"))
		return
	}

	format, err := model.ParseContentFormat(q.Get("format"))
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("format must be 'markdown' or 'text'"))
		return
	}

	content, err := h.fetcher.Fetch(r.Context(), rawURL, format)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, content)
}
