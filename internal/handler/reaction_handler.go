package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wikifeed/internal/middleware"
	"github.com/hitoshi/wikifeed/internal/model"
)

// maxReactBodySize は反応リクエストボディの最大サイズ。
const maxReactBodySize = 4 << 10

// ReactionRecorder は反応の記録を行うサービスのインターフェース。
type ReactionRecorder interface {
	React(ctx context.Context, handle string, articleID int64, reaction model.Reaction) error
}

// ReactionHandler は反応記録のHTTPハンドラー。
type ReactionHandler struct {
	recorder ReactionRecorder
	logger   *slog.Logger
}

// NewReactionHandler はReactionHandlerを生成する。
func NewReactionHandler(recorder ReactionRecorder, logger *slog.Logger) *ReactionHandler {
	return &ReactionHandler{
		recorder: recorder,
		logger:   logger,
	}
}

// reactRequest は反応記録リクエストのボディ。
type reactRequest struct {
	ArticleID *int64 `json:"article_id"`
	Reaction  string `json:"reaction"`
}

// React は配信済み記事への反応を記録する。
// 該当する配信記録がなくても成功を返す。
// POST /react?user={handle}
func (h *ReactionHandler) React(w http.ResponseWriter, r *http.Request) {
	handle, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req reactRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxReactBodySize)).Decode(&req); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("request body must be JSON"))
		return
	}
	if req.ArticleID == nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("article_id is required"))
		return
	}
	reaction := model.Reaction(req.Reaction)
	if !reaction.Valid() {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("reaction must be one of like, skip, block"))
		return
	}

	if err := h.recorder.React(r.Context(), handle, *req.ArticleID, reaction); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
