package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wikifeed/internal/middleware"
	"github.com/hitoshi/wikifeed/internal/model"
)

// writeJSON はステータスコードとともにJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// okResponse は処理結果を持たない成功レスポンス。
type okResponse struct {
	OK bool `json:"ok"`
}

// handleServiceError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログにのみ記録し、500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	logger.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// requireUser はクエリパラメータuserを取得する。空の場合は400を書き込みfalseを返す。
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	handle := middleware.UserHandle(r)
	if handle == "" {
		middleware.WriteAPIError(w, model.NewInvalidRequestError("query parameter 'user' is required"))
		return "", false
	}
	return handle, true
}
