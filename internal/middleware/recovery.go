package middleware

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"ai-gateway/pkg/httputil"
)

// Recover はハンドラのpanicを捕捉し、共通エラー形式の500に変換する。
// 応答が既に開始している場合はログのみ出力し、接続はそのまま閉じる。
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.ErrorContext(r.Context(), "panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				if ww, ok := w.(chimiddleware.WrapResponseWriter); ok && ww.Status() != 0 {
					// 応答開始後はエラーボディを書けない
					return
				}
				httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
