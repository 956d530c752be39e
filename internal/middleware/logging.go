package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"ai-gateway/internal/domain"
)

// trafficLabels は転送ハンドラが設定する観測用ラベル。
type trafficLabels struct {
	service string
	action  string
}

// SetRouteLabels は転送先のサービス名・アクション名をログ用に記録する。
func SetRouteLabels(ctx context.Context, service, action string) {
	if labels, ok := ctx.Value(trafficLabelsKey).(*trafficLabels); ok {
		labels.service = service
		labels.action = action
	}
}

// TrafficLogging は1リクエストにつき1行の構造化ログを出力する。
func TrafficLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		labels := &trafficLabels{}
		// 認証結果は後段のAuthenticateがこのホルダーに書き込む
		holder := &identityHolder{identity: domain.Anonymous()}
		ctx := context.WithValue(r.Context(), trafficLabelsKey, labels)
		ctx = context.WithValue(ctx, identityKey, holder)
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		elapsed := time.Since(start)

		identity := IdentityFrom(ctx)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed_ms", elapsed.Milliseconds(),
			"bytes", ww.BytesWritten(),
			"identity", string(identity.Class),
			"request_id", chimiddleware.GetReqID(ctx),
		}
		if identity.Class == domain.IdentityClient {
			attrs = append(attrs, "key_id", identity.KeyID, "app_name", identity.AppName)
		}
		if labels.service != "" {
			attrs = append(attrs, "service", labels.service, "action", labels.action)
		}

		slog.InfoContext(ctx, "request completed", attrs...)
	})
}
