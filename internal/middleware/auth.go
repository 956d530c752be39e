// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"ai-gateway/internal/domain"
	"ai-gateway/internal/usecase"
	"ai-gateway/pkg/httputil"
)

// HeaderAPIKey は資格情報を運ぶリクエストヘッダー名。
const HeaderAPIKey = "x-api-key"

type contextKey int

const (
	identityKey contextKey = iota
	trafficLabelsKey
)

// identityHolder は認証結果を運ぶホルダー。前段のTrafficLoggingが設置した
// ポインタに後段のAuthenticateが書き込むことで、ログにも認証結果が届く。
type identityHolder struct {
	identity domain.Identity
}

// Authenticate は資格情報ヘッダーを分類し、結果をコンテキストに格納する。
// ここでは拒否せず、分類のみを行う（拒否はRequire系ポリシーの責務）。
func Authenticate(auth *usecase.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
			if err != nil {
				httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
				return
			}
			ctx := r.Context()
			if holder, ok := ctx.Value(identityKey).(*identityHolder); ok {
				holder.identity = identity
			} else {
				ctx = context.WithValue(ctx, identityKey, &identityHolder{identity: identity})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom はコンテキストから認証結果を取り出す。未設定の場合はAnonymous。
func IdentityFrom(ctx context.Context) domain.Identity {
	if holder, ok := ctx.Value(identityKey).(*identityHolder); ok {
		return holder.identity
	}
	return domain.Anonymous()
}

// RequireAdministrator は管理者のみを通すポリシー。
func RequireAdministrator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFrom(r.Context())
		switch identity.Class {
		case domain.IdentityAdministrator:
			next.ServeHTTP(w, r)
		case domain.IdentityClient:
			httputil.Error(w, r, http.StatusForbidden, "FORBIDDEN",
				"client keys cannot access the key management namespace")
		default:
			httputil.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED",
				"missing or invalid API key")
		}
	})
}

// RequireClient はクライアントキーのみを通すポリシー。
// マスターキーでのアクセスは403として区別する。
func RequireClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFrom(r.Context())
		switch identity.Class {
		case domain.IdentityClient:
			next.ServeHTTP(w, r)
		case domain.IdentityAdministrator:
			httputil.Error(w, r, http.StatusForbidden, "FORBIDDEN",
				"the master key cannot access client namespaces")
		default:
			httputil.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED",
				"missing or invalid API key")
		}
	})
}
