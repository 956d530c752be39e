package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"ai-gateway/internal/middleware"
	"ai-gateway/internal/usecase"
	"ai-gateway/pkg/httputil"
)

// NewRouter はゲートウェイの全ルートを構築する。
//
// 名前空間とポリシー:
//   - /health     認証不要
//   - /v1/keys    マスターキーのみ
//   - /v1/ollama  クライアントキーのみ（推論サービスへ透過転送）
//   - /v1/speech  クライアントキーのみ（音声サービスへ透過転送）
func NewRouter(keyHandler *KeyHandler, proxyHandler *ProxyHandler, auth *usecase.Authenticator) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.TrafficLogging)
	r.Use(middleware.Recover)
	r.Use(middleware.Authenticate(auth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/v1/keys", func(r chi.Router) {
		r.Use(middleware.RequireAdministrator)
		r.Post("/", keyHandler.CreateKey)
		r.Get("/", keyHandler.ListKeys)
		r.Get("/{id}", keyHandler.GetKey)
		r.Put("/{id}", keyHandler.UpdateKey)
		r.Post("/{id}/rotate", keyHandler.RotateKey)
		r.Delete("/{id}", keyHandler.DeleteKey)
	})

	r.Route("/v1/ollama", func(r chi.Router) {
		r.Use(middleware.RequireClient)
		r.Post("/api/generate", proxyHandler.Ollama("/api/generate", "generate"))
		r.Post("/api/chat", proxyHandler.Ollama("/api/chat", "chat"))
		r.Post("/api/embed", proxyHandler.Ollama("/api/embed", "embed"))
		r.Post("/api/embeddings", proxyHandler.Ollama("/api/embeddings", "embeddings"))
		r.Post("/api/pull", proxyHandler.Ollama("/api/pull", "pull"))
		r.Post("/api/push", proxyHandler.Ollama("/api/push", "push"))
		r.Post("/api/create", proxyHandler.Ollama("/api/create", "create"))
		r.Post("/api/copy", proxyHandler.Ollama("/api/copy", "copy"))
		r.Post("/api/show", proxyHandler.Ollama("/api/show", "show"))
		r.Delete("/api/delete", proxyHandler.Ollama("/api/delete", "delete"))
		r.Get("/api/tags", proxyHandler.Ollama("/api/tags", "tags"))
		r.Get("/api/ps", proxyHandler.Ollama("/api/ps", "ps"))
		r.Get("/api/version", proxyHandler.Ollama("/api/version", "version"))
	})

	r.Route("/v1/speech", func(r chi.Router) {
		r.Use(middleware.RequireClient)
		r.Post("/audio/transcriptions", proxyHandler.Speech("/v1/audio/transcriptions", "audio-transcriptions"))
		r.Post("/audio/translations", proxyHandler.Speech("/v1/audio/translations", "audio-translations"))
		r.Post("/audio/speech", proxyHandler.Speech("/v1/audio/speech", "audio-speech"))
		r.Post("/audio/speech/embedding", proxyHandler.Speech("/v1/audio/speech/embedding", "speech-embedding"))
		r.Get("/audio/models", proxyHandler.Speech("/v1/audio/models", "audio-models-list"))
		r.Get("/audio/voices", proxyHandler.Speech("/v1/audio/voices", "audio-voices-list"))
		r.Get("/models", proxyHandler.Speech("/v1/models", "models-list"))
		r.Get("/models/{modelID}", proxyHandler.SpeechModel("models-get"))
		r.Post("/models/{modelID}", proxyHandler.SpeechModel("models-download"))
		r.Delete("/models/{modelID}", proxyHandler.SpeechModel("models-delete"))
		r.Get("/registry", proxyHandler.ListRegistry)
	})

	return r
}
