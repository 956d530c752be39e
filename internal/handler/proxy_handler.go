package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"ai-gateway/config"
	"ai-gateway/internal/middleware"
	"ai-gateway/internal/proxy"
	"ai-gateway/pkg/httputil"
)

// ProxyHandler は推論・音声サービスへの転送ハンドラを提供する。
type ProxyHandler struct {
	forwarder  *proxy.Forwarder
	registry   *proxy.RegistryClient
	ollamaBase string
	speechBase string
}

// NewProxyHandler は新しいProxyHandlerを生成する。
func NewProxyHandler(forwarder *proxy.Forwarder, registry *proxy.RegistryClient, cfg *config.Config) *ProxyHandler {
	return &ProxyHandler{
		forwarder:  forwarder,
		registry:   registry,
		ollamaBase: cfg.OllamaBaseURL,
		speechBase: cfg.SpeechBaseURL,
	}
}

// Ollama は推論サービスの固定パスへの転送ハンドラを返す。
func (h *ProxyHandler) Ollama(upstreamPath, action string) http.HandlerFunc {
	target := proxy.Target{
		BaseURL:      h.ollamaBase,
		UpstreamPath: upstreamPath,
		Service:      "ollama",
		Action:       action,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.SetRouteLabels(r.Context(), target.Service, target.Action)
		h.forwarder.Forward(w, r, target)
	}
}

// Speech は音声サービスの固定パスへの転送ハンドラを返す。
func (h *ProxyHandler) Speech(upstreamPath, action string) http.HandlerFunc {
	target := proxy.Target{
		BaseURL:      h.speechBase,
		UpstreamPath: upstreamPath,
		Service:      "speech",
		Action:       action,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.SetRouteLabels(r.Context(), target.Service, target.Action)
		h.forwarder.Forward(w, r, target)
	}
}

// SpeechModel はモデルIDをパスに含む音声サービスルートの転送ハンドラを返す。
func (h *ProxyHandler) SpeechModel(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modelID := chi.URLParam(r, "modelID")
		target := proxy.Target{
			BaseURL:      h.speechBase,
			UpstreamPath: fmt.Sprintf("/v1/models/%s", url.PathEscape(modelID)),
			Service:      "speech",
			Action:       action,
		}
		middleware.SetRouteLabels(r.Context(), target.Service, target.Action)
		h.forwarder.Forward(w, r, target)
	}
}

// RegistryResponse はモデルレジストリ一覧のレスポンス形式。
type RegistryResponse struct {
	Data []proxy.RegistryModel `json:"data"`
}

// ListRegistry は音声サービスのモデルレジストリを射影して返す。
// 透過転送ではなく応答を加工する唯一の読み取りパス。
func (h *ProxyHandler) ListRegistry(w http.ResponseWriter, r *http.Request) {
	middleware.SetRouteLabels(r.Context(), "speech", "registry-list")

	models, err := h.registry.ListModels(r.Context())
	if err != nil {
		var upstreamErr *proxy.UpstreamError
		if errors.As(err, &upstreamErr) {
			details := map[string]any{
				"upstreamStatus": upstreamErr.StatusCode,
				"upstreamBody":   upstreamErr.Body,
			}
			switch upstreamErr.StatusCode {
			case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				httputil.ErrorWithDetails(w, r, http.StatusServiceUnavailable,
					"UPSTREAM_UNAVAILABLE", "upstream service unavailable", details)
			default:
				httputil.ErrorWithDetails(w, r, http.StatusBadGateway,
					"BAD_GATEWAY", "upstream returned an error response", details)
			}
			return
		}
		httputil.Error(w, r, http.StatusBadGateway, "BAD_GATEWAY", "failed to fetch model registry")
		return
	}

	httputil.JSON(w, http.StatusOK, RegistryResponse{Data: models})
}
