// Package handler はHTTPハンドラを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ai-gateway/internal/domain"
	"ai-gateway/internal/usecase"
	"ai-gateway/pkg/httputil"
)

// KeyHandler はクライアントキー管理のHTTPハンドラを提供する。
type KeyHandler struct {
	service *usecase.KeyService
}

// NewKeyHandler は新しいKeyHandlerを生成する。
func NewKeyHandler(service *usecase.KeyService) *KeyHandler {
	return &KeyHandler{service: service}
}

// CreateKeyRequest はキー作成リクエストの形式。
type CreateKeyRequest struct {
	AppName    string `json:"app_name"`
	AppContact string `json:"app_contact"`
	AppNote    string `json:"app_note,omitempty"`
}

// UpdateKeyRequest はキー更新リクエストの形式。nilのフィールドは変更しない。
type UpdateKeyRequest struct {
	AppName    *string `json:"app_name"`
	AppContact *string `json:"app_contact"`
	AppNote    *string `json:"app_note"`
	Enabled    *bool   `json:"enabled"`
}

// KeyMetadataResponse はキーメタデータのレスポンス形式。平文キーは含まない。
type KeyMetadataResponse struct {
	ID         string  `json:"id"`
	AppName    string  `json:"app_name"`
	AppContact string  `json:"app_contact"`
	AppNote    string  `json:"app_note,omitempty"`
	Enabled    bool    `json:"enabled"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

// IssuedKeyResponse は発行直後のレスポンス形式。api_keyはこの応答でのみ返る。
type IssuedKeyResponse struct {
	KeyMetadataResponse
	APIKey string `json:"api_key"`
}

// KeyListResponse はキー一覧のレスポンス形式。
type KeyListResponse struct {
	Keys []KeyMetadataResponse `json:"keys"`
}

func toMetadataResponse(m *domain.ClientKeyMetadata) KeyMetadataResponse {
	resp := KeyMetadataResponse{
		ID:         m.ID,
		AppName:    m.AppName,
		AppContact: m.AppContact,
		AppNote:    m.AppNote,
		Enabled:    m.Enabled,
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.LastUsedAt != nil {
		lastUsed := m.LastUsedAt.UTC().Format(time.RFC3339)
		resp.LastUsedAt = &lastUsed
	}
	return resp
}

// CreateKey は新しいクライアントキーを発行する。
func (h *KeyHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	issued, err := h.service.CreateKey(r.Context(), req.AppName, req.AppContact, req.AppNote)
	if err != nil {
		if errors.Is(err, domain.ErrAppNameRequired) || errors.Is(err, domain.ErrAppContactRequired) {
			httputil.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "app_name and app_contact are required")
			return
		}
		httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	slog.InfoContext(r.Context(), "client key created",
		"operation", "create_key",
		"key_id", issued.Metadata.ID,
		"app_name", issued.Metadata.AppName,
	)
	httputil.JSON(w, http.StatusCreated, IssuedKeyResponse{
		KeyMetadataResponse: toMetadataResponse(issued.Metadata),
		APIKey:              issued.PlaintextKey,
	})
}

// ListKeys はキー一覧を取得する。
func (h *KeyHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListKeys(r.Context())
	if err != nil {
		httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	response := KeyListResponse{
		Keys: make([]KeyMetadataResponse, len(keys)),
	}
	for i, k := range keys {
		response.Keys[i] = toMetadataResponse(k)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// GetKey は指定されたIDのキーメタデータを取得する。
func (h *KeyHandler) GetKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	metadata, err := h.service.GetKey(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, r, http.StatusNotFound, "NOT_FOUND", "client key not found")
			return
		}
		httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	httputil.JSON(w, http.StatusOK, toMetadataResponse(metadata))
}

// UpdateKey はキーのメタデータと有効フラグを更新する。
func (h *KeyHandler) UpdateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
		return
	}

	patch := domain.ClientKeyPatch{
		AppName:    req.AppName,
		AppContact: req.AppContact,
		AppNote:    req.AppNote,
		Enabled:    req.Enabled,
	}
	metadata, err := h.service.UpdateKey(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, r, http.StatusNotFound, "NOT_FOUND", "client key not found")
			return
		}
		httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	slog.InfoContext(r.Context(), "client key updated",
		"operation", "update_key",
		"key_id", id,
	)
	httputil.JSON(w, http.StatusOK, toMetadataResponse(metadata))
}

// RotateKey はキーの資格情報を差し替え、新しい平文キーを一度だけ返す。
func (h *KeyHandler) RotateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	issued, err := h.service.RotateKey(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, r, http.StatusNotFound, "NOT_FOUND", "client key not found")
			return
		}
		httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	slog.InfoContext(r.Context(), "client key rotated",
		"operation", "rotate_key",
		"key_id", id,
	)
	httputil.JSON(w, http.StatusOK, IssuedKeyResponse{
		KeyMetadataResponse: toMetadataResponse(issued.Metadata),
		APIKey:              issued.PlaintextKey,
	})
}

// DeleteKey はキーを物理削除する。
func (h *KeyHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteKey(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			httputil.Error(w, r, http.StatusNotFound, "NOT_FOUND", "client key not found")
			return
		}
		httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	slog.InfoContext(r.Context(), "client key deleted",
		"operation", "delete_key",
		"key_id", id,
	)
	w.WriteHeader(http.StatusNoContent)
}
