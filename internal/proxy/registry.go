package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// UpstreamError はアップストリームが非2xxを返した場合のエラー。
type UpstreamError struct {
	StatusCode int
	Body       string
}

// Error はエラーメッセージを返す。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
}

// RegistryModel は音声サービスのモデルレジストリの1エントリ。
// アップストリームのペイロードから公開用のフィールドのみを射影する。
type RegistryModel struct {
	ID       string   `json:"id"`
	Task     string   `json:"task,omitempty"`
	OwnedBy  string   `json:"owned_by,omitempty"`
	Language []string `json:"language,omitempty"`
}

// RegistryClient は音声サービスのモデルレジストリを読み取る専用クライアント。
// 透過転送とは異なり、応答をデコードしてフィールドを絞り込む唯一の読み取りパス。
type RegistryClient struct {
	client  *http.Client
	baseURL string
}

// NewRegistryClient は新しいRegistryClientを生成する。
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ListModels はレジストリのモデル一覧を取得し、射影して返す。
func (c *RegistryClient) ListModels(ctx context.Context) ([]RegistryModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/registry", nil)
	if err != nil {
		return nil, fmt.Errorf("building registry request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if readErr != nil {
			bodyBytes = []byte("<unable to read upstream body>")
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var payload struct {
		Data []RegistryModel `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding registry response: %w", err)
	}

	if payload.Data == nil {
		payload.Data = []RegistryModel{}
	}
	return payload.Data, nil
}
