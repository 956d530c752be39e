// Package main はゲートウェイ管理CLIのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL    string
	masterKey string
	output    string
	timeout   time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "gwctl",
		Short: "AI Gateway admin CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("GWCTL_API_URL")
			}
			if masterKey == "" {
				masterKey = os.Getenv("GWCTL_MASTER_KEY")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set GWCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&masterKey, "master-key", "", "Master key (or set GWCTL_MASTER_KEY)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(updateCmd())
	rootCmd.AddCommand(rotateCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gwctl version %s\n", version)
		},
	}
}

// doRequest はマスターキーを付与してAPIを呼び出す。
func doRequest(method, url string, body any) (int, []byte, error) {
	if apiURL == "" {
		return 0, nil, fmt.Errorf("--api-url is required (or set GWCTL_API_URL)")
	}
	if masterKey == "" {
		return 0, nil, fmt.Errorf("--master-key is required (or set GWCTL_MASTER_KEY)")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("x-api-key", masterKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// keyMetadata はAPIレスポンスのキーメタデータ。
type keyMetadata struct {
	ID         string  `json:"id"`
	AppName    string  `json:"app_name"`
	AppContact string  `json:"app_contact"`
	AppNote    string  `json:"app_note"`
	Enabled    bool    `json:"enabled"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	LastUsedAt *string `json:"last_used_at"`
}

// createCmd はクライアントキーの発行コマンド。
func createCmd() *cobra.Command {
	var appName, appContact, appNote string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new client key",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{
				"app_name":    appName,
				"app_contact": appContact,
				"app_note":    appNote,
			}
			status, body, err := doRequest(http.MethodPost, apiURL+"/v1/keys", payload)
			if err != nil {
				return err
			}
			if status != http.StatusCreated {
				return handleErrorResponse(status, body)
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				keyMetadata
				APIKey string `json:"api_key"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("Created key %s for %q\n", result.ID, result.AppName)
			fmt.Printf("API key (shown only once): %s\n", result.APIKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&appName, "app-name", "", "Application name (required)")
	cmd.Flags().StringVar(&appContact, "contact", "", "Application contact (required)")
	cmd.Flags().StringVar(&appNote, "note", "", "Free-form note")
	cmd.MarkFlagRequired("app-name")
	cmd.MarkFlagRequired("contact")
	return cmd
}

// getCmd はキーメタデータの取得コマンド。
func getCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get metadata for a client key",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest(http.MethodGet, apiURL+"/v1/keys/"+id, nil)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return handleErrorResponse(status, body)
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result keyMetadata
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			printKeyTable([]keyMetadata{result})
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Key ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

// listCmd はキー一覧の取得コマンド。
func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all client keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest(http.MethodGet, apiURL+"/v1/keys", nil)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return handleErrorResponse(status, body)
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Keys []keyMetadata `json:"keys"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			printKeyTable(result.Keys)
			return nil
		},
	}
}

// updateCmd はキーメタデータ・有効フラグの更新コマンド。
func updateCmd() *cobra.Command {
	var id, appName, appContact, appNote string
	var enable, disable bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update metadata or enabled state of a client key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}

			// 指定されたフラグのみをリクエストに含める
			payload := map[string]any{}
			if cmd.Flags().Changed("app-name") {
				payload["app_name"] = appName
			}
			if cmd.Flags().Changed("contact") {
				payload["app_contact"] = appContact
			}
			if cmd.Flags().Changed("note") {
				payload["app_note"] = appNote
			}
			if enable {
				payload["enabled"] = true
			}
			if disable {
				payload["enabled"] = false
			}
			if len(payload) == 0 {
				return fmt.Errorf("nothing to update")
			}

			status, body, err := doRequest(http.MethodPut, apiURL+"/v1/keys/"+id, payload)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return handleErrorResponse(status, body)
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			fmt.Printf("Updated key %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Key ID (required)")
	cmd.Flags().StringVar(&appName, "app-name", "", "New application name")
	cmd.Flags().StringVar(&appContact, "contact", "", "New application contact")
	cmd.Flags().StringVar(&appNote, "note", "", "New note")
	cmd.Flags().BoolVar(&enable, "enable", false, "Enable the key")
	cmd.Flags().BoolVar(&disable, "disable", false, "Disable the key")
	cmd.MarkFlagRequired("id")
	return cmd
}

// rotateCmd はキーの資格情報を差し替えるコマンド。
func rotateCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the credential of a client key",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest(http.MethodPost, apiURL+"/v1/keys/"+id+"/rotate", nil)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return handleErrorResponse(status, body)
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				keyMetadata
				APIKey string `json:"api_key"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("Rotated key %s\n", result.ID)
			fmt.Printf("New API key (shown only once): %s\n", result.APIKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Key ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

// deleteCmd はキーの削除コマンド。
func deleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a client key",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doRequest(http.MethodDelete, apiURL+"/v1/keys/"+id, nil)
			if err != nil {
				return err
			}
			if status != http.StatusNoContent {
				return handleErrorResponse(status, body)
			}

			if output == "json" {
				fmt.Println("{}")
			} else {
				fmt.Printf("Deleted key %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Key ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func printKeyTable(keys []keyMetadata) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tAPP_NAME\tENABLED\tCREATED_AT\tLAST_USED_AT")
	for _, k := range keys {
		lastUsed := "-"
		if k.LastUsedAt != nil {
			lastUsed = *k.LastUsedAt
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", k.ID, k.AppName, k.Enabled, k.CreatedAt, lastUsed)
	}
	w.Flush()
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
