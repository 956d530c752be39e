package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"ai-gateway/internal/domain"
)

// Authenticator は提示された資格情報をリクエスト単位で分類する。
type Authenticator struct {
	masterKey string
	repo      KeyRepository
	hasher    KeyHasher
}

// NewAuthenticator は新しいAuthenticatorを生成する。
// masterKeyはプロセス起動時に一度だけ注入され、以後不変として扱う。
func NewAuthenticator(masterKey string, repo KeyRepository, hasher KeyHasher) *Authenticator {
	return &Authenticator{
		masterKey: masterKey,
		repo:      repo,
		hasher:    hasher,
	}
}

// Authenticate は提示された平文キーを分類する。
// 空文字列は「資格情報なし」としてAnonymousを返す。マスターキー照合が
// 最初に行われるため、管理者パスは有効キー数に依存しない。
func (a *Authenticator) Authenticate(ctx context.Context, presented string) (domain.Identity, error) {
	if presented == "" {
		return domain.Anonymous(), nil
	}

	if a.masterKey != "" &&
		subtle.ConstantTimeCompare([]byte(presented), []byte(a.masterKey)) == 1 {
		return domain.Administrator(), nil
	}

	keys, err := a.repo.FindAllEnabled(ctx)
	if err != nil {
		return domain.Anonymous(), fmt.Errorf("listing enabled keys: %w", err)
	}

	for _, key := range keys {
		if a.hasher.Verify(presented, key.KeyDigest, key.Salt) {
			a.touchLastUsed(ctx, key.ID)
			return domain.Client(key.ID, key.AppName), nil
		}
	}

	return domain.Anonymous(), nil
}

// touchLastUsed は最終使用日時を非同期に更新する。
// 失敗しても認証結果には影響させない（ログのみ）。
func (a *Authenticator) touchLastUsed(ctx context.Context, keyID string) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := a.repo.TouchLastUsed(detached, keyID); err != nil {
			slog.WarnContext(detached, "failed to update last_used_at",
				"operation", "touch_last_used",
				"key_id", keyID,
				"error", err,
			)
		}
	}()
}
