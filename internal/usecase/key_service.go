// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ai-gateway/internal/domain"
)

// KeyRepository はクライアントキーのデータアクセスのインターフェース。
type KeyRepository interface {
	Create(ctx context.Context, key *domain.ClientKey) error
	FindByID(ctx context.Context, id string) (*domain.ClientKey, error)
	FindAll(ctx context.Context) ([]*domain.ClientKey, error)
	FindAllEnabled(ctx context.Context) ([]*domain.ClientKey, error)
	Update(ctx context.Context, id string, patch domain.ClientKeyPatch) (*domain.ClientKey, error)
	UpdateCredential(ctx context.Context, id string, digest, salt []byte) (*domain.ClientKey, error)
	Delete(ctx context.Context, id string) (bool, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// KeyHasher はソルト付きハッシュ生成と検証のインターフェース。
type KeyHasher interface {
	Hash(plaintext string) (digest, salt []byte, err error)
	Verify(plaintext string, digest, salt []byte) bool
}

// KeyService はクライアントキーのライフサイクルに関するビジネスロジックを提供する。
type KeyService struct {
	repo   KeyRepository
	hasher KeyHasher
}

// NewKeyService は新しいKeyServiceを生成する。
func NewKeyService(repo KeyRepository, hasher KeyHasher) *KeyService {
	return &KeyService{
		repo:   repo,
		hasher: hasher,
	}
}

// generatePlaintextKey は新しい平文APIキーを生成する。
func generatePlaintextKey() string {
	return uuid.New().String()
}

// CreateKey は新しいクライアントキーを発行する。
// 平文キーは戻り値でのみ返され、以後取得できない。
func (s *KeyService) CreateKey(ctx context.Context, appName, appContact, appNote string) (*domain.IssuedKey, error) {
	if strings.TrimSpace(appName) == "" {
		return nil, domain.ErrAppNameRequired
	}
	if strings.TrimSpace(appContact) == "" {
		return nil, domain.ErrAppContactRequired
	}

	plaintext := generatePlaintextKey()
	digest, salt, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hashing key: %w", err)
	}

	key := &domain.ClientKey{
		KeyDigest:  digest,
		Salt:       salt,
		AppName:    appName,
		AppContact: appContact,
		AppNote:    appNote,
		Enabled:    true,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("creating key: %w", err)
	}

	return &domain.IssuedKey{
		Metadata:     key.Metadata(),
		PlaintextKey: plaintext,
	}, nil
}

// GetKey は指定されたIDのキーメタデータを取得する。
func (s *KeyService) GetKey(ctx context.Context, id string) (*domain.ClientKeyMetadata, error) {
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}
	return key.Metadata(), nil
}

// ListKeys は全キーのメタデータ一覧を取得する。ダイジェスト・ソルトは含まれない。
func (s *KeyService) ListKeys(ctx context.Context) ([]*domain.ClientKeyMetadata, error) {
	keys, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding keys: %w", err)
	}

	metadata := make([]*domain.ClientKeyMetadata, len(keys))
	for i, k := range keys {
		metadata[i] = k.Metadata()
	}
	return metadata, nil
}

// UpdateKey は指定されたIDのキーにメタデータのパッチを適用する。
func (s *KeyService) UpdateKey(ctx context.Context, id string, patch domain.ClientKeyPatch) (*domain.ClientKeyMetadata, error) {
	key, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("updating key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}
	return key.Metadata(), nil
}

// RotateKey は指定されたIDのキーの資格情報を差し替え、新しい平文キーを返す。
// 旧平文キーは永続的に検証不能になる。
func (s *KeyService) RotateKey(ctx context.Context, id string) (*domain.IssuedKey, error) {
	plaintext := generatePlaintextKey()
	digest, salt, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hashing key: %w", err)
	}

	key, err := s.repo.UpdateCredential(ctx, id, digest, salt)
	if err != nil {
		return nil, fmt.Errorf("rotating key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}

	return &domain.IssuedKey{
		Metadata:     key.Metadata(),
		PlaintextKey: plaintext,
	}, nil
}

// DeleteKey は指定されたIDのキーを物理削除する。
func (s *KeyService) DeleteKey(ctx context.Context, id string) error {
	existed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	if !existed {
		return domain.ErrKeyNotFound
	}
	return nil
}
