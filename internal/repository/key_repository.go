// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ai-gateway/internal/domain"
)

// ClientKeyModel はgorm用のモデル定義。
type ClientKeyModel struct {
	ID         string     `gorm:"type:char(36);primaryKey"`
	KeyDigest  []byte     `gorm:"type:blob;not null"`
	Salt       []byte     `gorm:"type:blob;not null"`
	AppName    string     `gorm:"type:varchar(255);not null"`
	AppContact string     `gorm:"type:varchar(255);not null"`
	AppNote    string     `gorm:"type:varchar(1000)"`
	Enabled    bool       `gorm:"not null;default:true;index:idx_enabled"`
	CreatedAt  time.Time  `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"type:datetime(6);not null;autoUpdateTime"`
	LastUsedAt *time.Time `gorm:"type:datetime(6)"`
}

// TableName はテーブル名を返す。
func (ClientKeyModel) TableName() string {
	return "client_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *ClientKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *ClientKeyModel) toDomain() *domain.ClientKey {
	return &domain.ClientKey{
		ID:         m.ID,
		KeyDigest:  m.KeyDigest,
		Salt:       m.Salt,
		AppName:    m.AppName,
		AppContact: m.AppContact,
		AppNote:    m.AppNote,
		Enabled:    m.Enabled,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		LastUsedAt: m.LastUsedAt,
	}
}

// KeyRepository はクライアントキーのデータアクセスを提供する。
type KeyRepository struct {
	db *gorm.DB
}

// NewKeyRepository は新しいKeyRepositoryを生成する。
func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// Create は新しいクライアントキーを保存する。
func (r *KeyRepository) Create(ctx context.Context, key *domain.ClientKey) error {
	model := &ClientKeyModel{
		ID:         key.ID,
		KeyDigest:  key.KeyDigest,
		Salt:       key.Salt,
		AppName:    key.AppName,
		AppContact: key.AppContact,
		AppNote:    key.AppNote,
		Enabled:    key.Enabled,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create client key",
			"operation", "create",
			"app_name", key.AppName,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたIDのクライアントキーを取得する。存在しない場合はnilを返す。
func (r *KeyRepository) FindByID(ctx context.Context, id string) (*domain.ClientKey, error) {
	var model ClientKeyModel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find client key",
			"operation", "find_by_id",
			"key_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAll は全クライアントキーを取得する。
func (r *KeyRepository) FindAll(ctx context.Context) ([]*domain.ClientKey, error) {
	var models []ClientKeyModel
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find all client keys",
			"operation", "find_all",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.ClientKey, len(models))
	for i, m := range models {
		keys[i] = m.toDomain()
	}
	return keys, nil
}

// FindAllEnabled は有効なクライアントキーのみを取得する。
func (r *KeyRepository) FindAllEnabled(ctx context.Context) ([]*domain.ClientKey, error) {
	var models []ClientKeyModel
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find enabled client keys",
			"operation", "find_all_enabled",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.ClientKey, len(models))
	for i, m := range models {
		keys[i] = m.toDomain()
	}
	return keys, nil
}

// Update は指定されたIDのクライアントキーにパッチを適用する。
// nilのフィールドは変更せず、updated_atは常に更新する。存在しない場合はnilを返す。
func (r *KeyRepository) Update(ctx context.Context, id string, patch domain.ClientKeyPatch) (*domain.ClientKey, error) {
	var model ClientKeyModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			return err
		}
		if patch.AppName != nil {
			model.AppName = *patch.AppName
		}
		if patch.AppContact != nil {
			model.AppContact = *patch.AppContact
		}
		if patch.AppNote != nil {
			model.AppNote = *patch.AppNote
		}
		if patch.Enabled != nil {
			model.Enabled = *patch.Enabled
		}
		// Enabled=falseへの更新もゼロ値スキップされないようSelectで列を指定する
		return tx.Model(&model).
			Select("AppName", "AppContact", "AppNote", "Enabled", "UpdatedAt").
			Updates(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to update client key",
			"operation", "update",
			"key_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// UpdateCredential は指定されたIDのダイジェストとソルトを差し替える。
// 旧平文キーは以後検証不能になる。存在しない場合はnilを返す。
func (r *KeyRepository) UpdateCredential(ctx context.Context, id string, digest, salt []byte) (*domain.ClientKey, error) {
	var model ClientKeyModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&model).Error; err != nil {
			return err
		}
		model.KeyDigest = digest
		model.Salt = salt
		return tx.Model(&model).
			Select("KeyDigest", "Salt", "UpdatedAt").
			Updates(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to update client key credential",
			"operation", "update_credential",
			"key_id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// Delete は指定されたIDのクライアントキーを物理削除する。
// レコードが存在したかどうかを返す。
func (r *KeyRepository) Delete(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&ClientKeyModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to delete client key",
			"operation", "delete",
			"key_id", id,
			"error", result.Error,
		)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TouchLastUsed は最終使用日時を現在時刻に更新する。
// updated_atは変更しない（認証の副作用はメタデータ更新とみなさない）。
func (r *KeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&ClientKeyModel{}).
		Where("id = ?", id).
		UpdateColumn("last_used_at", time.Now().UTC()).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to touch last_used_at",
			"operation", "touch_last_used",
			"key_id", id,
			"error", err,
		)
		return err
	}
	return nil
}
