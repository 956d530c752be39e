// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import "time"

// ClientKey はクライアントAPIキーのエンティティを表す。
// 平文キーは保持せず、ソルト付きダイジェストのみを持つ。
type ClientKey struct {
	ID         string
	KeyDigest  []byte
	Salt       []byte
	AppName    string
	AppContact string
	AppNote    string
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt *time.Time
}

// ClientKeyMetadata はクライアントキーのメタデータを表す（ダイジェスト・ソルトを含まない）。
type ClientKeyMetadata struct {
	ID         string
	AppName    string
	AppContact string
	AppNote    string
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastUsedAt *time.Time
}

// Metadata はエンティティからメタデータ射影を生成する。
func (k *ClientKey) Metadata() *ClientKeyMetadata {
	return &ClientKeyMetadata{
		ID:         k.ID,
		AppName:    k.AppName,
		AppContact: k.AppContact,
		AppNote:    k.AppNote,
		Enabled:    k.Enabled,
		CreatedAt:  k.CreatedAt,
		UpdatedAt:  k.UpdatedAt,
		LastUsedAt: k.LastUsedAt,
	}
}

// ClientKeyPatch はクライアントキーの部分更新を表す。nilのフィールドは変更しない。
type ClientKeyPatch struct {
	AppName    *string
	AppContact *string
	AppNote    *string
	Enabled    *bool
}

// IssuedKey は発行直後のクライアントキーを表す。
// PlaintextKeyはこの構造体でのみ運ばれ、永続化されない。
type IssuedKey struct {
	Metadata     *ClientKeyMetadata
	PlaintextKey string
}
