// Package infra は外部サービスとの接続や暗号処理の実装を提供する。
package infra

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

const saltLength = 16

// SaltedHasher はAPIキーのソルト付きハッシュ生成と検証を提供する。
type SaltedHasher struct{}

// NewSaltedHasher は新しいSaltedHasherを生成する。
func NewSaltedHasher() *SaltedHasher {
	return &SaltedHasher{}
}

// Hash は平文キーからダイジェストとソルトを生成する。
// ダイジェストは SHA-256(salt || UTF-8(plaintext))。
// 入力の検証は行わず、空文字列もそのままハッシュする。
func (h *SaltedHasher) Hash(plaintext string) (digest, salt []byte, err error) {
	salt = make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generating salt: %w", err)
	}
	return computeDigest(plaintext, salt), salt, nil
}

// Verify は平文キーを保存済みダイジェスト・ソルトと照合する。
// タイミング攻撃を避けるため定数時間比較を使う。
func (h *SaltedHasher) Verify(plaintext string, digest, salt []byte) bool {
	computed := computeDigest(plaintext, salt)
	return subtle.ConstantTimeCompare(computed, digest) == 1
}

func computeDigest(plaintext string, salt []byte) []byte {
	combined := make([]byte, 0, len(salt)+len(plaintext))
	combined = append(combined, salt...)
	combined = append(combined, []byte(plaintext)...)
	sum := sha256.Sum256(combined)
	return sum[:]
}
