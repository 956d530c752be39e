package domain

import "time"

// MigrationStatus はスキーママイグレーションの適用状態を表す。
type MigrationStatus string

const (
	// MigrationStatusPending は未適用を表す。
	MigrationStatusPending MigrationStatus = "pending"
	// MigrationStatusApplied は適用済みを表す。
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はスキーママイグレーションの1単位を表す。
// VersionとNameはファイル名（{version}_{name}.sql）から導出される。
type Migration struct {
	Version   string
	Name      string
	FilePath  string
	AppliedAt *time.Time // 未適用の場合はnil
	Status    MigrationStatus
}
