package domain

import "errors"

var (
	// ErrKeyNotFound は指定されたIDのクライアントキーが存在しない場合のエラー。
	ErrKeyNotFound = errors.New("client key not found")

	// ErrAppNameRequired はアプリケーション名が未指定の場合のエラー。
	ErrAppNameRequired = errors.New("app name is required")

	// ErrAppContactRequired は連絡先が未指定の場合のエラー。
	ErrAppContactRequired = errors.New("app contact is required")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
