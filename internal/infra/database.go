package infra

import (
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"ai-gateway/config"
)

// NewDB はgormによるデータベース接続を初期化する。
// DSNに"@tcp("を含む場合はMySQL、それ以外はSQLiteファイルとして開く。
func NewDB(dsn string, cfg *config.Config) (*gorm.DB, error) {
	dialector := selectDialector(dsn)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if cfg != nil && cfg.OtelEnabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, err
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func selectDialector(dsn string) gorm.Dialector {
	if strings.Contains(dsn, "@tcp(") {
		return mysql.Open(dsn)
	}
	return sqlite.Open(dsn)
}
