// Package db wraps the gorm connection pool used by the postgres storage
// backend: a thin Connect-and-migrate helper owned by the platform layer.
package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	intakepostgres "formbridge/contexts/intake-core/adapters/postgres"
)

type Postgres struct {
	DB *gorm.DB
}

func Connect(dsn string) (*Postgres, error) {
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("db: open postgres connection: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("db: unwrap sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("db: ping postgres: %w", err)
	}
	return &Postgres{DB: gormDB}, nil
}

// Migrate runs the intake core's AutoMigrate across its four tables.
// Called once at process start for the postgres storage backend.
func (p *Postgres) Migrate() error {
	return intakepostgres.AutoMigrate(p.DB)
}

func (p *Postgres) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
