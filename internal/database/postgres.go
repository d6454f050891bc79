// internal/database/postgres.go
package database

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"voice-chat-service/internal/config"
	"voice-chat-service/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db    *gorm.DB
	dbMux sync.RWMutex
)

// InitPostgres opens the connection and runs migrations. A failure is
// returned instead of being fatal so the pod can come up and retry.
func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := cfg.Database.URL
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	logLevel := logger.Silent
	if cfg.Server.Env == "dev" || cfg.Server.Env == "development" {
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	var conn *gorm.DB

	done := make(chan bool, 1)
	go func() {
		conn, err = gorm.Open(postgres.Open(dsn), gormConfig)
		done <- true
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("database connection timeout")
	case <-done:
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := AutoMigrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbMux.Lock()
	db = conn
	dbMux.Unlock()

	return conn, nil
}

// InitPostgresAsync keeps retrying the connection in the background without
// blocking startup.
func InitPostgresAsync(cfg *config.Config, retryInterval time.Duration) {
	go func() {
		for {
			if IsDBReady() {
				return
			}

			_, err := InitPostgres(cfg)
			if err != nil {
				log.Printf("DB connection failed, retrying in %v: %v", retryInterval, err)
				time.Sleep(retryInterval)
				continue
			}
			return
		}
	}()
}

// AutoMigrate creates the schema for every durable record this service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Conversation{},
		&model.ConversationParticipant{},
		&model.Message{},
		&model.MessageStatus{},
		&model.VoiceRoom{},
		&model.VoiceParticipant{},
		&model.VoiceTransmission{},
		&model.VoiceTransmissionPlayback{},
	)
}

// GetDB returns the database instance (nil if not connected).
func GetDB() *gorm.DB {
	dbMux.RLock()
	defer dbMux.RUnlock()
	return db
}

// IsDBReady returns whether DB is connected.
func IsDBReady() bool {
	dbMux.RLock()
	defer dbMux.RUnlock()
	return db != nil
}
