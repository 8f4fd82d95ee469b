package database

import (
	"fmt"

	"tripmind_go_backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	LogSQL   bool
}

func InitDB(opts Options) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		opts.Host,
		opts.User,
		opts.Password,
		opts.Name,
		opts.Port,
	)

	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if opts.LogSQL {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Route embeddings are stored as pgvector columns.
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info().Str("host", opts.Host).Str("db", opts.Name).Msg("Database ready")
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.ConversationMessage{},
		&models.ConversationThread{},
		&models.DraftTrip{},
		&models.Trip{},
		&models.TripHistory{},
		&models.UsageRecord{},
		&models.Transcription{},
		&models.RateLimitCounter{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}
