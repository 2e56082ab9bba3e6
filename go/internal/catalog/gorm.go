package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GameRow is the games table
type GameRow struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Title      string        `gorm:"size:255;not null"`
	OwnerID    string        `gorm:"size:128;not null;index"`
	Activities []ActivityRow `gorm:"foreignKey:GameID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (GameRow) TableName() string { return "games" }

// ActivityRow is the activities table
type ActivityRow struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey"`
	GameID       uuid.UUID    `gorm:"type:uuid;not null;index"`
	Position     int          `gorm:"not null"`
	Type         string       `gorm:"size:32;not null"`
	Title        string       `gorm:"size:255"`
	Instructions string       `gorm:"type:text"`
	DurationSec  int          `gorm:"not null;default:0"`
	TeamSize     int          `gorm:"not null;default:0"`
	GuessPoints  int          `gorm:"not null;default:0"`
	Content      []ContentRow `gorm:"foreignKey:ActivityID;constraint:OnDelete:CASCADE"`
}

func (ActivityRow) TableName() string { return "activities" }

// ContentRow is the content_items table
type ContentRow struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ActivityID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position    int             `gorm:"not null"`
	DurationSec int             `gorm:"not null;default:0"`
	Data        json.RawMessage `gorm:"type:jsonb"`
	AnswerKey   json.RawMessage `gorm:"type:jsonb"`
}

func (ContentRow) TableName() string { return "content_items" }

// ClassRow is the classes table
type ClassRow struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name    string    `gorm:"size:255;not null"`
	OwnerID string    `gorm:"size:128;not null;index"`
}

func (ClassRow) TableName() string { return "classes" }

// GormStore reads the catalog from Postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an open gorm handle
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// OpenGorm connects to Postgres through the gorm driver
func OpenGorm(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to catalog database: %w", err)
	}
	log.Info().Msg("catalog database connected")
	return NewGormStore(db), nil
}

// Close releases the underlying connection pool
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get catalog connection pool: %w", err)
	}
	return sqlDB.Close()
}

// AutoMigrate creates or updates the catalog tables
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&GameRow{}, &ActivityRow{}, &ContentRow{}, &ClassRow{}); err != nil {
		return fmt.Errorf("failed to migrate catalog: %w", err)
	}
	log.Info().Msg("catalog tables migrated")
	return nil
}

// GetGame loads a game with its activities and content in play order
func (s *GormStore) GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error) {
	var row GameRow
	err := s.db.WithContext(ctx).
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Activities.Content", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("game %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", id, err)
	}
	return gameFromRow(row), nil
}

// GetClass loads a class
func (s *GormStore) GetClass(ctx context.Context, id uuid.UUID) (*models.Class, error) {
	var row ClassRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("class %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load class %s: %w", id, err)
	}
	return &models.Class{ID: row.ID, Name: row.Name, OwnerID: row.OwnerID}, nil
}

// Import upserts every game and class of a loaded catalog
func (s *GormStore) Import(ctx context.Context, mem *Memory) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range mem.Classes() {
			row := ClassRow{ID: c.ID, Name: c.Name, OwnerID: c.OwnerID}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to save class %s: %w", c.ID, err)
			}
		}
		for _, g := range mem.Games() {
			// content is replaced wholesale so removed activities disappear
			if err := tx.Where("game_id = ?", g.ID).Delete(&ActivityRow{}).Error; err != nil {
				return fmt.Errorf("failed to clear activities of %s: %w", g.ID, err)
			}
			row := rowFromGame(g)
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("failed to save game %s: %w", g.ID, err)
			}
			log.Info().Str("game_id", g.ID.String()).Str("title", g.Title).Msg("imported game")
		}
		return nil
	})
}

func gameFromRow(row GameRow) *models.Game {
	g := &models.Game{ID: row.ID, Title: row.Title, OwnerID: row.OwnerID}
	for _, ar := range row.Activities {
		act := models.Activity{
			ID:           ar.ID,
			Type:         models.ActivityType(ar.Type),
			Title:        ar.Title,
			Instructions: ar.Instructions,
			DurationSec:  ar.DurationSec,
			TeamSize:     ar.TeamSize,
			GuessPoints:  ar.GuessPoints,
		}
		for _, cr := range ar.Content {
			act.Content = append(act.Content, models.ContentItem{
				ID:          cr.ID,
				Data:        cr.Data,
				AnswerKey:   cr.AnswerKey,
				DurationSec: cr.DurationSec,
			})
		}
		g.Activities = append(g.Activities, act)
	}
	return g
}

func rowFromGame(g *models.Game) GameRow {
	row := GameRow{ID: g.ID, Title: g.Title, OwnerID: g.OwnerID}
	for i, act := range g.Activities {
		ar := ActivityRow{
			ID:           act.ID,
			GameID:       g.ID,
			Position:     i,
			Type:         string(act.Type),
			Title:        act.Title,
			Instructions: act.Instructions,
			DurationSec:  act.DurationSec,
			TeamSize:     act.TeamSize,
			GuessPoints:  act.GuessPoints,
		}
		for j, item := range act.Content {
			ar.Content = append(ar.Content, ContentRow{
				ID:          item.ID,
				ActivityID:  act.ID,
				Position:    j,
				DurationSec: item.DurationSec,
				Data:        item.Data,
				AnswerKey:   item.AnswerKey,
			})
		}
		row.Activities = append(row.Activities, ar)
	}
	return row
}
