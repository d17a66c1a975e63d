package actionlog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/tablesync/internal/engine"
)

type actionRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	GameID     string `gorm:"index:idx_action_game_at;size:64;not null"`
	Type       string `gorm:"size:16;not null"`
	PlayerID   string `gorm:"size:64;not null"`
	PlayerName string `gorm:"size:128"`
	Amount     *int64
	At         time.Time `gorm:"index:idx_action_game_at;not null"`
}

func (actionRow) TableName() string { return "player_actions" }

// Postgres stores records in the player_actions table.
type Postgres struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the table.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open action log: %w", err)
	}
	if err := db.AutoMigrate(&actionRow{}); err != nil {
		return nil, fmt.Errorf("migrate action log: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Append(ctx context.Context, rec engine.ActionRecord) error {
	row := actionRow{
		ID:         rec.ID,
		GameID:     rec.GameID,
		Type:       string(rec.Type),
		PlayerID:   rec.PlayerID,
		PlayerName: rec.PlayerName,
		Amount:     rec.Amount,
		At:         rec.At,
	}
	return p.db.WithContext(ctx).Create(&row).Error
}

func (p *Postgres) Recent(ctx context.Context, gameID string, n int) ([]engine.ActionRecord, error) {
	var rows []actionRow
	q := p.db.WithContext(ctx).Where("game_id = ?", gameID).Order("at DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.ActionRecord, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = engine.ActionRecord{
			ID:         r.ID,
			GameID:     r.GameID,
			Type:       engine.ActionType(r.Type),
			PlayerID:   r.PlayerID,
			PlayerName: r.PlayerName,
			Amount:     r.Amount,
			At:         r.At,
		}
	}
	return out, nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
