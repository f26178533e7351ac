package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/park285/chessbench-go/internal/domain"
	"github.com/park285/chessbench-go/internal/rating"
)

// PeerRatingRow is the gorm model behind domain.PeerRating.
type PeerRatingRow struct {
	Peer        string  `gorm:"primaryKey;size:255"`
	Rating      float64 `gorm:"not null"`
	GamesPlayed int     `gorm:"not null;default:0"`
	Wins        int     `gorm:"not null;default:0"`
	Losses      int     `gorm:"not null;default:0"`
	Draws       int     `gorm:"not null;default:0"`
	UpdatedAt   time.Time
	CreatedAt   time.Time
}

func (PeerRatingRow) TableName() string { return "peer_ratings" }

// MatchRow is the gorm model behind domain.MatchRecord.
type MatchRow struct {
	MatchID           string `gorm:"primaryKey;size:64"`
	WhitePeer         string `gorm:"size:255;index"`
	BlackPeer         string `gorm:"size:255;index"`
	Result            string `gorm:"size:16"`
	ResultMethod      string `gorm:"size:64"`
	MovesUCI          string `gorm:"type:text"`
	MovesSAN          string `gorm:"type:text"`
	PGN               string `gorm:"type:text"`
	Plies             int
	IllegalAttempts   int
	WhiteRatingBefore float64
	WhiteRatingAfter  float64
	BlackRatingBefore float64
	BlackRatingAfter  float64
	StartedAt         time.Time
	EndedAt           time.Time `gorm:"index"`
	DurationMS        int64
}

func (MatchRow) TableName() string { return "bench_matches" }

// MySQL stores ratings and match rows through gorm.
type MySQL struct {
	db *gorm.DB
}

func OpenMySQL(dsn string) (*MySQL, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("MYSQL_DSN is required")
	}
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}

	gormLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	m := NewMySQL(db)
	if err := m.Migrate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMySQL wraps an open gorm handle.
func NewMySQL(db *gorm.DB) *MySQL { return &MySQL{db: db} }

func (m *MySQL) Migrate() error {
	if err := m.db.AutoMigrate(&PeerRatingRow{}, &MatchRow{}); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (m *MySQL) Ratings(ctx context.Context, peers ...string) (map[string]float64, error) {
	out := make(map[string]float64, len(peers))
	if len(peers) == 0 {
		return out, nil
	}
	var rows []PeerRatingRow
	if err := m.db.WithContext(ctx).Where("peer IN ?", peers).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	for _, r := range rows {
		out[r.Peer] = r.Rating
	}
	return out, nil
}

func (m *MySQL) Apply(ctx context.Context, changes []rating.Change) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, c := range changes {
			w, l, d := outcome(c.Score)
			row := PeerRatingRow{
				Peer: c.Peer, Rating: c.Rating, GamesPlayed: 1,
				Wins: w, Losses: l, Draws: d,
				UpdatedAt: now, CreatedAt: now,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "peer"}},
				DoUpdates: clause.Assignments(map[string]any{
					"rating":       c.Rating,
					"games_played": gorm.Expr("games_played + 1"),
					"wins":         gorm.Expr("wins + ?", w),
					"losses":       gorm.Expr("losses + ?", l),
					"draws":        gorm.Expr("draws + ?", d),
					"updated_at":   now,
				}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("upsert rating %s: %w", c.Peer, err)
			}
		}
		return nil
	})
}

func (m *MySQL) Peer(ctx context.Context, peer string) (domain.PeerRating, error) {
	var row PeerRatingRow
	err := m.db.WithContext(ctx).Where("peer = ?", peer).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PeerRating{}, ErrNotFound
	}
	if err != nil {
		return domain.PeerRating{}, err
	}
	return domain.PeerRating{
		Peer:        row.Peer,
		Rating:      row.Rating,
		GamesPlayed: row.GamesPlayed,
		Wins:        row.Wins,
		Losses:      row.Losses,
		Draws:       row.Draws,
		UpdatedAt:   row.UpdatedAt,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func (m *MySQL) RecordMatch(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return errors.New("nil match record")
	}
	row, err := matchRowFrom(rec)
	if err != nil {
		return err
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func matchRowFrom(rec *domain.MatchRecord) (MatchRow, error) {
	uci, err := json.Marshal(rec.MovesUCI)
	if err != nil {
		return MatchRow{}, err
	}
	san, err := json.Marshal(rec.MovesSAN)
	if err != nil {
		return MatchRow{}, err
	}
	return MatchRow{
		MatchID:           rec.ID,
		WhitePeer:         rec.WhitePeer,
		BlackPeer:         rec.BlackPeer,
		Result:            rec.Result,
		ResultMethod:      rec.ResultMethod,
		MovesUCI:          string(uci),
		MovesSAN:          string(san),
		PGN:               rec.PGN,
		Plies:             rec.Plies,
		IllegalAttempts:   rec.IllegalAttempts,
		WhiteRatingBefore: rec.WhiteRatingBefore,
		WhiteRatingAfter:  rec.WhiteRatingAfter,
		BlackRatingBefore: rec.BlackRatingBefore,
		BlackRatingAfter:  rec.BlackRatingAfter,
		StartedAt:         rec.StartedAt,
		EndedAt:           rec.EndedAt,
		DurationMS:        rec.Duration.Milliseconds(),
	}, nil
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}
