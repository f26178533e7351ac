package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chessbench-go/internal/config"
	"github.com/park285/chessbench-go/internal/rating"
)

// Stores bundles the backends selected by configuration.
type Stores struct {
	Blobs   Blobs
	Ratings rating.Store
	// Recorder is nil when the rating backend keeps no match rows.
	Recorder Recorder

	closers []io.Closer
}

// Open connects the artifact and rating backends named in cfg.
func Open(ctx context.Context, cfg *config.AppConfig) (*Stores, error) {
	s := &Stores{}
	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		c, err := OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rdb = c
		s.closers = append(s.closers, c)
		return c, nil
	}

	switch cfg.ArtifactBackend {
	case config.ArtifactFile:
		fb, err := NewFileBlobs(cfg.ArtifactDir)
		if err != nil {
			return nil, err
		}
		s.Blobs = fb
	case config.ArtifactRedis:
		c, err := redisClient()
		if err != nil {
			return nil, err
		}
		s.Blobs = NewRedisBlobs(c)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.ArtifactBackend)
	}

	switch cfg.RatingBackend {
	case config.RatingArtifact:
		s.Ratings = NewBlobRatings(s.Blobs)
	case config.RatingMemory:
		mem := NewMemory()
		s.Ratings, s.Recorder = mem, mem
	case config.RatingRedis:
		c, err := redisClient()
		if err != nil {
			s.Close()
			return nil, err
		}
		rr := NewRedisRatings(c)
		s.Ratings, s.Recorder = rr, rr
	case config.RatingPostgres:
		pg, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, pg)
		s.Ratings, s.Recorder = pg, pg
	case config.RatingMySQL:
		my, err := OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, my)
		s.Ratings, s.Recorder = my, my
	default:
		s.Close()
		return nil, fmt.Errorf("unknown rating backend %q", cfg.RatingBackend)
	}
	return s, nil
}

func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
