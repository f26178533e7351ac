package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/park285/chessbench-go/internal/domain"
	"github.com/park285/chessbench-go/internal/rating"
)

const (
	redisPrefix      = "chessbench:"
	redisRatingsKey  = redisPrefix + "ratings"
	redisMatchesKey  = redisPrefix + "matches"
	redisApplyTries  = 3
	redisMatchesKeep = 1000
)

func blobKey(key string) string  { return redisPrefix + "artifact:" + strings.TrimSpace(key) }
func peerKey(peer string) string { return redisPrefix + "peer:" + strings.TrimSpace(peer) }
func matchKey(id string) string  { return redisPrefix + "match:" + strings.TrimSpace(id) }

// OpenRedis connects to a redis:// or rediss:// URL and pings the server.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("REDIS_URL required")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

// RedisBlobs stores artifacts as plain string keys.
type RedisBlobs struct {
	rdb *redis.Client
}

func NewRedisBlobs(rdb *redis.Client) *RedisBlobs { return &RedisBlobs{rdb: rdb} }

func (r *RedisBlobs) Put(ctx context.Context, key string, data []byte) error {
	return r.rdb.Set(ctx, blobKey(key), data, 0).Err()
}

func (r *RedisBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, blobKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return b, err
}

// RedisRatings keeps ratings in one hash and per-peer counters in a hash each.
// Apply writes every change in a single MULTI/EXEC guarded by WATCH.
type RedisRatings struct {
	rdb *redis.Client
}

func NewRedisRatings(rdb *redis.Client) *RedisRatings { return &RedisRatings{rdb: rdb} }

func (r *RedisRatings) Ratings(ctx context.Context, peers ...string) (map[string]float64, error) {
	out := make(map[string]float64, len(peers))
	if len(peers) == 0 {
		return out, nil
	}
	vals, err := r.rdb.HMGet(ctx, redisRatingsKey, peers...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("rating for %s: %w", peers[i], err)
		}
		out[peers[i]] = f
	}
	return out, nil
}

func (r *RedisRatings) Apply(ctx context.Context, changes []rating.Change) error {
	if len(changes) == 0 {
		return nil
	}
	keys := []string{redisRatingsKey}
	for _, c := range changes {
		keys = append(keys, peerKey(c.Peer))
	}

	var err error
	for attempt := 0; attempt < redisApplyTries; attempt++ {
		err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, c := range changes {
					pipe.HSet(ctx, redisRatingsKey, c.Peer, strconv.FormatFloat(c.Rating, 'f', -1, 64))
					w, l, d := outcome(c.Score)
					pk := peerKey(c.Peer)
					pipe.HIncrBy(ctx, pk, "games", 1)
					pipe.HIncrBy(ctx, pk, "wins", int64(w))
					pipe.HIncrBy(ctx, pk, "losses", int64(l))
					pipe.HIncrBy(ctx, pk, "draws", int64(d))
				}
				return nil
			})
			return err
		}, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("apply ratings: %w", err)
}

// Peer reads the stored row for peer.
func (r *RedisRatings) Peer(ctx context.Context, peer string) (domain.PeerRating, error) {
	ratings, err := r.Ratings(ctx, peer)
	if err != nil {
		return domain.PeerRating{}, err
	}
	v, ok := ratings[peer]
	if !ok {
		return domain.PeerRating{}, ErrNotFound
	}
	counts, err := r.rdb.HGetAll(ctx, peerKey(peer)).Result()
	if err != nil {
		return domain.PeerRating{}, err
	}
	atoi := func(k string) int { n, _ := strconv.Atoi(counts[k]); return n }
	return domain.PeerRating{
		Peer:        peer,
		Rating:      v,
		GamesPlayed: atoi("games"),
		Wins:        atoi("wins"),
		Losses:      atoi("losses"),
		Draws:       atoi("draws"),
	}, nil
}

// RecordMatch stores rec as JSON and indexes it in a capped list.
func (r *RedisRatings) RecordMatch(ctx context.Context, rec *domain.MatchRecord) error {
	if rec == nil {
		return errors.New("nil match record")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	created, err := r.rdb.SetNX(ctx, matchKey(rec.ID), raw, 0).Result()
	if err != nil || !created {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, redisMatchesKey, rec.ID)
	pipe.LTrim(ctx, redisMatchesKey, 0, redisMatchesKeep-1)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentMatches returns up to limit recorded matches, newest first.
func (r *RedisRatings) RecentMatches(ctx context.Context, limit int) ([]domain.MatchRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := r.rdb.LRange(ctx, redisMatchesKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.MatchRecord, 0, len(ids))
	for _, id := range ids {
		raw, err := r.rdb.Get(ctx, matchKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec domain.MatchRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode match %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
