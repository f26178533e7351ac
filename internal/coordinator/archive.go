package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/park285/chessbench-go/internal/boardimg"
	"github.com/park285/chessbench-go/internal/match"
)

// ArchiveKey builds "<id>_<white>_vs_<black>" with endpoints reduced to
// key-safe characters.
func ArchiveKey(matchID, white, black string) string {
	return matchID + "_" + peerSlug(white) + "_vs_" + peerSlug(black)
}

func peerSlug(endpoint string) string {
	s := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		s = u.Host + u.Path
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "peer"
	}
	return out
}

// archive copies the current artifacts and renders the final board.
func (c *Coordinator) archive(ctx context.Context, matchID string, req MatchRequest, s *match.Session, records []match.MoveRecord) (string, error) {
	key := ArchiveKey(matchID, req.White, req.Black)
	dir := ArchivePrefix + key + "/"

	var errs []error
	for _, name := range Artifacts {
		data, err := c.opts.Blobs.Get(ctx, name)
		if err == nil {
			err = c.opts.Blobs.Put(ctx, dir+name, data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	opts := boardimg.Options{Title: req.White + " vs " + req.Black + "  " + s.Result()}
	if n := len(records); n > 0 {
		opts.LastMove = records[n-1].Move
	}
	png, err := boardimg.RenderFEN(ctx, s.FEN(), opts)
	if err == nil {
		err = c.opts.Blobs.Put(ctx, dir+BoardImage, png)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", BoardImage, err))
	}
	return key, errors.Join(errs...)
}
