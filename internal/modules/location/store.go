// README: Location store backed by a Redis GEO set of last-known fixes.
package location

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bridgetalk/internal/types"
)

const (
	lastGeoKey = "location:last"
	lastAtKey  = "location:last_at"
)

type Store struct {
	redis *redis.Client
}

// NewStore accepts a nil client; every method is then a no-op.
func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// SetGeo records the latest fix for a session.
func (s *Store) SetGeo(ctx context.Context, id types.ID, fix Fix) error {
	if s == nil || s.redis == nil {
		return nil
	}
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, lastGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: fix.Position.Lng,
		Latitude:  fix.Position.Lat,
	})
	pipe.HSet(ctx, lastAtKey, string(id), fix.RecordedAt.UnixMilli())
	_, err := pipe.Exec(ctx)
	return err
}

// LastGeo returns the last-known fix for a session, if any.
func (s *Store) LastGeo(ctx context.Context, id types.ID) (Fix, bool, error) {
	if s == nil || s.redis == nil {
		return Fix{}, false, nil
	}
	pos, err := s.redis.GeoPos(ctx, lastGeoKey, string(id)).Result()
	if err != nil {
		return Fix{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return Fix{}, false, nil
	}
	fix := Fix{Position: types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude}}

	at, err := s.redis.HGet(ctx, lastAtKey, string(id)).Result()
	if err != nil && err != redis.Nil {
		return Fix{}, false, err
	}
	if ms, perr := strconv.ParseInt(at, 10, 64); perr == nil {
		fix.RecordedAt = time.UnixMilli(ms)
	}
	return fix, true, nil
}

// Remove forgets a session's last fix.
func (s *Store) Remove(ctx context.Context, id types.ID) error {
	if s == nil || s.redis == nil {
		return nil
	}
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, lastGeoKey, string(id))
	pipe.HDel(ctx, lastAtKey, string(id))
	_, err := pipe.Exec(ctx)
	return err
}
