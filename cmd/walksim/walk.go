package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"bridgetalk/internal/modules/location"
	"bridgetalk/internal/types"
)

// walk reports fixes every HopMeters from the origin through each step end
// and returns how many fixes were sent.
func (r *Runner) walk(ctx context.Context) (int, error) {
	from := types.Point{Lat: r.cfg.OriginLat, Lng: r.cfg.OriginLng}
	hop := r.cfg.HopMeters
	if hop <= 0 {
		hop = 10
	}
	sent := 0
	for i, st := range r.route.Steps {
		to := st.EndLocation
		n := int(math.Ceil(location.HaversineMeters(from, to) / hop))
		if n < 1 {
			n = 1
		}
		for k := 1; k <= n; k++ {
			p := location.Interpolate(from, to, float64(k)/float64(n))
			if err := r.sendFix(ctx, p.Lat, p.Lng); err != nil {
				return sent, fmt.Errorf("step %d fix %d: %w", i, k, err)
			}
			sent++
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(r.cfg.Interval):
			}
		}
		from = to
	}
	return sent, nil
}

func (r *Runner) sendFix(ctx context.Context, lat, lng float64) error {
	status, body, err := r.do(ctx, http.MethodPut, r.sessionPath("/location"), map[string]any{
		"lat":       lat,
		"lng":       lng,
		"accuracy":  5.0,
		"timestamp": time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("status=%d body=%s", status, body)
	}
	return nil
}
