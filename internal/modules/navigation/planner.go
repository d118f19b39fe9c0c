// README: Planner geocodes a destination, picks a travel mode and fetches the route.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bridgetalk/internal/modules/location"
	"bridgetalk/internal/types"
)

const DefaultTransitMeters = 1000.0

const textTapToStart = "Tap screen or say start to begin navigation."

// Geocoder resolves a free-text destination. near biases the search and may be nil.
type Geocoder interface {
	Geocode(ctx context.Context, query string, near *types.Point) (Place, error)
}

// RouteProvider computes a route between an origin and a destination.
type RouteProvider interface {
	Directions(ctx context.Context, req RouteRequest) (Route, error)
}

// Plan is a successful route lookup.
type Plan struct {
	Place          Place
	Route          Route
	Mode           TravelMode
	StraightMeters float64
	Summary        string
}

type Planner struct {
	geocoder      Geocoder
	routes        RouteProvider
	transitMeters float64
}

// NewPlanner accepts nil providers; Plan then fails with MapsNotReady.
func NewPlanner(geocoder Geocoder, routes RouteProvider, transitMeters float64) *Planner {
	if transitMeters <= 0 {
		transitMeters = DefaultTransitMeters
	}
	return &Planner{geocoder: geocoder, routes: routes, transitMeters: transitMeters}
}

// Plan geocodes destination and requests a route from origin. Errors are *Failure.
func (p *Planner) Plan(ctx context.Context, origin types.Point, destination string) (Plan, error) {
	if p == nil || p.geocoder == nil || p.routes == nil {
		return Plan{}, &Failure{Code: CodeMapsNotReady, Spoken: msgMapsNotReady, Detail: "Maps not ready"}
	}

	place, err := p.geocoder.Geocode(ctx, destination, &origin)
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = &ProviderError{Op: OpGeocode, Status: StatusOf(err), Err: err}
		}
		return Plan{}, classifyRouteError(err, TravelWalking)
	}

	straight := location.HaversineMeters(origin, place.Location)
	mode := p.ModeFor(straight)
	routeRequests.WithLabelValues(string(mode)).Inc()

	target := place.Address
	if target == "" {
		target = place.Location.String()
	}
	route, err := p.routes.Directions(ctx, RouteRequest{
		Origin:       origin,
		Destination:  target,
		Mode:         mode,
		Alternatives: mode == TravelTransit,
	})
	if err != nil {
		return Plan{}, classifyRouteError(err, mode)
	}
	if len(route.Steps) == 0 {
		return Plan{}, classifyRouteError(&ProviderError{Op: OpDirections, Status: StatusZeroResults}, mode)
	}
	if route.TravelMode == "" {
		route.TravelMode = mode
	}

	return Plan{
		Place:          place,
		Route:          route,
		Mode:           mode,
		StraightMeters: straight,
		Summary:        p.Summary(route, straight),
	}, nil
}

// ModeFor picks transit for trips longer than the transit threshold.
func (p *Planner) ModeFor(straightMeters float64) TravelMode {
	if straightMeters > p.transitMeters {
		return TravelTransit
	}
	return TravelWalking
}

// Summary is the spoken route overview.
func (p *Planner) Summary(route Route, straightMeters float64) string {
	var head string
	lines := TransitLines(route)
	switch {
	case len(lines) > 0:
		head = fmt.Sprintf("Route found. It takes %s. You can take %s.", route.TotalDurationText, strings.Join(lines, ", "))
	case straightMeters <= p.transitMeters:
		head = fmt.Sprintf("It is a short walk of %s. It will take about %s.", route.TotalDistanceText, route.TotalDurationText)
	default:
		head = fmt.Sprintf("Route found. Distance is %s. Duration approximately %s.", route.TotalDistanceText, route.TotalDurationText)
	}
	return head + " " + textTapToStart
}

// TransitLines lists "vehicle line" for every transit step, e.g. "Bus M14".
func TransitLines(route Route) []string {
	var lines []string
	for _, st := range route.Steps {
		if st.TravelMode != TravelTransit || st.TransitLine == "" {
			continue
		}
		vehicle := st.VehicleName
		if vehicle == "" {
			vehicle = "Bus"
		}
		lines = append(lines, vehicle+" "+st.TransitLine)
	}
	return lines
}
