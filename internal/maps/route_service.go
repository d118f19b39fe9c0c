package maps

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client   *maps.Client
	places   *PlacesService
	language string
	region   string
}

// NewRouteService creates a new RouteService with the given API Key.
// places may be nil to disable the landmark fallback.
func NewRouteService(apiKey, language, region string, places *PlacesService) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, places: places, language: language, region: region}, nil
}

// Geocode resolves a spoken destination. When the geocoder finds nothing it
// retries as a Places text search biased to near.
func (s *RouteService) Geocode(ctx context.Context, query string, near *types.Point) (navigation.Place, error) {
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  query,
		Language: s.language,
		Region:   s.region,
	})
	if err != nil {
		return navigation.Place{}, &navigation.ProviderError{Op: navigation.OpGeocode, Status: navigation.StatusOf(err), Err: err}
	}
	if len(results) > 0 {
		return placeFromGeocode(results[0]), nil
	}

	if s.places != nil {
		found, perr := s.places.SearchText(ctx, query, near)
		if perr == nil && len(found) > 0 {
			return found[0].toNavigation(), nil
		}
	}
	return navigation.Place{}, &navigation.ProviderError{Op: navigation.OpGeocode, Status: navigation.StatusZeroResults}
}

// Directions requests a route and converts the first leg of the first route.
func (s *RouteService) Directions(ctx context.Context, req navigation.RouteRequest) (navigation.Route, error) {
	mode := maps.TravelModeWalking
	if req.Mode == navigation.TravelTransit {
		mode = maps.TravelModeTransit
	}
	routes, _, err := s.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:       req.Origin.String(),
		Destination:  req.Destination,
		Mode:         mode,
		Alternatives: req.Alternatives,
		Language:     s.language,
		Region:       s.region,
	})
	if err != nil {
		return navigation.Route{}, &navigation.ProviderError{Op: navigation.OpDirections, Status: navigation.StatusOf(err), Err: err}
	}
	route, ok := convertRoute(routes, req.Mode)
	if !ok {
		return navigation.Route{}, &navigation.ProviderError{Op: navigation.OpDirections, Status: navigation.StatusZeroResults}
	}
	return route, nil
}

func placeFromGeocode(r maps.GeocodingResult) navigation.Place {
	return navigation.Place{
		Address:  r.FormattedAddress,
		Location: types.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
	}
}

// convertRoute flattens routes[0].legs[0]; false when there is nothing to walk.
func convertRoute(routes []maps.Route, requested navigation.TravelMode) (navigation.Route, bool) {
	if len(routes) == 0 || len(routes[0].Legs) == 0 || len(routes[0].Legs[0].Steps) == 0 {
		return navigation.Route{}, false
	}
	leg := routes[0].Legs[0]

	out := navigation.Route{
		TotalDistanceText:   leg.Distance.HumanReadable,
		TotalDurationText:   FormatDuration(leg.Duration),
		TotalDistanceMeters: leg.Distance.Meters,
		TravelMode:          requested,
	}
	for _, st := range leg.Steps {
		if st == nil {
			continue
		}
		out.Steps = append(out.Steps, convertStep(st))
	}
	return out, len(out.Steps) > 0
}

func convertStep(st *maps.Step) navigation.RouteStep {
	step := navigation.RouteStep{
		EndLocation:     types.Point{Lat: st.EndLocation.Lat, Lng: st.EndLocation.Lng},
		InstructionHTML: st.HTMLInstructions,
		DistanceText:    st.Distance.HumanReadable,
		DistanceMeters:  st.Distance.Meters,
		DurationText:    FormatDuration(st.Duration),
		TravelMode:      navigation.TravelWalking,
	}
	if strings.EqualFold(st.TravelMode, string(navigation.TravelTransit)) {
		step.TravelMode = navigation.TravelTransit
		if td := st.TransitDetails; td != nil {
			step.TransitLine = td.Line.ShortName
			if step.TransitLine == "" {
				step.TransitLine = td.Line.Name
			}
			step.VehicleName = td.Line.Vehicle.Name
		}
	}
	return step
}

// FormatDuration renders a duration the way the Directions API text does:
// "1 min", "14 mins", "1 hour 5 mins", "2 days 3 hours".
func FormatDuration(d time.Duration) string {
	mins := int(math.Round(d.Minutes()))
	if mins < 1 {
		mins = 1
	}
	days, hours := mins/(24*60), (mins/60)%24
	mins %= 60

	if days > 0 {
		if hours == 0 {
			return plural(days, "day")
		}
		return plural(days, "day") + " " + plural(hours, "hour")
	}
	if hours > 0 {
		if mins == 0 {
			return plural(hours, "hour")
		}
		return plural(hours, "hour") + " " + plural(mins, "min")
	}
	return plural(mins, "min")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
