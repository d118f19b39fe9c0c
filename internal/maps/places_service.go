package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/types"
)

// searchRadiusMeters bounds the location bias of landmark searches.
const searchRadiusMeters = 5000

// Place is one landmark search hit.
type Place struct {
	PlaceID  string
	Name     string
	Address  string
	Location types.Point
}

func (p Place) toNavigation() navigation.Place {
	addr := p.Address
	if addr == "" {
		addr = p.Name
	}
	return navigation.Place{Name: p.Name, Address: addr, Location: p.Location}
}

// PlacesService wraps the Places text search used when geocoding misses a landmark.
type PlacesService struct {
	client   *maps.Client
	language string
	region   string
}

// NewPlacesService creates a new PlacesService with the given API Key.
func NewPlacesService(apiKey, language, region string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps: places client: %w", err)
	}
	return &PlacesService{client: client, language: language, region: region}, nil
}

// SearchText runs a text search for a spoken landmark, biased to near when
// given. Results keep the API ranking.
func (s *PlacesService) SearchText(ctx context.Context, query string, near *types.Point) ([]Place, error) {
	r := &maps.TextSearchRequest{
		Query:    query,
		Language: s.language,
		Region:   s.region,
	}
	if near != nil {
		r.Location = &maps.LatLng{Lat: near.Lat, Lng: near.Lng}
		r.Radius = searchRadiusMeters
	}

	resp, err := s.client.TextSearch(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps: text search %q: %w", query, err)
	}
	return convertPlaces(resp.Results), nil
}

// convertPlaces drops closed businesses and hits without coordinates; a
// walker cannot be routed to either.
func convertPlaces(in []maps.PlacesSearchResult) []Place {
	out := make([]Place, 0, len(in))
	for _, r := range in {
		loc := types.Point{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
		if r.PermanentlyClosed || (loc.Lat == 0 && loc.Lng == 0) {
			continue
		}
		out = append(out, Place{
			PlaceID:  r.PlaceID,
			Name:     r.Name,
			Address:  r.FormattedAddress,
			Location: loc,
		})
	}
	return out
}
