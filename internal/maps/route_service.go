package maps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"cabdispatch/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// RouteService estimates road travel times with the Google Maps Distance Matrix API.
type RouteService struct {
	client  *maps.Client
	timeout time.Duration
}

// NewRouteService creates a RouteService with the given API key. Extra client options
// (for example maps.WithBaseURL) are passed through.
func NewRouteService(apiKey string, opts ...maps.ClientOption) (*RouteService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, timeout: 2 * time.Second}, nil
}

// DriveTime returns the current driving time from one point to another, preferring the traffic-aware value.
func (s *RouteService) DriveTime(ctx context.Context, from, to types.Point) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := &maps.DistanceMatrixRequest{
		Origins:       []string{latLng(from)},
		Destinations:  []string{latLng(to)},
		Mode:          maps.TravelModeDriving,
		DepartureTime: "now",
	}
	resp, err := s.client.DistanceMatrix(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, ErrNoRoute
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("%w: %s", ErrNoRoute, el.Status)
	}
	if el.DurationInTraffic > 0 {
		return el.DurationInTraffic, nil
	}
	return el.Duration, nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
