package geo

import (
	"math"
	"testing"

	"cabdispatch/internal/types"
)

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		want      float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 53.6458, Lng: -1.7850},
			b:         types.Point{Lat: 53.6458, Lng: -1.7850},
			want:      0,
			tolerance: 0.001,
		},
		{
			name:      "one degree of latitude",
			a:         types.Point{Lat: 0, Lng: 0},
			b:         types.Point{Lat: 1, Lng: 0},
			want:      111195,
			tolerance: 5,
		},
		{
			name:      "New York to Los Angeles",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			want:      3944000,
			tolerance: 50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceMeters() = %f, want %f (±%f)", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	a := types.Point{Lat: 53.64, Lng: -1.78}
	b := types.Point{Lat: 53.80, Lng: -1.55}
	d1 := DistanceMeters(a, b)
	d2 := DistanceMeters(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
	}
}

func TestEtaMinutes(t *testing.T) {
	tests := []struct {
		meters float64
		speed  float64
		want   int
	}{
		{meters: 0, speed: 30, want: 1},
		{meters: 200, speed: 30, want: 1},
		{meters: 5000, speed: 30, want: 10},
		{meters: 5250, speed: 30, want: 11},
		{meters: 1000, speed: 0, want: 1},
	}
	for _, tt := range tests {
		if got := EtaMinutes(tt.meters, tt.speed); got != tt.want {
			t.Errorf("EtaMinutes(%v, %v) = %d, want %d", tt.meters, tt.speed, got, tt.want)
		}
	}
}
