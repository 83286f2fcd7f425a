package geo

import (
	"math"
	"testing"
)

func TestDistanceKM(t *testing.T) {
	london := Coordinates{Lat: 51.5074, Lon: -0.1278}
	paris := Coordinates{Lat: 48.8566, Lon: 2.3522}
	sydney := Coordinates{Lat: -33.8688, Lon: 151.2093}
	newYork := Coordinates{Lat: 40.7128, Lon: -74.0060}

	tests := []struct {
		name string
		a, b Coordinates
		want float64 // km, checked within 1%
	}{
		{"london to paris", london, paris, 344},
		{"london to new york", london, newYork, 5570},
		{"london to sydney", london, sydney, 16993},
		{"same point", london, london, 0},
		{"antipodal is half circumference", Coordinates{Lat: 0, Lon: 0}, Coordinates{Lat: 0, Lon: 180}, math.Pi * 6371},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DistanceKM(tc.a, tc.b)
			tolerance := tc.want * 0.01
			if tolerance < 0.001 {
				tolerance = 0.001
			}
			if math.Abs(got-tc.want) > tolerance {
				t.Errorf("DistanceKM = %.1f, want %.1f ± %.1f", got, tc.want, tolerance)
			}
		})
	}
}

func TestDistanceKMSymmetric(t *testing.T) {
	a := Coordinates{Lat: 51.5074, Lon: -0.1278}
	b := Coordinates{Lat: -33.8688, Lon: 151.2093}
	if ab, ba := DistanceKM(a, b), DistanceKM(b, a); math.Abs(ab-ba) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", ab, ba)
	}
}

func TestCoordinatesZero(t *testing.T) {
	if !(Coordinates{}).Zero() {
		t.Error("zero value should report Zero")
	}
	if (Coordinates{Lat: 51.5, Lon: -0.1}).Zero() {
		t.Error("set coordinates should not report Zero")
	}
}
