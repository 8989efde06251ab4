package profile

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/gravelatlas/atlas/internal/core/domain"
	"github.com/gravelatlas/atlas/internal/pkg/geospatial"
)

func pp(km, ele float64) domain.ProfilePoint {
	return domain.ProfilePoint{DistanceKm: km, ElevationMeters: ele}
}

func TestComputeGrades_WorkedExample(t *testing.T) {
	prof := []domain.ProfilePoint{pp(0, 0), pp(0.05, 5), pp(0.12, 15), pp(0.2, 15)}

	grades := ComputeGrades(prof)

	require.Len(t, grades, 4)
	assert.Equal(t, 12.5, grades[0])
	assert.Equal(t, 12.5, grades[1])
	assert.Equal(t, 12.5, grades[2])
	assert.Equal(t, 0.0, grades[3], "tail window 0.12→0.2 km is flat")
}

func TestComputeGrades_FewerThanTwoPoints(t *testing.T) {
	assert.Empty(t, ComputeGrades(nil))
	assert.Equal(t, []float64{0}, ComputeGrades([]domain.ProfilePoint{pp(0, 120)}))
}

func TestComputeGrades_ZeroRunNeverDivides(t *testing.T) {
	// Duplicate distances inside a window are absorbed by extending the window.
	interior := ComputeGrades([]domain.ProfilePoint{pp(0, 0), pp(0, 3), pp(0.15, 15)})
	assert.Equal(t, []float64{10, 10, 10}, interior)

	// A zero-run tail inherits the last computed grade.
	tail := ComputeGrades([]domain.ProfilePoint{pp(0, 0), pp(0.2, 10), pp(0.2, 20)})
	assert.Equal(t, []float64{5, 5, 5}, tail)

	// Everything at one distance: nothing computed, all zero.
	flat := ComputeGrades([]domain.ProfilePoint{pp(1, 0), pp(1, 50), pp(1, 90)})
	assert.Equal(t, []float64{0, 0, 0}, flat)
}

func TestComputeGrades_NegativeAndRounded(t *testing.T) {
	grades := ComputeGrades([]domain.ProfilePoint{pp(0, 100), pp(0.3, 87)})
	assert.Equal(t, []float64{-4.3, -4.3}, grades)
}

func TestComputeGrades_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 60).Draw(t, "n")
		prof := make([]domain.ProfilePoint, n)
		dist := 0.0
		for i := range prof {
			if !rapid.Bool().Draw(t, "duplicate") {
				dist += rapid.Float64Range(0.001, 0.08).Draw(t, "step")
			}
			prof[i] = pp(dist, rapid.Float64Range(-400, 4800).Draw(t, "ele"))
		}

		grades := ComputeGrades(prof)
		if len(grades) != n {
			t.Fatalf("len %d != %d", len(grades), n)
		}
		for i, g := range grades {
			if math.IsNaN(g) || math.IsInf(g, 0) {
				t.Fatalf("grade[%d] = %v", i, g)
			}
			if math.Abs(g*10-math.Round(g*10)) > 1e-6 {
				t.Fatalf("grade[%d] = %v not rounded to one decimal", i, g)
			}
		}
	})
}

func TestGradeColor_Boundaries(t *testing.T) {
	cases := []struct {
		grade float64
		want  domain.ColorBucket
	}{
		{0, domain.Bucket0},
		{1.99, domain.Bucket0},
		{2, domain.Bucket1},
		{-3.9, domain.Bucket1},
		{4, domain.Bucket2},
		{6, domain.Bucket3},
		{-8, domain.Bucket4},
		{9.99, domain.Bucket4},
		{10, domain.Bucket5},
		{13.9, domain.Bucket5},
		{14, domain.Bucket6},
		{-45, domain.Bucket6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GradeColor(tc.grade), "grade %v", tc.grade)
	}
}

func TestGradeColor_ExactlyOneBucket(t *testing.T) {
	bounds := []float64{0, 2, 4, 6, 8, 10, 14, math.Inf(1)}
	rapid.Check(t, func(t *rapid.T) {
		g := rapid.Float64Range(-1e6, 1e6).Draw(t, "grade")
		abs := math.Abs(g)

		matches := 0
		var hit int
		for b := 0; b < len(bounds)-1; b++ {
			if abs >= bounds[b] && abs < bounds[b+1] {
				matches++
				hit = b
			}
		}
		if matches != 1 {
			t.Fatalf("|%v| matched %d ranges", g, matches)
		}
		if got := GradeColor(g); int(got) != hit {
			t.Fatalf("GradeColor(%v) = %d, want %d", g, got, hit)
		}
	})
}

func TestGroupSegments_PartitionsProfile(t *testing.T) {
	prof := []domain.ProfilePoint{pp(0, 0), pp(0.1, 1), pp(0.2, 2), pp(0.3, 12), pp(0.4, 22), pp(0.5, 22)}
	grades := []float64{1, 1, 1, 10, 10, 0}

	segs := GroupSegments(prof, grades)

	require.Len(t, segs, 3)
	assert.Equal(t, 0, segs[0].StartIndex)
	assert.Equal(t, 2, segs[0].EndIndex)
	assert.Equal(t, domain.Bucket0, segs[0].Bucket)
	assert.Equal(t, domain.Bucket5, segs[1].Bucket)
	assert.Equal(t, 10.0, segs[1].GradePercent)
	assert.Len(t, segs[1].Points, 2)
	assert.Equal(t, 5, segs[2].EndIndex)
}

func TestGroupSegments_MaximalContiguousRuns(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(t, "n")
		prof := make([]domain.ProfilePoint, n)
		grades := make([]float64, n)
		for i := range prof {
			prof[i] = pp(float64(i)*0.1, 0)
			grades[i] = rapid.Float64Range(-20, 20).Draw(t, "grade")
		}

		segs := GroupSegments(prof, grades)
		next := 0
		for i, s := range segs {
			if s.StartIndex != next {
				t.Fatalf("segment %d starts at %d, want %d", i, s.StartIndex, next)
			}
			for k := s.StartIndex; k <= s.EndIndex; k++ {
				if GradeColor(grades[k]) != s.Bucket {
					t.Fatalf("index %d bucket differs from segment %d", k, i)
				}
			}
			if i > 0 && segs[i-1].Bucket == s.Bucket {
				t.Fatalf("segments %d and %d share a bucket", i-1, i)
			}
			next = s.EndIndex + 1
		}
		if next != n {
			t.Fatalf("segments cover %d of %d points", next, n)
		}
	})
}

func TestAssemble(t *testing.T) {
	pts := []domain.GeoPoint{
		{Lat: 43.2600, Lon: -2.9300},
		{Lat: 43.2610, Lon: -2.9300},
		{Lat: 43.2620, Lon: -2.9300},
		{Lat: 43.2630, Lon: -2.9300},
	}
	seg, err := Assemble(pts, []float64{100, 130, 120, 125}, "  Artxanda  ")
	require.NoError(t, err)

	assert.Equal(t, "Artxanda", seg.Title)
	assert.Equal(t, pts, seg.Coordinates)
	assert.InDelta(t, geospatial.PathLength(pts), seg.DistanceMeters, 1e-6)
	assert.Equal(t, 35.0, seg.ElevationGainMeters)
	assert.Equal(t, 10.0, seg.ElevationLossMeters)
	require.Len(t, seg.ElevationProfile, 4)
	assert.Equal(t, 0.0, seg.ElevationProfile[0].DistanceKm)
}

func TestAssemble_InsufficientPoints(t *testing.T) {
	_, err := Assemble([]domain.GeoPoint{{Lat: 1, Lon: 1}}, []float64{10}, "x")
	assert.True(t, errors.Is(err, domain.ErrInsufficientPoints))
}

func TestFromSamples(t *testing.T) {
	prof := FromSamples([]domain.ElevationSample{
		{Point: domain.GeoPoint{Lat: 43.26, Lon: -2.93}, ElevationMeters: 40},
		{Point: domain.GeoPoint{Lat: 43.27, Lon: -2.93}, ElevationMeters: 0},
	})
	require.Len(t, prof, 2)
	assert.Equal(t, 40.0, prof[0].ElevationMeters)
	assert.InDelta(t, 1.11, prof[1].DistanceKm, 0.01)
}
