package utils

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrInvalidZoneID        = errors.New("invalid zone id")
	ErrNonFiniteCoordinate  = errors.New("coordinate must be finite")
	errZoneCellSizeRequired = errors.New("zone cell size must be positive")
)

// Zone is one cell of the pricing grid. Zones are computed on demand and never stored.
type Zone struct {
	ID     string `json:"id" bson:"id"`
	Bounds Bounds `json:"bounds" bson:"bounds"`
	Center Point  `json:"center" bson:"center"`
}

// MinZoneCellSizeDeg keeps every grid index well inside the exact range of float64.
const MinZoneCellSizeDeg = 1e-9

// ZoneIndex maps coordinates onto a fixed-resolution lat/lng grid.
// Ids have the form "<latIndex>_<lngIndex>"; they are only meaningful for the
// cell size that produced them, so changing the cell size orphans stored ids.
//
// Every finite pair has a zone. Latitude outside [-90, 90] is clamped to the
// nearest pole and longitude outside [-180, 180] is wrapped back into range,
// so the zone bounds contain the normalized coordinate.
type ZoneIndex struct {
	cellSize float64
}

func NewZoneIndex(cellSizeDeg float64) (*ZoneIndex, error) {
	if !IsFinite(cellSizeDeg) || cellSizeDeg < MinZoneCellSizeDeg {
		return nil, errZoneCellSizeRequired
	}
	return &ZoneIndex{cellSize: cellSizeDeg}, nil
}

func (z *ZoneIndex) CellSize() float64 {
	return z.cellSize
}

// ZoneOf expects finite input; use Lookup when the coordinate is untrusted.
func (z *ZoneIndex) ZoneOf(lat, lng float64) string {
	lat, lng = NormalizeCoordinate(lat, lng)
	return formatZoneID(z.cellIndex(lat), z.cellIndex(lng))
}

func (z *ZoneIndex) BoundsOf(zoneID string) (Bounds, error) {
	latIdx, lngIdx, err := parseZoneID(zoneID)
	if err != nil {
		return Bounds{}, err
	}

	return Bounds{
		MinLat: z.edge(latIdx),
		MinLng: z.edge(lngIdx),
		MaxLat: z.edge(latIdx + 1),
		MaxLng: z.edge(lngIdx + 1),
	}, nil
}

func (z *ZoneIndex) CenterOf(zoneID string) (Point, error) {
	bounds, err := z.BoundsOf(zoneID)
	if err != nil {
		return Point{}, err
	}
	return bounds.Center(), nil
}

func (z *ZoneIndex) Lookup(lat, lng float64) (Zone, error) {
	if !IsFinite(lat, lng) {
		return Zone{}, ErrNonFiniteCoordinate
	}

	id := z.ZoneOf(lat, lng)
	bounds, err := z.BoundsOf(id)
	if err != nil {
		return Zone{}, err
	}

	return Zone{ID: id, Bounds: bounds, Center: bounds.Center()}, nil
}

// NormalizeCoordinate clamps lat to [-90, 90] and wraps lng modulo 360 into
// [-180, 180) when it falls outside [-180, 180]. In-range values are
// returned unchanged.
func NormalizeCoordinate(lat, lng float64) (float64, float64) {
	lat = math.Max(-90, math.Min(90, lat))
	if lng < -180 || lng > 180 {
		lng = math.Mod(lng+180, 360)
		if lng < 0 {
			lng += 360
		}
		lng -= 180
	}
	return lat, lng
}

func (z *ZoneIndex) edge(idx int64) float64 {
	return float64(idx) * z.cellSize
}

// cellIndex floors v onto the grid, then nudges the index so that
// edge(idx) <= v <= edge(idx+1) holds despite rounding in the division.
func (z *ZoneIndex) cellIndex(v float64) int64 {
	idx := int64(math.Floor(v / z.cellSize))
	for z.edge(idx) > v {
		idx--
	}
	for z.edge(idx+1) < v {
		idx++
	}
	return idx
}

func formatZoneID(latIdx, lngIdx int64) string {
	return strconv.FormatInt(latIdx, 10) + "_" + strconv.FormatInt(lngIdx, 10)
}

func parseZoneID(zoneID string) (int64, int64, error) {
	parts := strings.Split(zoneID, "_")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidZoneID, zoneID)
	}

	latIdx, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidZoneID, zoneID)
	}
	lngIdx, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidZoneID, zoneID)
	}

	return latIdx, lngIdx, nil
}
