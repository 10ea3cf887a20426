package service

import (
	"math"

	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
)

const (
	earthRadiusMeters        = 6371000.0
	defaultAltitudeTolerance = 2.0
)

// GeofenceConfig tunes geometry evaluation.
type GeofenceConfig struct {
	// AllowDegraded permits the distance-from-center fallback when a room's
	// polygon is malformed. Degraded mode changes verification semantics and
	// is surfaced in the location diagnostic, never applied silently.
	AllowDegraded  bool
	DegradedRadius float64
}

// GeofenceService answers whether a GPS fix places a student inside a
// room's footprint. Pure geometry, no side effects.
type GeofenceService struct {
	config GeofenceConfig
	logger *zap.Logger
}

// NewGeofenceService constructs the validator.
func NewGeofenceService(config GeofenceConfig, logger *zap.Logger) *GeofenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DegradedRadius <= 0 {
		config.DegradedRadius = 10.0
	}
	return &GeofenceService{config: config, logger: logger}
}

// LocationCheck is the structured diagnostic stored with each location
// verification attempt.
type LocationCheck struct {
	InsidePolygon      bool    `json:"inside_polygon"`
	AltitudeMatch      bool    `json:"altitude_match"`
	DistanceFromCenter float64 `json:"distance_from_center"`
	DegradedMode       bool    `json:"degraded_mode"`
}

// IsInside reports whether the point lies strictly inside the room's
// polygon. Points exactly on an edge or vertex are outside. A malformed
// ring fails closed unless degraded mode is enabled, in which case the
// distance-from-center fallback applies.
func (s *GeofenceService) IsInside(room *models.Room, lat, lon float64) bool {
	if !room.GPSPolygon.IsClosedRing() {
		if s.config.AllowDegraded {
			return s.DistanceFromCenter(room, lat, lon) <= s.config.DegradedRadius
		}
		return false
	}
	return pointInRing(room.GPSPolygon, lat, lon)
}

// DistanceFromCenter returns the great-circle distance in meters between
// the fix and the room center (haversine).
func (s *GeofenceService) DistanceFromCenter(room *models.Room, lat, lon float64) float64 {
	return haversine(room.CenterLatitude, room.CenterLongitude, lat, lon)
}

// AltitudeMatches reports whether a measured altitude falls within the
// room's floor-to-ceiling band, widened by the tolerance. A non-positive
// tolerance falls back to the room's own setting, then to 2.0 m.
func (s *GeofenceService) AltitudeMatches(room *models.Room, altitude, toleranceMeters float64) bool {
	if toleranceMeters <= 0 {
		toleranceMeters = room.AltitudeTolerance
	}
	if toleranceMeters <= 0 {
		toleranceMeters = defaultAltitudeTolerance
	}
	min := room.FloorAltitude - toleranceMeters
	max := room.FloorAltitude + room.CeilingHeight + toleranceMeters
	return altitude >= min && altitude <= max
}

// Evaluate runs the full location check for a fix and returns the
// diagnostic. Altitude passes vacuously when the device reported none.
func (s *GeofenceService) Evaluate(room *models.Room, lat, lon float64, altitude *float64, toleranceMeters float64) LocationCheck {
	check := LocationCheck{
		DistanceFromCenter: s.DistanceFromCenter(room, lat, lon),
		AltitudeMatch:      true,
	}
	if !room.GPSPolygon.IsClosedRing() {
		check.DegradedMode = s.config.AllowDegraded
		if s.config.AllowDegraded {
			check.InsidePolygon = check.DistanceFromCenter <= s.config.DegradedRadius
		}
	} else {
		check.InsidePolygon = pointInRing(room.GPSPolygon, lat, lon)
	}
	if altitude != nil {
		check.AltitudeMatch = s.AltitudeMatches(room, *altitude, toleranceMeters)
	}
	return check
}

// pointInRing is standard ray casting against a closed ring. Points lying
// exactly on an edge or vertex are treated as outside.
func pointInRing(ring models.Polygon, lat, lon float64) bool {
	n := len(ring) - 1 // closed ring repeats the first vertex
	for i := 0; i < n; i++ {
		if onSegment(ring[i], ring[i+1], lat, lon) {
			return false
		}
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		yi, xi := ring[i].Lat, ring[i].Lon
		yj, xj := ring[j].Lat, ring[j].Lon
		if (yi > lat) != (yj > lat) {
			intersect := (xj-xi)*(lat-yi)/(yj-yi) + xi
			if lon < intersect {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func onSegment(a, b models.GeoPoint, lat, lon float64) bool {
	cross := (b.Lat-a.Lat)*(lon-a.Lon) - (b.Lon-a.Lon)*(lat-a.Lat)
	if cross != 0 {
		return false
	}
	return lat >= math.Min(a.Lat, b.Lat) && lat <= math.Max(a.Lat, b.Lat) &&
		lon >= math.Min(a.Lon, b.Lon) && lon <= math.Max(a.Lon, b.Lon)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
