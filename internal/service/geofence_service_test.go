package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uniattend/attendance-api/internal/models"
)

const (
	testCenterLat = 33.3152
	testCenterLon = 44.3661
)

// rectangleRoom builds a room whose polygon is an axis-aligned rectangle of
// the given width (east-west) and depth (north-south) in meters around the
// test center.
func rectangleRoom(widthMeters, depthMeters float64) *models.Room {
	dLat := (depthMeters / 2) / 111320.0
	dLon := (widthMeters / 2) / (111320.0 * 0.8357) // cos(33.3152 deg)
	return &models.Room{
		ID:              "room-1",
		Name:            "Lab 204",
		CenterLatitude:  testCenterLat,
		CenterLongitude: testCenterLon,
		GPSPolygon: models.Polygon{
			{Lat: testCenterLat - dLat, Lon: testCenterLon - dLon},
			{Lat: testCenterLat - dLat, Lon: testCenterLon + dLon},
			{Lat: testCenterLat + dLat, Lon: testCenterLon + dLon},
			{Lat: testCenterLat + dLat, Lon: testCenterLon - dLon},
			{Lat: testCenterLat - dLat, Lon: testCenterLon - dLon},
		},
		FloorAltitude:     34.0,
		CeilingHeight:     3.0,
		AltitudeTolerance: 2.0,
	}
}

func newTestGeofence(allowDegraded bool) *GeofenceService {
	return NewGeofenceService(GeofenceConfig{AllowDegraded: allowDegraded, DegradedRadius: 10.0}, zap.NewNop())
}

func TestIsInside_CenterOfRectangle(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8)

	assert.True(t, svc.IsInside(room, testCenterLat, testCenterLon))
}

func TestIsInside_OutsideRectangle(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8)

	// ~20 m east of center, well past the 5 m half-width.
	lonOffset := 20.0 / (111320.0 * 0.8357)
	assert.False(t, svc.IsInside(room, testCenterLat, testCenterLon+lonOffset))
}

func TestIsInside_BoundaryPointsAreOutside(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8)

	// Vertex.
	v := room.GPSPolygon[0]
	assert.False(t, svc.IsInside(room, v.Lat, v.Lon))

	// Midpoint of the southern edge.
	south := room.GPSPolygon[0].Lat
	assert.False(t, svc.IsInside(room, south, testCenterLon))

	// Midpoints of the east and west edges behave the same way.
	east := room.GPSPolygon[1].Lon
	west := room.GPSPolygon[0].Lon
	assert.False(t, svc.IsInside(room, testCenterLat, east))
	assert.False(t, svc.IsInside(room, testCenterLat, west))
}

func TestIsInside_MalformedPolygonFailsClosed(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8)
	room.GPSPolygon = room.GPSPolygon[:2] // not a ring

	assert.False(t, svc.IsInside(room, testCenterLat, testCenterLon))
}

func TestIsInside_MalformedPolygonDegradedFallback(t *testing.T) {
	svc := newTestGeofence(true)
	room := rectangleRoom(10, 8)
	room.GPSPolygon = nil

	assert.True(t, svc.IsInside(room, testCenterLat, testCenterLon))

	// 20 m away exceeds the 10 m degraded radius.
	lonOffset := 20.0 / (111320.0 * 0.8357)
	assert.False(t, svc.IsInside(room, testCenterLat, testCenterLon+lonOffset))
}

func TestDistanceFromCenter_Haversine(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8)

	assert.InDelta(t, 0, svc.DistanceFromCenter(room, testCenterLat, testCenterLon), 0.001)

	// One degree of latitude is about 111.2 km on a 6,371 km sphere.
	d := svc.DistanceFromCenter(room, testCenterLat+1, testCenterLon)
	assert.InDelta(t, 111195, d, 100)
}

func TestAltitudeMatches_Band(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8) // floor 34.0, ceiling 3.0, tolerance 2.0

	assert.True(t, svc.AltitudeMatches(room, 34.0, 2.0))
	assert.True(t, svc.AltitudeMatches(room, 32.0, 2.0)) // floor - tolerance
	assert.True(t, svc.AltitudeMatches(room, 39.0, 2.0)) // floor + ceiling + tolerance
	assert.False(t, svc.AltitudeMatches(room, 31.9, 2.0))
	assert.False(t, svc.AltitudeMatches(room, 39.1, 2.0))
}

func TestAltitudeMatches_DefaultTolerance(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8)
	room.AltitudeTolerance = 0

	assert.True(t, svc.AltitudeMatches(room, 32.0, 0))
	assert.False(t, svc.AltitudeMatches(room, 31.0, 0))
}

func TestEvaluate_FullDiagnostic(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8)

	alt := 35.0
	check := svc.Evaluate(room, testCenterLat, testCenterLon, &alt, 2.0)
	require.True(t, check.InsidePolygon)
	assert.True(t, check.AltitudeMatch)
	assert.False(t, check.DegradedMode)
	assert.InDelta(t, 0, check.DistanceFromCenter, 0.001)
}

func TestEvaluate_NoAltitudeReported(t *testing.T) {
	svc := newTestGeofence(false)
	room := rectangleRoom(10, 8)

	check := svc.Evaluate(room, testCenterLat, testCenterLon, nil, 2.0)
	assert.True(t, check.AltitudeMatch)
}
