package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// GeoPoint is a single latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Polygon is an ordered closed ring of vertices (first == last) stored as
// JSONB.
type Polygon []GeoPoint

// Value implements driver.Valuer for JSONB persistence.
func (p Polygon) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner.
func (p *Polygon) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		if s, sok := src.(string); sok {
			raw = []byte(s)
		} else {
			return fmt.Errorf("unsupported polygon source type %T", src)
		}
	}
	return json.Unmarshal(raw, p)
}

// IsClosedRing reports whether the polygon satisfies the room invariant:
// at least four points with first == last.
func (p Polygon) IsClosedRing() bool {
	if len(p) < 4 {
		return false
	}
	return p[0] == p[len(p)-1]
}

// Room describes a physical room with a GPS footprint and altitude band.
type Room struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Building          string    `db:"building" json:"building"`
	Floor             int       `db:"floor" json:"floor"`
	CenterLatitude    float64   `db:"center_latitude" json:"center_latitude"`
	CenterLongitude   float64   `db:"center_longitude" json:"center_longitude"`
	GPSPolygon        Polygon   `db:"gps_polygon" json:"gps_polygon"`
	FloorAltitude     float64   `db:"floor_altitude" json:"floor_altitude"`
	CeilingHeight     float64   `db:"ceiling_height" json:"ceiling_height"`
	AltitudeTolerance float64   `db:"altitude_tolerance" json:"altitude_tolerance"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
