package geocode

import (
	"github.com/twpayne/go-geom"
)

// Location is one match returned by the geocoder.
type Location struct {
	// Address is the matched address as normalized by the service.
	Address string
	// Latitude and Longitude are nil when the match carries no coordinates.
	Latitude  *float64
	Longitude *float64
	// Raw is the match object exactly as decoded from the response.
	Raw map[string]any
}

// Point returns the location as an XY point in WGS84 (SRID 4326). ok is
// false when either coordinate is missing.
func (l Location) Point() (p *geom.Point, ok bool) {
	if l.Latitude == nil || l.Longitude == nil {
		return nil, false
	}
	return geom.NewPointFlat(geom.XY, []float64{*l.Longitude, *l.Latitude}).SetSRID(4326), true
}

// parseMatch maps one addressMatches entry to a Location.
func parseMatch(match map[string]any) Location {
	loc := Location{Raw: match}
	loc.Address, _ = match["matchedAddress"].(string)
	if coords, ok := match["coordinates"].(map[string]any); ok {
		loc.Latitude = floatField(coords, "y")
		loc.Longitude = floatField(coords, "x")
	}
	return loc
}

func floatField(m map[string]any, key string) *float64 {
	v, ok := m[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

// parseMatches extracts result.addressMatches from a decoded response. It
// returns nil whenever the expected shape is missing or the list is empty.
func parseMatches(body any) []Location {
	root, ok := body.(map[string]any)
	if !ok {
		return nil
	}
	result, ok := root["result"].(map[string]any)
	if !ok {
		return nil
	}
	matches, ok := result["addressMatches"].([]any)
	if !ok || len(matches) == 0 {
		return nil
	}

	locs := make([]Location, 0, len(matches))
	for _, m := range matches {
		match, ok := m.(map[string]any)
		if !ok {
			match = map[string]any{}
		}
		locs = append(locs, parseMatch(match))
	}
	return locs
}
