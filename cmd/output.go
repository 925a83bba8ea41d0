package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/census-geocoder/pkg/geocode"
)

const (
	outputJSON    = "json"
	outputYAML    = "yaml"
	outputGeoJSON = "geojson"
)

func validOutput(format string) bool {
	switch format {
	case outputJSON, outputYAML, outputGeoJSON:
		return true
	default:
		return false
	}
}

// locationView is the printable form of a geocode.Location.
type locationView struct {
	Address   string         `json:"address" yaml:"address"`
	Latitude  *float64       `json:"latitude" yaml:"latitude"`
	Longitude *float64       `json:"longitude" yaml:"longitude"`
	Raw       map[string]any `json:"raw,omitempty" yaml:"raw,omitempty"`
}

func toViews(locs []geocode.Location) []locationView {
	views := make([]locationView, 0, len(locs))
	for _, l := range locs {
		views = append(views, locationView{
			Address:   l.Address,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
			Raw:       l.Raw,
		})
	}
	return views
}

// writeLocations renders locs to w. An empty result prints an empty list.
func writeLocations(w io.Writer, format string, locs []geocode.Location) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(toViews(locs)); err != nil {
			return eris.Wrap(err, "output: encode json")
		}
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toViews(locs)); err != nil {
			return eris.Wrap(err, "output: encode yaml")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "output: close yaml")
		}
	case outputGeoJSON:
		b, err := json.MarshalIndent(featureCollection(locs), "", "  ")
		if err != nil {
			return eris.Wrap(err, "output: encode geojson")
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return eris.Wrap(err, "output: write geojson")
		}
	default:
		return eris.Errorf("output: unknown format %q", format)
	}
	return nil
}

// featureCollection converts locs to point features. Matches without both
// coordinates have no geometry and are left out.
func featureCollection(locs []geocode.Location) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, l := range locs {
		p, ok := l.Point()
		if !ok {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: p,
			Properties: map[string]any{
				"matchedAddress": l.Address,
			},
		})
	}
	return fc
}
