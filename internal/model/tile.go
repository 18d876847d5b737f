// Package model holds the catalog domain types shared across lidarhd packages.
package model

import (
	"strings"

	"github.com/twpayne/go-geom"
)

// WorkingSRID is the reference frame of every catalog geometry (RGF93 / Lambert-93).
const WorkingSRID = 2154

// Tile is one catalog entry: a point-cloud tile footprint and where to download it.
type Tile struct {
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	Bloc     string `json:"bloc"`
	Geometry geom.T `json:"-"`
}

// BlocFromURL derives the block identifier from a tile URL: the last path
// segment cut at its first dot, so ".../t1.copc.laz" gives "t1".
func BlocFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	name := rawURL
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	return name
}

// AreaOfInterest is caller-supplied geometry in an arbitrary reference frame.
// It is never mutated; queries reproject a copy.
type AreaOfInterest struct {
	Geometries []geom.T
	SRID       int
}
