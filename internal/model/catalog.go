package model

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"
)

// boundsEpsilon pads degenerate and query rectangles so that tiles which only
// touch a query box are still returned by the R-tree (which compares strictly).
const boundsEpsilon = 1e-3

// Catalog is an immutable, ordered set of tiles with a bounding-box index.
// Row order carries no meaning.
type Catalog struct {
	tiles []Tile
	rtree *rtreego.Rtree
}

// indexedTile ties a tile position to its footprint rectangle.
type indexedTile struct {
	pos  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (t indexedTile) Bounds() rtreego.Rect { return t.rect }

// NewCatalog indexes the given tiles. The slice is copied; tiles without a
// geometry are kept but never match a spatial search.
func NewCatalog(tiles []Tile) *Catalog {
	c := &Catalog{
		tiles: append([]Tile(nil), tiles...),
		rtree: rtreego.NewTree(2, 25, 50),
	}
	for i, t := range c.tiles {
		if t.Geometry == nil || len(t.Geometry.FlatCoords()) == 0 {
			continue
		}
		c.rtree.Insert(indexedTile{pos: i, rect: rectFor(t.Geometry.Bounds(), 0)})
	}
	return c
}

// Len returns the number of tiles.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.tiles)
}

// Tiles returns a copy of the catalog rows.
func (c *Catalog) Tiles() []Tile {
	if c == nil {
		return nil
	}
	return append([]Tile(nil), c.tiles...)
}

// Tile returns the row at position i.
func (c *Catalog) Tile(i int) Tile { return c.tiles[i] }

// Search returns, in ascending order, the positions of tiles whose bounding
// box intersects or touches b.
func (c *Catalog) Search(b *geom.Bounds) []int {
	if c == nil || b == nil || b.IsEmpty() {
		return nil
	}
	hits := c.rtree.SearchIntersect(rectFor(b, boundsEpsilon))
	positions := make([]int, 0, len(hits))
	for _, h := range hits {
		positions = append(positions, h.(indexedTile).pos)
	}
	sort.Ints(positions)
	return positions
}

func rectFor(b *geom.Bounds, pad float64) rtreego.Rect {
	minX, minY := b.Min(0)-pad, b.Min(1)-pad
	width := b.Max(0) - b.Min(0) + 2*pad
	height := b.Max(1) - b.Min(1) + 2*pad
	if width < boundsEpsilon {
		width = boundsEpsilon
	}
	if height < boundsEpsilon {
		height = boundsEpsilon
	}
	rect, _ := rtreego.NewRect(rtreego.Point{minX, minY}, []float64{width, height})
	return rect
}
