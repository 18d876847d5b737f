// Package wfs fetches pages of LiDAR HD tile metadata from an OGC Web Feature Service.
package wfs

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/lidarhd/internal/fetcher"
	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/internal/spatial"
)

// DefaultBaseURL is the IGN GetFeature endpoint for the LiDAR HD tile layer.
const DefaultBaseURL = "https://data.geopf.fr/private/wfs/wfs?apikey=interface_catalogue&SERVICE=WFS&REQUEST=GetFeature&VERSION=2.0.0&TYPENAMES=IGNF_LIDAR-HD_TA:nuage-dalle"

// DefaultSRSName asks the service for Lambert-93 coordinates.
const DefaultSRSName = "urn:ogc:def:crs:EPSG::2154"

// Options configures a Client.
type Options struct {
	BaseURL string
	// SRSName is sent as SRSNAME. Defaults to DefaultSRSName.
	SRSName string
	// OutputFormat is sent as OUTPUTFORMAT unless the base URL already sets one.
	OutputFormat string
}

// Client fetches single pages of the tile collection.
type Client struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// NewClient creates a WFS page client.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	if opts.SRSName == "" {
		opts.SRSName = DefaultSRSName
	}
	return &Client{fetcher: f, opts: opts}
}

// PageURL builds the GetFeature URL for one page, keeping the base URL's own parameters.
func (c *Client) PageURL(pageSize, startOffset int) (string, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return "", eris.Wrapf(err, "wfs: parse base url %q", c.opts.BaseURL)
	}
	q := u.Query()
	setParam(q, "STARTINDEX", strconv.Itoa(startOffset))
	setParam(q, "COUNT", strconv.Itoa(pageSize))
	setParam(q, "SRSNAME", c.opts.SRSName)
	if c.opts.OutputFormat != "" && !hasParam(q, "OUTPUTFORMAT") {
		q.Set("OUTPUTFORMAT", c.opts.OutputFormat)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage returns the tiles of one page. Any failure, including an empty
// page, yields ok == false: a bad page must never abort a catalog build.
func (c *Client) FetchPage(ctx context.Context, pageSize, startOffset int) (tiles []model.Tile, ok bool) {
	log := zap.L().With(
		zap.String("component", "wfs.page"),
		zap.Int("start_index", startOffset),
		zap.Int("count", pageSize),
	)

	pageURL, err := c.PageURL(pageSize, startOffset)
	if err != nil {
		log.Debug("page skipped", zap.Error(err))
		return nil, false
	}

	body, err := c.fetcher.Download(ctx, pageURL)
	if err != nil {
		log.Debug("page skipped", zap.Error(err))
		return nil, false
	}
	defer body.Close() //nolint:errcheck

	fc, err := decodePage(body)
	if err != nil {
		log.Debug("page skipped", zap.Error(err))
		return nil, false
	}

	tiles, skipped := tilesFromFeatures(fc.Features, SRIDFromName(c.opts.SRSName))
	if skipped > 0 {
		log.Debug("features without url or polygon footprint dropped", zap.Int("skipped", skipped))
	}
	if len(tiles) == 0 {
		return nil, false
	}
	return tiles, true
}

// tilesFromFeatures keeps the footprint, url and name of each feature. Source
// identifiers such as gml_id are not carried over.
func tilesFromFeatures(features []*geojson.Feature, srid int) ([]model.Tile, int) {
	tiles := make([]model.Tile, 0, len(features))
	var skipped int
	for _, f := range features {
		if f == nil {
			skipped++
			continue
		}
		rawURL, _ := f.Properties["url"].(string)
		if rawURL == "" {
			skipped++
			continue
		}
		g := footprint(f.Geometry, srid)
		if g == nil {
			skipped++
			continue
		}
		name, _ := f.Properties["name"].(string)
		tiles = append(tiles, model.Tile{
			Name:     name,
			URL:      rawURL,
			Bloc:     model.BlocFromURL(rawURL),
			Geometry: g,
		})
	}
	return tiles, skipped
}

// footprint returns g in the working frame, or nil when it is not polygonal
// or cannot be reprojected.
func footprint(g geom.T, srid int) geom.T {
	switch t := g.(type) {
	case *geom.Polygon:
		if srid == model.WorkingSRID {
			return t.SetSRID(srid)
		}
	case *geom.MultiPolygon:
		if srid == model.WorkingSRID {
			return t.SetSRID(srid)
		}
	default:
		return nil
	}
	out, err := spatial.Transform(g, srid, model.WorkingSRID)
	if err != nil {
		return nil
	}
	return out
}

// SRIDFromName extracts the EPSG code from names such as
// "urn:ogc:def:crs:EPSG::2154" or "EPSG:4326". Unknown names map to the working frame.
func SRIDFromName(name string) int {
	i := strings.LastIndex(name, ":")
	if i < 0 {
		return model.WorkingSRID
	}
	code, err := strconv.Atoi(name[i+1:])
	if err != nil || code <= 0 {
		return model.WorkingSRID
	}
	return code
}

func setParam(q url.Values, key, value string) {
	for k := range q {
		if strings.EqualFold(k, key) {
			delete(q, k)
		}
	}
	q.Set(key, value)
}

func hasParam(q url.Values, key string) bool {
	for k := range q {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// decodePage reads a GeoJSON FeatureCollection. An XML exception report
// answered with a 200 fails here and counts as a failed page.
func decodePage(r io.Reader) (*geojson.FeatureCollection, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrap(err, "wfs: decode feature collection")
	}
	return &fc, nil
}
