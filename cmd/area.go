package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lidarhd/internal/model"
	"github.com/sells-group/lidarhd/pkg/lidarhd"
)

// addAreaFlags registers the area-of-interest flags shared by download and tiles.
func addAreaFlags(cmd *cobra.Command) {
	cmd.Flags().String("aoi", "", "area of interest file (.geojson, .json, .shp, .wkt)")
	cmd.Flags().String("bbox", "", "area of interest as minx,miny,maxx,maxy")
	cmd.Flags().Int("srid", 4326, "EPSG code of the area of interest (any registered code, e.g. 4326, 3857, 2154, 32631)")
	cmd.MarkFlagsMutuallyExclusive("aoi", "bbox")
	cmd.MarkFlagsOneRequired("aoi", "bbox")
}

func areaFromFlags(cmd *cobra.Command) (lidarhd.AreaOfInterest, error) {
	path, _ := cmd.Flags().GetString("aoi")
	bbox, _ := cmd.Flags().GetString("bbox")
	srid, _ := cmd.Flags().GetInt("srid")

	if path != "" {
		return lidarhd.LoadAOI(path, srid)
	}
	v, err := parseBBox(bbox)
	if err != nil {
		return lidarhd.AreaOfInterest{}, err
	}
	return lidarhd.BBox(v[0], v[1], v[2], v[3], srid)
}

func parseBBox(s string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, eris.Wrapf(model.ErrInvalidArgument, "bbox %q: want minx,miny,maxx,maxy", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, eris.Wrapf(model.ErrInvalidArgument, "bbox %q: %v", s, err)
		}
		out[i] = f
	}
	return out, nil
}
