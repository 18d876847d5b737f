package gpkg

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

const (
	flagLittleEndian = 0x01
	flagEmpty        = 0x10
	envelopeXY       = 1 << 1
)

// envelopeSizes maps the 3-bit envelope indicator to its byte length.
var envelopeSizes = [...]int{0, 32, 48, 48, 64}

// encodeGeometry builds a GeoPackage binary blob: the "GP" header with an XY
// envelope followed by little-endian WKB.
func encodeGeometry(g geom.T, srid int) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode WKB")
	}

	b := g.Bounds()
	empty := b.IsEmpty()

	flags := byte(flagLittleEndian)
	size := 8
	if empty {
		flags |= flagEmpty
	} else {
		flags |= envelopeXY
		size += 32
	}

	out := make([]byte, size, size+len(body))
	out[0], out[1], out[2], out[3] = 'G', 'P', 0, flags
	binary.LittleEndian.PutUint32(out[4:8], uint32(int32(srid)))
	if !empty {
		for i, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			binary.LittleEndian.PutUint64(out[8+8*i:], math.Float64bits(v))
		}
	}
	return append(out, body...), nil
}

// decodeGeometry parses a GeoPackage binary blob and returns its geometry and srs_id.
func decodeGeometry(blob []byte) (geom.T, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, eris.New("gpkg: not a GeoPackage geometry blob")
	}
	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))

	indicator := int(flags>>1) & 0x07
	if indicator >= len(envelopeSizes) {
		return nil, 0, eris.Errorf("gpkg: invalid envelope indicator %d", indicator)
	}
	offset := 8 + envelopeSizes[indicator]
	if len(blob) < offset {
		return nil, 0, eris.New("gpkg: truncated geometry header")
	}

	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode WKB")
	}
	return g, srid, nil
}
