package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube-s2chips/service"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// ManifestFile is the default name of the manifest in the output path
const ManifestFile = "manifest.geojson"

// Manifest does not fetch anything: it writes the footprints of the requests as a GeoJSON FeatureCollection.
// Coordinates are in the crs of each chip (property "crs").
type Manifest struct {
	Storage service.Storage
	// URI of the manifest. Default: <OutputPath>/manifest.geojson
	URI string
}

// Footprint returns the polygon covered by the chip, in the crs of the chip
func Footprint(rt common.RasterTransform) geom.Polygon {
	gt := rt.GeoTransform
	corner := func(px, py float64) [2]float64 {
		return [2]float64{
			gt.TranslateX + px*gt.ScaleX + py*gt.ShearX,
			gt.TranslateY + px*gt.ShearY + py*gt.ScaleY,
		}
	}
	w, h := float64(rt.Width), float64(rt.Height)
	return geom.Polygon{{corner(0, 0), corner(w, 0), corner(w, h), corner(0, h), corner(0, 0)}}
}

// NewFeatureCollection converts the requests to features
func NewFeatureCollection(set common.RequestSet) geojson.FeatureCollection {
	fc := geojson.FeatureCollection{Features: make([]geojson.Feature, 0, set.Len())}
	for _, r := range set.Requests {
		properties := map[string]interface{}{
			"id":     r.ID,
			"image":  r.Image,
			"crs":    r.RasterTransform.CRS,
			"width":  r.RasterTransform.Width,
			"height": r.RasterTransform.Height,
			"bands":  r.Bands,
		}
		sceneID := filepath.Base(r.Image)
		if date, err := common.GetDateFromSceneID(sceneID); err == nil {
			properties["date"] = date.Format(time.RFC3339)
		}
		if info, err := common.Info(sceneID); err == nil {
			properties["tile"] = info["TILE"]
		}
		fc.Features = append(fc.Features, geojson.Feature{
			Geometry:   geojson.Geometry{Geometry: Footprint(r.RasterTransform)},
			Properties: properties,
		})
	}
	return fc
}

// GetCube implements CubeFetcher
func (m Manifest) GetCube(ctx context.Context, set common.RequestSet, opts Options) error {
	uri := m.URI
	if uri == "" {
		uri = opts.OutputPath + "/" + ManifestFile
	}
	data, err := json.Marshal(NewFeatureCollection(set))
	if err != nil {
		return fmt.Errorf("GetCube.Marshal: %w", err)
	}
	w, err := service.Create(ctx, m.Storage, uri)
	if err != nil {
		return fmt.Errorf("GetCube.%w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("GetCube.Write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("GetCube.Close: %w", err)
	}
	return nil
}
