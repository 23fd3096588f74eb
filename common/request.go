package common

import (
	"fmt"
	"math"
)

// DefaultBands are the Sentinel-2 bands of a chip
var DefaultBands = []string{"B1", "B2", "B3", "B4", "B5", "B6", "B7", "B8", "B8A", "B9", "B11", "B12"}

// ChipSpec defines the geometry and the content of a chip
type ChipSpec struct {
	EdgeSize int     // pixels
	Scale    float64 // meters per pixel
	Bands    []string
}

// DefaultChipSpec is a 128x128 pixels chip at 10m with all the DefaultBands
func DefaultChipSpec() ChipSpec {
	bands := make([]string, len(DefaultBands))
	copy(bands, DefaultBands)
	return ChipSpec{EdgeSize: 128, Scale: 10, Bands: bands}
}

// GeoTransform is an affine transform from pixel to crs coordinates
type GeoTransform struct {
	ScaleX     float64 `json:"scaleX"`
	ShearX     float64 `json:"shearX"`
	TranslateX float64 `json:"translateX"`
	ScaleY     float64 `json:"scaleY"`
	ShearY     float64 `json:"shearY"`
	TranslateY float64 `json:"translateY"`
}

// RasterTransform defines the grid of a chip
type RasterTransform struct {
	CRS          string       `json:"crs"`
	GeoTransform GeoTransform `json:"geotransform"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
}

// CubeRequest is the request of a chip of an image
type CubeRequest struct {
	ID              string          `json:"id"`
	RasterTransform RasterTransform `json:"raster_transform"`
	Bands           []string        `json:"bands"`
	Image           string          `json:"image"`
}

// RequestSet is an ordered batch of CubeRequest
type RequestSet struct {
	Requests []CubeRequest `json:"requestset"`
}

// Len returns the number of requests
func (rs RequestSet) Len() int {
	return len(rs.Requests)
}

// LonLatToRasterTransform returns the raster transform of a chip centred on (lon, lat), in the UTM zone of the point
func LonLatToRasterTransform(lon, lat float64, spec ChipSpec) (RasterTransform, error) {
	if spec.EdgeSize <= 0 || spec.Scale <= 0 {
		return RasterTransform{}, fmt.Errorf("LonLatToRasterTransform: invalid chip spec (edge: %d, scale: %f)", spec.EdgeSize, spec.Scale)
	}
	x, y, epsg, err := LonLatToUTM(lon, lat)
	if err != nil {
		return RasterTransform{}, fmt.Errorf("LonLatToRasterTransform.%w", err)
	}
	half := float64(spec.EdgeSize) * spec.Scale / 2
	return RasterTransform{
		CRS: fmt.Sprintf("EPSG:%d", epsg),
		GeoTransform: GeoTransform{
			ScaleX:     spec.Scale,
			ShearX:     0,
			TranslateX: x - half,
			ScaleY:     -spec.Scale,
			ShearY:     0,
			TranslateY: y + half,
		},
		Width:  spec.EdgeSize,
		Height: spec.EdgeSize,
	}, nil
}

// NewCubeRequest creates the request of the chip of the resolved row
func NewCubeRequest(r Resolved, spec ChipSpec) (CubeRequest, error) {
	if math.IsNaN(r.Lon) || math.IsNaN(r.Lat) {
		return CubeRequest{}, fmt.Errorf("NewCubeRequest[%s]: invalid coordinates", r.DownloadID)
	}
	rt, err := LonLatToRasterTransform(r.Lon, r.Lat, spec)
	if err != nil {
		return CubeRequest{}, fmt.Errorf("NewCubeRequest[%s].%w", r.DownloadID, err)
	}
	return CubeRequest{
		ID:              r.DownloadID,
		RasterTransform: rt,
		Bands:           spec.Bands,
		Image:           r.CatalogPath,
	}, nil
}
