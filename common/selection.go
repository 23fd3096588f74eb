package common

import "fmt"

// Collections
const (
	PrimaryCollection  = "COPERNICUS/S2_SR_HARMONIZED"
	FallbackCollection = "COPERNICUS/S2_HARMONIZED"
	UnknownCollection  = "UNKNOWN"
)

// Default download prefixes
const (
	DefaultSelectorPrefix   = "S2"
	DefaultDispatcherPrefix = "S2_U"
)

// Candidate is a row of the candidate table: a scene observing a location
type Candidate struct {
	LocationID  string
	SceneID     string
	AbsDaysDiff float64 // NaN if empty or not a number
	CloudScore  float64 // NaN if empty or not a number
	Lon         float64
	Lat         float64
	// Record is the raw row, as read from the table
	Record []string
}

// Selection is the best candidate of a location, with its download identifier
type Selection struct {
	Candidate
	DownloadID string
}

// Resolved is a selection with the path of the catalog that holds the scene
type Resolved struct {
	Selection
	CatalogPath string
}

// DownloadID formats the download identifier of the i-th selection
func DownloadID(prefix string, i int) string {
	return fmt.Sprintf("%s_%05d", prefix, i)
}

// CatalogPath returns <collection>/<sceneID>
func CatalogPath(collection, sceneID string) string {
	return collection + "/" + sceneID
}
