// Package fetcher hands the cube requests to the service that downloads the chips
package fetcher

import (
	"context"

	"github.com/airbusgeo/geocube-s2chips/common"
)

// Defaults
const (
	DefaultOutputPath   = "output_s2"
	DefaultWorkers      = 4
	DefaultMaxDeepLevel = 5
)

// Options are passed unmodified to the fetch service
type Options struct {
	OutputPath   string `json:"output_path"`
	Workers      int    `json:"nworkers"`
	MaxDeepLevel int    `json:"max_deep_level"`
}

// DefaultOptions returns the default options
func DefaultOptions() Options {
	return Options{OutputPath: DefaultOutputPath, Workers: DefaultWorkers, MaxDeepLevel: DefaultMaxDeepLevel}
}

// CubeFetcher fetches a batch of chips
type CubeFetcher interface {
	GetCube(ctx context.Context, set common.RequestSet, opts Options) error
}

// Job is the message describing a batch of requests
type Job struct {
	RequestSet common.RequestSet `json:"requests"`
	Options    Options           `json:"options"`
}
