package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube-s2chips/interface/catalog"
	"github.com/airbusgeo/geocube-s2chips/interface/fetcher"
	"github.com/airbusgeo/geocube-s2chips/service/log"
	"github.com/airbusgeo/geocube-s2chips/service/metrics"
	"go.uber.org/zap"
)

// BuildRequests creates a request per row of the primary collection.
// Returns the requests and the rows that are not dispatched.
func BuildRequests(resolved []common.Resolved, primaryName string, spec common.ChipSpec) (common.RequestSet, []common.Resolved, error) {
	set := common.RequestSet{Requests: []common.CubeRequest{}}
	var dropped []common.Resolved
	prefix := primaryName + "/"
	for _, r := range resolved {
		if !strings.HasPrefix(r.CatalogPath, prefix) {
			dropped = append(dropped, r)
			continue
		}
		req, err := common.NewCubeRequest(r, spec)
		if err != nil {
			return common.RequestSet{}, nil, fmt.Errorf("BuildRequests.%w", err)
		}
		set.Requests = append(set.Requests, req)
	}
	return set, dropped, nil
}

// Dispatch hands the whole batch to the fetcher. An empty batch is not dispatched.
func Dispatch(ctx context.Context, f fetcher.CubeFetcher, set common.RequestSet, opts fetcher.Options) error {
	if set.Len() == 0 {
		log.Logger(ctx).Info("nothing to dispatch")
		return nil
	}
	log.Logger(ctx).Info("dispatching requests",
		zap.Int("requests", set.Len()),
		zap.String("output", opts.OutputPath),
		zap.Int("workers", opts.Workers),
		zap.Int("maxDeepLevel", opts.MaxDeepLevel))
	if err := f.GetCube(ctx, set, opts); err != nil {
		return fmt.Errorf("Dispatch.%w", err)
	}
	metrics.RequestsDispatched.Add(float64(set.Len()))
	return nil
}

// Dispatcher resolves the selections and dispatches the requests of the primary collection
type Dispatcher struct {
	Primary  catalog.Collection
	Fallback catalog.Collection
	Fetcher  fetcher.CubeFetcher
	Spec     common.ChipSpec
	Options  fetcher.Options
}

// Run resolves, filters and dispatches the selections. Returns the resolved rows.
func (d Dispatcher) Run(ctx context.Context, selections []common.Selection) ([]common.Resolved, error) {
	resolved, err := Resolve(ctx, selections, d.Primary, d.Fallback)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	set, dropped, err := BuildRequests(resolved, d.Primary.Name, d.Spec)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	for _, r := range dropped {
		log.Logger(ctx).Debug("not dispatched", zap.String("id", r.DownloadID), zap.String("image", r.CatalogPath))
	}
	metrics.RequestsDropped.Add(float64(len(dropped)))
	if err := Dispatch(ctx, d.Fetcher, set, d.Options); err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	return resolved, nil
}
