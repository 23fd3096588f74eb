// Package dispatcher resolves the collection of the selected scenes and hands the chip requests to the fetcher
package dispatcher

import (
	"context"
	"fmt"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube-s2chips/interface/catalog"
	"github.com/airbusgeo/geocube-s2chips/service"
	"github.com/airbusgeo/geocube-s2chips/service/log"
	"github.com/airbusgeo/geocube-s2chips/service/metrics"
	"go.uber.org/zap"
)

// Resolve finds the collection of each scene:
// primary if the scene belongs to it, else fallback if the scene belongs to it, else UNKNOWN.
// The input order is preserved.
func Resolve(ctx context.Context, selections []common.Selection, primary, fallback catalog.Collection) ([]common.Resolved, error) {
	if len(selections) == 0 {
		return nil, nil
	}
	ids := make([]string, len(selections))
	for i, s := range selections {
		ids[i] = s.SceneID
	}
	ids = service.Unique(ids)

	// Both collections are queried so that a permanent error is reported before a temporary one
	inPrimary, errPrimary := primary.Members(ctx, ids)
	inFallback, errFallback := fallback.Members(ctx, ids)
	if err := service.MergeErrors(true, errPrimary, errFallback); err != nil {
		return nil, fmt.Errorf("Resolve.%w", err)
	}

	resolved := make([]common.Resolved, len(selections))
	for i, s := range selections {
		collection := common.UnknownCollection
		switch {
		case inPrimary.Exists(s.SceneID):
			collection = primary.Name
		case inFallback.Exists(s.SceneID):
			collection = fallback.Name
		}
		metrics.ScenesResolved.WithLabelValues(collection).Inc()
		resolved[i] = common.Resolved{Selection: s, CatalogPath: common.CatalogPath(collection, s.SceneID)}
	}
	log.Logger(ctx).Info("scenes resolved",
		zap.Int("scenes", len(ids)),
		zap.Int(primary.Name, len(inPrimary)),
		zap.Int(fallback.Name, len(inFallback)))
	return resolved, nil
}
