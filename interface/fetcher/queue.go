package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airbusgeo/geocube-s2chips/common"
	"github.com/airbusgeo/geocube/interface/messaging"
)

// Queue publishes the batch as a single Job on a messaging queue consumed by the fetch workers
type Queue struct {
	Publisher messaging.Publisher
}

// GetCube implements CubeFetcher
func (q Queue) GetCube(ctx context.Context, set common.RequestSet, opts Options) error {
	data, err := json.Marshal(Job{RequestSet: set, Options: opts})
	if err != nil {
		return fmt.Errorf("GetCube.Marshal: %w", err)
	}
	if err := q.Publisher.Publish(ctx, data); err != nil {
		return fmt.Errorf("GetCube.Publish: %w", err)
	}
	return nil
}
