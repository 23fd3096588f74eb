// Package earthengine checks the membership of scenes in Earth Engine image collections
package earthengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/airbusgeo/geocube-s2chips/service"
	"github.com/airbusgeo/geocube-s2chips/service/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	earthengine "google.golang.org/api/earthengine/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// PublicAssetsRoot is the root of the Earth Engine public catalog
const PublicAssetsRoot = "projects/earthengine-public/assets"

// Checker implements catalog.MembershipChecker using the Earth Engine REST API.
// A scene is a member of a collection if the asset <collection>/<scene> exists.
type Checker struct {
	svc         *earthengine.Service
	parallelism int
}

// NewChecker creates a Checker with at most parallelism concurrent lookups
func NewChecker(ctx context.Context, parallelism int, opts ...option.ClientOption) (*Checker, error) {
	svc, err := earthengine.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewChecker.NewService: %w", err)
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Checker{svc: svc, parallelism: parallelism}, nil
}

// NewSessionChecker creates a Checker authenticated by the session
func NewSessionChecker(ctx context.Context, session *Session, parallelism int) (*Checker, error) {
	opts, err := session.ClientOptions()
	if err != nil {
		return nil, fmt.Errorf("NewSessionChecker.%w", err)
	}
	return NewChecker(ctx, parallelism, opts...)
}

// AssetName returns the name of the asset of the scene
func AssetName(collection, sceneID string) string {
	return PublicAssetsRoot + "/" + collection + "/" + sceneID
}

// Members implements catalog.MembershipChecker
func (c *Checker) Members(ctx context.Context, collection string, ids []string) (service.StringSet, error) {
	members := service.StringSet{}
	mu := sync.Mutex{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for _, id := range service.Unique(ids) {
		id := id
		g.Go(func() error {
			ok, err := c.exists(gctx, AssetName(collection, id))
			if err != nil {
				return fmt.Errorf("Members[%s]: %w", id, err)
			}
			if ok {
				mu.Lock()
				members.Push(id)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Logger(ctx).Debug("collection membership", zap.String("collection", collection), zap.Int("requested", len(ids)), zap.Int("members", len(members)))
	return members, nil
}

func (c *Checker) exists(ctx context.Context, name string) (bool, error) {
	_, err := c.svc.Projects.Assets.Get(name).Context(ctx).Fields("name").Do()
	if err == nil {
		return true, nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return false, nil
	}
	if service.Temporary(err) {
		return false, service.MakeTemporary(err)
	}
	return false, err
}
