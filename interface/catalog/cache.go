package catalog

import (
	"context"
	"fmt"

	"github.com/airbusgeo/geocube-s2chips/service"
	lru "github.com/hashicorp/golang-lru"
)

// Cache is a MembershipChecker that memoizes the answers of another checker
type Cache struct {
	checker MembershipChecker
	cache   *lru.Cache
}

// NewCache wraps the checker with a LRU cache of size entries
func NewCache(checker MembershipChecker, size int) (*Cache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("NewCache: %w", err)
	}
	return &Cache{checker: checker, cache: c}, nil
}

func cacheKey(collection, id string) string {
	return collection + "/" + id
}

// Members implements MembershipChecker. Only the ids that are not in the cache are checked.
func (c *Cache) Members(ctx context.Context, collection string, ids []string) (service.StringSet, error) {
	members := service.StringSet{}
	var missing []string
	for _, id := range service.Unique(ids) {
		v, ok := c.cache.Get(cacheKey(collection, id))
		if !ok {
			missing = append(missing, id)
			continue
		}
		if v.(bool) {
			members.Push(id)
		}
	}
	if len(missing) == 0 {
		return members, nil
	}

	found, err := c.checker.Members(ctx, collection, missing)
	if err != nil {
		return nil, err
	}
	for _, id := range missing {
		isMember := found.Exists(id)
		c.cache.Add(cacheKey(collection, id), isMember)
		if isMember {
			members.Push(id)
		}
	}
	return members, nil
}
