// Package file checks the membership of scenes in collections listed in text files (one scene id per line)
package file

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/airbusgeo/geocube-s2chips/service"
)

// Checker implements catalog.MembershipChecker with lists stored in <root>/<collection>.txt
// (slashes of the collection name replaced by underscores)
type Checker struct {
	storage service.Storage
	root    string
	mu      sync.Mutex
	lists   map[string]service.StringSet
}

// NewChecker creates a checker on a root that can be a local directory, a gs:// or s3:// prefix
func NewChecker(storage service.Storage, root string) *Checker {
	return &Checker{storage: storage, root: strings.TrimSuffix(root, "/"), lists: map[string]service.StringSet{}}
}

// ListURI returns the uri of the list of the collection
func (c *Checker) ListURI(collection string) string {
	return c.root + "/" + strings.ReplaceAll(collection, "/", "_") + ".txt"
}

// Members implements catalog.MembershipChecker. A missing list is an empty collection.
func (c *Checker) Members(ctx context.Context, collection string, ids []string) (service.StringSet, error) {
	list, err := c.load(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("Members.%w", err)
	}
	members := service.StringSet{}
	for _, id := range ids {
		if list.Exists(id) {
			members.Push(id)
		}
	}
	return members, nil
}

func (c *Checker) load(ctx context.Context, collection string) (service.StringSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if list, ok := c.lists[collection]; ok {
		return list, nil
	}
	list := service.StringSet{}
	r, err := service.Open(ctx, c.storage, c.ListURI(collection))
	if err != nil {
		var enf service.ErrFileNotFound
		if !errors.As(err, &enf) {
			return nil, fmt.Errorf("load.%w", err)
		}
		c.lists[collection] = list
		return list, nil
	}
	defer r.Close()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" && !strings.HasPrefix(id, "#") {
			list.Push(id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	c.lists[collection] = list
	return list, nil
}
