// Package catalog defines the capability to check which scenes belong to an imagery collection
package catalog

import (
	"context"
	"fmt"

	"github.com/airbusgeo/geocube-s2chips/service"
)

// MembershipChecker returns the subset of ids that belong to the collection
type MembershipChecker interface {
	Members(ctx context.Context, collection string, ids []string) (service.StringSet, error)
}

// Collection is a named collection and the checker of its memberships
type Collection struct {
	Name    string
	Checker MembershipChecker
}

// Members returns the subset of ids that belong to the collection
func (c Collection) Members(ctx context.Context, ids []string) (service.StringSet, error) {
	if c.Checker == nil {
		return nil, fmt.Errorf("Members[%s]: no membership checker", c.Name)
	}
	members, err := c.Checker.Members(ctx, c.Name, ids)
	if err != nil {
		return nil, fmt.Errorf("Members[%s].%w", c.Name, err)
	}
	return members, nil
}

// Complement is a checker whose members are the requested ids that do not belong to the Of collection
// whatever the collection asked for.
type Complement struct {
	Of Collection
}

// Members implements MembershipChecker
func (c Complement) Members(ctx context.Context, collection string, ids []string) (service.StringSet, error) {
	members, err := c.Of.Members(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("Complement.%w", err)
	}
	complement := service.StringSet{}
	for _, id := range ids {
		if !members.Exists(id) {
			complement.Push(id)
		}
	}
	return complement, nil
}

// FallbackMode defines how the membership of the fallback collection is computed
type FallbackMode string

const (
	// FallbackQuery queries the fallback collection
	FallbackQuery FallbackMode = "query"
	// FallbackComplement considers that all the scenes not in the primary collection are in the fallback collection
	FallbackComplement FallbackMode = "complement"
)

// ParseFallbackMode parses the mode
func ParseFallbackMode(s string) (FallbackMode, error) {
	switch FallbackMode(s) {
	case FallbackQuery, FallbackComplement:
		return FallbackMode(s), nil
	}
	return "", fmt.Errorf("unknown fallback mode %q (expecting %s or %s)", s, FallbackQuery, FallbackComplement)
}

// NewFallback returns the fallback collection according to the mode
func NewFallback(mode FallbackMode, name string, checker MembershipChecker, primary Collection) Collection {
	if mode == FallbackComplement {
		return Collection{Name: name, Checker: Complement{Of: primary}}
	}
	return Collection{Name: name, Checker: checker}
}
