// Package storagegroup resolves a tenant domain to the replication group
// that determines its keyspace naming, so many domains can share physical
// keyspaces instead of each minting its own.
package storagegroup

import (
	"fmt"
	"regexp"

	"github.com/axonops/revtable/internal/cache"
)

// Group maps a set of domain patterns to a single replication name.
type Group struct {
	Name    string
	Domains []string // literal domain, or a /regex/-delimited pattern
}

// Resolver resolves domains to storage groups, caching the result per
// domain since group membership never changes without a process restart.
type Resolver struct {
	groups []compiledGroup
	cache  *cache.StorageGroupCache
}

type compiledGroup struct {
	name     string
	literals map[string]bool
	patterns []*regexp.Regexp
}

// NewResolver compiles the configured groups. Literal domain entries of
// every group are checked before any pattern, so an exact entry always wins
// over a broader pattern; among patterns, the first matching group in config
// order wins.
func NewResolver(groups []Group) (*Resolver, error) {
	r := &Resolver{cache: cache.NewStorageGroupCache()}
	for _, g := range groups {
		cg := compiledGroup{name: g.Name, literals: map[string]bool{}}
		for _, d := range g.Domains {
			if len(d) >= 2 && d[0] == '/' && d[len(d)-1] == '/' {
				re, err := regexp.Compile(d[1 : len(d)-1])
				if err != nil {
					return nil, fmt.Errorf("storagegroup: group %q: invalid pattern %q: %w", g.Name, d, err)
				}
				cg.patterns = append(cg.patterns, re)
				continue
			}
			cg.literals[d] = true
		}
		r.groups = append(r.groups, cg)
	}
	return r, nil
}

// Resolve returns the replication group name for domain.
func (r *Resolver) Resolve(domain string) (string, error) {
	if name, ok := r.cache.Get(domain); ok {
		return name, nil
	}

	for _, g := range r.groups {
		if g.literals[domain] {
			r.cache.Set(domain, g.name)
			return g.name, nil
		}
	}
	for _, g := range r.groups {
		for _, re := range g.patterns {
			if re.MatchString(domain) {
				r.cache.Set(domain, g.name)
				return g.name, nil
			}
		}
	}

	// A domain with no explicit group is its own group, so single-tenant
	// deployments work without any storage_groups configuration at all.
	r.cache.Set(domain, domain)
	return domain, nil
}
