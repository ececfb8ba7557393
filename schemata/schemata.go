// Package schemata implements the applicable-schema-set computation (C5):
// given a value and a set of candidate schema URLs, widen that set with the
// value's declared resourceType, its meta.profile entries, and the base
// ancestors of everything resolved, so the element validator (C6) always has
// the full cooperating schema set for the value it is looking at.
package schemata

import (
	"github.com/buger/jsonparser"

	"github.com/gofhir/fschema"
	"github.com/gofhir/fschema/pkg/logger"
	"github.com/gofhir/fschema/schema"
)

// Resolver is the subset of registry.Registry the collector depends on.
type Resolver interface {
	Resolve(url string) (*schema.Schema, bool)
	ResolveType(name string) (*schema.Schema, bool)
}

// Collector computes applicable schema sets per §4.5.
type Collector struct {
	resolver Resolver
	log      *logger.Logger
}

// New creates a Collector backed by resolver.
func New(resolver Resolver) *Collector {
	return &Collector{resolver: resolver, log: logger.Default()}
}

// Set is a deduplicated, order-preserving collection of schemas plus the
// unresolved-URL issues accumulated while building it.
type Set struct {
	Schemas []*schema.Schema
	Issues  []fschema.Issue
	seen    map[string]bool
}

func newSet() *Set {
	return &Set{seen: map[string]bool{}}
}

func (s *Set) add(sc *schema.Schema) {
	if sc == nil || s.seen[sc.URL] {
		return
	}
	s.seen[sc.URL] = true
	s.Schemas = append(s.Schemas, sc)
}

func (s *Set) unknown(url, path string) {
	s.Issues = append(s.Issues, fschema.NewIssue(fschema.UnknownSchema).
		At(path).Message("could not resolve schema "+url).With("url", url).Build())
}

// resolveWithBase resolves url, adds the schema plus its transitive base
// ancestors, and records an UnknownSchema issue on a miss.
func (c *Collector) resolveWithBase(set *Set, url, path string) {
	if url == "" || set.seen[url] {
		return
	}
	sc, ok := c.resolver.Resolve(url)
	if !ok {
		set.unknown(url, path)
		return
	}
	c.addWithBase(set, sc, path)
}

func (c *Collector) addWithBase(set *Set, sc *schema.Schema, path string) {
	cur := sc
	for cur != nil {
		if set.seen[cur.URL] {
			return
		}
		set.add(cur)
		if cur.Base == "" {
			return
		}
		base, ok := c.resolver.Resolve(cur.Base)
		if !ok {
			set.unknown(cur.Base, path)
			return
		}
		cur = base
	}
}

// Collect resolves the initial URL seed list against a raw JSON document,
// widening it with resourceType and meta.profile, per §4.5 steps 1-3.
func (c *Collector) Collect(raw []byte, seedURLs []string, path string) *Set {
	set := newSet()
	for _, url := range seedURLs {
		c.resolveWithBase(set, url, path)
	}

	if resourceType, err := jsonparser.GetString(raw, "resourceType"); err == nil && resourceType != "" {
		if sc, ok := c.resolver.ResolveType(resourceType); ok {
			c.addWithBase(set, sc, path)
		} else {
			set.unknown("type:"+resourceType, path)
		}
	}

	if profiles, dataType, _, err := jsonparser.Get(raw, "meta", "profile"); err == nil && dataType == jsonparser.Array {
		_, _ = jsonparser.ArrayEach(profiles, func(value []byte, dt jsonparser.ValueType, offset int, e error) {
			url, perr := jsonparser.ParseString(value)
			if perr == nil && url != "" {
				c.resolveWithBase(set, url, path)
			}
		})
	}

	return set
}

// ForType resolves the schema declared by an element's `type` name and its
// base ancestors, widening `set` in place. Used at an element boundary
// (§4.5 step 4) before descending into a complex-typed value.
func (c *Collector) ForType(set *Set, typeName, path string) {
	if typeName == "" {
		return
	}
	sc, ok := c.resolver.ResolveType(typeName)
	if !ok {
		set.unknown("type:"+typeName, path)
		return
	}
	c.addWithBase(set, sc, path)
}

// ForRefers resolves each of an element's allowed reference target types,
// widening `set` in place (§4.5 step 4, `refers` constraints).
func (c *Collector) ForRefers(set *Set, refers []string, path string) {
	for _, t := range refers {
		if sc, ok := c.resolver.ResolveType(t); ok {
			c.addWithBase(set, sc, path)
		}
	}
}

// ForExtension resolves the extension definition named by a `url` field
// found on a value at an extension slot (§4.5 step 5).
func (c *Collector) ForExtension(set *Set, url, path string) {
	c.resolveWithBase(set, url, path)
}
