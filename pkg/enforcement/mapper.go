//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package enforcement implements the Policy Enforcement Point side of the
// gateway: mapping inbound HTTP requests into decision requests and
// enforcing the resulting decisions as HTTP middleware.
package enforcement

import (
	"os"
	"strings"

	"github.com/manetu/policygateway/internal/logging"
	"github.com/manetu/policygateway/pkg/common"
	"github.com/manetu/policygateway/pkg/pdp"
)

var logger = logging.GetLogger("policygateway.enforcement")

// Rule is a declarative mapping from a path pattern to a resource
// identifier template.
//
// Patterns are matched segment-wise: a literal segment must match exactly,
// ':name' captures a single segment, and '**' matches any run of segments
// (including none). Captures are available to the resource template as
// '${name}'.
//
// Rules are evaluated in order and the first match wins. Overlapping
// patterns are deliberately resolved by order rather than specificity to
// keep mapping deterministic and testable.
type Rule struct {
	Pattern  string `yaml:"pattern"`
	Resource string `yaml:"resource"`
}

// DefaultRules returns the built-in rule set: document ownership paths map
// to a 'document:<id>' identifier, anything else under a users prefix maps
// to the coarse 'user-api' sentinel. Paths matching no rule fall back to
// the raw path string.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "**/users/:userId/documents/:docId", Resource: "document:${docId}"},
		{Pattern: "**/users/**", Resource: "user-api"},
	}
}

type compiledRule struct {
	segments []string
	resource string
}

// Mapper derives decision requests from inbound request attributes.
// The rule set is immutable after construction, so concurrent use
// requires no locking.
type Mapper struct {
	rules []compiledRule
}

// NewMapper compiles an ordered rule set into a Mapper.
func NewMapper(rules []Rule) (*Mapper, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, common.NewError(common.ReasonInvalidInput, "mapping rule pattern must not be empty")
		}
		if strings.TrimSpace(r.Resource) == "" {
			return nil, common.NewErrorf(common.ReasonInvalidInput, "mapping rule %q has no resource template", r.Pattern)
		}
		compiled = append(compiled, compiledRule{
			segments: splitPath(r.Pattern),
			resource: r.Resource,
		})
	}
	return &Mapper{rules: compiled}, nil
}

// ActionFor derives the abstract action from an HTTP method. Unknown
// methods map to "unknown" rather than failing; policies may define
// behavior for them.
func ActionFor(method string) string {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS":
		return "read"
	case "POST", "PUT", "PATCH", "DELETE":
		return "write"
	default:
		return "unknown"
	}
}

// Map derives a decision request from the verified identity and the
// request's method and path. The subject is taken verbatim from the
// identity; Map never performs authentication. A missing identity fails
// with [common.ReasonMissingIdentity], which callers must surface as
// authentication-required rather than access-denied.
func (m *Mapper) Map(id Identity, method, path string) (pdp.Request, error) {
	if id.Subject == "" {
		return pdp.Request{}, common.NewError(common.ReasonMissingIdentity, "no verified identity available")
	}

	return pdp.Request{
		Subject:  id.Subject,
		Action:   ActionFor(method),
		Resource: m.resolve(path),
	}, nil
}

func (m *Mapper) resolve(path string) string {
	segments := splitPath(path)
	for _, rule := range m.rules {
		if captures, ok := match(rule.segments, segments); ok {
			return os.Expand(rule.resource, func(name string) string {
				return captures[name]
			})
		}
	}
	return path
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// match evaluates a compiled pattern against path segments, returning the
// captured segments on success. '**' backtracks over the shortest run
// first, so captures bind to the leftmost occurrence.
func match(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) == 0 {
		if len(segments) == 0 {
			return map[string]string{}, true
		}
		return nil, false
	}

	head := pattern[0]
	if head == "**" {
		for i := 0; i <= len(segments); i++ {
			if captures, ok := match(pattern[1:], segments[i:]); ok {
				return captures, true
			}
		}
		return nil, false
	}

	if len(segments) == 0 {
		return nil, false
	}

	if name, isCapture := strings.CutPrefix(head, ":"); isCapture {
		if captures, ok := match(pattern[1:], segments[1:]); ok {
			captures[name] = segments[0]
			return captures, true
		}
		return nil, false
	}

	if head != segments[0] {
		return nil, false
	}
	return match(pattern[1:], segments[1:])
}
