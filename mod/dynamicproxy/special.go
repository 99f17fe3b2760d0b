package dynamicproxy

import (
	"errors"
	"net/http"
	"path"
	"strings"
)

/*
	Special.go

	The route table of the encrypted listener. Rules are evaluated
	in order, the first match decide the cache class of the
	response. Requests matching no rule use the catch-all rule
*/

type RoutingRule struct {
	ID        string
	Class     CacheClass
	MatchRule func(r *http.Request) bool
	Enabled   bool
}

var (
	StaticExtensions = []string{".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".ico", ".svg"}
	MarkupExtensions = []string{".html", ".htm"}
)

// DefaultRoutingRules return the static asset rule followed by the markup rule
func DefaultRoutingRules() []*RoutingRule {
	return []*RoutingRule{
		{
			ID:        "static-assets",
			Class:     ClassStatic,
			MatchRule: extensionMatcher(StaticExtensions),
			Enabled:   true,
		},
		{
			ID:        "markup",
			Class:     ClassMarkup,
			MatchRule: extensionMatcher(MarkupExtensions),
			Enabled:   true,
		},
	}
}

func catchAllRule() *RoutingRule {
	return &RoutingRule{
		ID:        "dynamic",
		Class:     ClassDynamic,
		MatchRule: func(r *http.Request) bool { return true },
		Enabled:   true,
	}
}

// Case insensitive match on the extension of the request path
func extensionMatcher(extensions []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	return func(r *http.Request) bool {
		ext := path.Ext(r.URL.Path)
		if ext == "" {
			return false
		}
		return allowed[strings.ToLower(ext)]
	}
}

// Router functions
// Check if a routing rule exists given its id
func (router *Router) GetRoutingRuleById(rrid string) (*RoutingRule, error) {
	for _, rr := range router.routingRules {
		if rr.ID == rrid {
			return rr, nil
		}
	}

	return nil, errors.New("routing rule with given id not found")
}

// Add a routing rule to the end of the router table, before the catch-all.
// Must be called before the router starts
func (router *Router) AddRoutingRules(rr *RoutingRule) error {
	if _, err := router.GetRoutingRuleById(rr.ID); err == nil {
		return errors.New("routing rule with id " + rr.ID + " already exists")
	}

	router.routingRules = append(router.routingRules, rr)
	return nil
}

// Get all routing rules, the catch-all rule last
func (router *Router) GetAllRoutingRules() []*RoutingRule {
	rules := make([]*RoutingRule, 0, len(router.routingRules)+1)
	rules = append(rules, router.routingRules...)
	return append(rules, router.defaultRule)
}

// Get the matching routing rule that describe this request.
// Fall back to the catch-all rule if nothing else match
func (router *Router) GetMatchingRoutingRule(r *http.Request) *RoutingRule {
	for _, thisRr := range router.routingRules {
		if thisRr.IsMatch(r) {
			return thisRr
		}
	}
	return router.defaultRule
}

// Routing Rule functions
// Check if a request object match the rule
func (e *RoutingRule) IsMatch(r *http.Request) bool {
	if !e.Enabled {
		return false
	}
	return e.MatchRule(r)
}
