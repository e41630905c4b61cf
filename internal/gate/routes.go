package gate

import "strings"

// RouteCategory is the static classification of a request path. It is derived
// purely from path prefix matching and drives the gate's decision table.
type RouteCategory string

const (
	// RoutePublic covers paths reachable without a session (the login flow).
	RoutePublic RouteCategory = "public"
	// RouteMFAFlow covers the factor enrollment and step-up verification paths.
	RouteMFAFlow RouteCategory = "mfa-flow"
	// RouteProtected covers everything else behind the gate.
	RouteProtected RouteCategory = "protected"
)

// routeRule maps a path prefix to a category. Rules are evaluated top to
// bottom; the first matching prefix wins.
type routeRule struct {
	prefix   string
	category RouteCategory
}

// defaultRouteRules is the ordered classification table. Matching is
// case-sensitive. Paths that bypass the gate entirely (/api, static assets,
// favicon) never reach Classify because they are mounted outside the gated
// router group.
var defaultRouteRules = []routeRule{
	{prefix: "/login", category: RoutePublic},
	{prefix: "/mfa", category: RouteMFAFlow},
	// Logout must stay reachable from the step-up page, so it cannot be
	// protected: an unelevated session would be bounced to /mfa/verify and
	// could never sign out.
	{prefix: "/logout", category: RouteMFAFlow},
}

// Classify returns the route category for a path.
func Classify(path string) RouteCategory {
	for _, r := range defaultRouteRules {
		if strings.HasPrefix(path, r.prefix) {
			return r.category
		}
	}
	return RouteProtected
}
