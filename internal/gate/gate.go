// Package gate implements the per-request access decision for the gateway.
//
// Purpose:
//   Every inbound request to a gated route passes through this package. The
//   decision itself is a pure function over four inputs (identity presence,
//   route category, whether a verified TOTP factor exists, and the session's
//   assurance level) encoded as an ordered rule table. The HTTP middleware
//   around it gathers those inputs from the SessionAuthority and FactorStore
//   and turns the decision into a forward or a redirect.
//
// Key Responsibilities:
//   - Classify paths into public / mfa-flow / protected (routes.go)
//   - Decide access as a first-match-wins walk of the rule table (gate.go)
//   - Read the session cookie through an explicit codec (cookies.go)
//   - Enforce the decision as chi middleware, failing closed when an upstream
//     lookup errors (middleware.go)
//
// Debugging Notes:
//   - Rule order is load-bearing: the anonymous-on-protected rule must precede
//     the anonymous-on-mfa rule so an anonymous caller always lands on /login,
//     and the step-up rule runs before any forward so elevation is checked on
//     every request, never cached
//   - The gate is read-only: it never mutates session or factor state
//   - Decisions carry the matched rule name; it appears in logs and metrics
//
// Thread Safety:
//   - Decide is a pure function; the middleware holds no per-request state
//     outside the request itself
//
// Error Handling:
//   - Upstream errors never degrade to allow. A failed factor lookup on a
//     protected route redirects to step-up verification; a failed session
//     lookup is treated as anonymous
package gate

// Action is the outcome kind of a gate decision.
type Action int

const (
	// ActionAllow forwards the request unchanged.
	ActionAllow Action = iota
	// ActionRedirect sends the caller to Decision.Target.
	ActionRedirect
)

// Targets holds the redirect destinations used by the decision table.
type Targets struct {
	Login  string // password login
	Enroll string // factor enrollment
	Verify string // step-up verification
	Home   string // protected application home
}

// DefaultTargets are the gateway's standard destinations.
var DefaultTargets = Targets{
	Login:  "/login",
	Enroll: "/mfa/setup",
	Verify: "/mfa/verify",
	Home:   "/leads",
}

// Input is everything the decision function may consult. Assurance and
// HasVerifiedFactor must be freshly read for the current request.
type Input struct {
	// Authenticated reports whether the request carries a resolvable session.
	Authenticated bool
	// Path is the request path, used only for the exact verify-page check.
	Path string
	// Category is the route classification of Path.
	Category RouteCategory
	// HasVerifiedFactor reports whether the identity holds at least one
	// verified TOTP factor. Meaningful only when Authenticated.
	HasVerifiedFactor bool
	// Elevated reports whether the session assurance level is AAL2.
	// Meaningful only when Authenticated.
	Elevated bool
}

// Decision is the gate's verdict for one request.
type Decision struct {
	Action Action
	// Target is the redirect destination when Action is ActionRedirect.
	Target string
	// Rule names the table entry that matched, for logs and metrics.
	Rule string
}

// rule is one entry of the decision table.
type rule struct {
	name  string
	match func(Input, Targets) bool
	apply func(Targets) Decision
}

// rules is the ordered decision table. First match wins. The ordering is an
// invariant: reordering entries changes observable behavior.
var rules = []rule{
	{
		// Anonymous callers never see protected content.
		name: "anonymous-protected",
		match: func(in Input, _ Targets) bool {
			return !in.Authenticated && in.Category == RouteProtected
		},
		apply: func(t Targets) Decision {
			return Decision{Action: ActionRedirect, Target: t.Login, Rule: "anonymous-protected"}
		},
	},
	{
		// A signed-in caller has no business on the login page.
		name: "authenticated-public",
		match: func(in Input, _ Targets) bool {
			return in.Authenticated && in.Category == RoutePublic
		},
		apply: func(t Targets) Decision {
			return Decision{Action: ActionRedirect, Target: t.Home, Rule: "authenticated-public"}
		},
	},
	{
		// A verified factor exists but this session has not proven it yet:
		// force step-up before any protected content. Checked per request.
		name: "step-up-required",
		match: func(in Input, _ Targets) bool {
			return in.Authenticated && in.Category == RouteProtected &&
				in.HasVerifiedFactor && !in.Elevated
		},
		apply: func(t Targets) Decision {
			return Decision{Action: ActionRedirect, Target: t.Verify, Rule: "step-up-required"}
		},
	},
	{
		// Anonymous callers on MFA pages go back to login. Must come after
		// anonymous-protected so the protected case takes priority.
		name: "anonymous-mfa",
		match: func(in Input, _ Targets) bool {
			return !in.Authenticated && in.Category == RouteMFAFlow
		},
		apply: func(t Targets) Decision {
			return Decision{Action: ActionRedirect, Target: t.Login, Rule: "anonymous-mfa"}
		},
	},
	{
		// Already elevated: nothing to verify, go to the app.
		name: "already-elevated",
		match: func(in Input, t Targets) bool {
			return in.Authenticated && in.Path == t.Verify && in.Elevated
		},
		apply: func(t Targets) Decision {
			return Decision{Action: ActionRedirect, Target: t.Home, Rule: "already-elevated"}
		},
	},
}

// Decide maps the gathered inputs to an allow or redirect. Pure: no side
// effects, no state reads beyond Input.
func Decide(in Input, t Targets) Decision {
	for _, r := range rules {
		if r.match(in, t) {
			return r.apply(t)
		}
	}
	return Decision{Action: ActionAllow, Rule: "allow"}
}
