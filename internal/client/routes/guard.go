package routes

import "strings"

// Viewer is who is asking for a route.
type Viewer struct {
	SignedIn bool
	Staff    bool
	// Loading is set while the session is still being restored.
	Loading bool
}

// Decision is the outcome of a guard.
type Decision struct {
	Allow bool
	// Wait is set while the viewer is still loading; nothing is shown yet.
	Wait bool
	// Redirect is where to go instead when not allowed.
	Redirect string
	// From is the location to return to after signing in.
	From string
}

// Guard decides whether v may open m. Signed-out viewers of protected routes
// go to the login page, remembering where they were headed; signed-in
// non-staff viewers of staff routes go home.
func Guard(m Match, v Viewer) Decision {
	if m.Route == nil {
		return Decision{Redirect: Home}
	}
	if m.Route.Access == Public {
		return Decision{Allow: true}
	}
	if v.Loading {
		return Decision{Wait: true}
	}
	if !v.SignedIn {
		return Decision{Redirect: Login, From: m.Location()}
	}
	if m.Route.Access == Staff && !v.Staff {
		return Decision{Redirect: Home}
	}
	return Decision{Allow: true}
}

// Resolve looks up location and guards it. Unknown locations redirect home.
func Resolve(location string, v Viewer) (Match, Decision) {
	m, ok := Lookup(location)
	if !ok {
		return Match{}, Decision{Redirect: Home}
	}
	return m, Guard(m, v)
}

// AfterLogin is where to go once signed in: back to from, unless from is
// empty or the login page itself, in which case the account page.
func AfterLogin(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return Account
	}
	if m, ok := Lookup(from); ok && m.Path == Login {
		return Account
	}
	return from
}
