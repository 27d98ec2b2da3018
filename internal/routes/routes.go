// Package routes holds the static page classification the route guard and
// the HTTP client consult. It is its own package so the HTTP client can
// check the current route on a 401 without importing the guard.
package routes

import "strings"

const (
	Home         = "/index.html"
	Login        = "/login.html"
	Register     = "/register.html"
	Profile      = "/profile.html"
	Subscription = "/subscription.html"
	Codes        = "/codes.html"
)

var protected = map[string]bool{
	Profile:      true,
	Subscription: true,
}

var authPages = map[string]bool{
	Login:    true,
	Register: true,
}

// postLoginDestinations is the fixed set of paths a consumed intended-path
// redirect may resolve to. Anything else falls back to the profile page.
var postLoginDestinations = map[string]bool{
	Profile:      true,
	Subscription: true,
	Home:         true,
}

// Normalize strips any query or fragment and maps the bare root to the home
// page, matching how the pages are actually addressed.
func Normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return Home
	}
	return path
}

func IsProtected(path string) bool {
	return protected[Normalize(path)]
}

func IsAuthPage(path string) bool {
	return authPages[Normalize(path)]
}

func IsPostLoginDestination(path string) bool {
	return postLoginDestinations[Normalize(path)]
}
