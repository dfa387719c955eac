// Package access classifies page requests before any business logic runs.
// It is a pure function of the caller's identity and the requested path.
package access

import (
	"net/url"
	"strings"
)

const (
	SignInPath = "/auth/signin"
	SignUpPath = "/auth/signup"
	HomePath   = "/"
)

type Identity struct {
	Authenticated bool
	Admin         bool
}

type Decision struct {
	Redirect string
}

func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

var allow = Decision{}

// reserved segments under /events that are pages of their own rather than
// event codes.
var reservedEventPages = map[string]struct{}{
	"create": {},
	"join":   {},
}

func Decide(id Identity, path string) Decision {
	path = cleanPath(path)

	isAdminArea := path == "/admin" || strings.HasPrefix(path, "/admin/")

	if !id.Authenticated {
		switch {
		case isAdminArea, path == "/dashboard":
			return Decision{Redirect: SignInPath}
		case path == "/events/create":
			return Decision{Redirect: SignUpPath}
		}
		if code, ok := eventManagementCode(path); ok {
			return Decision{Redirect: CapturePath(code)}
		}
		return allow
	}

	if isAdminArea && !id.Admin {
		return Decision{Redirect: HomePath}
	}
	return allow
}

func CapturePath(code string) string {
	return "/capture/" + url.PathEscape(code)
}

// eventManagementCode reports whether path is the owner view of an event,
// /events/{code}, as opposed to its capture, invite or gallery pages.
func eventManagementCode(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/events/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	if _, reserved := reservedEventPages[rest]; reserved {
		return "", false
	}
	code, err := url.PathUnescape(rest)
	if err != nil || code == "" {
		return "", false
	}
	return code, true
}

func cleanPath(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
