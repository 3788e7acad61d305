package audit

import (
	"net/http"
	"strings"
)

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseRoute returns action and resource for an HTTP method and route pattern
// (e.g. POST /registration/verify -> verify on registration, DELETE /credentials/{id} -> delete on credentials).
// The resource is the first path segment; the action comes from the method, or the last
// static segment for POST.
func ParseRoute(method, pattern string) ActionResource {
	var segments []string
	for _, s := range strings.Split(strings.Trim(pattern, "/"), "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	resource := segments[0]
	last := segments[len(segments)-1]
	isParam := strings.HasPrefix(last, "{")

	switch method {
	case http.MethodGet:
		if isParam {
			return ActionResource{Action: "get", Resource: resource}
		}
		if len(segments) > 1 {
			return ActionResource{Action: last, Resource: resource}
		}
		return ActionResource{Action: "list", Resource: resource}
	case http.MethodDelete:
		return ActionResource{Action: "delete", Resource: resource}
	case http.MethodPut, http.MethodPatch:
		return ActionResource{Action: "update", Resource: resource}
	case http.MethodPost:
		if len(segments) > 1 && !isParam {
			return ActionResource{Action: last, Resource: resource}
		}
		return ActionResource{Action: "create", Resource: resource}
	}
	return ActionResource{Action: strings.ToLower(method), Resource: resource}
}
