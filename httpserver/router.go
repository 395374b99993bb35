package httpserver

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Handler serves a request, writing a response to res.
type Handler interface {
	Serve(req *Request, res *FreshResponse)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(req *Request, res *FreshResponse)

// Serve implements Handler.
func (f HandlerFunc) Serve(req *Request, res *FreshResponse) { f(req, res) }

// Router matches a request-target against installed routes, in the order
// they were added, and dispatches to the first one whose path is a prefix
// of the request-target.
type Router struct {
	routes []route
	log    logrus.FieldLogger
}

type route struct {
	path     string
	handlers methodDispatch
}

type methodDispatch struct {
	any      Handler // set if this route dispatches regardless of method
	specific map[string]Handler
}

// NewRouter returns an empty Router.
func NewRouter(log logrus.FieldLogger) *Router {
	return &Router{log: log}
}

// RouteAny installs a handler invoked for every method under path.
func (r *Router) RouteAny(path string, h Handler) {
	r.routes = append(r.routes, route{path: path, handlers: methodDispatch{any: h}})
}

// Route installs a handler invoked only for the given method under path.
// Calling Route for a path that already has a RouteAny handler panics —
// that's a programming error in how the server is wired up, not a runtime
// condition a client can trigger. RouteAny itself does no such check: it
// always appends a new route.
func (r *Router) Route(path, method string, h Handler) {
	for i := range r.routes {
		if r.routes[i].path != path {
			continue
		}

		if r.routes[i].handlers.any != nil {
			panic("httpserver: tried to add a universal and method-specific route for the same prefix")
		}

		if r.routes[i].handlers.specific == nil {
			r.routes[i].handlers.specific = make(map[string]Handler)
		}
		r.routes[i].handlers.specific[method] = h
		return
	}

	r.routes = append(r.routes, route{
		path: path,
		handlers: methodDispatch{
			specific: map[string]Handler{method: h},
		},
	})
}

// Serve implements Handler, dispatching to the first matching route, or a
// 404 if none match.
func (r *Router) Serve(req *Request, res *FreshResponse) {
	requestPath := string(req.RequestURI())

	for _, rt := range r.routes {
		if pathHasPrefix(requestPath, rt.path) {
			rt.handlers.serve(req, res, r.log)
			return
		}
	}

	Error404(res)
}

func (d methodDispatch) serve(req *Request, res *FreshResponse, log logrus.FieldLogger) {
	if d.any != nil {
		d.any.Serve(req, res)
		return
	}

	if h, ok := d.specific[req.Method()]; ok {
		h.Serve(req, res)
		return
	}

	Error405(res)
}

// pathHasPrefix reports whether requestPath is prefixed by routePath on a
// '/'-segment boundary, matching filepath-style prefix semantics rather
// than a bare string prefix (so "/htmlx" doesn't match route "/html").
//
// requestPath comes from Request.RequestURI(), which normalizePath has
// already stripped its leading '/' from; routePath is registered the way
// callers write it (e.g. "/html"), leading slash and all, so it's trimmed
// here to compare on the same footing.
func pathHasPrefix(requestPath, routePath string) bool {
	routePath = strings.TrimPrefix(routePath, "/")
	if routePath == "" {
		return true
	}

	trimmed := strings.TrimSuffix(routePath, "/")

	if requestPath == trimmed {
		return true
	}

	return strings.HasPrefix(requestPath, trimmed+"/")
}
