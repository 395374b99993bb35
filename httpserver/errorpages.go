package httpserver

import (
	"strconv"
	"strings"
)

// Canned error bodies. Content-Length is computed from these at send time
// rather than hard-coded, fixing the drift bug spec.md's design notes
// describe (the original's hand-counted lengths didn't match the bodies).
const (
	body500 = "<!doctype html><html><head><title>Error</title></head><body><h1>Internal Error</h1><p>Something went wrong on my side.</p><p>There's nothing you can do; maybe come back later.</p></body></html>"
	body405 = "<!doctype html><html><head><title>Error</title></head><body><h1>Method Not Allowed</h1><p>This server only understands <code>GET</code> requests. Sorry about that.</p></body></html>"
	body404 = "<!doctype html><html><head><title>Error</title></head><body><h1>Not Found</h1><p>I couldn't find that file. Sorry.</p></body></html>"
	body403 = "<!doctype html><html><head><title>Error</title></head><body><h1>Forbidden</h1><p>You don't have permission to view that file. Sorry.</p></body></html>"
	body400 = "<!doctype html><html><head><title>Error</title></head><body><h1>Bad Request</h1><p>Your request had some kind of bad syntax. Are you using netcat?</p></body></html>"
	body414 = "<!doctype html><html><head><title>Error</title></head><body><h1>Request-URI Too Long</h1><p>Your request's header block was too large.</p></body></html>"
)

func sendErrorPage(res *FreshResponse, code int, reason, body string) {
	res.SetStatus(code, reason)
	headers := res.Headers()
	headers.InsertString("Content-Type", "text/html")
	headers.InsertString("Content-Length", strconv.Itoa(len(body)))

	_ = res.OfStream(strings.NewReader(body))
}

// Error500 sends a 500 Internal Error response.
func Error500(res *FreshResponse) { sendErrorPage(res, 500, "Internal Error", body500) }

// Error405 sends a 405 Method Not Allowed response.
func Error405(res *FreshResponse) { sendErrorPage(res, 405, "Method not allowed", body405) }

// Error404 sends a 404 Not Found response.
func Error404(res *FreshResponse) { sendErrorPage(res, 404, "Not Found", body404) }

// Error403 sends a 403 Forbidden response.
func Error403(res *FreshResponse) { sendErrorPage(res, 403, "Forbidden", body403) }

// Error400 sends a 400 Bad Request response.
func Error400(res *FreshResponse) { sendErrorPage(res, 400, "Bad Request", body400) }

// Error414 sends a 414 Request-URI Too Long response, for a request whose
// header block exceeded maxHeaderBytes (spec.md §7's RequestLineTooLong).
func Error414(res *FreshResponse) { sendErrorPage(res, 414, "Request-URI Too Long", body414) }
