package fastcgi

import "github.com/pkg/errors"

// Sentinel errors for the FastCGI leg of a request, mirroring the taxonomy
// in spec.md §7. Compare with errors.Is/errors.Cause after unwrapping.
var (
	// errProtocolViolation is returned when the responder sends a record
	// that doesn't belong to the in-flight request, or a record type the
	// driver doesn't expect at that point in the exchange.
	errProtocolViolation = errors.New("fastcgi: protocol violation")

	// errUpstreamDisappeared is returned when the connection to the
	// application server closes or errors before an END_REQUEST record
	// arrives.
	errUpstreamDisappeared = errors.New("fastcgi: application server disappeared")
)
