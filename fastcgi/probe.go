package fastcgi

import (
	"net"

	"github.com/pkg/errors"
)

// Probe opens a short-lived connection to a FastCGI application server and
// issues an FCGI_GET_VALUES query for FCGI_MAX_CONNS, FCGI_MAX_REQS, and
// FCGI_MPXS_CONNS, returning whatever the responder reports back. It exists
// purely as an operational sanity check (the fcgi-probe CLI subcommand); the
// request/response driver never needs FCGI_GET_VALUES.
func Probe(addr string) (map[string]string, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "fastcgi: dial upstream")
	}
	defer nc.Close()

	c := newConn(nc)
	if err := c.writeGetValues(varMaxConns, varMaxReqs, varMpxsConns); err != nil {
		return nil, errors.Wrap(err, "fastcgi: sending FCGI_GET_VALUES")
	}

	reader := newStreamReader(nc)

	var content []byte
	for {
		rec, err := reader.next()
		if err != nil {
			return nil, errors.Wrap(err, "fastcgi: reading FCGI_GET_VALUES_RESULT")
		}

		if rec.h.Type != typeGetValuesResult {
			return nil, errors.Wrapf(errProtocolViolation, "expected FCGI_GET_VALUES_RESULT, got %s", rec.h.Type)
		}

		content = append(content, rec.content()...)
		if rec.h.ContentLength < maxWrite {
			break
		}
	}

	return readNameValuePairs(content)
}
