package httpserver

import (
	"bufio"
	"io"
	"net"
	"net/textproto"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedRequest is returned when the request line or header block
// can't be parsed as HTTP/1.1.
var ErrMalformedRequest = errors.New("httpserver: malformed request")

// ErrRequestLineTooLong is returned when the request line plus header block
// exceeds maxHeaderBytes before the terminating blank line is seen.
var ErrRequestLineTooLong = errors.New("httpserver: request header block too long")

// maxHeaderBytes bounds the request line plus header block, per spec.md §7.
const maxHeaderBytes = 8000

// Request is an incoming request from a client connection.
//
// It also implements io.Reader, giving handlers access to whatever of the
// request body hasn't yet been consumed (the FastCGI driver uses this to
// stream the body upstream; the static handler never reads it).
type Request struct {
	method string
	path   []byte // normalized, decoded request-target
	rawURI string // as it appeared on the wire, for PATH_INFO/QUERY_STRING
	headers Headers

	rest *bufio.Reader

	RemoteAddr net.Addr
	LocalPort  uint16
}

// ParseRequest reads and parses a single HTTP/1.1 request from conn. The
// returned Request borrows conn for any remaining body bytes.
func ParseRequest(conn net.Conn) (*Request, error) {
	reader := bufio.NewReaderSize(conn, maxHeaderBytes+bufio.MaxScanTokenSize)
	tp := textproto.NewReader(reader)

	requestLine, err := tp.ReadLine()
	if err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Wrap(ErrMalformedRequest, err.Error())
	}

	method, rawURI, ok := parseRequestLine(requestLine)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedRequest, "bad request line %q", requestLine)
	}

	consumed := len(requestLine) + len("\r\n")
	if consumed > maxHeaderBytes {
		return nil, ErrRequestLineTooLong
	}

	headers := NewHeaders()
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return nil, errors.Wrap(ErrMalformedRequest, err.Error())
		}

		consumed += len(line) + len("\r\n")
		if consumed > maxHeaderBytes {
			return nil, ErrRequestLineTooLong
		}

		if line == "" {
			break
		}

		name, value, ok := splitHeaderLine(line)
		if !ok {
			return nil, errors.Wrapf(ErrMalformedRequest, "bad header line %q", line)
		}
		headers.InsertString(name, value)
	}

	path, err := normalizePath([]byte(requestTarget(rawURI)))
	if err != nil {
		return nil, errors.Wrap(ErrMalformedRequest, err.Error())
	}

	req := &Request{
		method:  method,
		path:    path,
		rawURI:  rawURI,
		headers: headers,
		rest:    reader,
	}

	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		req.RemoteAddr = tcpAddr
	} else {
		req.RemoteAddr = conn.RemoteAddr()
	}

	if tcpAddr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		req.LocalPort = uint16(tcpAddr.Port)
	}

	return req, nil
}

// parseRequestLine splits "METHOD /path HTTP/1.1" into method and
// request-target. It does not validate the HTTP version beyond requiring
// three space-separated fields.
func parseRequestLine(line string) (method, requestTarget string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", false
	}
	if !strings.HasPrefix(fields[2], "HTTP/") {
		return "", "", false
	}

	return fields[0], fields[1], true
}

// splitHeaderLine splits a "Name: value" header line into its name and
// value, trimming leading whitespace from the value per RFC 7230 §3.2.
func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}

	return line[:idx], strings.TrimLeft(line[idx+1:], " \t"), true
}

// requestTarget returns the part of the request-target that normalizePath
// works on. It does not strip the query string: normalizePath operates on
// the full request-target, query string included, so this is just the
// identity function today. It exists as the seam where a future
// CONNECT/absolute-form request-target would be special-cased.
func requestTarget(raw string) string {
	return raw
}

// RequestURI returns the normalized, percent-decoded request-target.
func (r *Request) RequestURI() []byte {
	return r.path
}

// RawURI returns the request-target exactly as it appeared on the wire,
// unnormalized — this is what FastCGI's PATH_INFO and QUERY_STRING are
// derived from.
func (r *Request) RawURI() string {
	return r.rawURI
}

// Method returns the request's HTTP method, e.g. "GET".
func (r *Request) Method() string {
	return r.method
}

// Headers returns the request's headers.
func (r *Request) Headers() *Headers {
	return &r.headers
}

// Read implements io.Reader over whatever of the request body hasn't yet
// been consumed.
func (r *Request) Read(p []byte) (int, error) {
	return r.rest.Read(p)
}
