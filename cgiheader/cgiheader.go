// Package cgiheader parses the CGI/1.1 document-response header block that
// a FastCGI responder sends back on its stdout stream: an optional
// Status line, a Content-Type line, zero or more other headers, and a blank
// line marking the start of the response body.
package cgiheader

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

// Status is a parsed "Status:" line.
type Status struct {
	Code         int
	ReasonPhrase string
}

// Header is a single "Name: value" header line.
type Header struct {
	Name    string
	Content string
}

// DocumentHeaders is the parsed header block of a CGI document response.
type DocumentHeaders struct {
	ContentType Header
	Status      *Status
	Headers     []Header
}

// ErrIncomplete is returned when buf doesn't yet contain a complete header
// block; the caller should read more data from the responder and retry.
var ErrIncomplete = errors.New("cgiheader: incomplete header block")

// Parse parses the CGI document-response header block at the start of buf.
// On success it returns the parsed headers and the number of bytes of buf
// consumed (the remainder is the start of the response body). If buf holds
// less than a full header block, it returns ErrIncomplete.
func Parse(buf []byte) (DocumentHeaders, int, error) {
	rest := buf
	consumed := 0

	var status *Status
	if s, n, ok, err := parseStatusLine(rest); err != nil {
		return DocumentHeaders{}, 0, err
	} else if ok {
		status = &s
		rest = rest[n:]
		consumed += n

		n, err := consumeLineEnd(rest)
		if err != nil {
			return DocumentHeaders{}, 0, err
		}
		rest = rest[n:]
		consumed += n
	}

	ctype, n, err := parseHeaderLine(rest)
	if err != nil {
		return DocumentHeaders{}, 0, err
	}
	if ctype.Name != "Content-Type" && ctype.Name != "Content-type" && ctype.Name != "content-type" {
		return DocumentHeaders{}, 0, errors.Errorf("cgiheader: expected Content-Type, got %q", ctype.Name)
	}
	ctype.Name = "Content-Type"
	rest = rest[n:]
	consumed += n

	n, err = consumeLineEnd(rest)
	if err != nil {
		return DocumentHeaders{}, 0, err
	}
	rest = rest[n:]
	consumed += n

	var headers []Header
	for {
		if len(rest) == 0 {
			return DocumentHeaders{}, 0, ErrIncomplete
		}

		// A header line never starts with a line terminator, so seeing one
		// here unambiguously means we've reached the blank line that
		// separates headers from the body. Every preceding line's own EOL
		// has already been consumed by the end of its iteration, so the
		// blank line itself is just one more terminator.
		if rest[0] == '\r' || rest[0] == '\n' {
			n, err := consumeLineEnd(rest)
			if err != nil {
				return DocumentHeaders{}, 0, err
			}
			consumed += n
			break
		}

		hdr, n, err := parseHeaderLine(rest)
		if err != nil {
			return DocumentHeaders{}, 0, err
		}
		rest = rest[n:]
		consumed += n
		headers = append(headers, hdr)

		n, err = consumeLineEnd(rest)
		if err != nil {
			return DocumentHeaders{}, 0, err
		}
		rest = rest[n:]
		consumed += n
	}

	return DocumentHeaders{
		ContentType: ctype,
		Status:      status,
		Headers:     headers,
	}, consumed, nil
}

// parseStatusLine attempts "Status: 200 OK" at the start of buf, without
// consuming its trailing line terminator. ok is false (with no error) if the
// line isn't a Status line at all.
func parseStatusLine(buf []byte) (status Status, consumed int, ok bool, err error) {
	const prefix = "Status:"
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return Status{}, 0, false, nil
	}

	line, found := lineUpToTerminator(buf)
	if !found {
		return Status{}, 0, false, ErrIncomplete
	}

	rest := bytes.TrimPrefix(line, []byte(prefix))
	rest = bytes.TrimPrefix(rest, []byte(" "))

	if len(rest) < 3 {
		return Status{}, 0, false, errors.Errorf("cgiheader: bogus status line %q", line)
	}

	code, convErr := strconv.Atoi(string(rest[:3]))
	if convErr != nil {
		return Status{}, 0, false, errors.Wrapf(convErr, "cgiheader: bogus status code in %q", line)
	}

	reason := bytes.TrimPrefix(rest[3:], []byte(" "))

	return Status{Code: code, ReasonPhrase: string(reason)}, len(line), true, nil
}

// parseHeaderLine parses a single "Name: value" line, not including its
// trailing line terminator.
func parseHeaderLine(buf []byte) (Header, int, error) {
	line, found := lineUpToTerminator(buf)
	if !found {
		return Header{}, 0, ErrIncomplete
	}

	idx := bytes.IndexByte(line, ':')
	if idx < 0 {
		return Header{}, 0, errors.Errorf("cgiheader: malformed header line %q", line)
	}

	name := string(line[:idx])
	content := bytes.TrimLeft(line[idx+1:], " \t")

	return Header{Name: name, Content: string(content)}, len(line), nil
}

// lineUpToTerminator returns the bytes up to (not including) the first \r or
// \n, and whether a terminator was actually found in buf.
func lineUpToTerminator(buf []byte) ([]byte, bool) {
	for i, b := range buf {
		if b == '\r' || b == '\n' {
			return buf[:i], true
		}
	}

	return nil, false
}

// consumeLineEnd consumes a single CRLF or LF line terminator.
func consumeLineEnd(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrIncomplete
	}

	if buf[0] == '\n' {
		return 1, nil
	}

	if buf[0] == '\r' {
		if len(buf) < 2 {
			return 0, ErrIncomplete
		}
		if buf[1] == '\n' {
			return 2, nil
		}
	}

	return 0, errors.Errorf("cgiheader: expected line terminator, got %q", buf[:1])
}
