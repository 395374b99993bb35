package httpserver

import "github.com/pkg/errors"

// ErrPathNotInOriginForm is returned when a request-target doesn't begin
// with a '/', as origin-form request-targets must (RFC 7230 §5.3.1).
var ErrPathNotInOriginForm = errors.New("httpserver: request-target is not in origin-form")

// ErrIllegalPercentEncoding is returned when a '%' escape in the path isn't
// followed by two valid hex digits.
var ErrIllegalPercentEncoding = errors.New("httpserver: illegal percent-encoding")

// normalizePath collapses runs of '/' into one, strips the leading '/', and
// decodes percent-encoded bytes. path must start with '/'.
func normalizePath(path []byte) ([]byte, error) {
	if len(path) == 0 || path[0] != '/' {
		return nil, ErrPathNotInOriginForm
	}

	buffer := make([]byte, 0, len(path))

	i := 1
	for i < len(path) && path[i] == '/' {
		i++
	}

	for i < len(path) {
		switch path[i] {
		case '/':
			buffer = append(buffer, '/')
			for i < len(path) && path[i] == '/' {
				i++
			}

		case '%':
			if i+2 >= len(path) {
				return nil, ErrIllegalPercentEncoding
			}

			hi, lo := path[i+1], path[i+2]
			if !isHexit(hi) || !isHexit(lo) {
				return nil, ErrIllegalPercentEncoding
			}

			buffer = append(buffer, fromHexit(hi)<<4|fromHexit(lo))
			i += 3

		default:
			buffer = append(buffer, path[i])
			i++
		}
	}

	return buffer, nil
}

func isHexit(x byte) bool {
	return ('0' <= x && x <= '9') || ('A' <= x && x <= 'F') || ('a' <= x && x <= 'f')
}

func fromHexit(x byte) byte {
	switch {
	case '0' <= x && x <= '9':
		return x - '0'
	case 'A' <= x && x <= 'F':
		return x - 'A' + 10
	case 'a' <= x && x <= 'f':
		return x - 'a' + 10
	default:
		panic("fromHexit: not a hex digit")
	}
}
