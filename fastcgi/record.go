package fastcgi

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// header is the 8-byte frame that precedes every FastCGI record.
type header struct {
	Version       uint8
	Type          recType
	ID            uint16
	ContentLength uint16
	PaddingLength uint8
	Reserved      uint8
}

// pad is used to write padding bytes; its contents don't matter, so it's
// shared rather than allocated per write.
var pad [maxPad]byte

func (h *header) init(t recType, reqID uint16, contentLength int) {
	h.Version = version
	h.Type = t
	h.ID = reqID
	h.ContentLength = uint16(contentLength)
	h.PaddingLength = uint8(-contentLength & 7)
}

// record is a single decoded FastCGI message: header plus content.
type record struct {
	h   header
	buf [maxWrite + maxPad]byte
}

func (rec *record) read(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &rec.h); err != nil {
		return err
	}

	if rec.h.Version != version {
		return errors.Errorf("fastcgi: invalid header version %d", rec.h.Version)
	}

	n := int(rec.h.ContentLength) + int(rec.h.PaddingLength)
	if _, err := io.ReadFull(r, rec.buf[:n]); err != nil {
		return err
	}

	return nil
}

func (rec *record) content() []byte {
	return rec.buf[:rec.h.ContentLength]
}

// streamReader reads a sequence of records off an upstream connection. It
// owns a single reusable record, so callers must finish using one record's
// content before calling next again.
type streamReader struct {
	r   *bufio.Reader
	rec record
}

func newStreamReader(r io.Reader) *streamReader {
	return &streamReader{r: bufio.NewReaderSize(r, maxWrite+maxPad)}
}

func (s *streamReader) next() (*record, error) {
	if err := s.rec.read(s.r); err != nil {
		return nil, err
	}

	return &s.rec, nil
}

// readSize decodes a NameValuePair length: FastCGI uses a 1-byte form when
// the high bit is clear, else a 4-byte form with the high bit masked off.
func readSize(s []byte) (uint32, int) {
	if len(s) == 0 {
		return 0, 0
	}

	size, n := uint32(s[0]), 1

	if size&(1<<7) != 0 {
		if len(s) < 4 {
			return 0, 0
		}

		n = 4
		size = binary.BigEndian.Uint32(s)
		size &^= 1 << 31
	}

	return size, n
}

func readString(s []byte, size uint32) string {
	if size > uint32(len(s)) {
		return ""
	}

	return string(s[:size])
}

func encodeSize(b []byte, size uint32) int {
	if size > 127 {
		size |= 1 << 31
		binary.BigEndian.PutUint32(b, size)

		return 4
	}

	b[0] = byte(size)

	return 1
}

// readNameValuePairs decodes a flat NAME=VALUE block, as used by
// FCGI_PARAMS and FCGI_GET_VALUES_RESULT content.
func readNameValuePairs(content []byte) (map[string]string, error) {
	pairs := make(map[string]string)

	for len(content) > 0 {
		nameLen, n := readSize(content)
		if n == 0 {
			return nil, errors.New("fastcgi: truncated name-value pair")
		}
		content = content[n:]

		valLen, n := readSize(content)
		if n == 0 {
			return nil, errors.New("fastcgi: truncated name-value pair")
		}
		content = content[n:]

		if uint32(len(content)) < nameLen+valLen {
			return nil, errors.New("fastcgi: truncated name-value pair")
		}

		name := readString(content, nameLen)
		content = content[nameLen:]
		val := readString(content, valLen)
		content = content[valLen:]

		pairs[name] = val
	}

	return pairs, nil
}
