package fastcgi

import (
	"bytes"
	"testing"
)

func newTestConn() (*conn, *bytes.Buffer) {
	var buf bytes.Buffer
	return &conn{rwc: nopCloser{&buf}}, &buf
}

func readAllRecords(t *testing.T, buf *bytes.Buffer) []record {
	t.Helper()

	var recs []record
	for buf.Len() > 0 {
		var rec record
		if err := rec.read(buf); err != nil {
			t.Fatalf("reading record: %v", err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestWriteBeginRequestFramesRoleAndFlags(t *testing.T) {
	c, buf := newTestConn()

	if err := c.writeBeginRequest(7, RoleResponder, flagKeepConn); err != nil {
		t.Fatal(err)
	}

	recs := readAllRecords(t, buf)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	rec := recs[0]
	if rec.h.Type != typeBeginRequest {
		t.Fatalf("type = %s", rec.h.Type)
	}
	if rec.h.ID != 7 {
		t.Fatalf("ID = %d", rec.h.ID)
	}

	content := rec.content()
	role := uint16(content[0])<<8 | uint16(content[1])
	if role != RoleResponder {
		t.Fatalf("role = %d", role)
	}
	if content[2]&flagKeepConn == 0 {
		t.Fatal("expected KEEP_CONN flag set")
	}
}

func TestWritePairsProducesOrderedParamsThenTerminator(t *testing.T) {
	c, buf := newTestConn()

	pairs := []nameValuePair{
		{name: "REQUEST_METHOD", value: "GET"},
		{name: "SCRIPT_NAME", value: ""},
	}

	if err := c.writePairs(typeParams, 3, pairs); err != nil {
		t.Fatal(err)
	}

	recs := readAllRecords(t, buf)
	if len(recs) < 2 {
		t.Fatalf("expected at least a data record and a terminator, got %d", len(recs))
	}

	last := recs[len(recs)-1]
	if last.h.ContentLength != 0 {
		t.Fatalf("expected an empty record terminating the PARAMS stream, got length %d", last.h.ContentLength)
	}

	var content []byte
	for _, rec := range recs[:len(recs)-1] {
		content = append(content, rec.content()...)
	}

	decoded, err := readNameValuePairs(content)
	if err != nil {
		t.Fatal(err)
	}
	if decoded["REQUEST_METHOD"] != "GET" {
		t.Fatalf("REQUEST_METHOD = %q", decoded["REQUEST_METHOD"])
	}
	if v, ok := decoded["SCRIPT_NAME"]; !ok || v != "" {
		t.Fatalf("SCRIPT_NAME = %q, ok=%v", v, ok)
	}
}

func TestWriteEndRequestEncodesStatusFields(t *testing.T) {
	c, buf := newTestConn()

	if err := c.writeEndRequest(5, 0, statusRequestComplete); err != nil {
		t.Fatal(err)
	}

	recs := readAllRecords(t, buf)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	content := recs[0].content()
	appStatus, protoStatus := parseEndRequest(content)
	if appStatus != 0 {
		t.Fatalf("appStatus = %d", appStatus)
	}
	if protoStatus != statusRequestComplete {
		t.Fatalf("protoStatus = %d", protoStatus)
	}
}

func TestWriteGetValuesEncodesNamesWithEmptyValues(t *testing.T) {
	c, buf := newTestConn()

	if err := c.writeGetValues(varMaxConns, varMpxsConns); err != nil {
		t.Fatal(err)
	}

	recs := readAllRecords(t, buf)
	var content []byte
	for _, rec := range recs {
		if rec.h.Type != typeGetValues {
			t.Fatalf("expected FCGI_GET_VALUES records, got %s", rec.h.Type)
		}
		content = append(content, rec.content()...)
	}

	decoded, err := readNameValuePairs(content)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded[varMaxConns]; !ok {
		t.Fatalf("missing %s", varMaxConns)
	}
	if _, ok := decoded[varMpxsConns]; !ok {
		t.Fatalf("missing %s", varMpxsConns)
	}
}
