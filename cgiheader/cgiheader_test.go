package cgiheader

import (
	"testing"
)

func TestParseWithStatusAndHeaders(t *testing.T) {
	input := []byte("Status: 200 OK\r\nContent-Type: text/html; charset=utf-8\r\nDate: Thu, 07 Apr 2016 20:42:43 GMT\r\n\r\n<!doctype html>")

	got, consumed, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.Status == nil || got.Status.Code != 200 || got.Status.ReasonPhrase != "OK" {
		t.Fatalf("status = %+v", got.Status)
	}

	if got.ContentType.Content != "text/html; charset=utf-8" {
		t.Fatalf("content-type = %+v", got.ContentType)
	}

	if len(got.Headers) != 1 || got.Headers[0].Name != "Date" {
		t.Fatalf("headers = %+v", got.Headers)
	}

	body := string(input[consumed:])
	if body != "<!doctype html>" {
		t.Fatalf("body = %q", body)
	}
}

func TestParseWithoutStatus(t *testing.T) {
	input := []byte("Content-Type: text/plain\r\n\r\nhello")

	got, consumed, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got.Status != nil {
		t.Fatalf("expected no status, got %+v", got.Status)
	}

	if got.ContentType.Content != "text/plain" {
		t.Fatalf("content-type = %+v", got.ContentType)
	}

	if string(input[consumed:]) != "hello" {
		t.Fatalf("body = %q", input[consumed:])
	}
}

func TestParseIncomplete(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("Status: 200 OK\r\n"),
		[]byte("Content-Type: text/html\r\n"),
		[]byte("Content-Type: text/html\r\nDate: now\r\n"),
		[]byte("Content-Type: text/html\r\n\r"),
	}

	for _, c := range cases {
		if _, _, err := Parse(c); err != ErrIncomplete {
			t.Errorf("Parse(%q) = %v, want ErrIncomplete", c, err)
		}
	}
}

func TestParseMixedLineEndings(t *testing.T) {
	cases := []string{
		"Content-Type: text/plain\n\nbody",
		"Content-Type: text/plain\r\n\nbody",
		"Content-Type: text/plain\r\n\r\nbody",
	}

	for _, c := range cases {
		got, consumed, err := Parse([]byte(c))
		if err != nil {
			t.Fatalf("Parse(%q): %v", c, err)
		}
		if string([]byte(c)[consumed:]) != "body" {
			t.Errorf("Parse(%q) body = %q", c, got)
		}
	}
}

func TestParseRejectsMissingContentType(t *testing.T) {
	_, _, err := Parse([]byte("X-Foo: bar\r\n\r\nbody"))
	if err == nil || err == ErrIncomplete {
		t.Fatalf("expected a hard error, got %v", err)
	}
}
