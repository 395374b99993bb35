package fastcgi

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"fcgiserver/httpserver"
)

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// tcpPair returns two ends of a real loopback TCP connection, standing in
// for a long-lived socket (net.Pipe's lockstep semantics make it awkward
// for a three-party exchange like this one).
func tcpPair(t *testing.T) (a, b net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}

	return dialed, <-accepted
}

// fakeResponder plays the role of a FastCGI application server: it reads
// the BEGIN_REQUEST/PARAMS/STDIN exchange (without validating its content
// beyond framing) and then sends back a canned document response.
func fakeResponder(t *testing.T, rwc net.Conn, status, body string) {
	t.Helper()

	reader := newStreamReader(rwc)

	begin, err := reader.next()
	if err != nil {
		t.Errorf("fakeResponder: reading BEGIN_REQUEST: %v", err)
		return
	}
	if begin.h.Type != typeBeginRequest {
		t.Errorf("fakeResponder: expected BEGIN_REQUEST, got %s", begin.h.Type)
		return
	}
	reqID := begin.h.ID

	for {
		rec, err := reader.next()
		if err != nil {
			t.Errorf("fakeResponder: reading PARAMS: %v", err)
			return
		}
		if rec.h.Type != typeParams {
			t.Errorf("fakeResponder: expected PARAMS, got %s", rec.h.Type)
			return
		}
		if rec.h.ContentLength == 0 {
			break
		}
	}

	for {
		rec, err := reader.next()
		if err != nil {
			t.Errorf("fakeResponder: reading STDIN: %v", err)
			return
		}
		if rec.h.Type != typeStdin {
			t.Errorf("fakeResponder: expected STDIN, got %s", rec.h.Type)
			return
		}
		if rec.h.ContentLength == 0 {
			break
		}
	}

	upstream := newConn(rwc)
	payload := "Status: " + status + "\r\nContent-Type: text/plain\r\n\r\n" + body

	sw := newStreamWriter(upstream, typeStdout, reqID)
	if _, err := sw.WriteString(payload); err != nil {
		t.Errorf("fakeResponder: writing STDOUT: %v", err)
		return
	}
	if err := sw.Close(); err != nil {
		t.Errorf("fakeResponder: closing STDOUT: %v", err)
		return
	}

	if err := upstream.writeEndRequest(reqID, 0, statusRequestComplete); err != nil {
		t.Errorf("fakeResponder: writing END_REQUEST: %v", err)
	}
}

func TestConnectionServeRoundTrip(t *testing.T) {
	upstreamOurs, upstreamTheirs := tcpPair(t)
	defer upstreamOurs.Close()
	defer upstreamTheirs.Close()

	clientSide, serverSide := tcpPair(t)
	defer clientSide.Close()
	defer serverSide.Close()

	if _, err := clientSide.Write([]byte("GET /index.php?a=1 HTTP/1.1\r\nHost: example.test\r\n\r\n")); err != nil {
		t.Fatal(err)
	}
	// Half-close the write side: this GET has no body, and with nothing
	// else incoming, forwardBody's read would otherwise block forever
	// rather than seeing the EOF a real Server's socket deadline would
	// eventually turn into.
	if tcp, ok := clientSide.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			t.Fatal(err)
		}
	}

	req, err := httpserver.ParseRequest(serverSide)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	res := httpserver.NewFreshResponse(serverSide)

	c := &Connection{
		conn:    newConn(upstreamOurs),
		reader:  newStreamReader(upstreamOurs),
		webroot: "/var/www",
		log:     discardLogger(),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Serve(req, res)
	}()

	fakeResponder(t, upstreamTheirs, "200 OK", "hello from upstream")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Connection.Serve")
	}

	clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(clientSide)

	statusLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading status line: %v", err)
	}
	if statusLine != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("status line = %q", statusLine)
	}

	var body strings.Builder
	for {
		line, err := reader.ReadString('\n')
		if err != nil || line == "\r\n" {
			break
		}
		body.WriteString(line)
	}

	rest, _ := io.ReadAll(reader)
	if !strings.Contains(string(rest), "hello from upstream") {
		t.Fatalf("chunked body missing payload, got %q", rest)
	}
}

func TestBuildParamsIncludesHTTPHeadersAndQueryString(t *testing.T) {
	clientSide, serverSide := tcpPair(t)
	defer clientSide.Close()
	defer serverSide.Close()

	if _, err := clientSide.Write([]byte("GET /app.cgi?x=y HTTP/1.1\r\nHost: h\r\nX-Test: v\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	req, err := httpserver.ParseRequest(serverSide)
	if err != nil {
		t.Fatal(err)
	}

	pairs := buildParams(req, "/www")

	got := make(map[string]string)
	for _, p := range pairs {
		got[p.name] = p.value
	}

	if got["QUERY_STRING"] != "?x=y" {
		t.Fatalf("QUERY_STRING = %q", got["QUERY_STRING"])
	}
	if got["PATH_TRANSLATED"] != "/www/app.cgi" {
		t.Fatalf("PATH_TRANSLATED = %q", got["PATH_TRANSLATED"])
	}
	if got["HTTP_X_TEST"] != "v" {
		t.Fatalf("HTTP_X_TEST = %q", got["HTTP_X_TEST"])
	}
	if got["SERVER_PROTOCOL"] != "HTTP/1.1" {
		t.Fatalf("SERVER_PROTOCOL = %q", got["SERVER_PROTOCOL"])
	}
}
