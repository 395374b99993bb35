package httpserver

import (
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// socketTimeout bounds how long a client connection may go without making
// progress, per spec.md §5.
const socketTimeout = 5 * time.Second

// Server accepts client connections and dispatches each request through a
// Router. It implements the Service interface in package service, so it can
// be registered with a service.Container; the FastCGI upstream it routes to
// is not a Service and is not registered there.
type Server struct {
	addr   string
	router *Router
	log    logrus.FieldLogger

	listener net.Listener
	done     chan struct{}
}

// NewServer returns a Server that will listen on addr (":8000"-style) and
// dispatch through router.
func NewServer(addr string, router *Router, log logrus.FieldLogger) *Server {
	return &Server{
		addr:   addr,
		router: router,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Serve implements service.Service: it blocks accepting connections until
// Stop is called. It returns an error only if it cannot start listening;
// any other accept error is logged and accepting continues.
func (s *Server) Serve() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrap(err, "httpserver: listen")
	}
	s.listener = listener

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				s.log.Warnf("httpserver: accept: %v", err)
				continue
			}
		}

		go s.handleConnection(conn)
	}
}

// Addr returns the address the server is listening on. It's only valid
// once Serve has started; before that it returns the configured address,
// which may still contain a ":0" wildcard port.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop implements service.Service.
func (s *Server) Stop() {
	close(s.done)
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	connID := uuid.New().String()
	log := s.log.WithField("conn", connID)

	if err := conn.SetDeadline(time.Now().Add(socketTimeout)); err != nil {
		log.Warnf("httpserver: failed to set socket timeout: %v", err)
		return
	}

	req, err := ParseRequest(conn)
	if err != nil {
		if err == io.EOF {
			return
		}

		res := NewFreshResponse(conn)
		switch {
		case errors.Is(err, ErrRequestLineTooLong):
			Error414(res)
		case errors.Is(err, ErrMalformedRequest):
			Error400(res)
		default:
			log.Warnf("httpserver: failed to parse request: %v", err)
		}
		return
	}

	res := NewFreshResponse(conn)
	s.router.Serve(req, res)
}
