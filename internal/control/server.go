package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
)

// Handler resolves one incoming Verb into a Response. Implemented by the
// supervisor's reference-count/restart state machine.
type Handler func(ctx context.Context, verb Verb) Response

// Server accepts control-plane connections on a UNIX socket.
type Server struct {
	path     string
	listener net.Listener
	handler  Handler
}

// Listen binds the control socket at path, removing any stale socket file
// left behind by a prior process first.
func Listen(path string, handler Handler) (*Server, error) {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("control: remove stale socket %s: %w", path, err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("control: listen %s: %w", path, err)
	}

	return &Server{path: path, listener: ln, handler: handler}, nil
}

// Serve accepts connections until ctx is done or the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var nerr net.Error
			if errors.As(err, &nerr) && !nerr.Temporary() {
				return fmt.Errorf("control: accept: %w", err)
			}
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	req, err := readRequest(conn)
	if err != nil {
		slog.Warn("control: read request failed", "err", err)
		return
	}

	resp := s.handler(ctx, req.Verb)
	if err := writeResponse(conn, resp); err != nil {
		slog.Warn("control: write response failed", "err", err)
	}
}

// Close shuts down the listener and removes the socket file.
func (s *Server) Close() error {
	err := s.listener.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
		if err == nil {
			err = rmErr
		}
	}
	return err
}
