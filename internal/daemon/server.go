package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/pslog"
	"pkt.systems/zowe/internal/logx"
)

// ListenHost is the only interface the daemon binds to.
const ListenHost = "127.0.0.1"

// PIDRecorder persists the daemon pid while it is running.
type PIDRecorder interface {
	PIDFile
	Write(user string, pid int) error
}

// ServerConfig configures the daemon server.
type ServerConfig struct {
	Owner      string
	PIDFile    PIDRecorder
	Dispatcher Dispatcher
}

// Server accepts daemon connections on the loopback interface.
type Server struct {
	mode Mode
	cfg  ServerConfig

	mu       sync.Mutex
	ln       net.Listener
	handlers map[*Handler]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewServer returns a server for mode. Listen must be called before Serve.
func NewServer(mode Mode, cfg ServerConfig) *Server {
	return &Server{mode: mode, cfg: cfg, handlers: make(map[*Handler]struct{})}
}

// Listen binds the daemon port and records the daemon pid.
func (s *Server) Listen(ctx context.Context) error {
	if s.cfg.Owner == "" {
		return errors.New("daemon owner is required")
	}
	addr := net.JoinHostPort(ListenHost, strconv.Itoa(s.mode.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("daemon listen on %s: %w", addr, err)
	}
	if s.cfg.PIDFile != nil {
		if err := s.cfg.PIDFile.Write(s.cfg.Owner, os.Getpid()); err != nil {
			_ = ln.Close()
			return err
		}
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until the server is closed or ctx ends. Accept
// failures other than a requested close are returned.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("daemon server is not listening")
	}
	log := pslog.Ctx(ctx)
	log.Info("daemon server listening", "port", ln.Addr().(*net.TCPAddr).Port, "owner", s.cfg.Owner)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				s.wg.Wait()
				s.removePIDFile(log)
				log.Info("daemon server closed")
				return nil
			}
			log.Error("daemon server accept failed", "err", err)
			return fmt.Errorf("daemon accept: %w", err)
		}
		s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	connLog := logx.WithConn(ctx, connID).With("remote", conn.RemoteAddr().String())
	connCtx := logx.ContextWithConnLogger(ctx, connLog, connID)

	var pid PIDFile
	if s.cfg.PIDFile != nil {
		pid = s.cfg.PIDFile
	}
	h := NewHandler(conn, s, HandlerConfig{
		Owner:      s.cfg.Owner,
		PIDFile:    pid,
		Dispatcher: s.cfg.Dispatcher,
	})
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		connLog.Debug("daemon connection refused while closing")
		_ = conn.Close()
		return
	}
	s.handlers[h] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.handlers, h)
			s.mu.Unlock()
		}()
		h.Serve(connCtx)
	}()
}

// Close stops accepting connections and closes every open connection.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	ln := s.ln
	handlers := make([]*Handler, 0, len(s.handlers))
	for h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, h := range handlers {
		h.Close()
	}
	return err
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) removePIDFile(log pslog.Logger) {
	if s.cfg.PIDFile == nil {
		return
	}
	if err := s.cfg.PIDFile.Remove(); err != nil {
		log.Warn("failed to delete file", "path", s.cfg.PIDFile.Path(), "err", err)
	}
}
