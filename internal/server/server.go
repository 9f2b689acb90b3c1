package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

const maxLineLength = 4 << 20

// Executor runs one request line.
type Executor interface {
	Execute(ctx context.Context, line string) []string
}

// Server speaks the newline delimited text protocol over TCP. Every
// connection gets its own goroutine; workers caps how many run at once.
type Server struct {
	exec    Executor
	addr    string
	workers *semaphore.Weighted

	ln     net.Listener
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(exec Executor, addr string, workers int) *Server {
	if workers < 1 {
		workers = 1
	}
	return &Server{
		exec:    exec,
		addr:    addr,
		workers: semaphore.NewWeighted(int64(workers)),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	slog.Info("TCP server started", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

// Stop closes the listener and every open connection, then waits for the
// handlers to return.
func (s *Server) Stop() error {
	if s.ln == nil {
		return nil
	}
	s.cancel()
	err := s.ln.Close()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
	s.mu.Unlock()

	s.wg.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("accept failed", "error", err)
			continue
		}

		if !s.workers.TryAcquire(1) {
			slog.Warn("connection limit reached, client waits for a free worker",
				"remote", conn.RemoteAddr().String())
			if err := s.workers.Acquire(ctx, 1); err != nil {
				_ = conn.Close()
				return
			}
		}
		if !s.track(conn) {
			s.workers.Release(1)
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.workers.Release(1)
			defer s.untrack(conn)
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	log := slog.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	log.Debug("client connected")

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineLength)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		for _, resp := range s.exec.Execute(ctx, scanner.Text()) {
			if _, err := w.WriteString(resp); err != nil {
				log.Debug("write failed", "error", err)
				return
			}
			if err := w.WriteByte('\n'); err != nil {
				log.Debug("write failed", "error", err)
				return
			}
		}
		if err := w.Flush(); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		log.Warn("client read failed", "error", err)
	}
	log.Debug("client disconnected")
}
