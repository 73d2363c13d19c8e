// Package gateway implements HelixDB's listener and worker pool
// (spec.md §4.5): a TCP listener accepts connections and hands each to
// a fixed-size pool of worker goroutines, which parse one HTTP
// request, dispatch it through the router, and write back a
// response. A connection the pool cannot accept within the configured
// queue timeout gets a 503 written directly by the accept loop.
//
// The teacher never builds a raw listener+worker-pool gateway of its
// own (pkg/server/server.go hands every connection to stdlib
// http.Server, which owns its own per-connection goroutine model);
// spec.md's dispatch core is explicit about a listener feeding a
// *fixed*-size worker pool through a channel with send-timeout
// backpressure, which http.Server's unbounded accept loop cannot
// express. This still stays inside the standard library (net,
// net/http's request/response parsing and writing helpers, bufio) —
// exactly the pieces the teacher's own server is built from — just
// wired into the explicit listener/channel/pool shape spec.md names.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/suxatcode/helix-db-sub002/internal/config"
	"github.com/suxatcode/helix-db-sub002/internal/pool"
	"github.com/suxatcode/helix-db-sub002/internal/router"
)

// Server is the listener + worker pool described in spec.md §4.5.
type Server struct {
	cfg    config.ServerConfig
	router *router.Router
	log    logr.Logger

	ln     net.Listener
	connCh chan net.Conn
	wg     sync.WaitGroup
	quit   chan struct{}

	tracer trace.Tracer
	meter  metric.Meter

	requestsTotal metric.Int64Counter
	status404     metric.Int64Counter
	status500     metric.Int64Counter
	status503     metric.Int64Counter
	activeWorkers metric.Int64UpDownCounter
}

// New builds a Server bound to cfg and dispatching through rt. It does
// not start listening; call Serve for that.
func New(cfg config.ServerConfig, rt *router.Router, log logr.Logger) (*Server, error) {
	tracer := otel.Tracer("helixdb/gateway")
	meter := otel.Meter("helixdb/gateway")

	requestsTotal, err := meter.Int64Counter("helixdb_requests_total")
	if err != nil {
		return nil, fmt.Errorf("create requests_total counter: %w", err)
	}
	status404, err := meter.Int64Counter("helixdb_responses_404_total")
	if err != nil {
		return nil, fmt.Errorf("create responses_404_total counter: %w", err)
	}
	status500, err := meter.Int64Counter("helixdb_responses_500_total")
	if err != nil {
		return nil, fmt.Errorf("create responses_500_total counter: %w", err)
	}
	status503, err := meter.Int64Counter("helixdb_responses_503_total")
	if err != nil {
		return nil, fmt.Errorf("create responses_503_total counter: %w", err)
	}
	activeWorkers, err := meter.Int64UpDownCounter("helixdb_active_workers")
	if err != nil {
		return nil, fmt.Errorf("create active_workers counter: %w", err)
	}

	return &Server{
		cfg:           cfg,
		router:        rt,
		log:           log,
		connCh:        make(chan net.Conn),
		quit:          make(chan struct{}),
		tracer:        tracer,
		meter:         meter,
		requestsTotal: requestsTotal,
		status404:     status404,
		status500:     status500,
		status503:     status503,
		activeWorkers: activeWorkers,
	}, nil
}

// Serve binds the listen address and runs until Stop is called; it
// returns early only if binding fails. A failed Accept is logged and
// the loop keeps accepting. It blocks the calling goroutine.
func (s *Server) Serve() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.ln = ln
	s.log.Info("gateway listening", "addr", ln.Addr().String(), "workers", s.cfg.WorkerPoolSize)

	workers := s.cfg.WorkerPoolSize
	if workers <= 0 {
		workers = 1024
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.runWorker()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				s.log.Error(err, "accept failed")
				continue
			}
		}
		s.admit(conn)
	}
}

// admit hands conn to the worker pool, writing a 503 directly to the
// socket if no worker frees up within the queue timeout.
func (s *Server) admit(conn net.Conn) {
	timeout := s.cfg.QueueTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case s.connCh <- conn:
	case <-time.After(timeout):
		s.status503.Add(context.Background(), 1)
		writeRaw(conn, 503, "Service Unavailable", nil)
		conn.Close()
	}
}

// Stop closes the listener; in-flight connections are allowed to
// finish.
func (s *Server) Stop() error {
	close(s.quit)
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) runWorker() {
	defer s.wg.Done()
	for conn := range s.connCh {
		s.activeWorkers.Add(context.Background(), 1)
		s.handleConn(conn)
		s.activeWorkers.Add(context.Background(), -1)
	}
}

// handleConn parses exactly one request off conn, dispatches it, and
// writes the response. Panics here are isolated to this connection so
// a single bad request cannot shrink the pool (spec.md §4.5: "Worker
// task panics are isolated").
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.log.Info("recovered worker panic", "panic", fmt.Sprintf("%v", r))
		}
	}()

	reader := bufio.NewReader(conn)
	httpReq, err := http.ReadRequest(reader)
	if err != nil {
		if err != io.EOF {
			s.log.V(1).Info("failed to parse request", "err", err.Error())
		}
		return
	}
	defer httpReq.Body.Close()

	if !s.authorize(httpReq) {
		writeRaw(conn, 401, "Unauthorized", []byte(`{"error":"unauthorized"}`))
		return
	}

	body, err := io.ReadAll(httpReq.Body)
	if err != nil {
		writeRaw(conn, 400, "Bad Request", []byte(`{"error":"could not read request body"}`))
		return
	}

	ctx, span := s.tracer.Start(context.Background(), "dispatch "+httpReq.URL.Path)
	s.requestsTotal.Add(ctx, 1)

	query := make(map[string]string, len(httpReq.URL.Query()))
	for k, v := range httpReq.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	resp := s.router.Dispatch(router.Request{
		Method: httpReq.Method,
		Path:   httpReq.URL.Path,
		Query:  query,
		Body:   body,
	})
	span.End()

	switch resp.Status {
	case 404:
		s.status404.Add(ctx, 1)
	case 500:
		s.status500.Add(ctx, 1)
	}

	writeRaw(conn, resp.Status, http.StatusText(resp.Status), resp.Body)
}

// authorize checks the bearer token against cfg.AuthToken (a bcrypt
// hash) when auth is enabled. Disabled auth always authorizes.
func (s *Server) authorize(r *http.Request) bool {
	if !s.cfg.AuthEnabled {
		return true
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.cfg.AuthToken), []byte(token)) == nil
}

// writeRaw serializes status+body as an HTTP/1.1 response into a
// pooled scratch buffer before writing it to conn in one call, so a
// busy gateway isn't allocating a fresh byte slice per response.
func writeRaw(conn net.Conn, status int, statusText string, body []byte) {
	resp := &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	buf := bytes.NewBuffer(pool.GetByteBuffer())
	if err := resp.Write(buf); err != nil {
		pool.PutByteBuffer(buf.Bytes()[:0])
		return
	}
	_, _ = conn.Write(buf.Bytes())
	pool.PutByteBuffer(buf.Bytes()[:0])
}
