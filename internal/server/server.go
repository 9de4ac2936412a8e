// Package server exposes conversation sessions over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/victor/internal/archive"
	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/service"
)

const (
	outboxSize   = 64
	writeTimeout = 10 * time.Second
	archiveTime  = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	// Session is the template for every connection's session. Logger and
	// OnCommand are set per connection.
	Session service.Options
	Archive archive.Archiver
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Server creates one session per websocket connection.
type Server struct {
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Session.Metrics == nil {
		opts.Session.Metrics = opts.Metrics
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the HTTP routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/stats", s.handleStats)
	return LoggingMiddleware(s.logger, mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.opts.Metrics.Snapshot()); err != nil {
		s.logger.Error("encode stats", "error", err)
	}
}

// conn is one websocket client and its session.
type conn struct {
	ws     *websocket.Conn
	outbox chan Event
	done   chan struct{}
	logger *slog.Logger
}

// send queues an event. Snapshots may be dropped when the client is slow,
// since a later snapshot supersedes them; other events wait.
func (c *conn) send(e Event, droppable bool) {
	if droppable {
		select {
		case c.outbox <- e:
		case <-c.done:
		default:
			c.logger.Debug("dropped snapshot for slow client")
		}
		return
	}
	select {
	case c.outbox <- e:
	case <-c.done:
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case e := <-c.outbox:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(e); err != nil {
				c.logger.Debug("write event", "error", err)
				_ = c.ws.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	c := &conn{
		ws:     ws,
		outbox: make(chan Event, outboxSize),
		done:   make(chan struct{}),
	}

	opts := s.opts.Session
	opts.Logger = s.logger
	opts.OnCommand = func(res commands.Result) {
		c.send(commandEvent(res), false)
	}
	sess := service.New(opts)
	c.logger = s.logger.With("session_id", sess.ID())

	s.opts.Metrics.SessionStarted()
	c.logger.Info("session opened", "remote", r.RemoteAddr)

	unsubscribe := sess.Subscribe(func(snap service.Snapshot) {
		c.send(snapshotEvent(snap), true)
	})

	var writer sync.WaitGroup
	writer.Go(c.writeLoop)

	ctx, cancel := context.WithCancel(context.Background())
	var actions sync.WaitGroup

	c.send(snapshotEvent(sess.Snapshot()), false)
	for {
		var a Action
		if err := ws.ReadJSON(&a); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read action", "error", err)
			}
			break
		}
		// Actions run concurrently; the session serializes what must be.
		actions.Go(func() {
			if err := Dispatch(ctx, sess, a); err != nil {
				c.logger.Debug("action rejected", "action", a.Type, "error", err)
				c.send(errorEvent(a.Type, err), false)
				return
			}
			snap := sess.Snapshot()
			c.send(snapshotEvent(snap), false)
			c.send(doneEvent(a.Type, snap), false)
		})
	}

	cancel()
	close(c.done)
	actions.Wait()
	writer.Wait()
	unsubscribe()
	sess.Close()

	s.archive(sess, c.logger)
	s.opts.Metrics.SessionEnded()
	c.logger.Info("session closed")
}

// archive saves the transcript when an archive is configured.
func (s *Server) archive(sess *service.Session, logger *slog.Logger) {
	if s.opts.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTime)
	defer cancel()

	start := time.Now()
	err := s.opts.Archive.Save(ctx, sess.ID(), sess.Messages())
	s.opts.Metrics.RecordTiming(metrics.OpArchiveSave, time.Since(start), err)
	if err != nil {
		logger.Error("archive transcript", "error", err)
	}
}
