// Package server wires the bus together and serves its MCP tool surface.
package server

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"

	"github.com/sebastianm/agentbus/internal/bus/event"
	eventstore "github.com/sebastianm/agentbus/internal/bus/event/store"
	"github.com/sebastianm/agentbus/internal/bus/session"
	sessionstore "github.com/sebastianm/agentbus/internal/bus/session/store"
	"github.com/sebastianm/agentbus/internal/bus/sweeper"
	"github.com/sebastianm/agentbus/internal/bus/webhook"
	webhookstore "github.com/sebastianm/agentbus/internal/bus/webhook/store"
	"github.com/sebastianm/agentbus/internal/config"
	"github.com/sebastianm/agentbus/internal/database"
	"github.com/sebastianm/agentbus/internal/tsnetutil"
)

// Opts holds optional CLI overrides for the bus server.
type Opts struct {
	ListenAddr string
}

type Server struct {
	log  *slog.Logger
	cfg  *config.Config
	ln   *tsnetutil.Listener
	opts Opts
}

func New(opts Opts) *Server {
	log := slog.New(tint.NewHandler(os.Stderr, nil)).With("component", "agentbus")
	return &Server{
		log:  log,
		opts: opts,
	}
}

func (s *Server) Start() error {
	cfg, err := config.Parse()
	if err != nil {
		s.log.Error("config error", "error", err)
		return fmt.Errorf("config error: %w", err)
	}
	s.cfg = cfg

	listenAddr := s.opts.ListenAddr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", cfg.Port)
	}

	ln, err := tsnetutil.ListenAddr(listenAddr, cfg.Tailscale)
	if err != nil {
		s.log.Error("listen failed", "addr", listenAddr, "error", err)
		return err
	}
	s.ln = ln
	defer s.ln.Close()

	dbPath := cfg.DatabasePath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("determining home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".agentbus", "agentbus.db")
	}

	db, err := database.Open(context.Background(), dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	s.log.Info("database opened", "path", dbPath, "max_events", cfg.MaxEvents)

	// Core wiring: stores, dispatcher, event log, registry, sweeper.
	webhooks := webhookstore.NewSQLiteStore(db)
	dispatcher := webhook.NewDispatcher(s.log, webhooks, webhook.DispatcherOptions{
		Timeout:     cfg.WebhookTimeout(),
		MaxAttempts: cfg.WebhookMaxAttempts,
	})
	defer dispatcher.Close()

	sessions := sessionstore.NewSQLiteStore(db)
	events := event.NewLog(s.log, eventstore.NewSQLiteStore(db, cfg.MaxEvents), dispatcher, sessionScope{sessions})
	registry := session.NewRegistry(s.log, sessions, events)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sw := sweeper.New(s.log, sessions, events, cfg.SweepInterval(), cfg.SessionTimeout())
	go sw.Run(sweepCtx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "agentbus OK")
	})
	if s.ln.LC != nil {
		mux.HandleFunc("/whoami", s.handleWhoAmI)
	}

	tools := newToolServer(toolDeps{
		Log:      s.log,
		Registry: registry,
		Events:   events,
		Webhooks: webhook.NewService(webhooks),
	})
	mux.Handle("/mcp", tools.HTTPHandler())

	s.log.Info("HTTP server listening",
		"addr", s.ln.Addr().String(),
		"tailscale_enabled", cfg.Tailscale.Enabled,
	)

	// Graceful shutdown on SIGINT/SIGTERM: stop the sweeper, abandon
	// in-flight webhook deliveries, close the listener.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.log.Info("received signal, shutting down", "signal", sig)
		stopSweeper()
		s.ln.Close()
	}()

	srv := &http.Server{Handler: mux}
	if err := srv.Serve(s.ln); err != nil && err != http.ErrServerClosed {
		s.log.Error("serve error", "error", err)
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// sessionScope adapts the session store to the event log's directory
// interface without creating a package cycle.
type sessionScope struct {
	store session.Store
}

func (d sessionScope) SessionScope(ctx context.Context, id string) (repo, machine string, ok bool, err error) {
	s, ok, err := d.store.GetSession(ctx, id)
	if err != nil || !ok {
		return "", "", false, err
	}
	return s.Repo, s.Machine, true, nil
}

// handleWhoAmI uses the Tailscale LocalClient to identify the caller.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	who, err := s.ln.LC.WhoIs(r.Context(), r.RemoteAddr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	login := html.EscapeString(who.UserProfile.LoginName)
	firstLabel, _, _ := strings.Cut(who.Node.ComputedName, ".")
	node := html.EscapeString(firstLabel)
	fmt.Fprintf(w, "You are %s from %s (%s)\n", login, node, r.RemoteAddr)
}
