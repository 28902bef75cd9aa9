package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/haloydev/deploybot/internal/command"
	"github.com/haloydev/deploybot/internal/constants"
	"github.com/haloydev/deploybot/internal/deploy"
	"github.com/haloydev/deploybot/internal/deploytypes"
)

var errShuttingDown = errors.New("server is shutting down")

// Pipelines runs parsed commands to completion.
type Pipelines interface {
	Handle(ctx context.Context, cmd command.Command, replies ...deploytypes.NotificationSink) deploy.Report
}

type Options struct {
	Listen            string
	APIToken          string
	RequestsPerSecond float64
	Burst             int
	Pipelines         Pipelines
	// Reply builds the sink for a request's responseUrl. When nil the field
	// is rejected.
	Reply func(responseURL string) deploytypes.NotificationSink
	// ReplyHosts are the hosts a responseUrl may point to. Empty allows
	// hooks.slack.com only.
	ReplyHosts []string
	Metrics    http.Handler
	Logger     *slog.Logger
}

// APIServer accepts chat commands over HTTP and runs them in the background.
type APIServer struct {
	router      *http.ServeMux
	server      *http.Server
	pipelines   Pipelines
	reply       func(string) deploytypes.NotificationSink
	replyHosts  map[string]struct{}
	metrics     http.Handler
	rateLimiter *rateLimiter
	logger      *slog.Logger
	apiToken    string

	// baseCtx outlives the request that started a pipeline.
	baseCtx context.Context
	cancel  context.CancelCauseFunc

	mu       sync.Mutex
	closing  bool
	inFlight sync.WaitGroup
}

func NewServer(opts Options) *APIServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	s := &APIServer{
		router:      http.NewServeMux(),
		pipelines:   opts.Pipelines,
		reply:       opts.Reply,
		replyHosts:  hostSet(opts.ReplyHosts),
		metrics:     opts.Metrics,
		rateLimiter: newRateLimiter(opts.RequestsPerSecond, opts.Burst),
		logger:      logger,
		apiToken:    opts.APIToken,
		baseCtx:     ctx,
		cancel:      cancel,
	}
	s.server = &http.Server{
		Addr:              opts.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

func hostSet(hosts []string) map[string]struct{} {
	if len(hosts) == 0 {
		hosts = []string{constants.DefaultResponseHost}
	}
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return set
}

func (s *APIServer) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown is called.
func (s *APIServer) ListenAndServe() error {
	s.logger.Info("API server listening", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting commands and waits for running pipelines. When ctx
// ends first the pipelines are cancelled and awaited once more.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel(errShuttingDown)
		return err
	case <-ctx.Done():
		s.logger.Warn("Cancelling in-flight commands")
		s.cancel(errShuttingDown)
		<-done
		return errors.Join(err, fmt.Errorf("in-flight commands cancelled: %w", context.Cause(ctx)))
	}
}

// track registers a pipeline unless the server is shutting down.
func (s *APIServer) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.inFlight.Add(1)
	return true
}
