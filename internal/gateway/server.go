// Package gateway exposes the webhook and operator HTTP surface of the
// hotline service and wires deliveries into the call session machine.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/hotline/internal/call"
	"github.com/haasonsaas/hotline/internal/config"
	"github.com/haasonsaas/hotline/internal/observability"
)

// maxWebhookBody bounds webhook request bodies.
const maxWebhookBody = 1 << 20

// Stream labels for envelope metrics.
const (
	streamReceived = "received"
	streamCallback = "callback"
)

// Server hosts the webhook routes. Incoming-call notifications arrive on
// /api/call/received; call lifecycle events arrive on /api/callback with
// the target number threaded through the phoneNumber query parameter.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	client  call.Client
	machine *call.Machine

	httpServer   *http.Server
	httpListener net.Listener
	sweeper      *sweeper
}

// Options holds the dependencies for a Server.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Client  call.Client
	Machine *call.Machine
}

// NewServer creates the HTTP server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if opts.Client == nil {
		return nil, errors.New("gateway: call client is required")
	}
	if opts.Machine == nil {
		return nil, errors.New("gateway: session machine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}

	s := &Server{
		cfg:     opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
		tracer:  tracer,
		client:  opts.Client,
		machine: opts.Machine,
	}

	sw, err := newSweeper(opts.Config.Session, opts.Machine, logger)
	if err != nil {
		return nil, err
	}
	s.sweeper = sw
	return s, nil
}

// Start begins listening and starts the session sweeper. It returns once
// the listener is bound; serving continues in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = server
	s.httpListener = listener
	s.sweeper.start()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

// Stop shuts down the server and the sweeper.
func (s *Server) Stop(ctx context.Context) {
	if s.sweeper != nil {
		s.sweeper.stop()
	}
	if s.httpServer == nil {
		return
	}
	shutdownCtx := ctx
	var cancel context.CancelFunc
	if shutdownCtx == nil {
		shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.httpListener = nil
}

// Handler builds the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/call/received", s.instrument("/api/call/received", s.handleCallReceived))
	mux.HandleFunc("/api/callback", s.instrument("/api/callback", s.handleCallback))
	mux.HandleFunc("/api/make/call", s.instrument("/api/make/call", s.handleMakeCall))
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}

// handleCallReceived serves the incoming-call stream. OPTIONS is the
// push-delivery validation handshake: the request origin is echoed back
// as allowed, regardless of value. POST carries incoming-call envelopes.
func (s *Server) handleCallReceived(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		origin := r.Header.Get("Webhook-Request-Origin")
		w.Header().Set("Webhook-Allowed-Origin", origin)
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		s.processReceived(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) processReceived(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	logger := s.logger.With("request_id", requestID, "stream", streamReceived)

	ctx, span := s.tracer.Start(r.Context(), "webhook.call_received",
		attribute.String("request_id", requestID))
	defer span.End()

	for _, pe := range s.parseBody(w, r, logger) {
		switch {
		case pe.Err != nil:
			s.countEnvelope(streamReceived, "parse_error")
			logger.Warn("skipping malformed envelope", "error", pe.Err)
		case pe.IncomingCall != nil:
			s.countEnvelope(streamReceived, "handled")
			s.answerIncoming(ctx, pe.IncomingCall, logger)
		case pe.Event != nil:
			// Lifecycle events belong on the callback stream.
			s.countEnvelope(streamReceived, "unrecognized")
			logger.Info("ignoring lifecycle event on incoming-call stream",
				"type", pe.Event.Type)
		default:
			s.countEnvelope(streamReceived, "unrecognized")
			logger.Info("ignoring unrecognized envelope", "type", pe.Unrecognized)
		}
	}

	// Per the push-delivery contract a non-2xx triggers redelivery with
	// backoff; inner failures are logged instead of surfaced.
	w.WriteHeader(http.StatusOK)
}

// answerIncoming is the sole creation point of the binding between a
// future call connection id and its target number: the caller's number
// (without its "+" prefix) rides the callback URL as a query parameter
// and is recovered when the first lifecycle event arrives.
func (s *Server) answerIncoming(ctx context.Context, ic *call.IncomingCall, logger *slog.Logger) {
	callbackURL := s.callbackURL(ic.CallerNumber)

	err := s.client.Answer(ctx, &call.AnswerInput{
		IncomingCallContext:       ic.Context,
		CallbackURL:               callbackURL,
		CognitiveServicesEndpoint: s.cfg.Calling.CognitiveServicesEndpoint,
	})
	s.countCommand("answer", err)
	if err != nil {
		logger.Error("failed to answer incoming call",
			"caller", ic.CallerNumber, "error", err)
		return
	}
	logger.Info("answered incoming call", "caller", ic.CallerNumber)
}

// handleCallback serves the call lifecycle stream.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	phoneNumber := r.URL.Query().Get("phoneNumber")
	logger := s.logger.With("request_id", requestID, "stream", streamCallback)

	ctx, span := s.tracer.Start(r.Context(), "webhook.callback",
		attribute.String("request_id", requestID))
	defer span.End()

	for _, pe := range s.parseBody(w, r, logger) {
		switch {
		case pe.Err != nil:
			s.countEnvelope(streamCallback, "parse_error")
			logger.Warn("skipping malformed envelope", "error", pe.Err)
		case pe.Event != nil:
			s.countEnvelope(streamCallback, "handled")
			logger.Info("handling call event",
				"type", pe.Event.Type, "call_connection_id", pe.Event.CallConnectionID)
			if err := s.machine.HandleEvent(ctx, pe.Event, phoneNumber); err != nil {
				// Contained per event: one failing call never affects the batch.
				logger.Error("event handling failed",
					"type", pe.Event.Type, "call_connection_id", pe.Event.CallConnectionID,
					"error", err)
			}
		case pe.IncomingCall != nil:
			s.countEnvelope(streamCallback, "unrecognized")
			logger.Info("ignoring incoming-call event on lifecycle stream")
		default:
			s.countEnvelope(streamCallback, "unrecognized")
			logger.Info("ignoring unrecognized envelope", "type", pe.Unrecognized)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// handleMakeCall places the configured outbound call. The resulting
// Connected event is handled identically to an inbound call.
func (s *Server) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	out := s.cfg.Calling.Outbound
	if out.TargetNumber == "" || out.CallerIDNumber == "" {
		http.Error(w, "outbound calling is not configured", http.StatusBadRequest)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "make_call",
		attribute.String("target", out.TargetNumber))
	defer span.End()

	err := s.client.PlaceCall(ctx, &call.PlaceCallInput{
		TargetNumber:              out.TargetNumber,
		CallerIDNumber:            out.CallerIDNumber,
		CallbackURL:               s.callbackURL(out.TargetNumber),
		CognitiveServicesEndpoint: s.cfg.Calling.CognitiveServicesEndpoint,
	})
	s.countCommand("place_call", err)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("failed to place call", "target", out.TargetNumber, "error", err)
		http.Error(w, "failed to place call", http.StatusBadGateway)
		return
	}

	s.logger.Info("placed outbound call", "target", out.TargetNumber)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"calling"}`)) //nolint:errcheck
}

// parseBody reads and parses a webhook body. A body that is not valid
// JSON yields no envelopes; the handler still acknowledges with 200 so
// the platform does not redeliver it.
func (s *Server) parseBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger) []call.ParsedEnvelope {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		logger.Error("failed to read webhook body", "error", err)
		return nil
	}

	envelopes, err := call.ParseEnvelopes(body)
	if err != nil {
		logger.Error("failed to parse webhook body", "error", err)
		return nil
	}
	return envelopes
}

func (s *Server) callbackURL(number string) string {
	return CallbackURL(s.cfg.Calling.CallbackBaseURL, number)
}

// CallbackURL builds the lifecycle callback address carrying the target
// number as a routing parameter, "+" prefix stripped.
func CallbackURL(base, number string) string {
	base = strings.TrimSuffix(base, "/")
	digits := strings.TrimPrefix(number, "+")
	return base + "/api/callback?phoneNumber=" + url.QueryEscape(digits)
}

func (s *Server) countEnvelope(stream, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.EnvelopeProcessed(stream, outcome)
}

func (s *Server) countCommand(command string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.CommandIssued(command, status)
}

// instrument wraps a handler with HTTP request metrics.
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, path,
				strconv.Itoa(rec.status), time.Since(start).Seconds())
		}
	}
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
