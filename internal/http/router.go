package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/service/team"
	"github.com/splax/teamhub/internal/ws"
	"github.com/splax/teamhub/pkg/logger"
)

// Inbox lists stored notifications for a user.
type Inbox interface {
	Inbox(ctx context.Context, userID string) ([]domain.Message, error)
}

// Settings carries router tunables.
type Settings struct {
	JWTSecret      string
	StoreTimeout   time.Duration
	RateLimitWrite int
	RateLimitRead  int
	// Registerer and Gatherer default to the Prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Router wires HTTP endpoints to the membership engine.
type Router struct {
	mux         *mux.Router
	logger      *logger.Logger
	team        team.Service
	hub         *ws.Hub
	inbox       Inbox
	upgrader    websocket.Upgrader
	limiter     RateLimiter
	settings    Settings
	storeHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRealtime  = 30
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 25 * time.Second
	maxBodyBytes       = 1 << 20
)

// NewRouter assembles routes with dependencies. hub and inbox may be nil.
func NewRouter(log *logger.Logger, teamSvc team.Service, hub *ws.Hub, inbox Inbox, limiter RateLimiter, settings Settings, storeHealth func(context.Context) error) *Router {
	if log == nil {
		log = logger.Nop()
	}
	if settings.Registerer == nil {
		settings.Registerer = prometheus.DefaultRegisterer
	}
	if settings.Gatherer == nil {
		settings.Gatherer = prometheus.DefaultGatherer
	}
	if settings.StoreTimeout <= 0 {
		settings.StoreTimeout = 5 * time.Second
	}
	r := &Router{
		mux:    mux.NewRouter(),
		logger: log,
		team:   teamSvc,
		hub:    hub,
		inbox:  inbox,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:     limiter,
		settings:    settings,
		storeHealth: storeHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	write, read := r.settings.RateLimitWrite, r.settings.RateLimitRead

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) })
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { r.methodNotAllowed(w) })
	r.mux.NotFoundHandler = notFound
	r.mux.MethodNotAllowedHandler = methodNotAllowed

	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz)).Methods(http.MethodGet)
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.settings.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// a subrouter does not inherit the root's fallbacks
	api := r.mux.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed
	api.HandleFunc("/teams", r.audit(r.handlerAuthRate("teams.create", write, rateWindowDefault, r.handleCreateTeam))).Methods(http.MethodPost)
	api.HandleFunc("/teams/{teamId}/dissolve", r.audit(r.handlerAuthRate("teams.dissolve", write, rateWindowDefault, r.handleDissolveTeam))).Methods(http.MethodPost)
	api.HandleFunc("/teams/{teamId}/invite", r.audit(r.handlerAuthRate("teams.invite", write, rateWindowDefault, r.handleInvite))).Methods(http.MethodPost)
	api.HandleFunc("/teams/{teamId}/members", r.audit(r.handlerAuthRate("teams.members", read, rateWindowDefault, r.handleGetMembers))).Methods(http.MethodGet)
	api.HandleFunc("/teams/{teamId}/members/{userId}", r.audit(r.handlerAuthRate("teams.remove", write, rateWindowDefault, r.handleRemoveMember))).Methods(http.MethodDelete)
	api.HandleFunc("/me/teams", r.audit(r.handlerAuthRate("me.teams", read, rateWindowDefault, r.handleMyTeams))).Methods(http.MethodGet)
	api.HandleFunc("/me/messages", r.audit(r.handlerAuthRate("me.messages", read, rateWindowDefault, r.handleMyMessages))).Methods(http.MethodGet)
	api.HandleFunc("/me/notifications/stream", r.audit(r.handlerStreamAuthRate("me.stream", rateLimitRealtime, rateWindowRealtime, r.handleNotificationStream))).Methods(http.MethodGet)

	r.mux.HandleFunc("/ws/notifications", r.audit(r.handlerStreamAuthRate("ws.notifications", rateLimitRealtime, rateWindowRealtime, r.handleNotificationsWS))).Methods(http.MethodGet)
}

// storeContext bounds a request's store calls.
func (r *Router) storeContext(req *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(req.Context(), r.settings.StoreTimeout)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.storeHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.storeHealth(ctx); err != nil {
			status = "degraded"
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, routeTemplate(req), status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		if teamID := mux.Vars(req)["teamId"]; teamID != "" {
			fields = append(fields, "team_id", teamID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

func routeTemplate(req *http.Request) string {
	if route := mux.CurrentRoute(req); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
