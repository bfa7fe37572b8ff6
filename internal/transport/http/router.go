package http

import (
	"net/http"
	"os"

	"elsa-streak-service/internal/app"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions tunes the HTTP surface built by NewRouter.
type RouterOptions struct {
	Limiter  *RateLimiter
	Gatherer prometheus.Gatherer
	// AllowedOrigins feeds the CORS handler; empty allows any origin.
	AllowedOrigins []string
}

// NewRouter assembles the REST API, the websocket feed, health and metrics
// endpoints. The websocket route skips the rate limiter and metrics wrapper
// since both hold on to the ResponseWriter for the lifetime of the connection.
func NewRouter(tracker *app.Tracker, opts RouterOptions) http.Handler {
	api := http.NewServeMux()
	NewAPI(tracker).Register(api)
	api.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	api.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var wrapped http.Handler = MonitorMiddleware(api)
	if opts.Limiter != nil {
		wrapped = opts.Limiter.Middleware(wrapped)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /ws", NewWSHandler(tracker).ServeWS)
	root.Handle("/", wrapped)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return handlers.CombinedLoggingHandler(os.Stdout, cors(root))
}
