package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"

	"preecode/internal/api/handler"
	"preecode/internal/api/middleware"
	"preecode/internal/common"
	"preecode/internal/common/security"
	"preecode/internal/platform/metrics"
)

type Services struct {
	Auth        handler.AuthService
	Users       handler.UserService
	Stats       handler.StatsService
	Devices     handler.DeviceLogout
	Submissions handler.SubmissionService
	Practice    handler.PracticeService
	AI          handler.AIService
	EarlyAccess handler.EarlyAccessService
	// Access backs the early-access gate; nil disables enforcement.
	Access middleware.AccessChecker
}

type RouterConfig struct {
	Environment    string
	AllowedOrigins []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	// TrustProxy lets forwarding headers set the client IP used for rate
	// limiting and logs. Off, the socket peer address is used.
	TrustProxy bool
}

func NewRouter(
	cfg RouterConfig,
	svc Services,
	tokens *security.TokenIssuer,
	revocations middleware.RevocationChecker,
	limiter *middleware.IPRateLimiter,
	m *metrics.Metrics,
	log *zap.Logger,
) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	if cfg.TrustProxy {
		r.Use(chiMiddleware.RealIP)
	}
	r.Use(middleware.RequestLogger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Metrics(m))
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length", "X-JSON-Response"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chiMiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Preecode backend running"))
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	auth := middleware.NewAuth(revocations, log)
	guards := handler.Guards{
		// Verifier finds the bearer token, Authenticator enforces it.
		Auth: func(next http.Handler) http.Handler {
			return jwtauth.Verifier(tokens.Auth())(auth.Authenticator(next))
		},
	}
	if svc.Access != nil {
		guards.EarlyAccess = middleware.RequireEarlyAccess(svc.Access, log)
	}

	r.Route("/api", func(api chi.Router) {
		if limiter != nil {
			api.Use(limiter.Middleware(log))
		}
		if cfg.MaxBodyBytes > 0 {
			api.Use(chiMiddleware.RequestSize(cfg.MaxBodyBytes))
		}

		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			common.RespondWithJSON(w, http.StatusOK, map[string]string{
				"status":      "OK",
				"environment": cfg.Environment,
			})
		})

		api.Route("/auth", func(ar chi.Router) {
			handler.NewAuthHandler(svc.Auth, log).RegisterRoutes(ar, guards)
		})
		api.Route("/users", func(ur chi.Router) {
			handler.NewUserHandler(svc.Users, svc.Stats, svc.Devices, log).RegisterRoutes(ur, guards)
		})
		api.Route("/submissions", func(sr chi.Router) {
			handler.NewSubmissionHandler(svc.Submissions, log).RegisterRoutes(sr, guards)
		})
		api.Route("/practice", func(pr chi.Router) {
			handler.NewPracticeHandler(svc.Practice, log).RegisterRoutes(pr, guards)
		})
		api.Route("/ai", func(air chi.Router) {
			handler.NewAIHandler(svc.AI, log).RegisterRoutes(air, guards)
		})
		api.Route("/early-access", func(er chi.Router) {
			handler.NewEarlyAccessHandler(svc.EarlyAccess, log).RegisterRoutes(er, guards)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		common.RespondWithError(w, http.StatusNotFound, "Route not found")
	})

	return r
}
