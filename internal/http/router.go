package http

import (
	"net/http"

	"warden/internal/auth"
	"warden/internal/commands"
	"warden/internal/config"
	"warden/internal/http/handler"
	mw "warden/internal/http/middleware"
	"warden/internal/scheduler"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Deps struct {
	DB    *gorm.DB
	JWT   *auth.JWT
	Sched *scheduler.Scheduler
	Repo  *commands.Repo
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	ah := &handler.AuthHandler{DB: d.DB, JWT: d.JWT}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)

	me := &handler.MeHandler{}
	r.With(auth.RequireAuth(d.JWT)).Get("/me", me.Me)

	ch := &handler.CommandHandler{Sched: d.Sched, Repo: d.Repo}

	r.Route("/commands", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.JWT))

		r.Post("/", ch.Submit)
		r.Get("/", ch.List)
		r.Get("/state", ch.State)
		r.With(auth.RequireAdmin).Delete("/", ch.ClearAll)

		r.Get("/{id}", ch.Get)
		r.Post("/{id}/complete", ch.Complete)
	})

	return r
}
