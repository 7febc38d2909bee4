package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/robbiet76/fpp-calendar-sync/internal/config"
	"github.com/robbiet76/fpp-calendar-sync/internal/export"
	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/holiday"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
	"github.com/robbiet76/fpp-calendar-sync/internal/router"
	"github.com/robbiet76/fpp-calendar-sync/internal/scheduler"
	"github.com/robbiet76/fpp-calendar-sync/internal/suntime"
	"github.com/robbiet76/fpp-calendar-sync/internal/target"
	"github.com/robbiet76/fpp-calendar-sync/pkg/ical"
)

type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

// NewServer assembles the full pipeline from settings and the config
// manager and binds it behind the JSON API.
func NewServer(settings *config.Settings, cfg *config.Manager, logger zerolog.Logger) *Server {
	env := config.LoadEnv(settings.EnvPath)
	loc := env.Location()
	if settings.Timezone != "" {
		if l, err := time.LoadLocation(settings.Timezone); err == nil {
			loc = l
		}
	}

	file := fpp.NewScheduleFile(settings.SchedulePath, logger)
	store := manifest.NewStore(settings.ManifestPath, logger)
	fetcher := ical.NewFetcher(logger)
	targets := target.NewResolver(settings.MediaRoot)
	holidays := holiday.NewResolver(loc)
	sun := suntime.New(env.Latitude, env.Longitude)

	svc := scheduler.NewService(cfg, file, store, fetcher, targets, holidays, loc, logger)
	exporter := export.NewExporter(loc, sun, holidays, logger)
	mux := router.New(svc, exporter, file, logger)

	srv := &Server{
		http: &http.Server{
			Addr:         settings.HTTPAddr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
	logger.Info().Msgf("listening on %s (schedule=%s)", settings.HTTPAddr, settings.SchedulePath)
	return srv
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
