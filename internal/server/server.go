package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/senec2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

type Server struct {
	port           uint
	httpLog        bool
	requestTimeout time.Duration
	rootContext    *actor.RootContext
	masterActor    *actor.PID
	metrics        http.Handler
}

// NewServer exposes health, read-only device state and, when metrics is not
// nil, a Prometheus scrape endpoint.
func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, metrics http.Handler) *http.Server {
	NewServer := &Server{
		port:           cfg.Port,
		rootContext:    rootContext,
		masterActor:    masterActor,
		httpLog:        cfg.HttpLog,
		requestTimeout: 10 * time.Second,
		metrics:        metrics,
	}

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}
