package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/pvlogger/internal/config"
	"github.com/berfenger/pvlogger/internal/core/port"
	"github.com/berfenger/pvlogger/internal/core/service"

	"github.com/asynkron/protoactor-go/actor"
	_ "github.com/joho/godotenv/autoload"
)

// Backend groups the read side served over HTTP.
type Backend struct {
	Reports *service.Reports
	Minutes port.MinuteStore
	Rollups port.RollupStore
	Metrics http.Handler
}

type Server struct {
	port        uint
	httpLog     bool
	rootContext *actor.RootContext
	masterActor *actor.PID
	backend     Backend
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID, backend Backend) *http.Server {
	NewServer := &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		backend:     backend,
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
