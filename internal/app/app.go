package app

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/mailmerge/internal/mailmerge/outbound/email"
	"github.com/shandysiswandi/mailmerge/internal/pkg/clock"
	"github.com/shandysiswandi/mailmerge/internal/pkg/config"
	"github.com/shandysiswandi/mailmerge/internal/pkg/goroutine"
	"github.com/shandysiswandi/mailmerge/internal/pkg/idempotency"
	"github.com/shandysiswandi/mailmerge/internal/pkg/instrument"
	"github.com/shandysiswandi/mailmerge/internal/pkg/messaging"
	"github.com/shandysiswandi/mailmerge/internal/pkg/router"
	"github.com/shandysiswandi/mailmerge/internal/pkg/storage"
	"github.com/shandysiswandi/mailmerge/internal/pkg/uid"
	"github.com/shandysiswandi/mailmerge/internal/pkg/validator"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	uuid      uid.StringID

	// resources
	cacheConn *redis.Client
	idemp     idempotency.Idempotency
	mail      email.Factory
	messaging messaging.Messaging
	storage   storage.Storage

	// server
	router     *router.Router
	httpServer *http.Server

	// modules register their own shutdown hooks here, run before the resources.
	moduleClosers []closer
	closers       []closer
}

// New initializes the application with default wiring and returns an App instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initCache()
	app.initStorage()
	app.initMessaging()
	app.initMail()
	app.initHTTPServer()
	app.initModules()
	app.initClosers()

	return app
}
