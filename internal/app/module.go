package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/mailmerge/internal/mailmerge"
)

func (a *App) initModules() {
	if !a.config.GetBool("modules.mailmerge.enabled") {
		return
	}

	mod, err := mailmerge.New(mailmerge.Dependency{
		Ctx:         a.ctx,
		Config:      a.config,
		Instrument:  a.ins,
		UUID:        a.uuid,
		Clock:       a.clock,
		Goroutine:   a.goroutine,
		Validator:   a.validator,
		Router:      a.router,
		Messaging:   a.messaging,
		Storage:     a.storage,
		Idempotency: a.idemp,
		Mail:        a.mail,
	})
	if err != nil {
		slog.Error("failed to init module mailmerge", "error", err)
		os.Exit(1)
	}

	a.moduleClosers = append(a.moduleClosers, closer{name: "Mailmerge", fn: mod.Close})
}
