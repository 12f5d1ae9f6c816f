package api

import (
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"cokmall-api/internal/app"
	"cokmall-api/internal/observability"
	"cokmall-api/internal/response"
)

var (
	initOnce   sync.Once
	apiRuntime *app.Runtime
	initErr    error
	initLogger *zap.Logger
)

// Handler is the serverless entrypoint. The runtime is built once per
// instance and reused across invocations; a failed bootstrap answers
// every request with the standard internal-error envelope.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		apiRuntime, initErr = app.Build(app.Options{
			LoadDotEnv:    false,
			RunMigrations: app.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
		})
		if initErr != nil {
			initLogger = observability.NewLogger()
		}
	})

	if initErr != nil {
		response.WriteError(w, initLogger, response.Internal(fmt.Errorf("bootstrap: %w", initErr)))
		return
	}

	apiRuntime.Handler.ServeHTTP(w, r)
}
