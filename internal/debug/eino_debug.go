// Package debug starts the eino visual debugging server.
package debug

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/devops"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/internal/logger"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init starts the devops server once per process when cfg enables it and
// returns the address it is reachable at. Graphs compiled afterwards are
// visible in the eino debugging UI.
func Init(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg == nil || !cfg.EinoDebugEnabled {
		return "", nil
	}
	initOnce.Do(func() {
		if err := devops.Init(ctx); err != nil {
			initErr = fmt.Errorf("failed to initialize eino debug plugin: %w", err)
			return
		}
		logger.Get().Infow("eino debug server started", "url", URL(cfg))
	})
	if initErr != nil {
		return "", initErr
	}
	return URL(cfg), nil
}

// URL is where the debug UI listens, or "" when debugging is off.
func URL(cfg *config.Config) string {
	if cfg == nil || !cfg.EinoDebugEnabled {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", cfg.EinoDebugPort)
}
