package debug

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/dyike/PolyCortex/config"
	"github.com/dyike/PolyCortex/internal/logging"
)

// EinoDebugger starts the eino devops server so compiled graphs can be
// inspected from the visual debugger.
type EinoDebugger struct {
	config *config.Config
}

func NewEinoDebugger(cfg *config.Config) *EinoDebugger {
	return &EinoDebugger{config: cfg}
}

// Initialize must run before the graph is compiled, otherwise the graph is
// not registered with the debug server.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}
	logger := logging.FromContext(ctx).WithComponent("eino-debug")
	logger.Info("starting eino visual debug server", "port", d.config.EinoDebugPort)

	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	logger.Info("eino debug server ready", "url", d.URL())
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

func (d *EinoDebugger) URL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.config.EinoDebugPort)
}
