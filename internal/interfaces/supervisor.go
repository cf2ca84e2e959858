package interfaces

import (
	"context"

	"github.com/ternarybob/shellprobe/internal/models"
)

// Supervisor owns one supervised run of the application. Only Start and
// Stop mutate the running state.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool

	// Client returns common.ErrNotRunning unless the application is running
	Client() (AutomationClient, error)

	// Window returns common.ErrNotRunning unless the application is running
	Window() (models.WindowHandle, error)

	// HostLogs returns the main-process output, also after Stop
	HostLogs() []string
}
