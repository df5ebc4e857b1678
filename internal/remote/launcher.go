package remote

import (
	"fmt"
	"io"

	"github.com/spinup-sh/spinup/internal/models"
)

// Launcher attaches the local terminal to a machine for a foreground
// session. It never destroys anything itself: accidental teardown
// mid-session is the most damaging mistake this kind of tool can make,
// so disposal is always a separate explicit command.
type Launcher struct {
	Out io.Writer
}

// Attach runs command (or a login shell when empty) interactively and,
// whatever the exit code, reminds the user the machine keeps billing
// and how to reconnect or destroy it.
func (l *Launcher) Attach(t Transport, handle *models.ResourceHandle, command string) (int, error) {
	code, err := t.Interactive(command)

	fmt.Fprintf(l.Out, "\n📦 Machine %q (%s) is still running and billing.\n", handle.Name, handle.ID)
	fmt.Fprintf(l.Out, "   Reconnect:  spinup connect\n")
	fmt.Fprintf(l.Out, "   Destroy:    spinup destroy\n")

	return code, err
}
