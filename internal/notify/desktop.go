// Package notify delivers reminder notifications to the desktop and to
// optional mirrors.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hray3182/chime/internal/dispatch"
)

// Desktop shows a notification by running a command such as notify-send with
// the title and body appended as the last two arguments.
type Desktop struct {
	Command []string
}

func NewDesktop(command []string) *Desktop {
	if len(command) == 0 {
		command = []string{"notify-send", "--app-name=chime"}
	}
	return &Desktop{Command: command}
}

func (d *Desktop) Notify(ctx context.Context, n dispatch.Notification) error {
	if len(d.Command) == 0 {
		return errors.New("desktop notifier has no command")
	}
	args := append(append([]string{}, d.Command[1:]...), n.Title, n.Body)
	cmd := exec.CommandContext(ctx, d.Command[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", d.Command[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; the errors are joined.
type Multi []dispatch.Notifier

func (m Multi) Notify(ctx context.Context, n dispatch.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
