// Package query runs the external filter command the query dialog is
// backed by. The buffer goes to the command's stdin, the query string is
// appended to its arguments, and stdout comes back as the result.
package query

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rkovacs/medit/internal/config"
	"github.com/rkovacs/medit/internal/logger"
)

// Error carries the command's stderr for the dialog to show. The
// document is never modified by a failed query.
type Error struct {
	Output string
	Err    error
}

func (e *Error) Error() string {
	if e.Output != "" {
		return e.Output
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Run executes the configured filter over content.
func Run(ctx context.Context, cfg config.Query, content, queryString string) (string, error) {
	args := append(append([]string(nil), cfg.Args...), queryString)
	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	cmd.Stdin = strings.NewReader(content)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logger.Debug("query command failed", "command", cfg.Command, "err", err)
		return "", &Error{Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return out.String(), nil
}
