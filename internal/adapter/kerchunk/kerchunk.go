// Package kerchunk runs the external chunk-index generator. Index
// extraction needs NetCDF/HDF5 libraries, so it lives in a separate
// executable; this adapter shells out to it and captures the reference
// document it prints.
package kerchunk

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandIndexer builds a reference document for one NetCDF file by
// invoking a configured command with the file path as its last argument.
// The command writes the JSON document to stdout.
type CommandIndexer struct {
	command string
	args    []string
	logger  *slog.Logger
}

// NewCommandIndexer splits command on whitespace; the first field is the
// executable, the rest are fixed leading arguments.
func NewCommandIndexer(command string, logger *slog.Logger) *CommandIndexer {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = []string{"kerchunk-index"}
	}
	return &CommandIndexer{
		command: fields[0],
		args:    fields[1:],
		logger:  logger,
	}
}

// Index produces the reference document for the NetCDF file at path.
func (c *CommandIndexer) Index(ctx context.Context, path string) ([]byte, error) {
	args := append(append([]string{}, c.args...), path)
	cmd := exec.CommandContext(ctx, c.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("run %s on %s: %w: %s", c.command, path, err, msg)
		}
		return nil, fmt.Errorf("run %s on %s: %w", c.command, path, err)
	}

	out := stdout.Bytes()
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, fmt.Errorf("run %s on %s: empty reference document", c.command, path)
	}
	return out, nil
}
