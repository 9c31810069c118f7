package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// outcomeError marks a command that ran to completion with a non-success
// result. It maps to exit status 1 without being printed as a usage error.
type outcomeError struct{ kind string }

func (e *outcomeError) Error() string { return "outcome: " + e.kind }

func exitCode(err error) int {
	var oe *outcomeError
	if errors.As(err, &oe) {
		return 1
	}
	return 2
}

// readInput returns the raw message from path, or from stdin when path is
// empty or "-".
func readInput(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
