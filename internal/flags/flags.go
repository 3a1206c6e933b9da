package flags

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

var (
	_ pflag.Value = (*LogLevel)(nil)
	_ pflag.Value = (*Threads)(nil)

	errInvalidValue = errors.New("invalid value")
)

// LogLevel is a pflag.Value wrapping slog.Level, accepted as one of
// debug/info/warn/error on the command line.
type LogLevel struct {
	Raw   string
	Value slog.Level
}

func (f *LogLevel) String() string {
	return f.Raw
}

func (f *LogLevel) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "debug":
		f.Value = slog.LevelDebug
	case "info":
		f.Value = slog.LevelInfo
	case "warn", "warning":
		f.Value = slog.LevelWarn
	case "error":
		f.Value = slog.LevelError
	default:
		return fmt.Errorf("%w: %q is not recognized", errInvalidValue, s)
	}

	f.Raw = s

	return nil
}

func (f *LogLevel) Type() string {
	return "level"
}

// Threads is a pflag.Value for the --threads flag: a non-negative worker
// count, where 0 means "one worker per CPU" (the CLI resolves it to
// runtime.NumCPU()).
type Threads struct {
	Raw   string
	Value int
}

func (f *Threads) String() string {
	return f.Raw
}

func (f *Threads) Set(s string) error {
	s = strings.TrimSpace(s)

	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", errInvalidValue, s)
	}

	if n < 0 {
		return fmt.Errorf("%w: thread count cannot be negative", errInvalidValue)
	}

	f.Raw = s
	f.Value = n

	return nil
}

func (f *Threads) Type() string {
	return "threads"
}
