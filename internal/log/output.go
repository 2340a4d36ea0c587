package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/proclat/internal/config"
)

// Console streams accepted by log.console. Logs default to stderr so that
// tables written to stdout stay machine readable.
const (
	ConsoleStderr = "stderr"
	ConsoleStdout = "stdout"
	ConsoleOff    = "off"
)

var (
	stderr io.Writer = os.Stderr
	stdout io.Writer = os.Stdout
)

// newOutput builds the log destination: the console stream plus the
// rotating file when log.file.enabled is set.
func newOutput(cfg config.LogConfig) (io.Writer, error) {
	var writers []io.Writer

	switch strings.ToLower(cfg.Console) {
	case ConsoleStderr, "":
		writers = append(writers, stderr)
	case ConsoleStdout:
		writers = append(writers, stdout)
	case ConsoleOff:
	default:
		return nil, fmt.Errorf("unsupported log console: %s (must be stderr/stdout/off)", cfg.Console)
	}

	if cfg.File.Enabled {
		w, err := newFileOutput(cfg.File)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}

	switch len(writers) {
	case 0:
		return io.Discard, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

// newFileOutput maps log.file.* onto a lumberjack rotating file.
func newFileOutput(cfg config.LogFileConfig) (*lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log.file.path is required when log.file.enabled is set")
	}
	if cfg.MaxSizeMB < 0 || cfg.MaxBackups < 0 || cfg.MaxAgeDays < 0 {
		return nil, fmt.Errorf("log.file limits must be >= 0")
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}
