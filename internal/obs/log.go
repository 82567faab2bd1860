package obs

import (
	"io"
	"os"
	"strings"

	logging "github.com/inconshreveable/log15"
)

type LogConfig struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger builds the operational logger. Access logs go through LogAccess instead.
func NewLogger(cfg LogConfig, ctx ...interface{}) (logging.Logger, error) {
	level := logging.LvlInfo
	if cfg.Level != "" {
		parsed, err := logging.LvlFromString(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	var format logging.Format
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		format = logging.JsonFormat()
	case "logfmt":
		format = logging.LogfmtFormat()
	default:
		format = logging.TerminalFormat()
	}
	logger := logging.New(ctx...)
	logger.SetHandler(logging.LvlFilterHandler(level, logging.StreamHandler(out, format)))
	return logger, nil
}

func NopLogger() logging.Logger {
	logger := logging.New()
	logger.SetHandler(logging.DiscardHandler())
	return logger
}
