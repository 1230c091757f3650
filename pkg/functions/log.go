package functions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/gridfn/pkg/models"
	"github.com/dukex/gridfn/pkg/template"
)

const LogID = "gridfn.log"

type logArgs struct {
	Message string `cbor:"message"`
	Level   string `cbor:"level"`
	Data    any    `cbor:"data"`
}

// Log writes a rendered message to the member log. It returns nothing.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger.With("module", "log_function")}
}

func (f *Log) Descriptor() models.FunctionDescriptor {
	return models.FunctionDescriptor{ID: LogID}
}

func (f *Log) ArgsSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"message"},
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level":   map[string]any{"type": "string", "enum": []any{"debug", "info", "warn", "error"}},
		},
	}
}

func (f *Log) Execute(ctx context.Context, fc *models.FunctionContext) error {
	var args logArgs

	err := decodeArgs(LogID, fc.Args, &args)
	if err != nil {
		return err
	}

	rendered, err := template.RenderForFunction(args.Message, fc, args.Data)
	if err != nil {
		return fmt.Errorf("failed to render log message: %w", err)
	}

	level := slog.LevelInfo

	switch strings.ToLower(args.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	f.logger.Log(ctx, level, fmt.Sprint(rendered),
		"region", fc.RegionName,
		"member", fc.MemberID,
		"bucket", fc.Bucket,
	)

	return nil
}
