package alerting

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"vaultwatcher/internal/registry"
)

// Dispatcher fans one alert out to the console, the chat notifier, and an
// append-only alert log. The delivery paths are independent: a chat failure
// never blocks console output, and the log append runs last.
type Dispatcher struct {
	notifier Notifier // nil disables the chat path
	logPath  string
	out      io.Writer
	logger   zerolog.Logger
}

// NewDispatcher wires the delivery paths. notifier may be nil.
func NewDispatcher(notifier Notifier, logPath string, out io.Writer, logger zerolog.Logger) *Dispatcher {
	if out == nil {
		out = os.Stdout
	}
	return &Dispatcher{
		notifier: notifier,
		logPath:  logPath,
		out:      out,
		logger:   logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Send delivers the alert through every enabled channel. Only a log append
// failure is returned; callers report it without aborting their cycle.
func (d *Dispatcher) Send(ctx context.Context, channels registry.AlertChannels, alert Alert) error {
	message := renderMessage(alert)

	if channels.Console {
		fmt.Fprintf(d.out, "\n%s\n\n", message)
	}

	if chatID := channels.ChatID(); chatID != "" {
		if d.notifier == nil {
			d.logger.Warn().Str("vault", alert.Address).Msg("telegram chat configured but no bot token set; skipping chat delivery")
		} else if err := d.notifier.Notify(ctx, chatID, alert); err != nil {
			d.logger.Error().Err(err).Str("vault", alert.Address).Msg("telegram delivery failed")
		}
	}

	if d.logPath != "" {
		if err := d.appendLog(message); err != nil {
			return fmt.Errorf("append alert log: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) appendLog(message string) error {
	if err := os.MkdirAll(filepath.Dir(d.logPath), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(d.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = fmt.Fprintf(file, "%s - %s\n\n", time.Now().UTC().Format(time.RFC3339), message)
	return err
}

var _ Sink = (*Dispatcher)(nil)
