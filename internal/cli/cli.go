// Package cli holds setup shared by the command-line tools.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/yandex-direct/config"
	"github.com/raine/yandex-direct/internal/direct"
	"github.com/raine/yandex-direct/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging sends human-readable logs to stderr, keeping stdout free for
// report output.
func SetupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// NewClient builds a Direct client from cfg.
func NewClient(cfg config.Config, recorder *metrics.Recorder) (*direct.Client, error) {
	opts := direct.ClientOpts{
		Token:       cfg.Token,
		BaseURL:     cfg.BaseURL,
		Sandbox:     cfg.Sandbox,
		ClientLogin: cfg.ClientLogin,
		HTTPTimeout: cfg.HTTPTimeout,
		Poll: direct.PollOptions{
			MaxPolls: cfg.Report.MaxPolls,
			Timeout:  cfg.Report.Timeout,
		},
	}
	if recorder != nil {
		opts.Observer = recorder
	}
	return direct.NewClient(opts)
}

// WriteMetrics writes recorder to path if both are set.
func WriteMetrics(recorder *metrics.Recorder, path string) {
	if recorder == nil || path == "" {
		return
	}
	if err := recorder.WriteTextfile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to write metrics")
	}
}

// Fatal prints a message to stderr and exits.
func Fatal(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

// FormatMessage dedents text before formatting it.
func FormatMessage(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

// DescribeError turns a client error into a short explanation for the user.
func DescribeError(err error) string {
	switch direct.ErrorKind(err) {
	case "configuration":
		return "DIRECT_TOKEN is not set; put it in the environment or in config.env"
	case "unavailable":
		return "Server is unavailable. Try again later or contact Yandex support"
	case "timeout":
		return "The report was not ready in time; increase DIRECT_REPORT_TIMEOUT or DIRECT_REPORT_MAX_POLLS"
	default:
		return err.Error()
	}
}
