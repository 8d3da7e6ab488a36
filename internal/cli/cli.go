package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/vk/rulegraph/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated
// app.Config, a boolean indicating the program should exit cleanly, or an
// ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("rulegraph", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
rulegraph - an incremental, content-addressed rule execution engine.

Usage:
  rulegraph [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the config file or directory.")
	cFlag := flagSet.String("c", "", "Path to the config file or directory (shorthand).")
	watchFlag := flagSet.Bool("watch", false, "Stay alive and re-run requests when tracked inputs change.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 0, "Number of concurrent workers. 0 defers to configuration.")
	storePathFlag := flagSet.String("store-path", "", "Content store directory. Empty defers to configuration.")
	inMemoryFlag := flagSet.Bool("in-memory-store", false, "Use a throwaway in-memory content store.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = *cFlag
	}
	if configPath == "" && flagSet.NArg() > 0 {
		configPath = flagSet.Arg(0)
	}
	if configPath == "" {
		flagSet.Usage()
		return nil, false, &ExitError{Code: 2, Message: "a config path is required"}
	}

	cfg, err := app.NewConfig(app.Config{
		ConfigPath:    configPath,
		LogFormat:     *logFormatFlag,
		LogLevel:      *logLevelFlag,
		Watch:         *watchFlag,
		Workers:       *workersFlag,
		StorePath:     *storePathFlag,
		InMemoryStore: *inMemoryFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, false, nil
}
