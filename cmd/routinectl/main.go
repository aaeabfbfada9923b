// Command routinectl validates and runs routine definition files. Plugins
// are resolved from a remote plugin server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eleven-am/routines"
	"github.com/eleven-am/routines/internal/xjson"
)

const usage = `Usage: routinectl <command> [flags] <definition>

Commands:
  validate   check a definition without running it
  run        execute a definition and print the run result

Definitions may be .json, .yaml, .yml or .hcl files.
`

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	remote      string
	logLevel    string
	executionID string
	definition  string
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return &ExitError{Code: 2, Message: "missing command"}
	}

	command := args[0]
	switch command {
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	case "validate", "run":
	default:
		fmt.Fprint(stderr, usage)
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", command)}
	}

	opts, err := parseFlags(command, stderr, args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}

	def, err := routines.LoadDefinition(opts.definition)
	if err != nil {
		return err
	}

	manager, err := newManager(opts)
	if err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer manager.Stop()

	if command == "validate" {
		return validate(stdout, manager, def, opts.remote != "")
	}
	return execute(ctx, stdout, manager, def, opts.executionID)
}

func parseFlags(command string, output io.Writer, args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("routinectl "+command, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "YAML config file")
	fs.StringVar(&opts.remote, "remote", os.Getenv("ROUTINES_REMOTE_ADDRESS"), "plugin server address")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	if command == "run" {
		fs.StringVar(&opts.executionID, "execution-id", "", "execution id (generated when empty)")
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() != 1 {
		return opts, fmt.Errorf("%s takes exactly one definition file", command)
	}
	opts.definition = fs.Arg(0)
	return opts, nil
}

func newManager(opts options) (*routines.Manager, error) {
	config := routines.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := routines.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	if opts.remote != "" {
		config.Remote.Address = opts.remote
	}
	if opts.logLevel != "" {
		config.LogLevel = opts.logLevel
	}
	return routines.NewWithConfig(config)
}

// validate prints every issue found. Without a plugin server there is
// nothing to resolve plugins against, so unknown-plugin issues are dropped.
func validate(stdout io.Writer, manager *routines.Manager, def routines.RoutineDefinition, resolvePlugins bool) error {
	result, err := manager.Validate(def)
	if err != nil {
		return err
	}

	var failures []routines.ValidationIssue
	for _, issue := range result.Errors {
		if !resolvePlugins && issue.Code == routines.IssueUnknownPlugin {
			continue
		}
		failures = append(failures, issue)
	}

	for _, issue := range failures {
		fmt.Fprintf(stdout, "error   %s\n", issue)
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(stdout, "warning %s\n", issue)
	}

	if len(failures) > 0 {
		return &ExitError{Code: 1, Message: fmt.Sprintf("%s: %d validation error(s)", def.RoutineID, len(failures))}
	}
	fmt.Fprintf(stdout, "%s: ok\n", def.RoutineID)
	return nil
}

func execute(ctx context.Context, stdout io.Writer, manager *routines.Manager, def routines.RoutineDefinition, executionID string) error {
	result, runErr := manager.ExecuteWithOptions(ctx, def, routines.RunOptions{ExecutionID: executionID, TriggerType: "cli"})
	if result != nil {
		data, err := xjson.MarshalIndent(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(data))
	}
	if runErr != nil {
		return &ExitError{Code: 1, Message: runErr.Error()}
	}
	return nil
}
