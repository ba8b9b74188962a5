// Command groupchatd serves the group-chat orchestration core over HTTP,
// or runs a single turn from the command line against a config file.
//
// Usage:
//
//	groupchatd serve --config groupchat.yaml
//	groupchatd run --config groupchat.yaml --group support --message "..."
//	groupchatd validate --config groupchat.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	groupchat "github.com/meshcrew/groupchat"
	"github.com/meshcrew/groupchat/config"
	"github.com/meshcrew/groupchat/eventstream"
	"github.com/meshcrew/groupchat/logging"
	"github.com/meshcrew/groupchat/server"
	"github.com/meshcrew/groupchat/store"

	"github.com/prometheus/client_golang/prometheus"
)

// CLI is the root kong command set.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the group-chat HTTP server."`
	Run      RunCmd      `cmd:"" help:"Run a single turn against a config file and print the resulting events."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"groupchat.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(groupchat.GetVersion().String())
	return nil
}

// ValidateCmd loads and validates a config document without starting
// anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port int    `help:"Port to listen on." default:"8080"`
	DB   string `help:"Path to the sqlite persistence file." default:"groupchat.db"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.Open(c.DB)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	eventstream.InitTracing(cfg.Logging.SamplingRate)

	metrics := eventstream.NewMetrics(prometheus.DefaultRegisterer)
	srv := server.New(cfg, st, metrics)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Port),
		Handler: srv.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// RunCmd runs exactly one turn from the command line and prints the
// resulting events (one per line, in Go's %+v form) followed by the turn
// status, for scripting and local testing without a running server.
type RunCmd struct {
	Group    string `required:"" help:"Group id to run a turn for."`
	Message  string `help:"User message for this turn."`
	DB       string `help:"Path to the sqlite persistence file." default:"groupchat.db"`
	Workflow bool   `help:"Run in workflow mode (§4.D.2) instead of the iterative engine."`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	st, err := store.Open(c.DB)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	srv := server.New(cfg, st, nil)
	turn := eventstream.NewTurn(0)

	// RunTurn/RunWorkflow run synchronously to completion, so the turn's
	// whole event backlog is already sitting in its buffer by the time they
	// return; drain it without blocking rather than racing a channel close
	// that never happens (Turn.Close only closes the done channel).
	var status string
	var runErr error
	if c.Workflow {
		var outcome server.WorkflowOutcome
		outcome, runErr = srv.RunWorkflow(context.Background(), c.Group, c.Message, turn)
		status = outcome.Status
	} else {
		var outcome server.TurnOutcome
		outcome, runErr = srv.RunTurn(context.Background(), c.Group, c.Message, turn)
		status = outcome.Status
	}

drain:
	for {
		select {
		case event := <-turn.Events():
			fmt.Printf("[%s] %+v\n", event.Tag, event)
		default:
			break drain
		}
	}

	fmt.Printf("status: %s\n", status)
	return runErr
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("groupchatd"),
		kong.Description("Group-chat orchestration core"),
		kong.UsageOnError(),
	)

	level, _ := logging.ParseLevel(cli.LogLevel)
	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logging.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logging.Init(level, output, cli.LogFormat)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
