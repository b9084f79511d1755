package main

import (
	"context"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lunarcap/marketdeck/internal/config"
	"github.com/lunarcap/marketdeck/internal/dispatch"
	"github.com/lunarcap/marketdeck/internal/logger"
	"github.com/lunarcap/marketdeck/internal/stream"
	"github.com/lunarcap/marketdeck/internal/version"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	cmd := &cli.Command{
		Name:    "dashboard",
		Usage:   "Live market intelligence terminal dashboard",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the client configuration file",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "log-file",
				Aliases:  []string{"l"},
				Usage:    "Override the log file path",
				Required: false,
			},
		},
		Action: runDashboard,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// runDashboard wires the stream manager, the frame dispatcher, and the
// terminal UI together, then blocks until the user quits.
func runDashboard(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if logFile := cmd.String("log-file"); logFile != "" {
		cfg.Log.File = logFile
	}

	// The UI owns stdout, so logs go to a file.
	appLogger := logger.NewFileLogger(cfg.Log.File)
	defer func() {
		_ = appLogger.Sync()
	}()

	endpoint, err := cfg.StreamURL()
	if err != nil {
		return err
	}

	manager := stream.NewManager(endpoint, cfg.Stream, appLogger)
	program := tea.NewProgram(NewModel(cfg, manager), tea.WithAltScreen(), tea.WithContext(ctx))

	manager.SetDispatcher(dispatch.NewDispatcher(NewProgramHandlers(program), appLogger))
	manager.SetOnStateChange(NewStateListener(program))

	appLogger.Info("starting dashboard", zap.String("endpoint", endpoint))

	_, runErr := program.Run()

	// The quit key already stops the manager; this covers error paths and
	// context cancellation, and Stop is idempotent.
	manager.Stop()

	if runErr != nil {
		return fmt.Errorf("dashboard terminated: %w", runErr)
	}

	return nil
}

func loadConfig(path string) (config.ClientConfig, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.EmptyConfig(), err
	}

	return *cfg, nil
}
