package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lunarcap/marketdeck/internal/config"
	"github.com/lunarcap/marketdeck/internal/dispatch"
	"github.com/lunarcap/marketdeck/internal/logger"
	"github.com/lunarcap/marketdeck/internal/stream"
	"github.com/lunarcap/marketdeck/internal/types"
	"github.com/lunarcap/marketdeck/internal/version"
)

func main() {
	// Define command-line flags
	configFlag := flag.String("config", "", "Path to the client configuration file")
	urlFlag := flag.String("url", "", "Server base URL (overrides the config file)")
	classesFlag := flag.String("classes", "", "Comma-separated asset classes to subscribe to: forex, stocks, crypto")
	minPriorityFlag := flag.String("min-priority", "", "Minimum narrative priority: low, medium, high")
	logFileFlag := flag.String("log-file", "", "Log file path (overrides the config file)")

	flag.Parse()

	// Validate flag values before touching the network
	if *minPriorityFlag != "" {
		switch types.Priority(*minPriorityFlag) {
		case types.PriorityLow, types.PriorityMedium, types.PriorityHigh:
		default:
			fmt.Printf("Error: invalid --min-priority %q\n", *minPriorityFlag)
			flag.Usage()
			os.Exit(1)
		}
	}

	// Parse asset classes
	var classes []types.AssetClass
	if *classesFlag != "" {
		for _, raw := range strings.Split(*classesFlag, ",") {
			class := types.AssetClass(strings.TrimSpace(raw))
			if !class.Valid() {
				fmt.Printf("Error: invalid --classes entry %q\n", raw)
				flag.Usage()
				os.Exit(1)
			}
			classes = append(classes, class)
		}
	}

	// Load configuration
	cfg := config.DefaultConfig()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *urlFlag != "" {
		cfg.Server.URL = *urlFlag
	}
	if *logFileFlag != "" {
		cfg.Log.File = *logFileFlag
	}

	endpoint, err := cfg.StreamURL()
	if err != nil {
		log.Fatalf("Failed to resolve stream endpoint: %v", err)
	}

	appLogger := logger.NewFileLogger(cfg.Log.File)
	defer func() {
		_ = appLogger.Sync()
	}()

	// Setup callbacks that print each routed payload as a line
	onIntelligence := dispatch.OnIntelligenceCallback(func(update types.IntelligenceUpdate) {
		for _, class := range types.AllAssetClasses() {
			narratives, ok := update.Classes[class]
			if !ok {
				continue
			}
			for _, n := range narratives {
				fmt.Printf("[%s] %s %s %s %d%% %s\n",
					update.Timestamp.Format("15:04:05"), class,
					n.Symbol, n.Priority, int(math.Round(n.Confidence*100)), n.Text)
			}
		}
	})
	onSnapshot := dispatch.OnSnapshotCallback(func(snapshot types.DashboardSnapshot) {
		parts := []string{}
		if status, err := snapshot.MarketStatus.Take(); err == nil {
			parts = append(parts, "status="+status)
		}
		if breadth, err := snapshot.BreadthPct.Take(); err == nil {
			parts = append(parts, "breadth="+breadth.StringFixed(1)+"%")
		}
		if index, err := snapshot.VolatilityIndex.Take(); err == nil {
			parts = append(parts, "volatility="+index.String())
		}
		if session, err := snapshot.CurrentSession.Take(); err == nil {
			parts = append(parts, "session="+session)
		}
		if movers := snapshot.TopMovers; movers != nil {
			parts = append(parts, fmt.Sprintf("movers=%d", len(movers.Gainers)+len(movers.Losers)))
		}
		fmt.Printf("[%s] snapshot %s\n",
			snapshot.Timestamp.Format("15:04:05"), strings.Join(parts, " "))
	})
	onNotification := dispatch.OnNotificationCallback(func(message string, severity types.Severity) {
		fmt.Printf("Notice (%s): %s\n", severity, message)
	})
	onPong := dispatch.OnPongCallback(func(latency time.Duration) {
		fmt.Printf("Pong: link latency %s\n", latency.Round(time.Millisecond))
	})

	handlers := dispatch.Handlers{
		OnIntelligence: &onIntelligence,
		OnSnapshot:     &onSnapshot,
		OnNotification: &onNotification,
		OnPong:         &onPong,
	}

	// The preference push must happen off the state callback; callbacks may
	// not call back into the manager.
	opened := make(chan struct{}, 1)
	onStateChange := stream.OnStateChangeCallback(func(from stream.State, to stream.State, attempt int) {
		if to == stream.StateReconnecting {
			fmt.Printf("Connection state: %s -> %s (attempt %d)\n", from, to, attempt)
		} else {
			fmt.Printf("Connection state: %s -> %s\n", from, to)
		}
		if to == stream.StateOpen {
			select {
			case opened <- struct{}{}:
			default:
			}
		}
	})

	manager := stream.NewManager(endpoint, cfg.Stream, appLogger)
	manager.SetDispatcher(dispatch.NewDispatcher(handlers, appLogger))
	manager.SetOnStateChange(onStateChange)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping...")
		cancel()
	}()

	// Re-push preferences on every reopen; the server scopes them to the
	// connection.
	if len(classes) > 0 || *minPriorityFlag != "" {
		preferences := types.Preferences{
			AssetClasses: classes,
			MinPriority:  types.Priority(*minPriorityFlag),
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-opened:
					if err := manager.UpdatePreferences(preferences); err != nil {
						fmt.Printf("Failed to push preferences: %v\n", err)
					}
				}
			}
		}()
	}

	fmt.Printf("marketdeck %s tailing %s...\n", version.GetVersion(), endpoint)
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("Failed to start stream: %v", err)
	}

	<-ctx.Done()
	manager.Stop()

	stats := manager.Stats()
	fmt.Printf("Stream stopped: %d frames received, %d reconnects\n",
		stats.FramesReceived, stats.Reconnects)
}
