package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugo/loupe/internal/config"
	"github.com/hugo/loupe/internal/cursor"
	"github.com/hugo/loupe/internal/daemon"
	"github.com/hugo/loupe/internal/database"
	"github.com/hugo/loupe/internal/grab"
	"github.com/hugo/loupe/internal/magnifier"
	"github.com/hugo/loupe/internal/reporter"
	"github.com/hugo/loupe/internal/source"
	"github.com/hugo/loupe/internal/web"
	"github.com/hugo/loupe/internal/xconn"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		runForeground(false)
	case "start":
		startDaemon(false)
	case "serve":
		startDaemon(true)
	case "stop":
		stopDaemon()
	case "status":
		showStatus()
	case "report":
		generateReport()
	case "clear":
		clearDatabase()
	case "version":
		fmt.Printf("loupe version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`loupe - X11 cursor magnifier

Replaces the pointer with a live magnified view of the screen under it.
Click any button to end the session.

Usage:
  loupe <command> [options]

Commands:
  run                Run a magnifier session in the foreground
  start              Run a magnifier session in the background
  serve              Background session plus diagnostics web API
  stop               Stop a background session
  status             Show session status and display information
  report [period]    Session diagnostics report (period: day, week, month)
  clear              Clear all diagnostics data from database
  version            Show version information
  help               Show this help message

Examples:
  loupe run
  loupe serve
  loupe report day --json
  loupe stop

Environment Variables:
  LOUPE_DISPLAY          X display to connect to (default: $DISPLAY)
  LOUPE_CURSOR_SIZE      Cursor image side length, odd (default: 255)
  LOUPE_SCALE            Magnification factor (default: 4)
  LOUPE_SYNC_TIMEOUT_MS  Server acknowledgment timeout (default: 2000)
  LOUPE_DB_PATH          Diagnostics database file path
  LOUPE_DIAGNOSTICS      Persist session diagnostics (true/false)
  LOUPE_PID_FILE         PID file path for background sessions

Version: %s
`, version)
}

func runForeground(withWeb bool) {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := runSession(cfg, withWeb); err != nil && err != context.Canceled {
		log.Fatalf("Magnifier session failed: %v", err)
	}
}

func startDaemon(withWeb bool) {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		log.Fatalf("A session is already running (PID: %d)", pid)
	}

	if os.Getenv("LOUPE_DAEMON_CHILD") != "1" {
		daemonize(withWeb)
		return
	}

	// Child process: log to file, write the PID, run the session.
	logFile, err := os.OpenFile("/tmp/loupe.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	if err := dm.WritePID(); err != nil {
		log.Fatalf("Failed to write PID file: %v", err)
	}
	defer dm.RemovePID()

	if err := runSession(cfg, withWeb); err != nil && err != context.Canceled {
		log.Fatalf("Magnifier session failed: %v", err)
	}
}

// runSession wires the pipeline together: connection, frame source, cursor
// manager, grab controller, sample pump, and the update loop.
func runSession(cfg *config.Config, withWeb bool) error {
	conn, err := xconn.Connect(cfg.Display.Name)
	if err != nil {
		return err
	}
	defer conn.Close()

	var recorder magnifier.Recorder
	var repo *database.Repository
	if cfg.Database.Enabled {
		db, err := database.Connect(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to connect to diagnostics database: %w", err)
		}
		defer db.Close()
		if err := db.Initialize(); err != nil {
			return err
		}
		repo = database.NewRepository(db)
		recorder = repo
	}

	src, err := source.New(conn, cfg.Magnifier.CursorSize, cfg.Magnifier.Scale)
	if err != nil {
		return err
	}
	// Capture the screen before the session starts moving things around.
	if err := src.Refresh(); err != nil {
		return err
	}

	cursors := cursor.NewManager(conn)
	grabber := grab.NewController(conn, conn.Root(), cfg.Grab.SyncTimeout)

	samples := make(chan magnifier.PointerSample, cfg.Magnifier.SampleQueue)
	// Seed with the current position so the grab starts under the pointer.
	x, y, err := conn.PointerPosition()
	if err != nil {
		return err
	}
	samples <- magnifier.PointerSample{X: x, Y: y, Time: time.Now()}
	go magnifier.Pump(conn, samples)

	svc := magnifier.NewService(cfg, cursors, grabber, src, samples, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
		svc.Stop()
	}()

	var webServer *web.Server
	if withWeb && repo != nil {
		webServer = web.NewServer(cfg, repo)
		go func() {
			if err := webServer.Start(); err != nil && err != http.ErrServerClosed {
				log.Printf("Web server error: %v", err)
			}
		}()
		log.Printf("Diagnostics API available at: http://%s", webServer.GetAddress())
	}

	log.Printf("Configuration:\n%s", cfg.String())
	err = svc.Start(ctx)

	if webServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if werr := webServer.Shutdown(shutdownCtx); werr != nil {
			log.Printf("Error shutting down web server: %v", werr)
		}
	}

	return err
}

func stopDaemon() {
	cfg := config.New()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if !running {
		fmt.Println("No background session is running")
		return
	}

	fmt.Printf("Stopping session (PID: %d)...\n", pid)
	if err := dm.Stop(); err != nil {
		log.Fatalf("Failed to stop session: %v", err)
	}

	fmt.Println("Session stopped successfully")
}

func showStatus() {
	cfg := config.New()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Status: Not running")
	} else {
		fmt.Printf("Status: Running (PID: %d)\n", pid)
		fmt.Printf("Cursor Size: %d\n", cfg.Magnifier.CursorSize)
		fmt.Printf("Scale: %dx\n", cfg.Magnifier.Scale)
	}

	conn, err := xconn.Connect(cfg.Display.Name)
	if err != nil {
		fmt.Printf("\nCould not reach the X server: %v\n", err)
		return
	}
	defer conn.Close()

	w, h := conn.ScreenSize()
	fmt.Printf("\nDisplay:\n")
	fmt.Printf("  Screen: %dx%d\n", w, h)
	if bw, bh, err := conn.BestCursorSize(cfg.Magnifier.CursorSize, cfg.Magnifier.CursorSize); err == nil {
		fmt.Printf("  Largest cursor: %dx%d\n", bw, bh)
	}
	if hx, hy, err := conn.ActiveCursorHotspot(); err == nil {
		fmt.Printf("  Active cursor hotspot: (%d,%d)\n", hx, hy)
	}
}

func generateReport() {
	periodType := "day"
	if len(os.Args) > 2 {
		periodType = os.Args[2]
	}

	cfg := config.New()

	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	rep := reporter.New(cfg, repo)

	jsonOutput := false
	if len(os.Args) > 3 && os.Args[3] == "--json" {
		jsonOutput = true
	}

	report, err := rep.GenerateReport(periodType)
	if err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	if jsonOutput {
		jsonStr, err := rep.FormatReportJSON(report)
		if err != nil {
			log.Fatalf("Failed to format JSON: %v", err)
		}
		fmt.Println(jsonStr)
	} else {
		fmt.Println(rep.FormatReportText(report))
	}
}

func clearDatabase() {
	cfg := config.New()

	fmt.Print("This will delete all diagnostics data. Are you sure? (yes/no): ")
	var response string
	fmt.Scanln(&response)

	if response != "yes" && response != "y" {
		fmt.Println("Operation cancelled")
		return
	}

	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := database.NewRepository(db)
	if err := repo.Clear(); err != nil {
		log.Fatalf("Failed to clear database: %v", err)
	}

	fmt.Println("Database cleared successfully")
}

func daemonize(withWeb bool) {
	env := os.Environ()
	env = append(env, "LOUPE_DAEMON_CHILD=1")

	procAttr := &os.ProcAttr{
		Env:   env,
		Files: []*os.File{nil, nil, nil}, // stdin, stdout, stderr to /dev/null
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	process, err := os.StartProcess(os.Args[0], os.Args, procAttr)
	if err != nil {
		log.Fatalf("Failed to start background session: %v", err)
	}

	fmt.Printf("Session started successfully (PID: %d)\n", process.Pid)
	if withWeb {
		fmt.Println("Diagnostics API configured; see /tmp/loupe.log for the address")
	}
	fmt.Println("Logs: /tmp/loupe.log")
}
