package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"thorlearn/internal/config"
	"thorlearn/internal/learner"
	"thorlearn/internal/logging"
	"thorlearn/internal/ratelimit"
	"thorlearn/internal/retriever"
	"thorlearn/internal/scheduler"
	"thorlearn/internal/store"
)

var (
	startInterval time.Duration
	startWorkers  int
	startDBPath   string
	startDictPath string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the learning loop in the foreground",
	Long: `Starts the worker pool and learns until SIGINT or SIGTERM.

State recovered from a previous run (stale topic claims, abandoned sessions)
is cleaned up before new work begins. A PID file under .thor/ lets the stop
command find this process.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().DurationVar(&startInterval, "interval", 0, "idle sleep between topic polls (overrides config)")
	startCmd.Flags().IntVar(&startWorkers, "workers", 0, "worker pool size (overrides config)")
	startCmd.Flags().StringVar(&startDBPath, "db", "", "knowledge database path (overrides config)")
	startCmd.Flags().StringVar(&startDictPath, "dict", "", "bootstrap dictionary path (overrides config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if startInterval > 0 {
		cfg.Learner.SearchInterval = startInterval
	}
	if startWorkers > 0 {
		cfg.Learner.Workers = startWorkers
	}
	if startDBPath != "" {
		cfg.Store.DatabasePath = startDBPath
	}
	if startDictPath != "" {
		cfg.Scheduler.DictionaryPath = startDictPath
	}

	if err := logging.Initialize(cfg.Workspace, logging.Options{
		Debug:      cfg.Logging.DebugMode || verbose,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.CloseAll()

	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer st.Close()
	st.SetBusyRetries(cfg.Store.BusyRetries)

	limiter := ratelimit.New(cfg.Search.MinInterval)
	for key, interval := range cfg.Search.PerSourceInterval {
		limiter.SetInterval(key, interval)
	}

	retr := retriever.New(cfg.Search, limiter)
	sched := scheduler.New(st, cfg.Scheduler, nil)
	l := learner.New(st, sched, retr, cfg)

	if err := l.Start(); err != nil {
		return fmt.Errorf("failed to start learner: %w", err)
	}

	if err := writePIDFile(cfg.Workspace); err != nil {
		l.Stop()
		return err
	}
	defer removePIDFile(cfg.Workspace)

	logger.Info("learner running",
		zap.Int("workers", cfg.Learner.Workers),
		zap.String("db", cfg.Store.DatabasePath),
		zap.Int("pid", os.Getpid()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	if err := l.Stop(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(workspace, ".thor", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Workspace == "." && workspace != "." {
		cfg.Workspace = workspace
	}
	// Anchor relative state paths in the workspace.
	if !filepath.IsAbs(cfg.Store.DatabasePath) && cfg.Store.DatabasePath != ":memory:" {
		cfg.Store.DatabasePath = filepath.Join(cfg.Workspace, cfg.Store.DatabasePath)
	}
	if !filepath.IsAbs(cfg.Scheduler.DictionaryPath) {
		cfg.Scheduler.DictionaryPath = filepath.Join(cfg.Workspace, cfg.Scheduler.DictionaryPath)
	}
	return cfg, nil
}

func pidFilePath(ws string) string {
	return filepath.Join(ws, ".thor", "thorlearn.pid")
}

func writePIDFile(ws string) error {
	path := pidFilePath(ws)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if pid, alive := readPIDFile(ws); alive {
		return fmt.Errorf("another instance is already running (pid %d)", pid)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func removePIDFile(ws string) {
	_ = os.Remove(pidFilePath(ws))
}

// readPIDFile returns the recorded PID and whether that process is alive.
func readPIDFile(ws string) (int, bool) {
	data, err := os.ReadFile(pidFilePath(ws))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil || pid <= 0 {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	// Signal 0 probes for existence without delivering anything.
	return pid, proc.Signal(syscall.Signal(0)) == nil
}
