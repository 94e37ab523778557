package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kalambet/bolla/internal/api"
	"github.com/kalambet/bolla/internal/config"
	"github.com/kalambet/bolla/internal/ollama"
	"github.com/kalambet/bolla/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bolla server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bolla server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bolla system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio without the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "bolla.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// setupLogging installs the default slog logger. With log.file set, output
// goes to a size-rotated file; the returned closer flushes it.
func setupLogging(lc config.LogConfig) io.Closer {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(lc.Level)); err != nil {
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if lc.File != "" {
		lj := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxAge:     lc.MaxAgeDays,
			MaxBackups: lc.MaxBackups,
			Compress:   true,
		}
		w, closer = lj, lj
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openEngine loads config, storage and the wired engine. The returned
// cleanup closes everything in reverse order.
func openEngine(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logCloser := setupLogging(cfg.Log)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		logCloser.Close()
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	a, err := newApp(ctx, cfg, store)
	if err != nil {
		store.Close()
		logCloser.Close()
		return nil, nil, err
	}

	cleanup := func() {
		a.wait()
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
		logCloser.Close()
	}
	return a, cleanup, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(stderr, "bolla version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	cfg := a.cfg

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("bolla is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("bolla is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	// A missing local model is not fatal: hosted backends still answer.
	printStep("checking Ollama at %s", cfg.Ollama.URL)
	if err := ollama.EnsureReady(ctx, a.ollama, cfg.Ollama.Model, stderr); err != nil {
		printWarning("%v", err)
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.worker.Run(ctx)
	}()
	a.scheduler.Start()
	defer a.scheduler.Stop()

	deps := a.deps(apiToken)
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	if withMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(stderr, "bolla listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		fmt.Fprintln(stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	<-workerDone
	return serveErr
}

func runMCP() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.worker.Run(ctx)
	}()
	defer func() {
		stop()
		<-workerDone
	}()

	stdioSrv := server.NewStdioServer(api.NewMCPServer(a.deps(""), version))
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("bolla is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop bolla (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to bolla (PID %d)", pid)
	return nil
}

type backendsStatus struct {
	Configured []string            `json:"configured"`
	ForceLocal bool                `json:"force_local"`
	Chains     map[string][]string `json:"chains"`
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	oc := ollama.New(cfg.Ollama.URL)
	if oc.IsRunning(ctx) {
		printStatus("Ollama", "running at %s", cfg.Ollama.URL)
		if oc.HasModel(ctx, cfg.Ollama.Model) {
			printStatus("Local model", "%s", cfg.Ollama.Model)
		} else {
			printStatus("Local model", "%s (not pulled)", cfg.Ollama.Model)
		}
	} else {
		printStatus("Ollama", "not running")
	}

	client, err := newAPIClient()
	if err != nil {
		printStatus("Server", "unknown (%v)", err)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	reportServer(ctx, client, cfg.Server.Port)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// reportServer prints what the running server says about itself.
func reportServer(ctx context.Context, client *apiClient, port int) {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return
	}
	var health api.HealthResponse
	decodeJSON(resp, &health)
	printStatus("Server", "running on port %d", port)
	if len(health.Checks) > 0 {
		var down []string
		for _, c := range health.Checks {
			if !c.OK {
				down = append(down, c.Name)
			}
		}
		if len(down) == 0 {
			printStatus("Health", "ok")
		} else {
			printStatus("Health", "%s (failing: %s)", health.Status, strings.Join(down, ", "))
		}
	}

	var backends backendsStatus
	if resp, err := client.get(ctx, "/backends"); err == nil && decodeJSON(resp, &backends) == nil {
		label := strings.Join(backends.Configured, ", ")
		if label == "" {
			label = "none"
		}
		if backends.ForceLocal {
			label += " (force local)"
		}
		printStatus("Backends", "%s", label)
	}

	var count struct {
		Count int `json:"count"`
	}
	if resp, err := client.get(ctx, "/memories/count"); err == nil && decodeJSON(resp, &count) == nil {
		printStatus("Memories", "%d", count.Count)
	}
}
