// Command history-server is the composition-root binary: it parses flags
// and environment overrides, builds a daemon.Daemon, and runs it until a
// termination signal arrives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/huanluu/claude-history-server/internal/authgate"
	"github.com/huanluu/claude-history-server/internal/config"
	"github.com/huanluu/claude-history-server/internal/daemon"
	. "github.com/huanluu/claude-history-server/internal/logging"
)

const defaultPort = 3847

// version is set by the release pipeline via ldflags: -X main.version=...
var version = "dev"

// CLI defines the command-line interface.
type CLI struct {
	Debug bool `help:"Enable debug logging" short:"d"`
	Trace bool `help:"Enable trace logging" short:"t"`

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Run the history server (foreground)"`
	Keygen  KeygenCmd  `cmd:"" help:"Generate a new API key and store its hash in the config"`
	Version VersionCmd `cmd:"" help:"Show version"`
}

// Context carries flags common to every command.
type Context struct {
	Debug bool
	Trace bool
}

// ServeCmd runs the daemon in the foreground until it receives a
// termination signal.
type ServeCmd struct{}

func (s *ServeCmd) Run(ctx *Context) error {
	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("build options: %w", err)
	}

	if err := applyHeartbeatEnvOverrides(opts.ConfigPath); err != nil {
		return fmt.Errorf("apply heartbeat environment overrides: %w", err)
	}

	d, err := daemon.New(opts)
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		L_info("received signal", "signal", sig)
		signal.Stop(sigCh)
		cancel()
	}()

	if err := d.Run(runCtx); err != nil {
		return fmt.Errorf("daemon exited: %w", err)
	}
	return nil
}

// KeygenCmd implements spec §4.7's one-shot key generator: it prints the
// plaintext key exactly once and persists only its hash.
type KeygenCmd struct{}

func (k *KeygenCmd) Run(ctx *Context) error {
	configPath, err := configPath()
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	plaintext, hash, err := authgate.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := cfg.SetApiKeyHash(hash); err != nil {
		return fmt.Errorf("persist key hash: %w", err)
	}

	fmt.Println(plaintext)
	fmt.Fprintln(os.Stderr, "This key will not be shown again. Store it somewhere safe.")
	return nil
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (v *VersionCmd) Run(ctx *Context) error {
	fmt.Println(version)
	return nil
}

// buildOptions assembles daemon.Options from well-known defaults overridden
// by environment variables, per §6's external-interfaces contract. It does
// not read the HEARTBEAT_* variables: applyHeartbeatEnvOverrides writes any
// that are set into the on-disk config document on every serve start.
func buildOptions() (daemon.Options, error) {
	configDir, err := configPath()
	if err != nil {
		return daemon.Options{}, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return daemon.Options{}, fmt.Errorf("resolve home directory: %w", err)
	}
	dbDir := filepath.Join(home, ".claude-history-server")
	if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return daemon.Options{}, fmt.Errorf("create data directory: %w", err)
	}

	port := defaultPort
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return daemon.Options{}, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		port = p
	}

	return daemon.Options{
		ConfigPath:     configDir,
		TranscriptRoot: filepath.Join(home, ".claude", "projects"),
		DBPath:         filepath.Join(dbDir, "search.db"),
		Addr:           fmt.Sprintf("0.0.0.0:%d", port),
	}, nil
}

// applyHeartbeatEnvOverrides seeds the on-disk config document's heartbeat
// section from HEARTBEAT_* environment variables, per §6. Only variables
// that are actually set are applied; an unset variable leaves whatever is
// already on disk untouched.
func applyHeartbeatEnvOverrides(path string) error {
	patch := map[string]any{}

	if v, ok := os.LookupEnv("HEARTBEAT_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid HEARTBEAT_ENABLED %q: %w", v, err)
		}
		patch["enabled"] = b
	}
	if v, ok := os.LookupEnv("HEARTBEAT_INTERVAL_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HEARTBEAT_INTERVAL_MS %q: %w", v, err)
		}
		patch["intervalMs"] = float64(n)
	}
	if v, ok := os.LookupEnv("HEARTBEAT_WORKING_DIR"); ok {
		patch["workingDirectory"] = v
	}

	if len(patch) == 0 {
		return nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return cfg.UpdateSection(config.SectionHeartbeat, patch)
}

func configPath() (string, error) {
	if dir := os.Getenv("CLAUDE_HISTORY_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "config.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".claude-history-server", "config.json"), nil
}

func main() {
	cli := CLI{}
	parsed := kong.Parse(&cli,
		kong.Name("history-server"),
		kong.Description("Indexes and serves Claude Code session transcripts"),
		kong.UsageOnError(),
	)

	level := LevelInfo
	if cli.Trace {
		level = LevelTrace
	} else if cli.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, ShowCaller: true})

	defer func() {
		if r := recover(); r != nil {
			L_fatal("history-server: uncaught panic, shutting down", "panic", r)
			os.Exit(1)
		}
	}()

	if err := parsed.Run(&Context{Debug: cli.Debug, Trace: cli.Trace}); err != nil {
		L_error("history-server: command failed", "error", err)
		os.Exit(1)
	}
}
