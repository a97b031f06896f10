package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tiroq/linereveal/internal/bridge"
	"github.com/tiroq/linereveal/internal/builder"
	"github.com/tiroq/linereveal/internal/command"
	"github.com/tiroq/linereveal/internal/config"
	"github.com/tiroq/linereveal/internal/console"
	"github.com/tiroq/linereveal/internal/diaglog"
	"github.com/tiroq/linereveal/internal/ipc"
	"github.com/tiroq/linereveal/internal/lint"
	"github.com/tiroq/linereveal/internal/pidfile"
	"github.com/tiroq/linereveal/internal/player"
	"github.com/tiroq/linereveal/internal/script"
	"github.com/tiroq/linereveal/internal/voice"
)

const (
	logPrefix      = "[reveal-core]"
	statusInterval = 250 * time.Millisecond
)

var (
	// Version is set at build time via -ldflags "-X main.Version=..."
	Version = "dev"

	outLog *log.Logger
	errLog *log.Logger
)

func main() {
	configPath := flag.String("config", "", "config file (default: user config, then "+config.DefaultPath+")")
	scriptPath := flag.String("script", "", "script to play, overrides the config")
	useConsole := flag.Bool("console", false, "show lines on this terminal even when a bridge is configured")
	plain := flag.Bool("plain", false, "no ANSI escapes on the console")
	logDir := flag.String("log-dir", ipc.CacheDir(), "directory for reveal-core.out.log and reveal-core.err.log")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(Version)
		return
	}

	// Recover from any panics and log them
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in reveal-core: %v\n", r)
			if errLog != nil {
				errLog.Printf("PANIC: %v", r)
			}
			os.Exit(1)
		}
	}()

	if err := initLogging(*logDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	outLog.Println("===========================================")
	outLog.Println("Starting Reveal Core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Printf("Timestamp: %s", time.Now().Format(time.RFC3339))
	outLog.Println("===========================================")

	pidPath := pidfile.Path(ipc.CacheDir(), "reveal-core")
	lock, err := pidfile.Acquire(pidPath)
	if err != nil {
		errLog.Printf("Failed to create PID file: %v", err)
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidPath)
		fmt.Fprintf(os.Stderr, "reveal-core: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		outLog.Println("Cleaning up before exit...")
		if err := lock.Release(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()

	outLog.Println("[STARTUP] Loading configuration...")
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	if *scriptPath != "" {
		cfg.Script = *scriptPath
	}
	if cfg.Script == "" {
		fatalf("No script configured (set script in the config, REVEAL_SCRIPT or -script)")
	}
	rate, err := cfg.DefaultRate()
	if err != nil {
		fatalf("Config: %v", err)
	}
	outLog.Printf("[STARTUP] Loaded config: locale=%s, rate=%d, tick_hz=%d, voices=%d",
		cfg.Locale, rate, cfg.TickHz, len(cfg.Voices))

	reg := command.Builtin()
	if err := reg.Require(command.BuiltinNames()...); err != nil {
		fatalf("Command registry incomplete: %v", err)
	}
	outLog.Printf("[STARTUP] Commands registered: %v", reg.Names())

	logPath := os.Getenv("REVEAL_LOG_PATH")
	if logPath == "" {
		logPath = diaglog.DefaultPath()
	}
	diagLogger, diagErr := diaglog.New(logPath)
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log at %s: %v (continuing)", logPath, diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()
	diaglog.Version = Version

	lines, err := script.Load(cfg.Script)
	if err != nil {
		fatalf("Failed to load script: %v", err)
	}
	outLog.Printf("[STARTUP] Loaded script %s: %d lines", cfg.Script, len(lines))

	if linter, err := lint.New(reg, cfg.Locale); err == nil {
		for _, f := range linter.Script(lines) {
			errLog.Printf("[STARTUP] lint: %s", f)
		}
	}

	// Sinks: the presentation bridge when configured, the terminal otherwise.
	var (
		display      player.Display
		sink         voice.AudioSink
		inputs       <-chan ipc.Command
		bridgeClient *bridge.Client
	)
	if cfg.BridgeURL != "" && !*useConsole {
		outLog.Println("[STARTUP] Connecting to presentation bridge at " + cfg.BridgeURL + "...")
		bridgeClient = bridge.NewClient(cfg.BridgeURL, cfg.BridgeToken)
		bridgeClient.SetLogger(diagLogger)
		bridgeClient.OnDisconnected(func() {
			errLog.Println("[EVENT] Bridge disconnected - will attempt reconnection")
		})
		if err := bridgeClient.Connect(); err != nil {
			errLog.Printf("[STARTUP] Failed to connect to bridge: %v (retrying in background)", err)
			bridgeClient.StartReconnect()
		} else {
			outLog.Println("[STARTUP] Connected to presentation bridge")
		}
		defer func() {
			outLog.Println("[SHUTDOWN] Disconnecting from bridge...")
			bridgeClient.Close()
		}()
		display, sink, inputs = bridgeClient, bridgeClient, bridgeClient.Inputs()
	} else {
		outLog.Println("[STARTUP] Using console display")
		display = console.NewDisplay(os.Stdout, !*plain)
		sink = console.NewAudio(outLog)
	}

	voiceSync := voice.New(sink, cfg.VoiceBank())
	voiceSync.SetDiagLogger(diagLogger)

	s := newSession(cfg.Script, lines, builder.New(reg, builder.WithDiagLogger(diagLogger)), voiceSync, player.Config{
		Locale:      cfg.Locale,
		DefaultRate: rate,
		Display:     display,
	})
	s.player.SetDiagLogger(diagLogger)

	if err := os.MkdirAll(ipc.CacheDir(), 0755); err != nil {
		fatalf("Failed to create status directory: %v", err)
	}
	writeStatus(s, bridgeClient)

	cmds := make(chan ipc.Command, 16)
	outLog.Println("[STARTUP] Starting command file watcher...")
	go watchCommands(cmds)
	if bridgeClient == nil {
		go readConsoleInput(os.Stdin, cmds)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	outLog.Println("[STARTUP] Signal handlers registered (SIGINT, SIGTERM)")

	tick := time.Second / time.Duration(cfg.TickHz)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	outLog.Printf("[STARTUP] Starting tick loop (%d Hz)...", cfg.TickHz)
	outLog.Println("===========================================")
	outLog.Println("[RUNNING] Reveal Core is running")

	s.next()
	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			s.tick(now.Sub(last))
			last = now

		case cmd := <-cmds:
			if s.handle(cmd) {
				shutdown(s, bridgeClient, "quit command")
				return
			}
			writeStatus(s, bridgeClient)

		case cmd := <-inputs:
			if s.handle(cmd) {
				shutdown(s, bridgeClient, "quit from bridge")
				return
			}
			writeStatus(s, bridgeClient)

		case <-statusTicker.C:
			writeStatus(s, bridgeClient)

		case <-sigChan:
			shutdown(s, bridgeClient, "signal")
			return
		}
	}
}

func shutdown(s *session, c *bridge.Client, reason string) {
	outLog.Println("===========================================")
	outLog.Printf("[SHUTDOWN] Shutting down (%s) at %s", reason, time.Now().Format(time.RFC3339))
	s.player.Dismiss()
	s.lastAction = "shutdown"
	writeStatus(s, c)
	outLog.Println("[SHUTDOWN] Shutting down gracefully")
	outLog.Println("===========================================")
}

// writeStatus updates the status.json file
func writeStatus(s *session, c *bridge.Client) {
	if err := ipc.WriteStatus(s.status(c != nil && c.IsConnected())); err != nil {
		errLog.Printf("Failed to write status: %v", err)
	}
}

func fatalf(format string, args ...interface{}) {
	errLog.Printf(format, args...)
	fmt.Fprintf(os.Stderr, "reveal-core: "+format+"\n", args...)
	os.Exit(1)
}

func initLogging(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	outLogPath := filepath.Join(dir, "reveal-core.out.log")
	errLogPath := filepath.Join(dir, "reveal-core.err.log")

	for _, p := range []string{outLogPath, errLogPath} {
		if err := rotateLogIfNeeded(p, 10*1024*1024); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate %s: %v\n", p, err)
		}
	}

	outFile, err := os.OpenFile(outLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	errFile, err := os.OpenFile(errLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	outLog = log.New(outFile, logPrefix+" ", log.LstdFlags)
	errLog = log.New(errFile, logPrefix+" ERROR: ", log.LstdFlags)
	// package-level log calls in the engine land in the error log
	log.SetOutput(errFile)
	log.SetPrefix(logPrefix + " ")

	return nil
}

// rotateLogIfNeeded rotates a log file if it exceeds maxSize bytes
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}
