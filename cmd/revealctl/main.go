// Command revealctl controls a running reveal-core and works with scripts
// offline: timing plans, lint and diagnostics export.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/linereveal/internal/command"
	"github.com/tiroq/linereveal/internal/config"
	"github.com/tiroq/linereveal/internal/diaglog"
	"github.com/tiroq/linereveal/internal/export"
	"github.com/tiroq/linereveal/internal/ipc"
	"github.com/tiroq/linereveal/internal/lint"
	"github.com/tiroq/linereveal/internal/pidfile"
	"github.com/tiroq/linereveal/internal/script"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

const usage = `usage: revealctl <command> [flags]

control a running reveal-core:
  advance      finish the line, or show the next one if it is already shown
  skip         finish the line
  dismiss      clear the line
  next         show the next line now
  restart      go back to the first line
  quit         stop reveal-core
  status       print what reveal-core is showing

offline:
  plan         write the reveal timing of a script as txt, srt or vtt
  lint         check a script's markup and language
  export-diag  bundle the diagnostics log
  init-config  write the default config to the user config path
  version      print the version
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	name, rest := args[0], args[1:]
	if cmd := ipc.ParseCommand(name); cmd != "" {
		return sendCommand(cmd, stdout, stderr)
	}

	switch name {
	case "status":
		return runStatus(rest, stdout, stderr)
	case "plan":
		return runPlan(rest, stdout, stderr)
	case "lint":
		return runLint(rest, stdout, stderr)
	case "export-diag":
		return runExportDiag(rest, stdout, stderr)
	case "init-config":
		return runInitConfig(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, Version)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", name, usage)
		return 2
	}
}

func sendCommand(cmd ipc.Command, stdout, stderr io.Writer) int {
	if _, ok := pidfile.Owner(pidfile.Path(ipc.CacheDir(), "reveal-core")); !ok {
		fmt.Fprintln(stderr, "warning: reveal-core does not appear to be running; the command will wait in", ipc.CommandPath())
	}
	if err := ipc.WriteCommand(cmd); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	fmt.Fprintf(stdout, "sent %s\n", cmd)
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("revealctl "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("status", stderr)
	asJSON := fs.Bool("json", false, "print the raw status snapshot")
	watch := fs.Bool("watch", false, "keep printing as the status changes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	show := func() error {
		status, err := ipc.ReadStatus()
		if err != nil {
			return err
		}
		if *asJSON {
			return json.NewEncoder(stdout).Encode(status)
		}
		printStatus(stdout, status)
		return nil
	}

	if err := show(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(stderr, "no status yet: is reveal-core running?")
		} else {
			fmt.Fprintln(stderr, "error:", err)
		}
		if !*watch {
			return 1
		}
	}
	if !*watch {
		return 0
	}
	if err := watchStatusFile(show); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func printStatus(w io.Writer, s *ipc.StatusSnapshot) {
	p := s.Player
	fmt.Fprintf(w, "script:   %s (line %d of %d)\n", s.Script, s.LineIndex+1, s.LineCount)
	fmt.Fprintf(w, "state:    %s, %d/%d revealed, %s of %s\n", p.State, p.Reveal, p.Length,
		time.Duration(p.ElapsedMS)*time.Millisecond, time.Duration(p.DurationMS)*time.Millisecond)
	if p.State != "none" {
		text := p.Text
		if p.Speaker != "" {
			text = p.Speaker + ": " + text
		}
		fmt.Fprintf(w, "text:     %s\n", text)
	}
	voice := p.VoiceMode
	if p.Muted {
		voice += " (muted)"
	}
	fmt.Fprintf(w, "voice:    %s\n", voice)
	fmt.Fprintf(w, "bridge:   %s\n", map[bool]string{true: "connected", false: "disconnected"}[s.BridgeConnected])
	fmt.Fprintf(w, "last:     %s\n", s.LastAction)
	if s.LastError != "" {
		fmt.Fprintf(w, "error:    %s\n", s.LastError)
	}
	fmt.Fprintf(w, "updated:  %s\n", s.Timestamp.Format(time.RFC3339))
}

// watchStatusFile calls show whenever status.json changes, until
// interrupted.
func watchStatusFile(show func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	statusDir := ipc.CacheDir()
	if err := os.MkdirAll(statusDir, 0755); err != nil {
		return err
	}
	// Watch the directory (not the file, as it is replaced on every write)
	if err := watcher.Add(statusDir); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	statusPath := ipc.StatusPath()
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name == statusPath && (event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)) {
				time.Sleep(50 * time.Millisecond)
				if err := show(); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		case <-sigChan:
			return nil
		}
	}
}

// scriptFlags are shared by the offline commands.
type scriptFlags struct {
	configPath string
	locale     string
	rate       int
}

func (f *scriptFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "config file (default: user config, then "+config.DefaultPath+")")
	fs.StringVar(&f.locale, "locale", "", "locale, overrides the config")
	fs.IntVar(&f.rate, "rate", 0, "default reveal rate, overrides the locale's")
}

// resolve returns the locale and default rate to plan with.
func (f *scriptFlags) resolve() (string, int, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return "", 0, err
	}
	if f.locale != "" {
		cfg.Locale = f.locale
	}
	if f.rate > 0 {
		return cfg.Locale, f.rate, nil
	}
	rate, err := cfg.DefaultRate()
	if err != nil {
		return "", 0, err
	}
	return cfg.Locale, rate, nil
}

func runPlan(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("plan", stderr)
	var sf scriptFlags
	sf.register(fs)
	format := fs.String("format", export.FormatText, "output format: txt, srt or vtt")
	outPath := fs.String("o", "", "output file (default: stdout)")
	hold := fs.Duration("hold", export.DefaultHold, "time a finished line stays up")
	workers := fs.Int("workers", 0, "lines planned in parallel (default: GOMAXPROCS)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: revealctl plan [flags] <script>")
		return 2
	}

	locale, rate, err := sf.resolve()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	lines, err := script.Load(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plans, err := export.PlanScript(ctx, command.Builtin(), lines, export.Options{
		Locale:      locale,
		DefaultRate: rate,
		Hold:        *hold,
		Workers:     *workers,
	})
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	for _, p := range plans {
		for _, w := range p.Warnings {
			fmt.Fprintf(stderr, "warning: line %d: %s\n", p.Line.Number, w)
		}
	}

	cues := export.Cues(plans)
	if *outPath == "" {
		err = export.Write(stdout, *format, cues)
	} else {
		err = export.WriteFile(*outPath, *format, cues)
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if *outPath != "" {
		fmt.Fprintf(stdout, "Wrote: %s (%d cues)\n", *outPath, len(cues))
	}
	return 0
}

func runLint(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("lint", stderr)
	var sf scriptFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: revealctl lint [flags] <script>...")
		return 2
	}

	locale, _, err := sf.resolve()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	linter, err := lint.New(command.Builtin(), locale)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	status := 0
	for _, path := range fs.Args() {
		lines, err := script.Load(path)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			status = 1
			continue
		}
		for _, f := range linter.Script(lines) {
			fmt.Fprintf(stdout, "%s:%s\n", path, f)
			status = 1
		}
	}
	return status
}

func runExportDiag(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("export-diag", stderr)
	logPath := fs.String("log", "", "diagnostics log (default: $REVEAL_LOG_PATH, then the cache dir)")
	dest := fs.String("dest", ".", "directory to write the bundle to")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *logPath == "" {
		*logPath = os.Getenv("REVEAL_LOG_PATH")
	}
	if *logPath == "" {
		*logPath = diaglog.DefaultPath()
	}

	diaglog.Version = Version
	path, n, err := diaglog.Export(*logPath, *dest)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stderr, "hint: run reveal-core with %s=true to enable logging\n", diaglog.EnvDebug)
			return 1
		}
		return 2
	}
	fmt.Fprintf(stdout, "Wrote: %s (%d lines)\n", path, n)
	return 0
}

func runInitConfig(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("init-config", stderr)
	path := fs.String("path", config.UserPath(), "where to write the config")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Fprintf(stderr, "%s already exists (use -force to overwrite)\n", *path)
		return 1
	}
	if err := config.Save(config.Default(), *path); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	abs, _ := filepath.Abs(*path)
	fmt.Fprintf(stdout, "Wrote: %s\n", abs)
	return 0
}
