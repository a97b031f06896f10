package main

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiroq/linereveal/internal/ipc"
)

// watchCommands forwards commands written to cmd.txt to cmds.
func watchCommands(cmds chan<- ipc.Command) {
	cmdPath := ipc.CommandPath()
	cmdDir := filepath.Dir(cmdPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errLog.Printf("fsnotify not available, falling back to polling: %v", err)
		watchCommandsWithPolling(cmdPath, cmds)
		return
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			errLog.Printf("Failed to close watcher: %v", err)
		}
	}()

	if err := watcher.Add(cmdDir); err != nil {
		errLog.Printf("Failed to watch command directory, falling back to polling: %v", err)
		watchCommandsWithPolling(cmdPath, cmds)
		return
	}

	outLog.Println("Command watcher started (using fsnotify)")

	// fsnotify can miss events on some filesystems
	pollTicker := time.NewTicker(1 * time.Second)
	defer pollTicker.Stop()

	lastCheckTime := time.Now()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				outLog.Println("fsnotify watcher closed, switching to polling")
				watchCommandsWithPolling(cmdPath, cmds)
				return
			}
			if event.Name == cmdPath && (event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)) {
				// Small delay to ensure write is complete
				time.Sleep(50 * time.Millisecond)
				if forwardCommand(cmds) {
					lastCheckTime = time.Now()
				}
			}

		case <-pollTicker.C:
			if info, err := os.Stat(cmdPath); err == nil && info.ModTime().After(lastCheckTime) {
				time.Sleep(50 * time.Millisecond)
				if forwardCommand(cmds) {
					lastCheckTime = time.Now()
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				outLog.Println("fsnotify error channel closed, switching to polling")
				watchCommandsWithPolling(cmdPath, cmds)
				return
			}
			errLog.Printf("File watcher error: %v", err)
		}
	}
}

// watchCommandsWithPolling is a pure polling-based fallback for command monitoring
func watchCommandsWithPolling(cmdPath string, cmds chan<- ipc.Command) {
	outLog.Println("Command watcher started (using polling fallback, 1s interval)")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastCheckTime := time.Now()
	for range ticker.C {
		info, err := os.Stat(cmdPath)
		if err != nil {
			continue
		}
		if info.ModTime().After(lastCheckTime) {
			time.Sleep(50 * time.Millisecond)
			forwardCommand(cmds)
			lastCheckTime = time.Now()
		}
	}
}

// forwardCommand reads and clears cmd.txt, queueing what it held.
func forwardCommand(cmds chan<- ipc.Command) bool {
	cmd, err := ipc.ReadCommand()
	if err != nil {
		errLog.Printf("Failed to read command: %v", err)
		return false
	}
	if cmd == "" {
		return false
	}
	cmds <- cmd
	return true
}

// readConsoleInput maps terminal input to commands: an empty line advances,
// anything else is parsed as a command name.
func readConsoleInput(r io.Reader, cmds chan<- ipc.Command) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			cmds <- ipc.CmdAdvance
			continue
		}
		cmd := ipc.ParseCommand(text)
		if cmd == "" {
			errLog.Printf("Ignoring console input %q", text)
			continue
		}
		cmds <- cmd
	}
}
