package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command is a control request from revealctl to the daemon.
type Command string

const (
	CmdAdvance Command = "advance" // Finish the line, or move to the next one if already shown
	CmdSkip    Command = "skip"    // Finish the line without moving on
	CmdDismiss Command = "dismiss" // Abandon the line and clear the display
	CmdNext    Command = "next"    // Show the next line now
	CmdRestart Command = "restart" // Go back to the first line
	CmdQuit    Command = "quit"    // Shutdown daemon
)

// Commands lists every accepted command.
func Commands() []Command {
	return []Command{CmdAdvance, CmdSkip, CmdDismiss, CmdNext, CmdRestart, CmdQuit}
}

// ParseCommand validates s. Unknown input yields "".
func ParseCommand(s string) Command {
	cmd := Command(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Commands() {
		if cmd == c {
			return c
		}
	}
	return ""
}

// CacheDir is ~/.cache/linereveal, where the command and status files live.
func CacheDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "linereveal")
}

// CommandPath is the file the daemon watches for commands.
func CommandPath() string {
	return filepath.Join(CacheDir(), "cmd.txt")
}

// WriteCommand writes a command to ~/.cache/linereveal/cmd.txt
func WriteCommand(cmd Command) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(CommandPath(), []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears ~/.cache/linereveal/cmd.txt
// Returns empty string if no command or file doesn't exist
func ReadCommand() (Command, error) {
	data, err := os.ReadFile(CommandPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	// Clear the file immediately to prevent re-execution
	if err := os.WriteFile(CommandPath(), []byte(""), 0644); err != nil {
		return "", err
	}

	return ParseCommand(string(data)), nil
}
