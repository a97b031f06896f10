package bridge

import (
	"fmt"
	"regexp"
	"strconv"
)

// RPCVersion is the protocol revision this client speaks.
const RPCVersion = 1

// MinBridgeMajor is the oldest front end major version known to handle
// every command type.
const MinBridgeMajor = 1

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// Compatibility is the result of checking a front end's Hello.
type Compatibility struct {
	OK      bool
	Message string
	Issues  []string
	Fixes   []string
}

// CheckHello validates the versions a front end announces. An incompatible
// front end is still used; the caller logs the issues.
func CheckHello(hello *HelloData) *Compatibility {
	c := &Compatibility{OK: true}

	if hello.RPCVersion != RPCVersion {
		c.OK = false
		c.Issues = append(c.Issues, fmt.Sprintf("front end speaks rpc version %d, client speaks %d", hello.RPCVersion, RPCVersion))
		c.Fixes = append(c.Fixes, "Update the front end and reveal-core to matching releases")
	}

	m := versionRe.FindStringSubmatch(hello.BridgeVersion)
	if len(m) < 4 {
		c.OK = false
		c.Issues = append(c.Issues, fmt.Sprintf("could not parse front end version %q", hello.BridgeVersion))
		c.Message = "Unknown front end version"
		return c
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	if major < MinBridgeMajor {
		c.OK = false
		c.Issues = append(c.Issues, fmt.Sprintf("front end %d.%d is too old (requires %d.0+)", major, minor, MinBridgeMajor))
		c.Fixes = append(c.Fixes, fmt.Sprintf("Update the front end to %d.0 or later", MinBridgeMajor))
	}

	if c.OK {
		c.Message = fmt.Sprintf("Front end %d.%d is compatible", major, minor)
	} else {
		c.Message = fmt.Sprintf("Front end %d.%d has %d compatibility issue(s)", major, minor, len(c.Issues))
	}
	return c
}
