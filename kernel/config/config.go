// Package config parses the boot-time startup configuration file described
// in the external interfaces section of the design: `/startup.cfg`, a line
// oriented `key=value` or `key value` format with `#`, `;` or `//` comments.
// It is read through the VFS before any higher-level configuration surface
// exists, so parsing is a plain line scanner rather than a structured
// encoding format.
package config

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Mode is the boot-time operating mode selected by the MODE key.
type Mode int

const (
	ModeDesktop Mode = iota
	ModeTerminal
	ModeSafe
	ModeRecovery
	ModeInstaller
	ModeNetwork
)

func parseMode(s string) (Mode, bool) {
	switch strings.ToUpper(s) {
	case "DESKTOP":
		return ModeDesktop, true
	case "TERMINAL":
		return ModeTerminal, true
	case "SAFE":
		return ModeSafe, true
	case "RECOVERY":
		return ModeRecovery, true
	case "INSTALLER":
		return ModeInstaller, true
	case "NETWORK":
		return ModeNetwork, true
	default:
		return ModeDesktop, false
	}
}

// SCMode is the secure-store enforcement mode selected by SC_MODE.
type SCMode int

const (
	SCBypass SCMode = iota
	SCEnforce
)

func parseSCMode(s string) (SCMode, bool) {
	switch strings.ToUpper(s) {
	case "BYPASS":
		return SCBypass, true
	case "ENFORCE":
		return SCEnforce, true
	default:
		return SCEnforce, false
	}
}

// SaveTerm is either disabled ("0"), enabled to the default location ("1"),
// or redirected to an explicit filename.
type SaveTerm struct {
	Enabled  bool
	Filename string
}

// Config is the parsed contents of startup.cfg. Every key, recognised or
// not, is also kept in Raw under its upper-cased name so a later layer
// (the out-of-scope desktop/console) can still see them without this package needing to know every key.
type Config struct {
	Mode                 Mode
	SCMode               SCMode
	SCBypass             bool
	IDEShared            bool
	SaveTerm             SaveTerm
	PoweroffAfterSaveterm bool

	Raw map[string]string
}

func boolValue(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func stripComment(line string) string {
	for _, marker := range []string{"#", ";", "//"} {
		if idx := strings.Index(line, marker); idx >= 0 {
			line = line[:idx]
		}
	}

	return line
}

func splitKV(line string) (key, value string, ok bool) {
	if idx := strings.IndexByte(line, '='); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", false
	}
	if len(fields) == 1 {
		return fields[0], "", true
	}

	return fields[0], strings.Join(fields[1:], " "), true
}

// Parse reads a startup.cfg stream and returns the recognised configuration.
// Unknown or malformed lines are ignored (spec §7: failed mounts/parses log
// and are skipped, the rest of the system continues); the caller is
// expected to log via kernel/klog before discarding the error, if any.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{
		SCMode: SCEnforce,
		Raw:    make(map[string]string),
	}

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}

		key, value, ok := splitKV(line)
		if !ok {
			continue
		}

		upperKey := strings.ToUpper(key)
		cfg.Raw[upperKey] = value

		switch upperKey {
		case "MODE":
			if m, ok := parseMode(value); ok {
				cfg.Mode = m
			}
		case "SC_MODE":
			if m, ok := parseSCMode(value); ok {
				cfg.SCMode = m
			}
		case "SC_BYPASS":
			cfg.SCBypass = boolValue(value)
		case "IDE_SHARED":
			cfg.IDEShared = boolValue(value)
		case "SAVETERM":
			switch value {
			case "0":
				cfg.SaveTerm = SaveTerm{}
			case "1":
				cfg.SaveTerm = SaveTerm{Enabled: true}
			default:
				cfg.SaveTerm = SaveTerm{Enabled: true, Filename: value}
			}
		case "POWEROFF_AFTER_SAVETERM":
			cfg.PoweroffAfterSaveterm = boolValue(value)
		}
	}

	return cfg, scanner.Err()
}

// ParseString is a convenience wrapper for Parse over an in-memory string,
// used by tests and by callers that have already slurped the file through
// the VFS into a buffer.
func ParseString(s string) (*Config, error) {
	return Parse(strings.NewReader(s))
}

// Int returns a raw key's value parsed as an integer, for keys this package
// doesn't interpret itself.
func (c *Config) Int(key string, def int) int {
	v, ok := c.Raw[strings.ToUpper(key)]
	if !ok {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}

	return n
}
