package remote

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// HostEntry is one Host block of an OpenSSH client config.
type HostEntry struct {
	Host         string
	Hostname     string
	User         string
	Port         int
	IdentityFile string
}

// DefaultSSHConfigPath returns ~/.ssh/config.
func DefaultSSHConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "config")
}

// ParseSSHConfig reads the Host blocks of an OpenSSH client config. A
// missing or unreadable file yields no entries.
func ParseSSHConfig(path string) []HostEntry {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var entries []HostEntry
	var current *HostEntry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		key := strings.ToLower(parts[0])
		value := strings.Join(parts[1:], " ")

		if key == "host" {
			if current != nil && current.Host != "" {
				entries = append(entries, *current)
			}
			current = &HostEntry{Host: value, Port: 22}
			continue
		}
		if current == nil {
			continue
		}
		switch key {
		case "hostname":
			current.Hostname = value
		case "user":
			current.User = value
		case "port":
			if port, err := strconv.Atoi(value); err == nil {
				current.Port = port
			}
		case "identityfile":
			current.IdentityFile = expandHome(strings.Trim(value, "\""))
		}
	}
	if current != nil && current.Host != "" {
		entries = append(entries, *current)
	}
	return entries
}

// ResolveHost fills the connection fields of cfg that are still unset from
// the ssh config entry whose Host alias matches cfg.Host exactly.
func ResolveHost(cfg Config, entries []HostEntry) Config {
	for _, e := range entries {
		if e.Host != cfg.Host {
			continue
		}
		if e.Hostname != "" {
			cfg.Host = e.Hostname
		}
		if cfg.User == "" {
			cfg.User = e.User
		}
		if cfg.Port == 0 || cfg.Port == 22 {
			cfg.Port = e.Port
		}
		if cfg.KeyFile == "" && cfg.Password == "" {
			cfg.KeyFile = e.IdentityFile
		}
		return cfg
	}
	return cfg
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
