package remote

import (
	"bufio"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// DefaultKnownHostsPath returns ~/.ssh/known_hosts.
func DefaultKnownHostsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

// knownHostsCallback verifies host keys against knownHostsPath the way
// OpenSSH does with trust on first use: a known host must present the key on
// record, and an unknown host is accepted and appended to the file.
func knownHostsCallback(knownHostsPath string, log *zap.Logger) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		host, port, err := net.SplitHostPort(hostname)
		if err != nil {
			host, port = hostname, ""
		}

		fingerprint := sha256.Sum256(key.Marshal())
		fp := base64.StdEncoding.EncodeToString(fingerprint[:])

		found, mismatch := checkKnownHost(knownHostsPath, host, port, key)
		if mismatch {
			return fmt.Errorf("host key mismatch for %s (fingerprint SHA256:%s); "+
				"remove the old entry from %s to proceed", host, fp, knownHostsPath)
		}
		if found {
			return nil
		}

		log.Info("new host key, adding to known_hosts",
			zap.String("host", host), zap.String("fingerprint", "SHA256:"+fp))
		if err := appendKnownHost(knownHostsPath, host, port, key); err != nil {
			log.Warn("failed to write known_hosts", zap.Error(err))
		}
		return nil
	}
}

func hostPattern(host, port string) string {
	if port != "" && port != "22" {
		return fmt.Sprintf("[%s]:%s", host, port)
	}
	return host
}

// checkKnownHost reports whether the file holds this exact key for the host
// (found) or a different key of the same type (mismatch).
func checkKnownHost(knownHostsPath, host, port string, key ssh.PublicKey) (found, mismatch bool) {
	f, err := os.Open(knownHostsPath)
	if err != nil {
		return false, false
	}
	defer f.Close()

	keyType := key.Type()
	keyData := base64.StdEncoding.EncodeToString(key.Marshal())
	pattern := hostPattern(host, port)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		for _, h := range strings.Split(fields[0], ",") {
			if strings.TrimSpace(h) != pattern {
				continue
			}
			if fields[1] == keyType && fields[2] == keyData {
				return true, false
			}
			if fields[1] == keyType {
				return false, true
			}
		}
	}
	return false, false
}

func appendKnownHost(knownHostsPath, host, port string, key ssh.PublicKey) error {
	if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(knownHostsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	keyData := base64.StdEncoding.EncodeToString(key.Marshal())
	_, err = fmt.Fprintf(f, "%s %s %s\n", hostPattern(host, port), key.Type(), keyData)
	return err
}
