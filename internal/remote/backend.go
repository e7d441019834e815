// Package remote is an SFTP file backend for a site, reached through the
// platform's SSH shell server. It offers the same operations as the HTTP
// file API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"director-console/internal/pathutil"
)

// Config holds the SSH connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	KeyFile  string
	Password string
	// Root is the site directory on the server; API paths are relative to
	// it.
	Root           string
	KnownHostsPath string
	Timeout        time.Duration
	Logger         *zap.Logger
}

// Backend runs file operations over SFTP.
type Backend struct {
	root string
	log  *zap.Logger

	mu     sync.Mutex
	client *sftp.Client
	conn   *ssh.Client
}

// Dial connects to the shell server and opens an SFTP session.
func Dial(ctx context.Context, cfg Config) (*Backend, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg = ResolveHost(cfg, ParseSSHConfig(DefaultSSHConfigPath()))
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.KnownHostsPath == "" {
		p, err := DefaultKnownHostsPath()
		if err != nil {
			return nil, err
		}
		cfg.KnownHostsPath = p
	}

	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no SSH authentication method configured")
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: knownHostsCallback(cfg.KnownHostsPath, log.Named("sftp")),
		Timeout:         cfg.Timeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	d := net.Dialer{Timeout: cfg.Timeout}
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshConfig)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	conn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}
	log.Info("sftp connected", zap.String("addr", addr), zap.String("user", cfg.User))

	b := New(client, cfg.Root, log)
	b.conn = conn
	return b, nil
}

// New wraps an existing SFTP client.
func New(client *sftp.Client, root string, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	if root == "" {
		root = "."
	}
	return &Backend{client: client, root: path.Clean(root), log: log.Named("sftp")}
}

// Close ends the SFTP session and the SSH connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.client != nil {
		err = b.client.Close()
		b.client = nil
	}
	if b.conn != nil {
		if cerr := b.conn.Close(); err == nil {
			err = cerr
		}
		b.conn = nil
	}
	return err
}

func (b *Backend) sftpClient() (*sftp.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil, errors.New("sftp backend closed")
	}
	return b.client, nil
}

// resolve maps a site path onto the server, refusing paths that would
// escape the site root.
func (b *Backend) resolve(p string) (string, error) {
	for _, seg := range pathutil.Segments(p) {
		if seg == ".." {
			return "", fmt.Errorf("invalid path %q", p)
		}
	}
	return path.Join(b.root, pathutil.JoinPaths(pathutil.Segments(p)...)), nil
}

func (b *Backend) prepare(p string) (*sftp.Client, string, error) {
	c, err := b.sftpClient()
	if err != nil {
		return nil, "", err
	}
	full, err := b.resolve(p)
	if err != nil {
		return nil, "", err
	}
	return c, full, nil
}

// Get returns a file's contents.
func (b *Backend) Get(_ context.Context, p string) ([]byte, error) {
	c, full, err := b.prepare(p)
	if err != nil {
		return nil, err
	}
	f, err := c.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read remote file: %w", err)
	}
	return data, nil
}

// Write replaces a file's contents, creating it if needed.
func (b *Backend) Write(_ context.Context, p string, content []byte) error {
	c, full, err := b.prepare(p)
	if err != nil {
		return err
	}
	f, err := c.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to open remote file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write remote file: %w", err)
	}
	return f.Close()
}

// Create creates an empty file. It fails if the file exists.
func (b *Backend) Create(_ context.Context, p string) error {
	c, full, err := b.prepare(p)
	if err != nil {
		return err
	}
	if _, err := c.Stat(full); err == nil {
		return fmt.Errorf("file already exists: %s", p)
	}
	f, err := c.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create remote file: %w", err)
	}
	return f.Close()
}

// Mkdir creates a directory.
func (b *Backend) Mkdir(_ context.Context, p string) error {
	c, full, err := b.prepare(p)
	if err != nil {
		return err
	}
	if err := c.Mkdir(full); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}
	return nil
}

// Remove deletes a file or an empty directory.
func (b *Backend) Remove(_ context.Context, p string) error {
	c, full, err := b.prepare(p)
	if err != nil {
		return err
	}
	info, err := c.Stat(full)
	if err != nil {
		return fmt.Errorf("failed to stat remote path: %w", err)
	}
	if info.IsDir() {
		err = c.RemoveDirectory(full)
	} else {
		err = c.Remove(full)
	}
	if err != nil {
		return fmt.Errorf("failed to delete remote path: %w", err)
	}
	return nil
}

// RemoveAll deletes a directory tree: files first, then directories from
// the deepest up.
func (b *Backend) RemoveAll(_ context.Context, p string) error {
	c, full, err := b.prepare(p)
	if err != nil {
		return err
	}
	if full == b.root {
		return errors.New("refusing to delete the site root")
	}

	var files, dirs []string
	walker := c.Walk(full)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return fmt.Errorf("failed to walk remote directory: %w", err)
		}
		if walker.Stat().IsDir() {
			dirs = append(dirs, walker.Path())
		} else {
			files = append(files, walker.Path())
		}
	}
	for _, f := range files {
		if err := c.Remove(f); err != nil {
			return fmt.Errorf("failed to delete %s: %w", f, err)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		if err := c.RemoveDirectory(d); err != nil {
			return fmt.Errorf("failed to delete directory %s: %w", d, err)
		}
	}
	b.log.Debug("removed remote tree", zap.String("path", p), zap.Int("files", len(files)), zap.Int("dirs", len(dirs)))
	return nil
}

// Rename moves oldPath to newPath. It fails if newPath exists.
func (b *Backend) Rename(_ context.Context, oldPath, newPath string) error {
	c, from, err := b.prepare(oldPath)
	if err != nil {
		return err
	}
	to, err := b.resolve(newPath)
	if err != nil {
		return err
	}
	if _, err := c.Stat(to); err == nil {
		return fmt.Errorf("destination already exists: %s", newPath)
	}
	if err := c.Rename(from, to); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// Chmod sets or clears the executable bits.
func (b *Backend) Chmod(_ context.Context, p string, executable bool) error {
	c, full, err := b.prepare(p)
	if err != nil {
		return err
	}
	info, err := c.Stat(full)
	if err != nil {
		return fmt.Errorf("failed to stat remote path: %w", err)
	}
	mode := info.Mode().Perm()
	if executable {
		mode |= 0o111
	} else {
		mode &^= 0o111
	}
	if err := c.Chmod(full, mode); err != nil {
		return fmt.Errorf("failed to chmod: %w", err)
	}
	return nil
}
