// Package remote moves region images to and from a host over ssh / sftp
package remote

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kjk/regionstore/log"
	"github.com/melbahja/goph"
	"github.com/pkg/sftp"
)

const defaultPort = 22

type Config struct {
	User    string
	Host    string
	Port    uint
	KeyPath string
	// empty if key is not encrypted
	KeyPassphrase string
	Timeout       time.Duration
}

type Client struct {
	SSH  *goph.Client
	SFTP *sftp.Client
}

func (c *Config) validate() error {
	if c.User == "" || c.Host == "" || c.KeyPath == "" {
		return errors.New("must provide user, host and key path")
	}
	return nil
}

func (c *Config) port() uint {
	if c.Port == 0 {
		return defaultPort
	}
	return c.Port
}

func (c *Config) String() string {
	return fmt.Sprintf("%s@%s:%d", c.User, c.Host, c.port())
}

// ExpandTilde replaces leading ~ with user's home directory
func ExpandTilde(s string) string {
	if s != "~" && !strings.HasPrefix(s, "~/") {
		return s
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return s
	}
	return filepath.Join(home, s[1:])
}

// Dial connects to the host, verifying its key against ~/.ssh/known_hosts
func Dial(c *Config) (*Client, error) {
	if c == nil {
		return nil, errors.New("must provide config")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	keyPath := ExpandTilde(c.KeyPath)
	auth, err := goph.Key(keyPath, c.KeyPassphrase)
	if err != nil {
		return nil, fmt.Errorf("goph.Key('%s'): %w", keyPath, err)
	}
	callback, err := goph.DefaultKnownHosts()
	if err != nil {
		return nil, err
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = goph.DefaultTimeout
	}
	client, err := goph.NewConn(&goph.Config{
		User:     c.User,
		Addr:     c.Host,
		Port:     c.port(),
		Auth:     auth,
		Timeout:  timeout,
		Callback: callback,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c, err)
	}
	sftpc, err := client.NewSftp()
	if err != nil {
		client.Close()
		return nil, err
	}
	log.Verbosef("connected to %s\n", c)
	return &Client{SSH: client, SFTP: sftpc}, nil
}

func (c *Client) Close() error {
	err := c.SFTP.Close()
	return errors.Join(err, c.SSH.Close())
}

func tmpPath(p string) string {
	return p + ".tmp"
}

// Pull downloads remotePath to localPath. localPath is replaced only
// after the download completes.
func (c *Client) Pull(remotePath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	tmp := tmpPath(localPath)
	timeStart := time.Now()
	if err := c.SSH.Download(remotePath, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("downloading '%s': %w", remotePath, err)
	}
	if err := os.Rename(tmp, localPath); err != nil {
		os.Remove(tmp)
		return err
	}
	log.Verbosef("downloaded '%s' to '%s' in %s\n", remotePath, localPath, time.Since(timeStart))
	return nil
}

// Push uploads localPath to remotePath.tmp and renames it over remotePath
func (c *Client) Push(localPath, remotePath string) error {
	if err := c.SFTP.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("sftp.MkdirAll('%s'): %w", path.Dir(remotePath), err)
	}
	tmp := tmpPath(remotePath)
	timeStart := time.Now()
	if err := c.SSH.Upload(localPath, tmp); err != nil {
		_ = c.SFTP.Remove(tmp)
		return fmt.Errorf("uploading '%s': %w", localPath, err)
	}
	if err := c.SFTP.PosixRename(tmp, remotePath); err != nil {
		_ = c.SFTP.Remove(tmp)
		return fmt.Errorf("sftp.PosixRename('%s'): %w", remotePath, err)
	}
	log.Verbosef("uploaded '%s' to '%s' in %s\n", localPath, remotePath, time.Since(timeStart))
	return nil
}

// Run runs a command on the host and returns its combined output
func (c *Client) Run(exe string, args ...string) (string, error) {
	cmd, err := c.SSH.Command(exe, args...)
	if err != nil {
		return "", err
	}
	log.Verbosef("running '%s' on %s\n", cmd.String(), c.SSH.Config.Addr)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("'%s' failed: %w", cmd.String(), err)
	}
	return string(out), nil
}
