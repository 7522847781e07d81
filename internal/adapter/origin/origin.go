// Package origin adapts the radar file server, reached over SFTP. The
// server accepts a single password-authenticated connection; the client
// reconnects transparently when a transfer drops it.
package origin

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/couchcryptid/storm-data-archive/internal/config"
)

const downloadRetries = 3

// Client is one SFTP session against the origin server.
type Client struct {
	addr     string
	sshCfg   *ssh.ClientConfig
	logger   *slog.Logger
	sshConn  *ssh.Client
	sftpConn *sftp.Client
}

// Dial opens an SFTP session using the configured host and credentials.
// The origin host does not publish a stable host key, so verification is
// disabled, matching how its other clients connect.
func Dial(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	addr := cfg.OriginHost
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	c := &Client{
		addr: addr,
		sshCfg: &ssh.ClientConfig{
			User:            cfg.OriginUser,
			Auth:            []ssh.AuthMethod{ssh.Password(cfg.OriginPassword)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
		logger: logger,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	sshConn, err := ssh.Dial("tcp", c.addr, c.sshCfg)
	if err != nil {
		return fmt.Errorf("dial origin %s: %w", c.addr, err)
	}
	sftpConn, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return fmt.Errorf("open sftp session: %w", err)
	}
	c.sshConn = sshConn
	c.sftpConn = sftpConn
	return nil
}

func (c *Client) reconnect() error {
	c.close()
	return c.connect()
}

func (c *Client) close() {
	if c.sftpConn != nil {
		_ = c.sftpConn.Close()
		c.sftpConn = nil
	}
	if c.sshConn != nil {
		_ = c.sshConn.Close()
		c.sshConn = nil
	}
}

// Close tears down the session.
func (c *Client) Close() error {
	c.close()
	return nil
}

// ListDir returns the entry names directly under path.
func (c *Client) ListDir(path string) ([]string, error) {
	entries, err := c.sftpConn.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Download copies a remote file to localPath, reconnecting and retrying on
// transport errors.
func (c *Client) Download(remotePath, localPath string) error {
	var lastErr error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		if attempt > 1 {
			if err := c.reconnect(); err != nil {
				lastErr = err
				continue
			}
			c.logger.Info("reconnected to origin",
				slog.String("remote_path", remotePath),
				slog.Int("attempt", attempt))
		}

		if err := c.copyFile(remotePath, localPath); err != nil {
			lastErr = err
			c.logger.Warn("origin download failed",
				slog.String("remote_path", remotePath),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			continue
		}
		return nil
	}
	return fmt.Errorf("download %s after %d attempts: %w", remotePath, downloadRetries, lastErr)
}

func (c *Client) copyFile(remotePath, localPath string) error {
	src, err := c.sftpConn.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", remotePath, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local %s: %w", localPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("copy %s: %w", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("flush local %s: %w", localPath, err)
	}
	return nil
}
