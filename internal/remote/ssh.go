package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/term"

	"github.com/spinup-sh/spinup/internal/models"
)

// sshTransport implements Transport over an SSH connection.
type sshTransport struct {
	client *ssh.Client
}

// DialSSH connects to the machine's SSH endpoint, authenticating with
// the local agent first and then the usual key files.
func DialSSH(ctx context.Context, handle *models.ResourceHandle) (Transport, error) {
	methods := authMethods()
	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH keys available: start an ssh-agent or create ~/.ssh/id_ed25519")
	}
	cfg := &ssh.ClientConfig{
		User: handle.User,
		Auth: methods,
		// Machines are created fresh on every launch, so there is no
		// prior host key to check against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", handle.SSHTarget())
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, handle.SSHTarget(), cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &sshTransport{client: ssh.NewClient(clientConn, chans, reqs)}, nil
}

// authMethods gathers the agent (if running) and on-disk private keys.
func authMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return methods
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	return methods
}

func (t *sshTransport) NewSession() (Session, error) {
	sess, err := t.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &sshSession{sess: sess}, nil
}

func (t *sshTransport) Keepalive() error {
	_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
	return err
}

// Interactive attaches the local terminal to a PTY-backed remote
// session. An empty command requests a login shell.
func (t *sshTransport) Interactive(command string) (int, error) {
	sess, err := t.client.NewSession()
	if err != nil {
		return -1, err
	}
	defer sess.Close()

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return -1, err
		}
		defer term.Restore(fd, oldState)

		width, height, err := term.GetSize(fd)
		if err != nil {
			width, height = 80, 24
		}
		termType := os.Getenv("TERM")
		if termType == "" {
			termType = "xterm-256color"
		}
		modes := ssh.TerminalModes{
			ssh.ECHO:          1,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := sess.RequestPty(termType, height, width, modes); err != nil {
			return -1, err
		}
	}

	sess.Stdin = os.Stdin
	sess.Stdout = os.Stdout
	sess.Stderr = os.Stderr

	if command == "" {
		if err := sess.Shell(); err != nil {
			return -1, err
		}
		err = sess.Wait()
	} else {
		err = sess.Run(command)
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (t *sshTransport) Close() error {
	return t.client.Close()
}

type sshSession struct {
	sess *ssh.Session
}

func (s *sshSession) Start(command string, stdin io.Reader, stdout, stderr io.Writer) error {
	s.sess.Stdin = stdin
	s.sess.Stdout = stdout
	s.sess.Stderr = stderr
	return s.sess.Start(command)
}

func (s *sshSession) Wait() error {
	err := s.sess.Wait()
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Status: exitErr.ExitStatus()}
	}
	return err
}

// Kill signals the remote process and closes the channel. Servers that
// ignore signals still see the channel close, which terminates the
// command's process group.
func (s *sshSession) Kill() error {
	s.sess.Signal(ssh.SIGKILL)
	return s.sess.Close()
}

func (s *sshSession) Close() error {
	err := s.sess.Close()
	if err == io.EOF {
		return nil
	}
	return err
}
