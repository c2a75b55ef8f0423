package provision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds each account-tool invocation. A hung useradd must
// not hold up the admin request indefinitely; on expiry the caller sees an
// ordinary provisioning error and runs its usual compensating path.
const DefaultTimeout = 10 * time.Second

// Provisioner manages the system login tied to a tunnel user.
type Provisioner interface {
	// CreateAccount creates a no-shell system login and sets its password.
	CreateAccount(ctx context.Context, username, password string) error

	// DeleteAccount removes the system login and its home directory.
	DeleteAccount(ctx context.Context, username string) error

	// SetPassword updates the password of an existing system login.
	SetPassword(ctx context.Context, username, password string) error
}

// runFunc executes a command with optional stdin and returns combined
// output. Indirected so tests can substitute a fake.
type runFunc func(ctx context.Context, stdin, name string, args ...string) ([]byte, error)

// ExecProvisioner implements Provisioner using the standard Linux account
// management tools.
type ExecProvisioner struct {
	// Timeout bounds each external command. Zero means DefaultTimeout.
	Timeout time.Duration

	run runFunc
}

// NewExecProvisioner returns an ExecProvisioner with the default timeout.
func NewExecProvisioner() *ExecProvisioner {
	return &ExecProvisioner{Timeout: DefaultTimeout, run: runCommand}
}

// runCommand executes name with args, feeding stdin if non-empty.
func runCommand(ctx context.Context, stdin, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

func (p *ExecProvisioner) exec(ctx context.Context, stdin, name string, args ...string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := p.run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, stdin, name, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s timed out: %w", name, ctxErr)
		}
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// CreateAccount creates the system login with useradd and sets its
// password via chpasswd. The login gets a home directory but no usable
// shell, matching how the tunnel service expects its users to exist.
func (p *ExecProvisioner) CreateAccount(ctx context.Context, username, password string) error {
	if err := p.exec(ctx, "", "useradd", "-m", "-s", "/usr/sbin/nologin", username); err != nil {
		return err
	}
	if err := p.SetPassword(ctx, username, password); err != nil {
		// The login exists but has no usable password. Remove it so a
		// retry of the whole create starts clean.
		_ = p.exec(ctx, "", "userdel", "-r", username)
		return err
	}
	return nil
}

// DeleteAccount removes the system login and its home directory.
func (p *ExecProvisioner) DeleteAccount(ctx context.Context, username string) error {
	return p.exec(ctx, "", "userdel", "-r", username)
}

// SetPassword pipes "username:password" to chpasswd.
func (p *ExecProvisioner) SetPassword(ctx context.Context, username, password string) error {
	return p.exec(ctx, fmt.Sprintf("%s:%s\n", username, password), "chpasswd")
}
