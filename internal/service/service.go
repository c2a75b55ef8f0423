// Package service starts, stops, restarts and inspects the systemd units
// that make up the GX Tunnel installation.
package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Units managed by the console.
const (
	TunnelUnit = "gx-tunnel"
	WebGUIUnit = "gx-webgui"
)

// DefaultTimeout bounds each systemctl invocation.
const DefaultTimeout = 15 * time.Second

// validActions lists the unit actions the console exposes.
var validActions = map[string]bool{
	"start":   true,
	"stop":    true,
	"restart": true,
}

// Controller drives systemctl for the tunnel units.
type Controller struct {
	// Units defaults to TunnelUnit and WebGUIUnit when empty.
	Units []string
	// Timeout bounds each invocation. Zero means DefaultTimeout.
	Timeout time.Duration

	run func(ctx context.Context, name string, args ...string) (string, error)
}

// NewController returns a Controller over the standard tunnel units.
func NewController() *Controller {
	return &Controller{
		Units: []string{TunnelUnit, WebGUIUnit},
		run:   runSystemctl,
	}
}

func runSystemctl(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

func (c *Controller) exec(ctx context.Context, args ...string) (string, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := c.run
	if run == nil {
		run = runSystemctl
	}
	out, err := run(ctx, "systemctl", args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("systemctl %s timed out: %w", strings.Join(args, " "), ctxErr)
		}
		return out, fmt.Errorf("systemctl %s failed: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// Apply runs one action (start, stop or restart) across every managed
// unit. The first failure aborts and is returned.
func (c *Controller) Apply(ctx context.Context, action string) error {
	if !validActions[action] {
		return fmt.Errorf("invalid service action %q", action)
	}
	units := c.Units
	if len(units) == 0 {
		units = []string{TunnelUnit, WebGUIUnit}
	}
	for _, unit := range units {
		if _, err := c.exec(ctx, action, unit); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the is-active state of every managed unit, keyed by unit
// name. Units systemctl cannot report read as "unknown", matching how the
// console has always rendered them.
func (c *Controller) Status(ctx context.Context) map[string]string {
	units := c.Units
	if len(units) == 0 {
		units = []string{TunnelUnit, WebGUIUnit}
	}
	status := make(map[string]string, len(units))
	for _, unit := range units {
		// systemctl is-active exits non-zero for inactive units but
		// still prints the state; keep the output when present.
		out, err := c.exec(ctx, "is-active", unit)
		if out == "" && err != nil {
			out = "unknown"
		}
		status[unit] = out
	}
	return status
}
