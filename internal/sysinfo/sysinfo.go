// Package sysinfo gathers host metrics for the console dashboard by
// shelling out to the standard OS utilities, the same way the installer's
// monitoring scripts do. Every value fails soft: a command that errors
// contributes its zero value rather than failing the whole report.
package sysinfo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each metric command.
const DefaultTimeout = 5 * time.Second

// Stats is the host metrics snapshot rendered on the dashboard.
type Stats struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	MemoryTotal float64 `json:"memory_total"`
	MemoryUsed  float64 `json:"memory_used"`
	DiskUsage   float64 `json:"disk_usage"`
	DiskTotal   float64 `json:"disk_total"`
	DiskUsed    float64 `json:"disk_used"`
	Network     Network `json:"network"`
	Uptime      string  `json:"uptime"`

	ActiveConnections int    `json:"active_connections"`
	Hostname          string `json:"hostname"`
	OS                string `json:"os"`
	Architecture      string `json:"architecture"`
}

// Network holds the interface byte counters.
type Network struct {
	BytesSent int64 `json:"bytes_sent"`
	BytesRecv int64 `json:"bytes_recv"`
}

// Collector gathers host metrics.
type Collector struct {
	// Timeout bounds each command. Zero means DefaultTimeout.
	Timeout time.Duration
	// TunnelPort is used to count established tunnel connections.
	TunnelPort int

	run func(ctx context.Context, command string) (string, error)
}

// NewCollector returns a Collector counting connections on tunnelPort.
func NewCollector(tunnelPort int) *Collector {
	return &Collector{TunnelPort: tunnelPort, run: runShell}
}

// runShell executes a shell pipeline and returns trimmed stdout.
func runShell(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.String()), nil
}

func (c *Collector) output(ctx context.Context, command string) string {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := c.run
	if run == nil {
		run = runShell
	}
	out, err := run(ctx, command)
	if err != nil {
		return ""
	}
	return out
}

func (c *Collector) outputFloat(ctx context.Context, command string) float64 {
	v, _ := strconv.ParseFloat(c.output(ctx, command), 64)
	return v
}

func (c *Collector) outputInt(ctx context.Context, command string) int64 {
	v, _ := strconv.ParseInt(c.output(ctx, command), 10, 64)
	return v
}

// gigabytes converts a byte count to gigabytes rounded to two decimals.
func gigabytes(b int64) float64 {
	return float64(int64(float64(b)/(1<<30)*100)) / 100
}

// Collect gathers a full metrics snapshot.
func (c *Collector) Collect(ctx context.Context) *Stats {
	s := &Stats{Uptime: "Unknown", Hostname: "Unknown", OS: "Linux", Architecture: "Unknown"}

	s.CPUUsage = c.outputFloat(ctx, `top -bn1 | grep 'Cpu(s)' | awk '{print $2}' | cut -d'%' -f1`)
	s.MemoryUsage = c.outputFloat(ctx, `free | awk 'NR==2{printf "%.1f", $3*100/$2}'`)
	s.DiskUsage = c.outputFloat(ctx, `df -h / | awk 'NR==2{print $5}' | cut -d'%' -f1`)
	s.MemoryTotal = gigabytes(c.outputInt(ctx, `free -b | awk 'NR==2{print $2}'`))
	s.MemoryUsed = gigabytes(c.outputInt(ctx, `free -b | awk 'NR==2{print $3}'`))
	s.DiskTotal = gigabytes(c.outputInt(ctx, `df -B1 / | awk 'NR==2{print $2}'`))
	s.DiskUsed = gigabytes(c.outputInt(ctx, `df -B1 / | awk 'NR==2{print $3}'`))
	s.Network.BytesSent = c.outputInt(ctx, `cat /proc/net/dev | grep eth0 | awk '{print $10}'`)
	s.Network.BytesRecv = c.outputInt(ctx, `cat /proc/net/dev | grep eth0 | awk '{print $2}'`)

	if v := c.output(ctx, "uptime -p"); v != "" {
		s.Uptime = v
	}
	if v := c.output(ctx, "hostname"); v != "" {
		s.Hostname = v
	}
	if v := c.output(ctx, `cat /etc/os-release | grep PRETTY_NAME | cut -d'=' -f2 | tr -d '"'`); v != "" {
		s.OS = v
	}
	if v := c.output(ctx, "uname -m"); v != "" {
		s.Architecture = v
	}
	if c.TunnelPort > 0 {
		s.ActiveConnections = int(c.outputInt(ctx,
			fmt.Sprintf(`netstat -an | grep :%d | grep ESTABLISHED | wc -l`, c.TunnelPort)))
	}
	return s
}

// HumanBytes renders a byte count in the largest fitting unit.
func HumanBytes(n int64) string {
	if n == 0 {
		return "0 B"
	}
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.2f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.2f PB", size)
}
