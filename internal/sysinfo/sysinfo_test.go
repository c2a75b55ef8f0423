package sysinfo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeRunner maps a distinctive command fragment to canned output.
type fakeRunner struct {
	outputs map[string]string
}

func (f *fakeRunner) run(ctx context.Context, command string) (string, error) {
	for fragment, out := range f.outputs {
		if strings.Contains(command, fragment) {
			return out, nil
		}
	}
	return "", errors.New("command failed")
}

func testCollector(outputs map[string]string) *Collector {
	runner := &fakeRunner{outputs: outputs}
	return &Collector{Timeout: time.Second, TunnelPort: 8080, run: runner.run}
}

func TestCollect_ParsesCommandOutput(t *testing.T) {
	c := testCollector(map[string]string{
		"Cpu(s)":      "12.5",
		"$3*100/$2":   "41.3",
		"df -h /":     "73",
		"free -b | awk 'NR==2{print $2}'": "8589934592",
		"free -b | awk 'NR==2{print $3}'": "4294967296",
		"df -B1 / | awk 'NR==2{print $2}'": "107374182400",
		"df -B1 / | awk 'NR==2{print $3}'": "53687091200",
		"print $10":   "123456",
		"/proc/net/dev | grep eth0 | awk '{print $2}'": "654321",
		"uptime -p":   "up 3 days, 4 hours",
		"hostname":    "gx-host",
		"PRETTY_NAME": "Debian GNU/Linux 12 (bookworm)",
		"uname -m":    "x86_64",
		"ESTABLISHED": "4",
	})

	s := c.Collect(context.Background())
	assert.Equal(t, 12.5, s.CPUUsage)
	assert.Equal(t, 41.3, s.MemoryUsage)
	assert.Equal(t, 73.0, s.DiskUsage)
	assert.Equal(t, 8.0, s.MemoryTotal)
	assert.Equal(t, 4.0, s.MemoryUsed)
	assert.Equal(t, 100.0, s.DiskTotal)
	assert.Equal(t, 50.0, s.DiskUsed)
	assert.Equal(t, int64(123456), s.Network.BytesSent)
	assert.Equal(t, int64(654321), s.Network.BytesRecv)
	assert.Equal(t, "up 3 days, 4 hours", s.Uptime)
	assert.Equal(t, "gx-host", s.Hostname)
	assert.Equal(t, "Debian GNU/Linux 12 (bookworm)", s.OS)
	assert.Equal(t, "x86_64", s.Architecture)
	assert.Equal(t, 4, s.ActiveConnections)
}

func TestCollect_FailedCommandsFallBack(t *testing.T) {
	c := testCollector(nil)

	s := c.Collect(context.Background())
	assert.Zero(t, s.CPUUsage)
	assert.Zero(t, s.MemoryTotal)
	assert.Zero(t, s.Network.BytesSent)
	assert.Equal(t, "Unknown", s.Uptime)
	assert.Equal(t, "Unknown", s.Hostname)
	assert.Equal(t, "Linux", s.OS)
	assert.Equal(t, "Unknown", s.Architecture)
	assert.Zero(t, s.ActiveConnections)
}

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512.00 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{1073741824, "1.00 GB"},
		{1099511627776, "1.00 TB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanBytes(tt.in), "%d bytes", tt.in)
	}
}
