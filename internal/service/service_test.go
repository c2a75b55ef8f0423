package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls  []string
	result map[string]string
	errs   map[string]error
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	return f.result[key], f.errs[key]
}

func newController(runner *fakeRunner) *Controller {
	return &Controller{Units: []string{TunnelUnit, WebGUIUnit}, run: runner.run}
}

func TestApply_RestartsBothUnitsInOrder(t *testing.T) {
	runner := &fakeRunner{}
	c := newController(runner)

	require.NoError(t, c.Apply(context.Background(), "restart"))
	assert.Equal(t, []string{"restart gx-tunnel", "restart gx-webgui"}, runner.calls)
}

func TestApply_InvalidAction(t *testing.T) {
	runner := &fakeRunner{}
	c := newController(runner)

	err := c.Apply(context.Background(), "reload")
	require.Error(t, err)
	assert.Empty(t, runner.calls)
}

func TestApply_FirstFailureAborts(t *testing.T) {
	runner := &fakeRunner{
		errs: map[string]error{"stop gx-tunnel": errors.New("exit status 5")},
	}
	c := newController(runner)

	err := c.Apply(context.Background(), "stop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop gx-tunnel")
	assert.Equal(t, []string{"stop gx-tunnel"}, runner.calls)
}

func TestStatus_ReportsPerUnitState(t *testing.T) {
	runner := &fakeRunner{
		result: map[string]string{
			"is-active gx-tunnel": "active",
			"is-active gx-webgui": "inactive",
		},
		// is-active exits non-zero for inactive units but still prints
		// the state.
		errs: map[string]error{"is-active gx-webgui": errors.New("exit status 3")},
	}
	c := newController(runner)

	status := c.Status(context.Background())
	assert.Equal(t, map[string]string{
		"gx-tunnel": "active",
		"gx-webgui": "inactive",
	}, status)
}

func TestStatus_UnreachableUnitReadsUnknown(t *testing.T) {
	runner := &fakeRunner{
		errs: map[string]error{
			"is-active gx-tunnel": errors.New("command not found"),
			"is-active gx-webgui": errors.New("command not found"),
		},
	}
	c := newController(runner)

	status := c.Status(context.Background())
	assert.Equal(t, "unknown", status["gx-tunnel"])
	assert.Equal(t, "unknown", status["gx-webgui"])
}
