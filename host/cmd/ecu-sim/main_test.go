package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--rpm", "3000", "-n", "10"})
	require.NoError(t, cmd.Execute())

	report := out.String()
	assert.Contains(t, report, "10 revolutions at 3000 rpm")
	assert.Contains(t, report, "sync full=true")
	assert.Contains(t, report, "BANK")
	assert.Contains(t, report, "fuel")
	assert.Contains(t, report, "ignition")
}

func TestRunCommandTrace(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--rpm", "2000", "-n", "4", "--trace"})
	require.NoError(t, cmd.Execute())

	report := out.String()
	assert.Contains(t, report, "schedule transitions")
	assert.Contains(t, report, "START ch=")
}

func TestRunCommandRejectsBadConfig(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--config", "does-not-exist.yaml"})
	assert.Error(t, cmd.Execute())
}
