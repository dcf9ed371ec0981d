package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()

	names := make([]string, 0, 2)
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "build")
	assert.Contains(t, names, "watch")

	for _, flag := range []string{"log-level", "log-format", "grace"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootFlagValidation(t *testing.T) {
	t.Run("invalid format", func(t *testing.T) {
		flags := &rootFlags{logLevel: "info", logFormat: "yaml"}
		_, err := flags.newApp()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log-format")
	})

	t.Run("invalid level", func(t *testing.T) {
		flags := &rootFlags{logLevel: "loud", logFormat: "text"}
		_, err := flags.newApp()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log-level")
	})

	t.Run("valid", func(t *testing.T) {
		flags := &rootFlags{logLevel: "debug", logFormat: "json", grace: time.Second}
		a, err := flags.newApp()
		require.NoError(t, err)
		assert.NotNil(t, a)
	})
}

func TestWatchCommandRequiresTarget(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"watch"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all")
}
