package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestStageUnmarshalJSON(t *testing.T) {
	t.Run("string becomes a serial stage", func(t *testing.T) {
		var s Stage
		require.NoError(t, json.Unmarshal([]byte(`"pnpm build"`), &s))
		assert.Equal(t, Stage{Commands: []string{"pnpm build"}}, s)
	})

	t.Run("list becomes a parallel group", func(t *testing.T) {
		var s Stage
		require.NoError(t, json.Unmarshal([]byte(`["pnpm lint", "pnpm test"]`), &s))
		assert.True(t, s.Parallel)
		assert.Equal(t, []string{"pnpm lint", "pnpm test"}, s.Commands)
	})

	t.Run("rejects empty string", func(t *testing.T) {
		var s Stage
		assert.Error(t, json.Unmarshal([]byte(`"  "`), &s))
	})

	t.Run("rejects empty group", func(t *testing.T) {
		var s Stage
		assert.Error(t, json.Unmarshal([]byte(`[]`), &s))
	})

	t.Run("rejects group with empty entry", func(t *testing.T) {
		var s Stage
		assert.Error(t, json.Unmarshal([]byte(`["ok", ""]`), &s))
	})

	t.Run("rejects other shapes", func(t *testing.T) {
		var s Stage
		assert.Error(t, json.Unmarshal([]byte(`42`), &s))
	})
}

func TestLoadJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("valid config with defaults applied", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "main.json", `[
			{"name": "lib", "type": "package", "dir": "~/src/lib", "commands": ["pnpm build"]},
			{"name": "web", "type": "app", "dir": "~/src/web", "commands": [["pnpm lint", "pnpm test"], "pnpm build"], "depends_on": "lib"}
		]`)

		items, err := NewLoader(dir).Load(ctx, "main")
		require.NoError(t, err)
		require.Len(t, items, 2)

		assert.True(t, items[0].ShouldAutoPack(), "package items default auto_pack to true")
		require.NotNil(t, items[0].AutoPack)

		assert.False(t, items[1].ShouldAutoPack(), "app items never auto-pack")
		assert.Equal(t, "lib", items[1].DependsOn)
		want := []Stage{
			{Commands: []string{"pnpm lint", "pnpm test"}, Parallel: true},
			{Commands: []string{"pnpm build"}},
		}
		assert.Empty(t, cmp.Diff(want, items[1].Commands))
	})

	t.Run("explicit auto_pack false is preserved", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "main.json", `[
			{"name": "lib", "type": "package", "dir": "/tmp/lib", "commands": ["pnpm build"], "auto_pack": false}
		]`)

		items, err := NewLoader(dir).Load(ctx, "main")
		require.NoError(t, err)
		assert.False(t, items[0].ShouldAutoPack())
	})

	t.Run("creates the config directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "config")
		_, err := NewLoader(dir).Load(ctx, "main")
		require.ErrorIs(t, err, ErrNotFound)

		info, statErr := os.Stat(dir)
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	})

	t.Run("missing config", func(t *testing.T) {
		_, err := NewLoader(t.TempDir()).Load(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "main.json", `{broken`)
		_, err := NewLoader(dir).Load(ctx, "main")
		assert.ErrorContains(t, err, "not valid JSON")
	})

	t.Run("top-level value must be a list", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "main.json", `{"name": "lib"}`)
		_, err := NewLoader(dir).Load(ctx, "main")
		assert.ErrorContains(t, err, "must be a list")
	})

	t.Run("validation failures", func(t *testing.T) {
		cases := []struct {
			name    string
			config  string
			wantErr string
		}{
			{"missing name", `[{"type": "app", "dir": "/d", "commands": ["x"]}]`, "missing required field 'name'"},
			{"missing type", `[{"name": "a", "dir": "/d", "commands": ["x"]}]`, "missing required field 'type'"},
			{"bad type", `[{"name": "a", "type": "library", "dir": "/d", "commands": ["x"]}]`, "type must be"},
			{"missing dir", `[{"name": "a", "type": "app", "commands": ["x"]}]`, "missing required field 'dir'"},
			{"missing commands", `[{"name": "a", "type": "app", "dir": "/d"}]`, "missing required field 'commands'"},
			{"duplicate name", `[{"name": "a", "type": "app", "dir": "/d", "commands": ["x"]}, {"name": "a", "type": "app", "dir": "/d", "commands": ["x"]}]`, "duplicate name"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				dir := t.TempDir()
				writeConfig(t, dir, "main.json", tc.config)
				_, err := NewLoader(dir).Load(ctx, "main")
				require.Error(t, err)
				assert.ErrorContains(t, err, tc.wantErr)
			})
		}
	})
}

func TestLoadHCL(t *testing.T) {
	ctx := context.Background()

	t.Run("hcl fallback when no json exists", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "main.hcl", `
item "lib" {
  type     = "package"
  dir      = "~/src/lib"
  commands = ["pnpm build"]
}

item "web" {
  type       = "app"
  dir        = "~/src/web"
  commands   = [["pnpm lint", "pnpm test"], "pnpm build"]
  depends_on = "lib"
  auto_pack  = false
}
`)

		items, err := NewLoader(dir).Load(ctx, "main")
		require.NoError(t, err)
		require.Len(t, items, 2)

		assert.Equal(t, TypePackage, items[0].Type)
		assert.True(t, items[0].ShouldAutoPack())

		assert.Equal(t, "lib", items[1].DependsOn)
		require.Len(t, items[1].Commands, 2)
		assert.True(t, items[1].Commands[0].Parallel)
		assert.Equal(t, []string{"pnpm lint", "pnpm test"}, items[1].Commands[0].Commands)
	})

	t.Run("json wins over hcl", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "main.json", `[{"name": "from-json", "type": "app", "dir": "/d", "commands": ["x"]}]`)
		writeConfig(t, dir, "main.hcl", `
item "from-hcl" {
  type     = "app"
  dir      = "/d"
  commands = ["x"]
}
`)
		items, err := NewLoader(dir).Load(ctx, "main")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "from-json", items[0].Name)
	})

	t.Run("invalid hcl", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "main.hcl", `item "a" { type = `)
		_, err := NewLoader(dir).Load(ctx, "main")
		assert.Error(t, err)
	})
}
