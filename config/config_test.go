package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/tcpendpoint/test"
)

func TestConfig_LoadString(t *testing.T) {
	l := test.NewLogger()

	c := NewC(l)
	assert.Error(t, c.LoadString(""))

	c = NewC(l)
	assert.Error(t, c.LoadString(" invalid yaml"))

	c = NewC(l)
	require.NoError(t, c.LoadString("outer:\n  inner: hi\nnew: hi"))
	assert.Equal(t, "hi", c.Get("outer.inner"))
	assert.Equal(t, "hi", c.Get("new"))
}

func TestConfig_Load(t *testing.T) {
	l := test.NewLogger()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("outer:\n  inner: hi\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("outer:\n  inner: override\nnew: hi\n"), 0o600))

	c := NewC(l)
	require.NoError(t, c.Load(dir))
	assert.Equal(t, "override", c.Get("outer.inner"))
	assert.Equal(t, "hi", c.Get("new"))
}

func TestConfig_Load_NoFiles(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	assert.Error(t, c.Load(t.TempDir()))
}

func TestConfig_Get(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	c.Settings["endpoint"] = map[string]any{"read_chunk_bytes": "8192"}
	assert.Equal(t, "8192", c.Get("endpoint.read_chunk_bytes"))

	inner := []any{map[string]any{"host": "1", "port": "2"}}
	c.Settings["endpoint"] = map[string]any{"peers": inner}
	assert.EqualValues(t, inner, c.Get("endpoint.peers"))

	assert.Nil(t, c.Get("endpoint.nope"))
	assert.False(t, c.IsSet("endpoint.nope"))
	assert.True(t, c.IsSet("endpoint.peers"))
}

func TestConfig_GetStringSlice(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	c.Settings["slice"] = []any{"one", "two"}
	assert.Equal(t, []string{"one", "two"}, c.GetStringSlice("slice", []string{}))
	assert.Equal(t, []string{"d"}, c.GetStringSlice("missing", []string{"d"}))
}

func TestConfig_GetInt(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	c.Settings["n"] = "12"
	assert.Equal(t, 12, c.GetInt("n", 0))
	assert.Equal(t, 5, c.GetInt("missing", 5))
}

func TestConfig_GetUint32(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	c.Settings["n"] = "12"
	assert.Equal(t, uint32(12), c.GetUint32("n", 0))

	c.Settings["neg"] = "-1"
	assert.Equal(t, uint32(9), c.GetUint32("neg", 9))
}

func TestConfig_GetDuration(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)
	c.Settings["d"] = "5s"
	assert.Equal(t, 5*time.Second, c.GetDuration("d", 0))
	assert.Equal(t, time.Second, c.GetDuration("missing", time.Second))
}

func TestConfig_GetBool(t *testing.T) {
	l := test.NewLogger()
	c := NewC(l)

	c.Settings["bool"] = true
	assert.True(t, c.GetBool("bool", false))

	c.Settings["bool"] = "false"
	assert.False(t, c.GetBool("bool", true))

	c.Settings["bool"] = "Y"
	assert.True(t, c.GetBool("bool", false))

	c.Settings["bool"] = "nO"
	assert.False(t, c.GetBool("bool", true))
}

func TestConfig_HasChanged(t *testing.T) {
	l := test.NewLogger()

	c := NewC(l)
	c.Settings["test"] = "hi"
	assert.False(t, c.HasChanged(""))

	c = NewC(l)
	c.Settings["test"] = "hi"
	c.oldSettings = map[string]any{"test": "no"}
	assert.True(t, c.HasChanged("test"))
	assert.True(t, c.HasChanged(""))

	c = NewC(l)
	c.Settings["test"] = "hi"
	c.oldSettings = map[string]any{"test": "hi"}
	assert.False(t, c.HasChanged("test"))
	assert.False(t, c.HasChanged(""))
}

func TestConfig_ReloadConfigString(t *testing.T) {
	l := test.NewLogger()
	done := make(chan bool, 1)

	c := NewC(l)
	require.NoError(t, c.LoadString("outer:\n  inner: hi"))

	assert.False(t, c.HasChanged("outer.inner"))

	c.RegisterReloadCallback(func(c *C) {
		done <- true
	})

	require.NoError(t, c.ReloadConfigString("outer:\n  inner: ho"))
	assert.True(t, c.HasChanged("outer.inner"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reload callback never fired")
	}
}
