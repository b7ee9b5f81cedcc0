package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	c := NewConfig()
	require.Equal(t, ":8080", c.ListenAddress)
	require.Equal(t, "info", c.LogLevel)
	require.Empty(t, c.Collaborators)
}

func TestAddConfigMergesOverlay(t *testing.T) {
	c := NewConfig()
	path := filepath.Join(t.TempDir(), "vmapi.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"listen_address": ":9090",
		"collaborators": {"napi": {"url": "http://napi.local"}},
		"pipelines": {"provision": {"timeout": 600000000000}}
	}`), 0644))

	require.NoError(t, c.AddConfig(path))
	require.Equal(t, ":9090", c.ListenAddress)
	require.Equal(t, "http://napi.local", c.Collaborators["napi"].URL)
	require.Equal(t, 10*time.Minute, c.Pipelines["provision"].Timeout)
}

func TestAddConfigRejectsEmptyCollaboratorURL(t *testing.T) {
	c := NewConfig()
	path := filepath.Join(t.TempDir(), "vmapi.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"collaborators": {"napi": {"url": ""}}}`), 0644))

	err := c.AddConfig(path)
	require.Error(t, err)
}

func TestAddConfigPropagatesMissingFile(t *testing.T) {
	c := NewConfig()
	err := c.AddConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestFixupRequiresAllCollaborators(t *testing.T) {
	c := NewConfig()
	c.Collaborators["napi"] = Collaborator{URL: "http://napi.local"}
	err := c.Fixup()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cnapi")
}

func TestFixupFillsDefaultMaxPending(t *testing.T) {
	c := NewConfig()
	for _, name := range requiredCollaborators {
		c.Collaborators[name] = Collaborator{URL: "http://" + name + ".local"}
	}
	require.NoError(t, c.Fixup())
	require.Equal(t, uint(16), c.Collaborators["napi"].MaxPending)
}
