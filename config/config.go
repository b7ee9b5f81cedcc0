// Package config loads and validates the VM API's configuration: the
// gateway listen address, the embedded store path, the collaborator
// endpoints (NAPI/CNAPI/FWAPI/IMGAPI/PAPI/WFAPI/VOLAPI/UFDS), and
// per-pipeline timeout/retry tunables layered over the built-in workflow
// templates.
package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"
)

type (
	// Collaborator describes how to reach one external service.
	Collaborator struct {
		URL        string `json:"url"`
		MaxPending uint   `json:"max_pending"`
	}

	// PipelineTuning overrides timeout/retry defaults for a named
	// workflow template (e.g. "provision", "migrate_sync").
	PipelineTuning struct {
		Timeout    time.Duration `json:"timeout"`
		TaskRetry  int           `json:"task_retry"`
		TaskTimeout time.Duration `json:"task_timeout"`
	}

	// Config is the root configuration object.
	Config struct {
		ListenAddress string                    `json:"listen_address"`
		DBPath        string                    `json:"dbpath"`
		LogLevel      string                    `json:"log_level"`
		Collaborators map[string]Collaborator   `json:"collaborators"`
		Pipelines     map[string]PipelineTuning `json:"pipelines"`
		DefaultLimit  int                        `json:"default_limit"`
		MaxLimit      int                        `json:"max_limit"`
	}
)

// requiredCollaborators are the external services every pipeline template
// assumes exist; Fixup fails loudly if one is missing rather than let a
// pipeline discover it lazily mid-run.
var requiredCollaborators = []string{"napi", "cnapi", "fwapi", "imgapi", "papi", "wfapi", "volapi", "ufds"}

// NewConfig returns a Config with built-in defaults.
func NewConfig() *Config {
	return &Config{
		ListenAddress: ":8080",
		DBPath:        "/var/db/vmapi/vmapi.db",
		LogLevel:      "info",
		Collaborators: make(map[string]Collaborator),
		Pipelines:     make(map[string]PipelineTuning),
		DefaultLimit:  1000,
		MaxLimit:      1000,
	}
}

// AddConfig merges a JSON config file into c. Collaborators and pipeline
// tunings in later files override earlier ones by name; everything else is
// simply overwritten if set.
func (c *Config) AddConfig(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}

	var overlay Config
	if err := json.Unmarshal(data, &overlay); err != nil {
		return err
	}

	if overlay.ListenAddress != "" {
		c.ListenAddress = overlay.ListenAddress
	}
	if overlay.DBPath != "" {
		c.DBPath = overlay.DBPath
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.DefaultLimit > 0 {
		c.DefaultLimit = overlay.DefaultLimit
	}
	if overlay.MaxLimit > 0 {
		c.MaxLimit = overlay.MaxLimit
	}
	for name, collab := range overlay.Collaborators {
		if collab.URL == "" {
			return fmt.Errorf("collaborator %s: url cannot be empty", name)
		}
		c.Collaborators[name] = collab
	}
	for name, tuning := range overlay.Pipelines {
		c.Pipelines[name] = tuning
	}

	return nil
}

// Fixup validates cross-references after all config files have been
// loaded: every required collaborator must be configured.
func (c *Config) Fixup() error {
	for _, name := range requiredCollaborators {
		if _, ok := c.Collaborators[name]; !ok {
			return fmt.Errorf("no collaborator endpoint configured for %s", name)
		}
	}
	for name, collab := range c.Collaborators {
		if collab.MaxPending == 0 {
			collab.MaxPending = 16
			c.Collaborators[name] = collab
		}
	}
	return nil
}
