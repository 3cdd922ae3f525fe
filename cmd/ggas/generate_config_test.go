// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunGenerateConfigCommand(t *testing.T) {
	tests := []struct {
		name               string
		args               []string
		setupExistingFile  bool
		validateOutput     func(t *testing.T, output string)
		validateConfigFile func(t *testing.T, configPath string)
	}{
		{
			name: "generate_config_custom_directory",
			args: []string{"--config-dir", "custom/path"},
			validateOutput: func(t *testing.T, output string) {
				assert.Contains(t, output, "Configuration file created")
				assert.Contains(t, output, "custom/path/config.toml")
			},
			validateConfigFile: func(t *testing.T, configPath string) {
				content, err := os.ReadFile(configPath)
				require.NoError(t, err)
				assert.Contains(t, string(content), "# config.toml")
				assert.Contains(t, string(content), "[license]")
			},
		},
		{
			name: "generate_config_custom_file",
			args: []string{"--config-dir", "custom/myconfig.toml"},
			validateOutput: func(t *testing.T, output string) {
				assert.Contains(t, output, "Configuration file created")
				assert.Contains(t, output, "custom/myconfig.toml")
			},
			validateConfigFile: func(t *testing.T, configPath string) {
				assert.Equal(t, "myconfig.toml", filepath.Base(configPath))
				assert.FileExists(t, configPath)
			},
		},
		{
			name:              "skip_existing_config",
			args:              []string{"--config-dir", "existing/path"},
			setupExistingFile: true,
			validateOutput: func(t *testing.T, output string) {
				assert.Contains(t, output, "Configuration file already exists")
				assert.Contains(t, output, "existing/path/config.toml")
			},
			validateConfigFile: func(t *testing.T, configPath string) {
				content, err := os.ReadFile(configPath)
				require.NoError(t, err)
				assert.Equal(t, "# Existing config content", string(content))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)

			if tt.setupExistingFile {
				existingPath := filepath.Join(tmpDir, "existing", "path", "config.toml")
				require.NoError(t, os.MkdirAll(filepath.Dir(existingPath), 0o755))
				require.NoError(t, os.WriteFile(existingPath, []byte("# Existing config content"), 0o644))
			}

			cmd := RunGenerateConfigCommand()
			var output bytes.Buffer
			cmd.SetOut(&output)
			cmd.SetErr(&output)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			tt.validateOutput(t, output.String())

			configPath := filepath.Join(tmpDir, tt.args[1])
			if !strings.HasSuffix(tt.args[1], ".toml") {
				configPath = filepath.Join(configPath, "config.toml")
			}
			tt.validateConfigFile(t, configPath)
		})
	}
}

func TestGenerateConfigCommandHelp(t *testing.T) {
	cmd := RunGenerateConfigCommand()
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	helpOutput := output.String()
	assert.Contains(t, helpOutput, "Generate a default configuration file")
	assert.Contains(t, helpOutput, "--config-dir")
	assert.Contains(t, helpOutput, "OS-specific default location")
}

func TestGenerateConfigCommandValidation(t *testing.T) {
	cmd := RunGenerateConfigCommand()
	var output bytes.Buffer
	cmd.SetOut(&output)
	cmd.SetErr(&output)
	cmd.SetArgs([]string{"--config-dir"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag needs an argument")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"generate", "inspect", "check", "validate", "status", "clear", "serve", "generate-config", "version"} {
		assert.Contains(t, names, want)
	}

	var output bytes.Buffer
	root.SetOut(&output)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, Version+"\n", output.String())
}
