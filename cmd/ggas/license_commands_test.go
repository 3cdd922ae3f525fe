// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Ellette/GGAS-sub001/internal/license"
	"github.com/J-Ellette/GGAS-sub001/internal/persistence"
	"github.com/J-Ellette/GGAS-sub001/internal/verifier"
)

// verificationServer answers like the remote service. While down is set it
// returns 503.
type verificationServer struct {
	*httptest.Server
	down  atomic.Bool
	calls atomic.Int32
}

func newVerificationServer(t *testing.T) *verificationServer {
	t.Helper()
	vs := &verificationServer{}
	vs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vs.calls.Add(1)
		if vs.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var req verifier.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(req.LicenseKey, "GG01-TR") {
			json.NewEncoder(w).Encode(map[string]any{"valid": false, "message": "revoked"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"valid":       true,
			"licenseType": "standard",
			"features":    map[string]bool{"basic_reporting": true, "api_access": true},
			"expiresAt":   nil,
		})
	}))
	t.Cleanup(vs.Close)
	return vs
}

func setupLicenseEnv(t *testing.T, backend string) (*verificationServer, []string) {
	t.Helper()
	vs := newVerificationServer(t)

	dir := t.TempDir()
	t.Setenv("GGAS__LICENSE__VERIFY_URL", vs.URL)
	t.Setenv("GGAS__LICENSE__SNAPSHOT_BACKEND", backend)
	t.Setenv("GGAS__LICENSE__REQUESTS_PER_MINUTE", "0")

	return vs, []string{
		"--config-dir", filepath.Join(dir, "config"),
		"--data-dir", filepath.Join(dir, "data"),
	}
}

func TestValidateStatusClear(t *testing.T) {
	for _, backend := range []string{"sqlite", "file"} {
		t.Run(backend, func(t *testing.T) {
			vs, dirs := setupLicenseEnv(t, backend)
			key := generate(t, "--customer", "acme", "--features", "basic_reporting")

			output, err := execute(t, append([]string{"validate", key}, dirs...)...)
			require.NoError(t, err, output)
			assert.Contains(t, output, "valid_online")
			assert.Contains(t, output, "api_access")
			assert.Contains(t, output, license.MaskKey(key))
			assert.EqualValues(t, 1, vs.calls.Load())

			output, err = execute(t, append([]string{"status"}, dirs...)...)
			require.NoError(t, err, output)
			assert.Contains(t, output, "standard")
			assert.Contains(t, output, "basic_reporting, api_access")
			assert.Contains(t, output, "Offline use:  until")
			assert.NotContains(t, output, key)
			assert.EqualValues(t, 1, vs.calls.Load(), "status must not contact the service")

			vs.down.Store(true)
			output, err = execute(t, append([]string{"validate", key}, dirs...)...)
			require.NoError(t, err, output)
			assert.Contains(t, output, "valid_offline")

			output, err = execute(t, append([]string{"clear"}, dirs...)...)
			require.NoError(t, err, output)
			assert.Contains(t, output, "License cleared")

			output, err = execute(t, append([]string{"status"}, dirs...)...)
			require.NoError(t, err, output)
			assert.Contains(t, output, "No license has been validated")

			output, err = execute(t, append([]string{"validate", key}, dirs...)...)
			assert.ErrorIs(t, err, ErrKeyRejected)
			assert.Contains(t, output, "invalid")
		})
	}
}

func TestFileBackendWritesSealedSnapshot(t *testing.T) {
	_, dirs := setupLicenseEnv(t, "file")
	key := generate(t, "--customer", "acme")

	_, err := execute(t, append([]string{"validate", key}, dirs...)...)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dirs[3], persistence.SnapshotFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), license.Normalize(key)[:10])
	assert.NoFileExists(t, filepath.Join(dirs[3], "ggas.db"))
}

func TestValidateRejected(t *testing.T) {
	vs, dirs := setupLicenseEnv(t, "sqlite")
	key := generate(t, "--customer", "acme", "--type", "trial")

	output, err := execute(t, append([]string{"validate", key}, dirs...)...)
	assert.ErrorIs(t, err, ErrKeyRejected)
	assert.Contains(t, output, "invalid")
	assert.Contains(t, output, "revoked")
	assert.EqualValues(t, 1, vs.calls.Load())
}

func TestValidateMalformedKeySkipsService(t *testing.T) {
	vs, dirs := setupLicenseEnv(t, "sqlite")

	output, err := execute(t, append([]string{"validate", "GG01-AAAA-BBBB"}, dirs...)...)
	assert.ErrorIs(t, err, ErrKeyRejected)
	assert.Contains(t, output, "malformed")
	assert.Zero(t, vs.calls.Load())
}

func TestValidateReadsKeyFromStdin(t *testing.T) {
	_, dirs := setupLicenseEnv(t, "sqlite")
	key := generate(t, "--customer", "acme")

	root := NewRootCommand()
	var output bytes.Buffer
	root.SetOut(&output)
	root.SetErr(&output)
	root.SetIn(strings.NewReader(strings.ToLower(key) + "\n"))
	root.SetArgs(append([]string{"validate"}, dirs...))

	require.NoError(t, root.Execute(), output.String())
	assert.Contains(t, output.String(), "valid_online")

	root = NewRootCommand()
	root.SetOut(&output)
	root.SetErr(&output)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{"validate"}, dirs...))
	assert.EqualError(t, root.Execute(), "license key is required")
}

func TestStatusRefreshJSON(t *testing.T) {
	_, dirs := setupLicenseEnv(t, "sqlite")
	key := generate(t, "--customer", "acme")

	_, err := execute(t, append([]string{"validate", key}, dirs...)...)
	require.NoError(t, err)

	output, err := execute(t, append([]string{"status", "--refresh", "--json"}, dirs...)...)
	require.NoError(t, err, output)

	var status struct {
		State      string `json:"state"`
		LicenseKey string `json:"licenseKey"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &status))
	assert.Equal(t, "valid_online", status.State)
	assert.Equal(t, license.MaskKey(key), status.LicenseKey)
}
