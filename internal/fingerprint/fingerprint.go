// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fingerprint derives an opaque, reasonably stable identifier for the
// machine a license is used on.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/host"
)

// Length is the number of hex characters in a fingerprint.
const Length = 32

// HostProvider computes the fingerprint once per process from host facts.
type HostProvider struct {
	once  sync.Once
	facts hostFacts
}

func NewHostProvider() *HostProvider {
	return &HostProvider{}
}

// Fingerprint returns the memoized host fingerprint. Missing host facts are
// skipped rather than reported, so the result is always usable.
func (p *HostProvider) Fingerprint(ctx context.Context) (string, error) {
	return p.load(ctx).fingerprint(), nil
}

// SealingSecret returns a secret bound to the machine but not to its network
// interfaces, for keys that must survive a VPN or bridge coming and going.
func (p *HostProvider) SealingSecret(ctx context.Context) (string, error) {
	secret := p.load(ctx).sealingSecret()
	if secret == "" {
		return "", ErrNoStableIdentity
	}
	return secret, nil
}

func (p *HostProvider) load(ctx context.Context) hostFacts {
	p.once.Do(func() {
		p.facts = collect(ctx)
	})
	return p.facts
}

// ErrNoStableIdentity is returned when neither a host id nor a hostname is
// available.
var ErrNoStableIdentity = errors.New("no stable host identity available")

type hostFacts struct {
	hostname string
	hostID   string
	platform string
	macs     []string
}

func (f hostFacts) fingerprint() string {
	parts := []string{runtime.GOOS, runtime.GOARCH}
	if f.hostname != "" {
		parts = append(parts, "host="+f.hostname)
	}
	if f.hostID != "" || f.platform != "" {
		parts = append(parts, "id="+f.hostID, "platform="+f.platform)
	}
	return Hash(append(parts, f.macs...)...)
}

// sealingSecret prefers the host id and falls back to the hostname.
func (f hostFacts) sealingSecret() string {
	switch {
	case f.hostID != "":
		return Hash("seal", runtime.GOOS, runtime.GOARCH, "id="+f.hostID)
	case f.hostname != "":
		return Hash("seal", runtime.GOOS, runtime.GOARCH, "host="+f.hostname)
	default:
		return ""
	}
}

func collect(ctx context.Context) hostFacts {
	var facts hostFacts

	if hostname, err := os.Hostname(); err == nil {
		facts.hostname = hostname
	}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Host info unavailable for fingerprint")
	} else {
		facts.hostID = info.HostID
		facts.platform = info.Platform
	}

	facts.macs = macAddresses()
	return facts
}

func macAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		macs = append(macs, "mac="+iface.HardwareAddr.String())
	}
	sort.Strings(macs)
	return macs
}

// Hash folds parts into a fingerprint string.
func Hash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])[:Length]
}

// Static is a fixed fingerprint, useful in tests and for pinned deployments.
type Static string

func (s Static) Fingerprint(context.Context) (string, error) {
	return string(s), nil
}
