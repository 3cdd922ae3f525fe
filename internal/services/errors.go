// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkUnavailable wraps every failure to get an answer from the verifier.
	ErrNetworkUnavailable = errors.New("license server unreachable")
	// ErrLicenseRejected is an affirmative "not valid" from the verifier.
	ErrLicenseRejected = errors.New("license rejected by license server")

	ErrNoSnapshot          = errors.New("no cached validation available for offline use")
	ErrSnapshotUnreadable  = errors.New("cached validation could not be read")
	ErrSnapshotMismatch    = errors.New("cached validation belongs to a different license key")
	ErrGracePeriodExceeded = errors.New("offline grace period exceeded")
	ErrExpired             = errors.New("license expired")

	ErrFeatureNotEnabled = errors.New("feature not enabled")
)

// FeatureNotEnabledError is returned by RequireFeature when the current
// license does not grant a feature.
type FeatureNotEnabledError struct {
	Feature     string
	LicenseType string
	State       State
}

func (e *FeatureNotEnabledError) Error() string {
	if !e.State.Valid() {
		return fmt.Sprintf("feature %q requires a valid license (license state: %s)", e.Feature, e.State)
	}
	return fmt.Sprintf("feature %q is not included in the current %s license", e.Feature, e.LicenseType)
}

func (e *FeatureNotEnabledError) Is(target error) bool {
	return target == ErrFeatureNotEnabled
}
