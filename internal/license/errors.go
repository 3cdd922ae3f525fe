// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import "errors"

var (
	// ErrMalformedKey covers wrong length, checksum mismatch and non-hex fields.
	ErrMalformedKey = errors.New("malformed license key")
	// ErrUnknownLicenseType is returned when the checksum holds but the type code is not recognized.
	ErrUnknownLicenseType = errors.New("unknown license type")
	// ErrUnsupportedProduct is returned for keys issued for another product code or key version.
	ErrUnsupportedProduct   = errors.New("license key issued for a different product or version")
	ErrExpirationOutOfRange = errors.New("expiration date outside encodable range")
	ErrUnknownFeature       = errors.New("unknown feature")
)
