// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// PerpetualExpiration marks a key that never expires.
	PerpetualExpiration = "FFFF"

	// MaxExpirationDays is the last encodable day count; 0xFFFF is taken by the sentinel.
	MaxExpirationDays = 0xFFFE

	day = 24 * time.Hour
)

// ExpirationEpoch is day zero of the expiration code.
var ExpirationEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// EncodeExpiration encodes now+days as a day count since ExpirationEpoch. A nil
// days means perpetual. Targets before the epoch or past MaxExpirationDays are
// rejected rather than wrapped.
func EncodeExpiration(now time.Time, days *int) (string, error) {
	if days == nil {
		return PerpetualExpiration, nil
	}
	if *days > MaxExpirationDays || *days < -MaxExpirationDays {
		return "", fmt.Errorf("%w: %d days", ErrExpirationOutOfRange, *days)
	}

	target := now.Add(time.Duration(*days) * day)
	if target.Before(ExpirationEpoch) {
		return "", fmt.Errorf("%w: %s is before %s", ErrExpirationOutOfRange,
			target.Format(time.DateOnly), ExpirationEpoch.Format(time.DateOnly))
	}

	count := int64(target.Sub(ExpirationEpoch) / day)
	if count > MaxExpirationDays {
		return "", fmt.Errorf("%w: %s", ErrExpirationOutOfRange, target.Format(time.DateOnly))
	}

	return fmt.Sprintf("%04X", count), nil
}

// DecodeExpiration returns the expiry encoded in code, or nil for a perpetual key.
func DecodeExpiration(code string) (*time.Time, error) {
	if code == PerpetualExpiration {
		return nil, nil
	}
	if len(code) != 4 || !isHex(code) {
		return nil, fmt.Errorf("%w: bad expiration code %q", ErrMalformedKey, code)
	}

	count, err := strconv.ParseUint(code, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: bad expiration code %q", ErrMalformedKey, code)
	}

	expiresAt := ExpirationEpoch.Add(time.Duration(count) * day)
	return &expiresAt, nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return s != ""
}
