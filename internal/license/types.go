// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"fmt"
	"strings"
)

// LicenseType is the commercial tier a key was issued for.
type LicenseType string

const (
	LicenseTypeTrial      LicenseType = "trial"
	LicenseTypeStandard   LicenseType = "standard"
	LicenseTypeEnterprise LicenseType = "enterprise"
)

// licenseTypeCodes is the closed mapping embedded in the key. Codes are two
// characters wide.
var licenseTypeCodes = map[LicenseType]string{
	LicenseTypeTrial:      "TR",
	LicenseTypeStandard:   "ST",
	LicenseTypeEnterprise: "EN",
}

// LicenseTypes returns the known license types, cheapest first.
func LicenseTypes() []LicenseType {
	return []LicenseType{LicenseTypeTrial, LicenseTypeStandard, LicenseTypeEnterprise}
}

// Code returns the two-letter key segment for t.
func (t LicenseType) Code() (string, bool) {
	code, ok := licenseTypeCodes[t]
	return code, ok
}

func (t LicenseType) String() string {
	return string(t)
}

// ParseLicenseType accepts a license type name in any case.
func ParseLicenseType(s string) (LicenseType, error) {
	t := LicenseType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := licenseTypeCodes[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLicenseType, s)
	}
	return t, nil
}

func licenseTypeFromCode(code string) (LicenseType, bool) {
	for t, c := range licenseTypeCodes {
		if c == code {
			return t, true
		}
	}
	return "", false
}
