// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Feature names as they appear in the verification protocol and configuration.
const (
	FeatureBasicReporting     = "basic_reporting"
	FeatureAdvancedAnalytics  = "advanced_analytics"
	FeatureAPIAccess          = "api_access"
	FeatureMultiUser          = "multi_user"
	FeatureRealTimeMonitoring = "real_time_monitoring"
	FeatureAIFeatures         = "ai_features"
)

// Features is the set of entitlements carried by a license.
type Features struct {
	BasicReporting     bool `json:"basic_reporting"`
	AdvancedAnalytics  bool `json:"advanced_analytics"`
	APIAccess          bool `json:"api_access"`
	MultiUser          bool `json:"multi_user"`
	RealTimeMonitoring bool `json:"real_time_monitoring"`
	AIFeatures         bool `json:"ai_features"`
}

// featureOrder assigns bit i of the feature code to the i-th entry. It is part
// of the key format: append only, and bump VersionCode before reordering.
var featureOrder = []struct {
	name  string
	field func(*Features) *bool
}{
	{FeatureBasicReporting, func(f *Features) *bool { return &f.BasicReporting }},
	{FeatureAdvancedAnalytics, func(f *Features) *bool { return &f.AdvancedAnalytics }},
	{FeatureAPIAccess, func(f *Features) *bool { return &f.APIAccess }},
	{FeatureMultiUser, func(f *Features) *bool { return &f.MultiUser }},
	{FeatureRealTimeMonitoring, func(f *Features) *bool { return &f.RealTimeMonitoring }},
	{FeatureAIFeatures, func(f *Features) *bool { return &f.AIFeatures }},
}

// FeatureNames returns the feature names in canonical (bit) order.
func FeatureNames() []string {
	names := make([]string, len(featureOrder))
	for i, entry := range featureOrder {
		names[i] = entry.name
	}
	return names
}

// IsKnownFeature reports whether name is one of the canonical features.
func IsKnownFeature(name string) bool {
	for _, entry := range featureOrder {
		if entry.name == name {
			return true
		}
	}
	return false
}

// AllFeatures returns a set with every feature enabled.
func AllFeatures() Features {
	var f Features
	for _, entry := range featureOrder {
		*entry.field(&f) = true
	}
	return f
}

// Enabled reports whether the named feature is on. Unknown names are off.
func (f Features) Enabled(name string) bool {
	for _, entry := range featureOrder {
		if entry.name == name {
			return *entry.field(&f)
		}
	}
	return false
}

// Set switches the named feature and reports whether the name is known.
func (f *Features) Set(name string, enabled bool) bool {
	for _, entry := range featureOrder {
		if entry.name == name {
			*entry.field(f) = enabled
			return true
		}
	}
	return false
}

// List returns the enabled feature names in canonical order.
func (f Features) List() []string {
	var names []string
	for _, entry := range featureOrder {
		if *entry.field(&f) {
			names = append(names, entry.name)
		}
	}
	return names
}

// EncodeFeatures packs f into four uppercase hex digits.
func EncodeFeatures(f Features) string {
	var bits uint16
	for i, entry := range featureOrder {
		if *entry.field(&f) {
			bits |= 1 << i
		}
	}
	return fmt.Sprintf("%04X", bits)
}

// DecodeFeatures unpacks a feature code. Bits without a feature are ignored and
// input that is not a 16-bit hex number decodes to the empty set.
func DecodeFeatures(code string) Features {
	var f Features
	bits, err := strconv.ParseUint(code, 16, 16)
	if err != nil {
		return f
	}
	for i, entry := range featureOrder {
		*entry.field(&f) = bits&(1<<i) != 0
	}
	return f
}

// ParseFeatureList parses a comma separated list of feature names. The words
// "all" and "none" select every or no feature.
func ParseFeatureList(list string) (Features, error) {
	var f Features
	switch strings.ToLower(strings.TrimSpace(list)) {
	case "", "none":
		return f, nil
	case "all":
		return AllFeatures(), nil
	}

	for _, raw := range strings.Split(list, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if !f.Set(name, true) {
			if suggestion, ok := SuggestFeature(name); ok {
				return Features{}, fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownFeature, name, suggestion)
			}
			return Features{}, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
		}
	}
	return f, nil
}

// SuggestFeature returns the canonical feature name closest to name.
func SuggestFeature(name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return "", false
	}

	names := FeatureNames()
	if ranks := fuzzy.RankFindNormalizedFold(needle, names); len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target, true
	}

	best, bestDistance := "", -1
	for _, candidate := range names {
		d := fuzzy.LevenshteinDistance(needle, candidate)
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	if bestDistance <= len(best)/3 {
		return best, true
	}
	return "", false
}
