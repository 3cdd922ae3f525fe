// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
)

// Key layout: product(2) version(2) type(2) customer(4) features(4)
// expiration(4) salt(4) checksum(2).
const (
	ProductCode = "GG"
	VersionCode = "01"

	RawKeyLength   = 24
	ChecksumLength = 2
	GroupSize      = 4
	Delimiter      = "-"

	baseLength   = RawKeyLength - ChecksumLength
	saltLength   = 4
	saltAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateParams describes the key to issue. A nil ExpirationDays issues a
// perpetual key; negative values are allowed and produce an already expired key.
type GenerateParams struct {
	CustomerID     string      `json:"customerId" validate:"required"`
	LicenseType    LicenseType `json:"licenseType" validate:"required,oneof=trial standard enterprise"`
	Features       Features    `json:"features"`
	ExpirationDays *int        `json:"expirationDays,omitempty"`
}

// Payload is a decoded key.
type Payload struct {
	ProductCode     string      `json:"productCode"`
	VersionCode     string      `json:"versionCode"`
	LicenseTypeCode string      `json:"licenseTypeCode"`
	CustomerHash    string      `json:"customerHash"`
	FeatureCode     string      `json:"featureCode"`
	ExpirationCode  string      `json:"expirationCode"`
	Salt            string      `json:"salt"`
	Checksum        string      `json:"checksum"`
	LicenseType     LicenseType `json:"licenseType"`
	Features        Features    `json:"features"`
	ExpiresAt       *time.Time  `json:"expiresAt,omitempty"`
}

// Perpetual reports whether the key carries no expiration.
func (p *Payload) Perpetual() bool {
	return p.ExpiresAt == nil
}

// Codec generates and parses license keys.
type Codec struct {
	clock    clockwork.Clock
	random   io.Reader
	validate *validator.Validate
}

type Option func(*Codec)

// WithClock sets the clock used for expiration math.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Codec) {
		c.clock = clock
	}
}

// WithRandom replaces the salt source. Production code should keep crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) {
		c.random = r
	}
}

// NewCodec creates a codec backed by the real clock and crypto/rand.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		clock:    clockwork.NewRealClock(),
		random:   rand.Reader,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate issues a new key formatted for display.
func (c *Codec) Generate(params GenerateParams) (string, error) {
	if err := c.validate.Struct(params); err != nil {
		return "", fmt.Errorf("invalid key parameters: %w", err)
	}

	typeCode, ok := params.LicenseType.Code()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLicenseType, params.LicenseType)
	}

	expirationCode, err := EncodeExpiration(c.clock.Now(), params.ExpirationDays)
	if err != nil {
		return "", err
	}

	salt, err := c.salt()
	if err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	var b strings.Builder
	b.Grow(RawKeyLength)
	b.WriteString(ProductCode)
	b.WriteString(VersionCode)
	b.WriteString(typeCode)
	b.WriteString(CustomerHash(params.CustomerID))
	b.WriteString(EncodeFeatures(params.Features))
	b.WriteString(expirationCode)
	b.WriteString(salt)

	base := b.String()
	return FormatKey(base + checksum(base)), nil
}

// ValidateFormat reports whether key has the right length and checksum. It
// never fails on garbage input.
func (c *Codec) ValidateFormat(key string) bool {
	raw := Normalize(key)
	if len(raw) != RawKeyLength {
		return false
	}
	return checksum(raw[:baseLength]) == raw[baseLength:]
}

// Decode parses key. A passing checksum is not enough: the product, version
// and license type must be known as well.
func (c *Codec) Decode(key string) (*Payload, error) {
	if !c.ValidateFormat(key) {
		return nil, ErrMalformedKey
	}

	raw := Normalize(key)
	p := &Payload{
		ProductCode:     raw[0:2],
		VersionCode:     raw[2:4],
		LicenseTypeCode: raw[4:6],
		CustomerHash:    raw[6:10],
		FeatureCode:     raw[10:14],
		ExpirationCode:  raw[14:18],
		Salt:            raw[18:22],
		Checksum:        raw[22:24],
	}

	if p.ProductCode != ProductCode || p.VersionCode != VersionCode {
		return nil, fmt.Errorf("%w: %s%s", ErrUnsupportedProduct, p.ProductCode, p.VersionCode)
	}

	licenseType, ok := licenseTypeFromCode(p.LicenseTypeCode)
	if !ok {
		return nil, fmt.Errorf("%w: code %q", ErrUnknownLicenseType, p.LicenseTypeCode)
	}
	p.LicenseType = licenseType

	if !isHex(p.CustomerHash) || !isHex(p.FeatureCode) {
		return nil, ErrMalformedKey
	}
	p.Features = DecodeFeatures(p.FeatureCode)

	expiresAt, err := DecodeExpiration(p.ExpirationCode)
	if err != nil {
		return nil, err
	}
	p.ExpiresAt = expiresAt

	return p, nil
}

// IsExpired reports whether key is past its expiration. Keys that fail to
// decode count as expired.
func (c *Codec) IsExpired(key string) bool {
	p, err := c.Decode(key)
	if err != nil {
		return true
	}
	if p.ExpiresAt == nil {
		return false
	}
	return c.clock.Now().After(*p.ExpiresAt)
}

func (c *Codec) salt() (string, error) {
	max := big.NewInt(int64(len(saltAlphabet)))
	buf := make([]byte, saltLength)
	for i := range buf {
		n, err := rand.Int(c.random, max)
		if err != nil {
			return "", err
		}
		buf[i] = saltAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// CustomerHash returns the four hex digit customer segment for id.
func CustomerHash(id string) string {
	sum := sha256.Sum256([]byte(id))
	return strings.ToUpper(hex.EncodeToString(sum[:2]))
}

func checksum(base string) string {
	sum := sha256.Sum256([]byte(base))
	return strings.ToUpper(hex.EncodeToString(sum[:ChecksumLength/2]))
}

// Normalize strips display delimiters and surrounding whitespace.
func Normalize(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), Delimiter, "")
}

// FormatKey groups a raw key in blocks of GroupSize, e.g.
// GG01-ENAB-12FF-FFFF-X7K2-3C00 for a 24 character key.
func FormatKey(raw string) string {
	raw = Normalize(raw)
	if len(raw) <= GroupSize {
		return raw
	}

	groups := make([]string, 0, (len(raw)+GroupSize-1)/GroupSize)
	for start := 0; start < len(raw); start += GroupSize {
		end := min(start+GroupSize, len(raw))
		groups = append(groups, raw[start:end])
	}
	return strings.Join(groups, Delimiter)
}

// MaskKey shortens a key for logging.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}
