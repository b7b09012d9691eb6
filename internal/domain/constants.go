package domain

import (
	"fmt"
	"strings"
)

// Address identifies an account on a ledger. The empty address is the zero address.
type Address string

// NewAddress normalizes a raw account identifier.
func NewAddress(s string) Address {
	return Address(strings.TrimSpace(s))
}

func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Address) String() string {
	return string(a)
}

// Role is a capability tag held by accounts on a single governed component.
type Role string

const (
	RoleAdmin               Role = "ADMIN"
	RoleMinter              Role = "MINTER"
	RoleBurner              Role = "BURNER"
	RoleFeeManager          Role = "FEE_MANAGER"
	RoleRateProviderManager Role = "RATE_PROVIDER_MANAGER"
	RoleRateUpdater         Role = "RATE_UPDATER"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:               {},
	RoleMinter:              {},
	RoleBurner:              {},
	RoleFeeManager:          {},
	RoleRateProviderManager: {},
	RoleRateUpdater:         {},
}

// ParseRole accepts role tags case-insensitively, with or without a _ROLE suffix.
func ParseRole(s string) (Role, error) {
	tag := strings.ToUpper(strings.TrimSpace(s))
	tag = strings.TrimSuffix(tag, "_ROLE")
	if tag == "DEFAULT_ADMIN" {
		tag = string(RoleAdmin)
	}
	role := Role(tag)
	if _, ok := knownRoles[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return role, nil
}

// Direction selects which ledger is the source of a settlement.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionForward:
		return DirectionForward, nil
	case DirectionReverse:
		return DirectionReverse, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidConfiguration, s)
	}
}

const (
	// BasisPoints is the denominator for fee rates.
	BasisPoints = 10_000
	// MaxFeeBps caps the settlement fee at 10%.
	MaxFeeBps uint32 = 1_000

	// RateDecimals is the fixed-point precision of every exchange rate.
	RateDecimals = 8

	// DefaultDecimals matches the display precision of the issued currencies.
	DefaultDecimals uint8 = 18
)
