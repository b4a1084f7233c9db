package models

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// UnknownIdentity is shown for a creator that could not be resolved.
var UnknownIdentity = common.Address{}

// ParseIdentity parses a hex account address. All-lowercase and all-uppercase
// forms are accepted; mixed case must carry a valid EIP-55 checksum.
func ParseIdentity(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %s", s)
	}
	addr := common.HexToAddress(s)

	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if hex != strings.ToLower(hex) && hex != strings.ToUpper(hex) {
		if addr.Hex()[2:] != hex {
			return common.Address{}, fmt.Errorf("invalid address checksum: %s", s)
		}
	}
	return addr, nil
}

// ContainsIdentity reports whether who is in list. Address equality is byte
// equality, so the test is case-insensitive on the hex rendering.
func ContainsIdentity(list []common.Address, who common.Address) bool {
	for _, a := range list {
		if a == who {
			return true
		}
	}
	return false
}

// ShortIdentity renders 0x1234...abcd for compact listings.
func ShortIdentity(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}
