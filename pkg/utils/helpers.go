// Package utils provides utility functions and constants for common operations
// throughout the application.
package utils

import (
	"fmt"
	"strings"
)

// Ethereum address constants
var (
	// NullEthereumAddress is the null Ethereum address without the 0x prefix
	NullEthereumAddress = "0000000000000000000000000000000000000000"

	// NullEthereumAddressHex is the null Ethereum address with the 0x prefix
	NullEthereumAddressHex = fmt.Sprintf("0x%s", NullEthereumAddress)

	// NativeTokenAddress is the pseudo-address swap aggregators use for the
	// chain's native asset.
	NativeTokenAddress = "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
)

// AreAddressesEqual compares two Ethereum addresses for equality, ignoring case.
func AreAddressesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// IsNativeToken reports whether the address is the aggregator pseudo-address
// for the chain's native asset.
func IsNativeToken(address string) bool {
	return AreAddressesEqual(address, NativeTokenAddress)
}

// Map applies fn to every element of a list and returns the results.
func Map[A any, B any](coll []A, fn func(i A, index uint64) B) []B {
	out := make([]B, len(coll))
	for i, item := range coll {
		out[i] = fn(item, uint64(i))
	}
	return out
}
