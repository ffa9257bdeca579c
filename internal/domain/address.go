package domain

import (
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Legacy base58 (P2PKH/P2SH) or bech32 segwit mainnet addresses.
// Base58 excludes 0 O I l, the bech32 charset excludes 1 b i o.
var addressRe = regexp.MustCompile(`^(?:[13][a-km-zA-HJ-NP-Z1-9]{25,34}|bc1[02-9ac-hj-np-z]{11,71})$`)

// ValidAddress performs a syntactic check only; checksums are not verified.
func ValidAddress(addr string) bool {
	return addressRe.MatchString(addr)
}

// DescribeAddress returns a short type label for a mainnet address
// ("P2PKH", "P2SH", "P2WPKH", "P2WSH", "P2TR") or "" when the address does
// not decode (bad checksum, unknown witness program).
func DescribeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	decoded, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams)
	if err != nil || !decoded.IsForNet(&chaincfg.MainNetParams) {
		return ""
	}
	switch decoded.(type) {
	case *btcutil.AddressPubKeyHash:
		return "P2PKH"
	case *btcutil.AddressScriptHash:
		return "P2SH"
	case *btcutil.AddressWitnessPubKeyHash:
		return "P2WPKH"
	case *btcutil.AddressWitnessScriptHash:
		return "P2WSH"
	case *btcutil.AddressTaproot:
		return "P2TR"
	default:
		return ""
	}
}
