package rpc

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Selector computes the 4-byte function selector for a canonical Solidity
// method signature, e.g. Selector("totalSupply()") == "0x18160ddd".
func Selector(signature string) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(signature))
	return "0x" + hex.EncodeToString(hash.Sum(nil)[:4])
}
