package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Contract method signatures read by the gate caches. Selectors are computed
// at startup rather than hardcoded so a signature typo cannot silently call
// the wrong method.
var (
	SelTotalSupply = Selector("totalSupply()") // 0x18160ddd
	SelExists      = Selector("exists(uint256)")
	SelSaleState   = Selector("saleState()")
	SelRevealTime  = Selector("revealTime()")
	SelReserved    = Selector("reserved(uint256)")
)

// Call performs a single best-effort eth_call against one contract and
// returns the raw hex-encoded result. No retry logic lives here; failures
// propagate unmodified so callers can classify them.
func (c *Client) Call(ctx context.Context, contractAddress, callData string) (string, error) {
	params := []interface{}{
		map[string]interface{}{
			"to":   contractAddress,
			"data": callData,
		},
		"latest",
	}

	result, err := c.call(ctx, "eth_call", params)
	if err != nil {
		return "", err
	}

	var hexResult string
	if err := json.Unmarshal(result, &hexResult); err != nil {
		return "", fmt.Errorf("failed to unmarshal call result: %w", err)
	}

	return hexResult, nil
}

// CallUint256 reads a parameterless method returning one uint256 word
func (c *Client) CallUint256(ctx context.Context, contractAddress, selector string) (string, error) {
	return c.Call(ctx, contractAddress, selector)
}

// CallWithTokenID reads a method taking one uint256 token ID argument
func (c *Client) CallWithTokenID(ctx context.Context, contractAddress, selector, tokenID string) (string, error) {
	word, err := EncodeUint256(tokenID)
	if err != nil {
		return "", err
	}
	return c.Call(ctx, contractAddress, selector+word)
}

// GetCode fetches contract bytecode, used to verify a deployment actually
// has code behind it.
func (c *Client) GetCode(ctx context.Context, address string) (string, error) {
	result, err := c.call(ctx, "eth_getCode", []string{address, "latest"})
	if err != nil {
		return "", err
	}

	var code string
	if err := json.Unmarshal(result, &code); err != nil {
		return "", fmt.Errorf("failed to unmarshal code: %w", err)
	}

	return code, nil
}

// EncodeUint256 left-pads a decimal token ID into one 32-byte ABI word
func EncodeUint256(decimal string) (string, error) {
	value, ok := new(big.Int).SetString(decimal, 10)
	if !ok || value.Sign() < 0 {
		return "", fmt.Errorf("invalid uint256 value: %q", decimal)
	}
	return padLeft(hex.EncodeToString(value.Bytes()), 64), nil
}

// DecodeUint64 decodes a single uint256 word into a uint64. Anything that is
// not exactly one word of hex, or that overflows uint64, is an error: a
// numeric gate must never silently coerce garbage to zero.
func DecodeUint64(hexData string) (uint64, error) {
	data, ok := strings.CutPrefix(hexData, "0x")
	if !ok {
		return 0, fmt.Errorf("result missing 0x prefix: %q", hexData)
	}
	if len(data) != 64 {
		return 0, fmt.Errorf("result is not one uint256 word: %d hex chars", len(data))
	}

	value, ok := new(big.Int).SetString(data, 16)
	if !ok {
		return 0, fmt.Errorf("result is not valid hex: %q", hexData)
	}
	if !value.IsUint64() {
		return 0, fmt.Errorf("result overflows uint64: %s", value.String())
	}

	return value.Uint64(), nil
}

// DecodeBool decodes a single ABI-encoded boolean word. Only canonical 0 and
// 1 are accepted.
func DecodeBool(hexData string) (bool, error) {
	value, err := DecodeUint64(hexData)
	if err != nil {
		return false, err
	}

	switch value {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("result is not a canonical boolean: %d", value)
	}
}

// DecodeAddress extracts the 20-byte address from a single result word
func DecodeAddress(hexData string) (string, error) {
	data, ok := strings.CutPrefix(hexData, "0x")
	if !ok || len(data) != 64 {
		return "", fmt.Errorf("result is not one address word: %q", hexData)
	}
	return "0x" + data[24:], nil
}

// decodeRevertData decodes the standard Error(string) revert payload
func decodeRevertData(hexData string) string {
	data, ok := strings.CutPrefix(hexData, "0x")
	if !ok {
		return ""
	}

	// 4-byte Error(string) selector, then offset and length words
	const errorSelector = "08c379a0"
	if !strings.HasPrefix(data, errorSelector) {
		return ""
	}
	data = data[len(errorSelector):]
	if len(data) < 128 {
		return ""
	}

	length, err := strconv.ParseInt(data[64:128], 16, 64)
	if err != nil || length <= 0 || len(data) < 128+int(length)*2 {
		return ""
	}

	reasonBytes, err := hex.DecodeString(data[128 : 128+length*2])
	if err != nil {
		return ""
	}

	return string(reasonBytes)
}

// padLeft pads a hex string to the specified length
func padLeft(str string, length int) string {
	for len(str) < length {
		str = "0" + str
	}
	return str
}

// hexToUint64 converts hex string to uint64
func hexToUint64(hexStr string) (uint64, error) {
	if hexStr == "" || hexStr == "0x" {
		return 0, nil
	}
	return strconv.ParseUint(strings.TrimPrefix(hexStr, "0x"), 16, 64)
}
