package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// IntentIDToBytes32 maps a ledger intent id to the bytes32 key used on-chain.
// Hex ids of at most 32 bytes are left-padded, anything else is keccak256 hashed.
func IntentIDToBytes32(intentID string) [32]byte {
	if strings.HasPrefix(intentID, "0x") || strings.HasPrefix(intentID, "0X") {
		if raw, err := hexutil.Decode(evenHex(intentID)); err == nil && len(raw) <= 32 {
			return common.BytesToHash(raw)
		}
	}
	return crypto.Keccak256Hash([]byte(intentID))
}

func evenHex(s string) string {
	if len(s)%2 == 1 {
		return "0x0" + s[2:]
	}
	return s
}
