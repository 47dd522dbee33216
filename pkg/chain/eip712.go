package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/speedrun-hq/railsettle/pkg/amount"
	"github.com/speedrun-hq/railsettle/pkg/contracts"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// Domain is the EIP-712 domain solvers sign solutions under
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// NewDomain returns the ZKRail signing domain for a deployment
func NewDomain(chainID int64, verifyingContract common.Address) Domain {
	return Domain{
		Name:              "ZKRail",
		Version:           "1",
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// SolutionPayload builds the on-chain solution tuple for a winning solution.
// The solver is paid its bid and bonds bondBps/10000 of it in the payment token.
func SolutionPayload(intent models.Intent, solution models.Solution, bondBps int64) (contracts.ZKRailIntentSolution, error) {
	paymentAmount, err := amount.Parse(solution.AmountWei)
	if err != nil {
		return contracts.ZKRailIntentSolution{}, fmt.Errorf("solution amount: %w", err)
	}
	railAmount, err := amount.Parse(intent.RailAmount)
	if err != nil {
		return contracts.ZKRailIntentSolution{}, fmt.Errorf("rail amount: %w", err)
	}
	token := common.HexToAddress(intent.PaymentToken)

	return contracts.ZKRailIntentSolution{
		IntentId: IntentIDToBytes32(intent.ID),
		Intent: contracts.ZKRailIntent{
			RailType:         string(intent.RailType),
			RecipientAddress: intent.RecipientAddress,
			RailAmount:       railAmount,
		},
		PaymentToken:  token,
		PaymentAmount: paymentAmount,
		BondToken:     token,
		BondAmount:    amount.MulBps(paymentAmount, bondBps),
		IntentCreator: common.HexToAddress(intent.CreatorAddress),
	}, nil
}

func solutionTypedData(domain Domain, s contracts.ZKRailIntentSolution) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Intent": []apitypes.Type{
				{Name: "railType", Type: "string"},
				{Name: "recipientAddress", Type: "string"},
				{Name: "railAmount", Type: "uint256"},
			},
			"IntentSolution": []apitypes.Type{
				{Name: "intentId", Type: "bytes32"},
				{Name: "intent", Type: "Intent"},
				{Name: "paymentToken", Type: "address"},
				{Name: "paymentAmount", Type: "uint256"},
				{Name: "bondToken", Type: "address"},
				{Name: "bondAmount", Type: "uint256"},
				{Name: "intentCreator", Type: "address"},
			},
		},
		PrimaryType: "IntentSolution",
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"intentId": hexutil.Encode(s.IntentId[:]),
			"intent": map[string]interface{}{
				"railType":         s.Intent.RailType,
				"recipientAddress": s.Intent.RecipientAddress,
				"railAmount":       (*math.HexOrDecimal256)(s.Intent.RailAmount),
			},
			"paymentToken":  s.PaymentToken.Hex(),
			"paymentAmount": (*math.HexOrDecimal256)(s.PaymentAmount),
			"bondToken":     s.BondToken.Hex(),
			"bondAmount":    (*math.HexOrDecimal256)(s.BondAmount),
			"intentCreator": s.IntentCreator.Hex(),
		},
	}
}

// SolutionDigest returns keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(solution))
func SolutionDigest(domain Domain, s contracts.ZKRailIntentSolution) (common.Hash, error) {
	typedData := solutionTypedData(domain, s)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash solution: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, domainSeparator...)
	rawData = append(rawData, messageHash...)
	return crypto.Keccak256Hash(rawData), nil
}

// SignSolution signs a solution the way solvers do, returning a 65 byte [R || S || V] signature with V in {27, 28}
func SignSolution(domain Domain, s contracts.ZKRailIntentSolution, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := SolutionDigest(domain, s)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSolutionSigner recovers the address that signed a solution
func RecoverSolutionSigner(domain Domain, s contracts.ZKRailIntentSolution, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d, expected 65", len(signature))
	}
	digest, err := SolutionDigest(domain, s)
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %d", signature[64])
	}

	pubKey, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
