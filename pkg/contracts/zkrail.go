package contracts

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ZKRailABI is the ABI of the ZKRail settlement contract
const ZKRailABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "bytes32", "name": "intentId", "type": "bytes32"},
					{
						"components": [
							{"internalType": "string", "name": "railType", "type": "string"},
							{"internalType": "string", "name": "recipientAddress", "type": "string"},
							{"internalType": "uint256", "name": "railAmount", "type": "uint256"}
						],
						"internalType": "struct ZKRail.Intent",
						"name": "intent",
						"type": "tuple"
					},
					{"internalType": "address", "name": "paymentToken", "type": "address"},
					{"internalType": "uint256", "name": "paymentAmount", "type": "uint256"},
					{"internalType": "address", "name": "bondToken", "type": "address"},
					{"internalType": "uint256", "name": "bondAmount", "type": "uint256"},
					{"internalType": "address", "name": "intentCreator", "type": "address"}
				],
				"internalType": "struct ZKRail.IntentSolution",
				"name": "solution",
				"type": "tuple"
			},
			{"internalType": "bytes", "name": "signature", "type": "bytes"}
		],
		"name": "commitToSolution",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "uint256", "name": "paymentAmount", "type": "uint256"}],
		"name": "calculateTotalAmount",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "intentId", "type": "bytes32"}],
		"name": "settle",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "intentId", "type": "bytes32"},
			{"internalType": "bytes", "name": "proof", "type": "bytes"}
		],
		"name": "resolveWithProof",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "intentId", "type": "bytes32"}],
		"name": "emergencyResolve",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// ZKRailIntent is the rail leg of a solution as encoded on-chain.
type ZKRailIntent struct {
	RailType         string
	RecipientAddress string
	RailAmount       *big.Int
}

// ZKRailIntentSolution is the solution tuple accepted by commitToSolution.
type ZKRailIntentSolution struct {
	IntentId      [32]byte
	Intent        ZKRailIntent
	PaymentToken  common.Address
	PaymentAmount *big.Int
	BondToken     common.Address
	BondAmount    *big.Int
	IntentCreator common.Address
}

// ZKRail is a Go binding around the ZKRail contract.
type ZKRail struct {
	ZKRailCaller     // Read-only binding to the contract
	ZKRailTransactor // Write-only binding to the contract
}

// ZKRailCaller is a read-only Go binding around the ZKRail contract.
type ZKRailCaller struct {
	contract *bind.BoundContract
}

// ZKRailTransactor is a write-only Go binding around the ZKRail contract.
type ZKRailTransactor struct {
	contract *bind.BoundContract
}

// NewZKRail creates a new instance of ZKRail, bound to a specific deployed contract.
func NewZKRail(address common.Address, backend bind.ContractBackend) (*ZKRail, error) {
	parsed, err := abi.JSON(strings.NewReader(ZKRailABI))
	if err != nil {
		return nil, err
	}
	contract := bind.NewBoundContract(address, parsed, backend, backend, backend)
	return &ZKRail{ZKRailCaller: ZKRailCaller{contract: contract}, ZKRailTransactor: ZKRailTransactor{contract: contract}}, nil
}

// CalculateTotalAmount is a free data retrieval call binding the contract method.
//
// Solidity: function calculateTotalAmount(uint256 paymentAmount) view returns(uint256)
func (_ZKRail *ZKRailCaller) CalculateTotalAmount(opts *bind.CallOpts, paymentAmount *big.Int) (*big.Int, error) {
	var out []interface{}
	err := _ZKRail.contract.Call(opts, &out, "calculateTotalAmount", paymentAmount)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("calculateTotalAmount returned no value")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// CommitToSolution is a paid mutator transaction binding the contract method.
//
// Solidity: function commitToSolution((bytes32,(string,string,uint256),address,uint256,address,uint256,address) solution, bytes signature) returns()
func (_ZKRail *ZKRailTransactor) CommitToSolution(opts *bind.TransactOpts, solution ZKRailIntentSolution, signature []byte) (*types.Transaction, error) {
	return _ZKRail.contract.Transact(opts, "commitToSolution", solution, signature)
}

// Settle is a paid mutator transaction binding the contract method.
//
// Solidity: function settle(bytes32 intentId) returns()
func (_ZKRail *ZKRailTransactor) Settle(opts *bind.TransactOpts, intentId [32]byte) (*types.Transaction, error) {
	return _ZKRail.contract.Transact(opts, "settle", intentId)
}

// ResolveWithProof is a paid mutator transaction binding the contract method.
//
// Solidity: function resolveWithProof(bytes32 intentId, bytes proof) returns()
func (_ZKRail *ZKRailTransactor) ResolveWithProof(opts *bind.TransactOpts, intentId [32]byte, proof []byte) (*types.Transaction, error) {
	return _ZKRail.contract.Transact(opts, "resolveWithProof", intentId, proof)
}

// EmergencyResolve is a paid mutator transaction binding the contract method.
//
// Solidity: function emergencyResolve(bytes32 intentId) returns()
func (_ZKRail *ZKRailTransactor) EmergencyResolve(opts *bind.TransactOpts, intentId [32]byte) (*types.Transaction, error) {
	return _ZKRail.contract.Transact(opts, "emergencyResolve", intentId)
}
