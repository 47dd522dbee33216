package chain

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/speedrun-hq/railsettle/pkg/contracts"
	"github.com/speedrun-hq/railsettle/pkg/logger"
	"github.com/speedrun-hq/railsettle/pkg/metrics"
	"github.com/speedrun-hq/railsettle/pkg/models"
)

// ClientConfig holds the connection settings of a ZKRail deployment
type ClientConfig struct {
	ChainID       int
	RPCURL        string
	ZKRailAddress string
	// PrivateKey is optional, without it the client is read-only
	PrivateKey     string
	GasMultiplier  float64
	BondBps        int64
	ReceiptTimeout time.Duration
}

// Client implements Collaborator against a ZKRail contract through go-ethereum
type Client struct {
	config  ClientConfig
	eth     *ethclient.Client
	zkrail  *contracts.ZKRail
	address common.Address
	domain  Domain
	auth    *bind.TransactOpts
	nonces  *NonceManager
	logger  logger.Logger

	// serializes gas price updates on the shared transactor
	mu sync.Mutex
}

var _ Collaborator = (*Client)(nil)

// Dial connects to the RPC endpoint and binds the ZKRail contract
func Dial(ctx context.Context, config ClientConfig, log logger.Logger) (*Client, error) {
	if !common.IsHexAddress(config.ZKRailAddress) {
		return nil, fmt.Errorf("invalid ZKRail address: %q", config.ZKRailAddress)
	}
	if config.GasMultiplier <= 0 {
		config.GasMultiplier = 1.1
	}
	if config.ReceiptTimeout <= 0 {
		config.ReceiptTimeout = 2 * time.Minute
	}

	eth, err := ethclient.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to client: %v", err)
	}

	remoteChainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}
	if remoteChainID.Int64() != int64(config.ChainID) {
		eth.Close()
		return nil, fmt.Errorf("RPC endpoint serves chain %s, expected %d", remoteChainID, config.ChainID)
	}

	address := common.HexToAddress(config.ZKRailAddress)
	zkrail, err := contracts.NewZKRail(address, eth)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to initialize contract: %v", err)
	}

	c := &Client{
		config:  config,
		eth:     eth,
		zkrail:  zkrail,
		address: address,
		domain:  NewDomain(int64(config.ChainID), address),
		logger:  log,
	}

	if config.PrivateKey != "" {
		auth, err := createAuthenticator(config.PrivateKey, remoteChainID)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("failed to create authenticator: %v", err)
		}
		c.auth = auth
		c.nonces = NewNonceManager(eth, auth.From, log)
		log.InfoWithChain(config.ChainID, "Chain client ready for operator %s on ZKRail %s", auth.From.Hex(), address.Hex())
	} else {
		log.NoticeWithChain(config.ChainID, "Chain client is read-only, no PRIVATE_KEY configured")
	}

	return c, nil
}

func createAuthenticator(privateKeyHex string, chainID *big.Int) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}
	return bind.NewKeyedTransactorWithChainID(privateKey, chainID)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

// Close closes the RPC connection
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the configured chain id
func (c *Client) ChainID() int {
	return c.config.ChainID
}

// Domain returns the EIP-712 domain of the bound contract
func (c *Client) Domain() Domain {
	return c.domain
}

// CanTransact reports whether a signing key is configured
func (c *Client) CanTransact() bool {
	return c.auth != nil
}

// LatestBlockNumber is used by readiness checks
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) chainLabel() string {
	return strconv.Itoa(c.config.ChainID)
}

// transactOpts refreshes the gas price with the configured multiplier and
// returns a copy of the transactor for one transaction
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.auth == nil {
		return nil, ErrReadOnly
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	gasPrice, err := c.eth.SuggestGasPrice(timeoutCtx)
	if err != nil {
		c.logger.ErrorWithChain(c.config.ChainID, "Failed to get gas price, keeping previous: %v", err)
	} else {
		multiplied := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), big.NewFloat(c.config.GasMultiplier))
		finalGasPrice, _ := multiplied.Int(nil)
		c.auth.GasPrice = finalGasPrice

		gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(finalGasPrice), big.NewFloat(1e9)).Float64()
		metrics.GasPrice.WithLabelValues(c.chainLabel()).Set(gwei)
	}

	opts := *c.auth
	opts.Context = ctx
	return &opts, nil
}

// send runs one transaction through the nonce manager and waits for a successful receipt
func (c *Client) send(ctx context.Context, op, intentID string, build func(opts *bind.TransactOpts) (*types.Transaction, error)) (string, error) {
	start := time.Now()
	txHash, err := c.sendOnce(ctx, op, intentID, build)

	metrics.ChainCallDuration.WithLabelValues(c.chainLabel(), op).Observe(time.Since(start).Seconds())
	if err != nil {
		_, errorType := ClassifyError(err)
		metrics.ChainCalls.WithLabelValues(c.chainLabel(), op, "failed").Inc()
		metrics.ChainErrors.WithLabelValues(c.chainLabel(), errorType).Inc()
		c.logger.ErrorWithChain(c.config.ChainID, "%s for intent %s failed (%s): %v", op, intentID, errorType, err)
		return "", NewError(op, intentID, err)
	}
	metrics.ChainCalls.WithLabelValues(c.chainLabel(), op, "success").Inc()
	return txHash, nil
}

func (c *Client) sendOnce(ctx context.Context, op, intentID string, build func(opts *bind.TransactOpts) (*types.Transaction, error)) (string, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return "", err
	}

	nonce, err := c.nonces.GetNonce(ctx)
	if err != nil {
		return "", err
	}
	opts.Nonce = new(big.Int).SetUint64(nonce)

	tx, err := build(opts)
	if err != nil {
		c.nonces.MarkTransactionFailed(nonce)
		return "", err
	}
	c.nonces.TrackTransaction(tx.Hash(), nonce)
	c.logger.InfoWithChain(c.config.ChainID, "%s transaction sent for intent %s: %s (nonce: %d)", op, intentID, tx.Hash().Hex(), nonce)

	waitCtx, cancel := context.WithTimeout(ctx, c.config.ReceiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return "", fmt.Errorf("failed to wait for %s transaction %s: %w", op, tx.Hash().Hex(), err)
	}
	c.nonces.MarkTransactionConfirmed(nonce)
	metrics.GasUsed.WithLabelValues(c.chainLabel(), op).Observe(float64(receipt.GasUsed))

	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%s transaction %s: %w", op, tx.Hash().Hex(), ErrReverted)
	}

	c.logger.InfoWithChain(c.config.ChainID, "%s successful for intent %s: %s (gas used: %d)", op, intentID, tx.Hash().Hex(), receipt.GasUsed)
	return tx.Hash().Hex(), nil
}

// CalculateTotalAmount reads payment plus bond from the contract
func (c *Client) CalculateTotalAmount(ctx context.Context, paymentAmount *big.Int) (*big.Int, error) {
	total, err := c.zkrail.CalculateTotalAmount(&bind.CallOpts{Context: ctx}, paymentAmount)
	if err != nil {
		return nil, NewError("calculateTotalAmount", "", err)
	}
	return total, nil
}

// ensureAllowance approves the ZKRail contract for total if the current allowance is lower
func (c *Client) ensureAllowance(ctx context.Context, intentID string, token common.Address, total *big.Int) error {
	erc20, err := contracts.NewERC20(token, c.eth)
	if err != nil {
		return err
	}

	allowance, err := erc20.Allowance(&bind.CallOpts{Context: ctx}, c.auth.From, c.address)
	if err != nil {
		c.logger.ErrorWithChain(c.config.ChainID, "Failed to check allowance for intent %s, approving: %v", intentID, err)
	} else if allowance.Cmp(total) >= 0 {
		return nil
	}

	_, err = c.sendOnce(ctx, "approve", intentID, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return erc20.Approve(opts, c.address, total)
	})
	return err
}

// Commit verifies the solver signature, approves payment plus bond and calls commitToSolution
func (c *Client) Commit(ctx context.Context, intent models.Intent, solution models.Solution) (string, error) {
	const op = "commitToSolution"

	payload, err := SolutionPayload(intent, solution, c.config.BondBps)
	if err != nil {
		return "", NewError(op, intent.ID, err)
	}
	signature, err := hexutil.Decode(solution.Signature)
	if err != nil {
		return "", NewError(op, intent.ID, fmt.Errorf("invalid signature encoding: %w", err))
	}
	signer, err := RecoverSolutionSigner(c.domain, payload, signature)
	if err != nil {
		return "", NewError(op, intent.ID, fmt.Errorf("%v: %w", err, ErrSignatureMismatch))
	}
	if signer != common.HexToAddress(solution.SolverAddress) {
		return "", NewError(op, intent.ID, fmt.Errorf("recovered %s, solver is %s: %w", signer.Hex(), solution.SolverAddress, ErrSignatureMismatch))
	}
	if c.auth == nil {
		return "", NewError(op, intent.ID, ErrReadOnly)
	}

	total, err := c.CalculateTotalAmount(ctx, payload.PaymentAmount)
	if err != nil {
		return "", err
	}
	c.logger.DebugWithChain(c.config.ChainID, "Need to approve %s for payment plus bond on intent %s", total, intent.ID)

	if err := c.ensureAllowance(ctx, intent.ID, payload.PaymentToken, total); err != nil {
		return "", NewError("approve", intent.ID, err)
	}

	return c.send(ctx, op, intent.ID, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.zkrail.CommitToSolution(opts, payload, signature)
	})
}

// Settle calls settle(intentId)
func (c *Client) Settle(ctx context.Context, intentID string) (string, error) {
	return c.send(ctx, "settle", intentID, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.zkrail.Settle(opts, IntentIDToBytes32(intentID))
	})
}

// ResolveWithProof calls resolveWithProof(intentId, proof)
func (c *Client) ResolveWithProof(ctx context.Context, intentID string, proof []byte) (string, error) {
	return c.send(ctx, "resolveWithProof", intentID, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.zkrail.ResolveWithProof(opts, IntentIDToBytes32(intentID), proof)
	})
}

// EmergencyResolve calls emergencyResolve(intentId)
func (c *Client) EmergencyResolve(ctx context.Context, intentID string) (string, error) {
	return c.send(ctx, "emergencyResolve", intentID, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.zkrail.EmergencyResolve(opts, IntentIDToBytes32(intentID))
	})
}

// VerifyTransaction checks the receipt of a transaction reported by a client
func (c *Client) VerifyTransaction(ctx context.Context, txHash string) error {
	raw, err := hexutil.Decode(txHash)
	if err != nil || len(raw) != common.HashLength {
		return fmt.Errorf("%w: %q", ErrInvalidTxHash, txHash)
	}
	receipt, err := c.eth.TransactionReceipt(ctx, common.BytesToHash(raw))
	if err != nil {
		return NewError("verifyTransaction", "", fmt.Errorf("receipt for %s: %w", txHash, err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return NewError("verifyTransaction", "", fmt.Errorf("%s: %w", txHash, ErrReverted))
	}
	return nil
}
