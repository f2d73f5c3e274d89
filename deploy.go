package evmkit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Deployer submits contract creations and waits for them to be mined.
//
// A Deployer holds no mutable state. Concurrent deployments from one sender
// are allowed; nonce ordering is left to the Backend.
type Deployer struct {
	backend Backend
	config  *deployConfig
}

// NewDeployer creates a Deployer on top of backend.
func NewDeployer(backend Backend, opts ...DeployOption) *Deployer {
	config := defaultDeployConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Deployer{backend: backend, config: config}
}

// Backend returns the chain backend.
func (d *Deployer) Backend() Backend {
	return d.backend
}

// DefaultSender returns the first account the backend can send from.
func (d *Deployer) DefaultSender(ctx context.Context) (common.Address, error) {
	accounts, err := d.backend.Accounts(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("evmkit: list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, errors.New("evmkit: backend has no accounts")
	}
	return accounts[0], nil
}

// Deploy ABI-encodes args against the constructor, submits bytecode ‖ args as
// a contract creation from sender with gasLimit, and blocks until the
// transaction is mined.
//
// Errors:
//   - ErrInvalidGasLimit, ErrNoBytecode, *ArgumentError: nothing was submitted
//   - *SubmissionError: the node rejected the transaction
//   - *TimeoutError: the wait was abandoned; the transaction may still be mined
//   - *RevertError: mined, but the constructor failed or left no code
//
// On success the returned contract's address holds non-empty code.
func (d *Deployer) Deploy(ctx context.Context, artifact *Artifact, sender common.Address, gasLimit uint64, args ...any) (*DeployedContract, error) {
	if gasLimit == 0 {
		return nil, ErrInvalidGasLimit
	}
	if artifact == nil || len(artifact.Bytecode) == 0 {
		return nil, ErrNoBytecode
	}

	parsed, err := artifact.ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("evmkit: parse abi for %s: %w", artifact.ContractName, err)
	}
	input, err := packConstructor(parsed, args)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, len(artifact.Bytecode)+len(input))
	data = append(data, artifact.Bytecode...)
	data = append(data, input...)

	logger := d.config.logger.With("contract", artifact.ContractName, "sender", sender)

	req := &TxRequest{From: sender, Gas: gasLimit, Data: data}
	txHash, err := d.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Info("Submitted deployment", "tx", txHash, "gas", gasLimit)

	receipt, err := d.WaitMined(ctx, txHash)
	if err != nil {
		return nil, err
	}

	address := receipt.ContractAddress
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := d.replayReason(ctx, req, receipt.BlockNumber)
		logger.Warn("Deployment reverted", "tx", txHash, "reason", reason)
		return nil, &RevertError{TxHash: txHash, Address: address, Reason: reason}
	}

	code, err := d.backend.CodeAt(ctx, address, receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("evmkit: read code at %s: %w", address.Hex(), err)
	}
	if len(code) == 0 {
		logger.Warn("Deployment left no code", "tx", txHash, "address", address)
		return nil, &RevertError{TxHash: txHash, Address: address, Reason: "no code at contract address"}
	}

	logger.Info("Deployed contract", "address", address, "tx", txHash, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)

	return &DeployedContract{
		address:  address,
		abiJSON:  artifact.ABI,
		abi:      parsed,
		txHash:   txHash,
		deployer: d,
	}, nil
}

// At binds an already deployed contract. The code at address is not checked.
func (d *Deployer) At(address common.Address, artifact *Artifact) (*DeployedContract, error) {
	parsed, err := artifact.ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("evmkit: parse abi for %s: %w", artifact.ContractName, err)
	}
	return &DeployedContract{
		address:  address,
		abiJSON:  artifact.ABI,
		abi:      parsed,
		deployer: d,
	}, nil
}

// WaitMined polls for the receipt of txHash until it is available, the
// receipt timeout elapses or ctx is done. Abandoning the wait does not cancel
// the transaction.
func (d *Deployer) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if d.config.receiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.receiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(d.config.pollInterval)
	defer ticker.Stop()

	logger := d.config.logger.With("tx", txHash)
	for {
		receipt, err := d.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !isNotFound(err) && ctx.Err() == nil {
			logger.Debug("Receipt retrieval failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, &TimeoutError{TxHash: txHash, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

// submit sends req and classifies rejections. A node that simulates the
// transaction before accepting it reports reverts here rather than in a
// receipt.
func (d *Deployer) submit(ctx context.Context, req *TxRequest) (common.Hash, error) {
	txHash, err := d.backend.SendTransaction(ctx, req)
	if err == nil {
		return txHash, nil
	}
	if reason, ok := revertReason(err); ok {
		return common.Hash{}, &RevertError{Reason: reason}
	}
	return common.Hash{}, &SubmissionError{Sender: req.From, Err: err}
}

// replayReason re-executes req as a call against the state of block to
// recover the revert reason. It returns "" when no reason can be found.
func (d *Deployer) replayReason(ctx context.Context, req *TxRequest, block *big.Int) string {
	msg := ethereum.CallMsg{From: req.From, To: req.To, Gas: req.Gas, Value: req.Value, Data: req.Data}
	if block != nil && block.Sign() > 0 {
		block = new(big.Int).Sub(block, big.NewInt(1))
	}
	_, err := d.backend.CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	reason, _ := revertReason(err)
	return reason
}

func packConstructor(parsed abi.ABI, args []any) ([]byte, error) {
	inputs := parsed.Constructor.Inputs
	if len(inputs) == 0 && len(args) == 0 {
		return nil, nil
	}
	coerced, err := CoerceArgs("", inputs, args)
	if err != nil {
		return nil, err
	}
	input, err := parsed.Pack("", coerced...)
	if err != nil {
		return nil, &ArgumentError{Index: -1, Err: err}
	}
	return input, nil
}

const executionReverted = "execution reverted"

// revertReason reports whether err is an execution revert and extracts the
// Error(string) reason. Custom errors are returned as their raw hex data.
func revertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(data); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason, true
				}
				if len(raw) > 0 {
					return data, true
				}
				return "", true
			}
		}
	}

	msg := err.Error()
	i := strings.Index(msg, executionReverted)
	if i < 0 {
		return "", false
	}
	reason := strings.TrimPrefix(msg[i+len(executionReverted):], ":")
	return strings.TrimSpace(reason), true
}
