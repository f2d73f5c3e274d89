package evmkit

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DeployedContract is a handle to a contract on chain. The ABI is the exact
// JSON of the artifact it was deployed from.
type DeployedContract struct {
	address  common.Address
	abiJSON  json.RawMessage
	abi      abi.ABI
	txHash   common.Hash
	deployer *Deployer
}

// Address returns the contract address.
func (c *DeployedContract) Address() common.Address {
	return c.address
}

// ABI returns the parsed contract ABI.
func (c *DeployedContract) ABI() abi.ABI {
	return c.abi
}

// ABIJSON returns the ABI exactly as the artifact carried it.
func (c *DeployedContract) ABIJSON() json.RawMessage {
	return c.abiJSON
}

// TxHash returns the deployment transaction hash. It is zero for handles
// created with Deployer.At.
func (c *DeployedContract) TxHash() common.Hash {
	return c.txHash
}

// Invoke creates a Call for the named method with the given arguments.
// Arguments are coerced as described on CoerceArgs.
func (c *DeployedContract) Invoke(methodName string, args ...any) (*Call, error) {
	method, ok := c.abi.Methods[methodName]
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", ErrMethodNotFound, methodName, c.address.Hex())
	}
	return newCall(c, method, args)
}

// MustInvoke is like Invoke but panics on error.
func (c *DeployedContract) MustInvoke(methodName string, args ...any) *Call {
	call, err := c.Invoke(methodName, args...)
	if err != nil {
		panic(err)
	}
	return call
}

// HasMethod returns true if the contract has a method with the given name.
func (c *DeployedContract) HasMethod(methodName string) bool {
	_, ok := c.abi.Methods[methodName]
	return ok
}

// MethodNames returns all method names in the contract ABI, sorted.
func (c *DeployedContract) MethodNames() []string {
	names := make([]string, 0, len(c.abi.Methods))
	for name := range c.abi.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call executes a read-only eth_call of method at the latest block and
// returns the unpacked outputs. A revert is reported as *RevertError.
func (c *DeployedContract) Call(ctx context.Context, methodName string, args ...any) ([]any, error) {
	call, err := c.Invoke(methodName, args...)
	if err != nil {
		return nil, err
	}
	return c.CallWith(ctx, common.Address{}, call)
}

// CallWith executes call as an eth_call from the given address.
func (c *DeployedContract) CallWith(ctx context.Context, from common.Address, call *Call) ([]any, error) {
	if err := call.validate(); err != nil {
		return nil, err
	}
	msg := ethereum.CallMsg{
		From:  from,
		To:    &c.address,
		Gas:   call.gas,
		Value: call.value,
		Data:  call.data,
	}
	out, err := c.deployer.backend.CallContract(ctx, msg, nil)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			return nil, &RevertError{Address: c.address, Reason: reason}
		}
		return nil, fmt.Errorf("evmkit: call %s: %w", call.method.Name, err)
	}
	return call.method.Outputs.Unpack(out)
}

// Transact sends method as a transaction from `from` and waits for it to be
// mined. gas may be zero to let the backend estimate it; value may be nil.
// A failed receipt is reported as *RevertError.
func (c *DeployedContract) Transact(ctx context.Context, from common.Address, gas uint64, value *big.Int, methodName string, args ...any) (*types.Receipt, error) {
	call, err := c.Invoke(methodName, args...)
	if err != nil {
		return nil, err
	}
	if value != nil {
		call = call.WithValue(value)
	}
	return c.Send(ctx, from, call.WithGas(gas))
}

// Send submits call as a transaction and waits for it to be mined.
func (c *DeployedContract) Send(ctx context.Context, from common.Address, call *Call) (*types.Receipt, error) {
	if err := call.validate(); err != nil {
		return nil, err
	}

	d := c.deployer
	req := &TxRequest{From: from, To: &c.address, Gas: call.gas, Value: call.value, Data: call.data}
	txHash, err := d.submit(ctx, req)
	if err != nil {
		return nil, err
	}

	logger := d.config.logger.With("contract", c.address, "method", call.method.Name)
	logger.Debug("Submitted transaction", "tx", txHash)

	receipt, err := d.WaitMined(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := d.replayReason(ctx, req, receipt.BlockNumber)
		logger.Debug("Transaction reverted", "tx", txHash, "reason", reason)
		return nil, &RevertError{TxHash: txHash, Address: c.address, Reason: reason}
	}
	return receipt, nil
}
