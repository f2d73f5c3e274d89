package evmkit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Call is a method invocation with its arguments already coerced and packed.
// Call is immutable; modifier methods return new instances.
type Call struct {
	contract *DeployedContract
	method   abi.Method
	args     []any
	data     []byte
	value    *big.Int
	gas      uint64
}

// newCall coerces rawArgs to the method's input types and packs the calldata.
func newCall(contract *DeployedContract, method abi.Method, rawArgs []any) (*Call, error) {
	args, err := CoerceArgs(method.Name, method.Inputs, rawArgs)
	if err != nil {
		return nil, err
	}

	input, err := method.Inputs.Pack(args...)
	if err != nil {
		return nil, &ArgumentError{Method: method.Name, Index: -1, Err: err}
	}

	data := make([]byte, 0, len(method.ID)+len(input))
	data = append(data, method.ID...)
	data = append(data, input...)

	return &Call{
		contract: contract,
		method:   method,
		args:     args,
		data:     data,
	}, nil
}

// Contract returns the target contract for this call.
func (c *Call) Contract() *DeployedContract {
	return c.contract
}

// Method returns the ABI method for this call.
func (c *Call) Method() abi.Method {
	return c.method
}

// Args returns the coerced arguments.
func (c *Call) Args() []any {
	return c.args
}

// Data returns the calldata: selector followed by the packed arguments.
func (c *Call) Data() []byte {
	return c.data
}

// Selector returns the 4-byte function selector.
func (c *Call) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], c.method.ID)
	return sel
}

// EthValue returns the wei attached to the call, or nil.
func (c *Call) EthValue() *big.Int {
	return c.value
}

// Gas returns the gas limit; zero means the backend estimates it.
func (c *Call) Gas() uint64 {
	return c.gas
}

// HasReturnValue returns true if the method has outputs.
func (c *Call) HasReturnValue() bool {
	return len(c.method.Outputs) > 0
}

// IsReadOnly reports a view or pure method.
func (c *Call) IsReadOnly() bool {
	return c.method.IsConstant()
}

// WithValue attaches wei to the call. Only payable methods accept value.
//
// Returns a new Call with the value set.
func (c *Call) WithValue(amount *big.Int) *Call {
	clone := c.clone()
	clone.value = new(big.Int).Set(amount)
	return clone
}

// WithGas returns a copy with a fixed gas limit.
func (c *Call) WithGas(gas uint64) *Call {
	clone := c.clone()
	clone.gas = gas
	return clone
}

// clone creates a shallow copy of the Call. args and data are never mutated
// after construction and are shared.
func (c *Call) clone() *Call {
	clone := *c
	return &clone
}

// validate checks the call against the method's mutability.
func (c *Call) validate() error {
	if c.value != nil && c.value.Sign() > 0 && !c.method.IsPayable() {
		return &ArgumentError{Method: c.method.Name, Index: -1, Err: ErrNotPayable}
	}
	return nil
}
