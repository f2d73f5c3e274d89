package evmkit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Sentinel errors for common failure conditions.
var (
	// ErrContractNotFound indicates the compiler output has no contract with the requested name.
	ErrContractNotFound = errors.New("evmkit: contract not found in compiler output")

	// ErrNoBytecode indicates an artifact carries no creation bytecode (abstract contract or interface).
	ErrNoBytecode = errors.New("evmkit: artifact has no bytecode")

	// ErrCompilerVersion indicates the installed solc does not match the pinned version.
	ErrCompilerVersion = errors.New("evmkit: solc version mismatch")

	// ErrInvalidGasLimit indicates a zero gas limit was supplied.
	ErrInvalidGasLimit = errors.New("evmkit: gas limit must be positive")

	// ErrRecoveryConvention indicates no recovery id convention was chosen.
	ErrRecoveryConvention = errors.New("evmkit: recovery id convention must be explicit")

	// ErrInvalidSignature indicates a malformed or non-canonical signature.
	ErrInvalidSignature = errors.New("evmkit: invalid signature")

	// ErrKeyNotExportable is returned by every implicit serialization of a private key.
	ErrKeyNotExportable = errors.New("evmkit: private key is not serializable")

	// ErrNotPayable indicates value was attached to a non-payable method or constructor.
	ErrNotPayable = errors.New("evmkit: method is not payable")

	// ErrMethodNotFound indicates the contract ABI has no method with the requested name.
	ErrMethodNotFound = errors.New("evmkit: method not found in ABI")
)

// NotFoundError indicates the compiler input file does not exist.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("evmkit: source file %q not found", e.Path)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// CompilationError carries the compiler diagnostics for a failed build.
type CompilationError struct {
	Source      string
	Contract    string
	Diagnostics string
	Err         error
}

func (e *CompilationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "evmkit: compile %s:%s", e.Source, e.Contract)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if d := strings.TrimSpace(e.Diagnostics); d != "" {
		fmt.Fprintf(&b, "\n%s", d)
	}
	return b.String()
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// SubmissionError indicates the node rejected a transaction outright
// (insufficient funds, nonce conflict, unknown account).
type SubmissionError struct {
	Sender common.Address
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("evmkit: submit transaction from %s: %v", e.Sender.Hex(), e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// RevertError indicates a transaction was included but execution failed.
// For deployments Address is the would-be contract address, which holds no code.
type RevertError struct {
	TxHash  common.Hash
	Address common.Address
	Reason  string
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("evmkit: transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
	}
	return fmt.Sprintf("evmkit: transaction %s reverted", e.TxHash.Hex())
}

// TimeoutError indicates the wait for inclusion was abandoned. The transaction
// may still be mined later.
type TimeoutError struct {
	TxHash common.Hash
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evmkit: gave up waiting for transaction %s: %v", e.TxHash.Hex(), e.Err)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// InvalidKeyError indicates the private key is not a valid secp256k1 scalar.
type InvalidKeyError struct {
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return "evmkit: invalid private key: " + e.Reason
}

// ArgumentError indicates an issue with a method or constructor argument.
// Index is -1 when the problem is not tied to a single argument.
type ArgumentError struct {
	Method string
	Index  int
	Err    error
}

func (e *ArgumentError) Error() string {
	method := e.Method
	if method == "" {
		method = "constructor"
	}
	if e.Index < 0 {
		return fmt.Sprintf("evmkit: arguments for %q: %v", method, e.Err)
	}
	return fmt.Sprintf("evmkit: argument %d for %q: %v", e.Index, method, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}
