package evmkit

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const redacted = "[redacted]"

// PrivateKey is a secp256k1 signing credential held in memory only.
//
// Every implicit rendering of a PrivateKey (fmt verbs, slog / go-ethereum log
// values, JSON, text marshaling) is redacted or refused. The raw scalar is
// only reachable through Export. Call Destroy when done with the key; a
// destroyed key refuses to sign.
//
// A PrivateKey may be used concurrently for signing, but Destroy must not race
// with other calls.
type PrivateKey struct {
	key  *secp256k1.PrivateKey
	addr common.Address
}

// NewPrivateKey validates raw as a secp256k1 scalar and copies it into a new
// credential. raw must be exactly 32 bytes, non-zero and below the curve order.
// The caller keeps ownership of raw and may wipe it with ZeroBytes.
func NewPrivateKey(raw []byte) (*PrivateKey, error) {
	if len(raw) != 32 {
		return nil, &InvalidKeyError{Reason: fmt.Sprintf("expected 32 bytes, got %d", len(raw))}
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow {
		scalar.Zero()
		return nil, &InvalidKeyError{Reason: "scalar is not below the curve order"}
	}
	if scalar.IsZero() {
		return nil, &InvalidKeyError{Reason: "scalar is zero"}
	}

	key := secp256k1.NewPrivateKey(&scalar)
	scalar.Zero()

	return &PrivateKey{
		key:  key,
		addr: crypto.PubkeyToAddress(*key.PubKey().ToECDSA()),
	}, nil
}

// HexToPrivateKey parses a hex encoded key, with or without 0x prefix.
func HexToPrivateKey(s string) (*PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, &InvalidKeyError{Reason: "not hex encoded"}
	}
	defer ZeroBytes(raw)
	return NewPrivateKey(raw)
}

// Address returns the Ethereum address controlled by the key.
func (k *PrivateKey) Address() common.Address {
	return k.addr
}

// Export returns a copy of the raw 32-byte scalar. This is the only way to get
// the secret out of a PrivateKey.
func (k *PrivateKey) Export() ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, &InvalidKeyError{Reason: "key destroyed"}
	}
	return k.key.Serialize(), nil
}

// Destroy zeroes the scalar. Subsequent signing fails with InvalidKeyError.
func (k *PrivateKey) Destroy() {
	if k == nil || k.key == nil {
		return
	}
	k.key.Zero()
	k.key = nil
}

// Destroyed reports whether Destroy has been called.
func (k *PrivateKey) Destroyed() bool {
	return k == nil || k.key == nil
}

// ecdsaKey converts the credential for go-ethereum transaction signing. The
// returned value is a copy and should not outlive the signing call.
func (k *PrivateKey) ecdsaKey() (*ecdsa.PrivateKey, error) {
	if k.Destroyed() {
		return nil, &InvalidKeyError{Reason: "key destroyed"}
	}
	return k.key.ToECDSA(), nil
}

func (k *PrivateKey) String() string {
	return redacted
}

func (k *PrivateKey) GoString() string {
	return "evmkit.PrivateKey(" + redacted + ")"
}

// LogValue keeps the key out of slog and go-ethereum log output.
func (k *PrivateKey) LogValue() slog.Value {
	return slog.StringValue(redacted)
}

// MarshalJSON always fails; use Export for explicit access.
func (k *PrivateKey) MarshalJSON() ([]byte, error) {
	return nil, ErrKeyNotExportable
}

// MarshalText always fails; use Export for explicit access.
func (k *PrivateKey) MarshalText() ([]byte, error) {
	return nil, ErrKeyNotExportable
}

// ZeroBytes wipes b in place.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
