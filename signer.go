package evmkit

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Authorization encoding constants.
const (
	// PackedAuthorizationSize is len(nonce:32 ‖ counterparty:20 ‖ amount:32).
	PackedAuthorizationSize = 32 + common.AddressLength + 32

	// SignatureSize is the r ‖ s ‖ v serialization length.
	SignatureSize = 65

	// personalMessagePrefix is the eth_sign prefix for a 32-byte payload.
	personalMessagePrefix = "\x19Ethereum Signed Message:\n32"

	legacyRecoveryOffset = 27
)

// RecoveryConvention selects how the recovery id is carried in V.
type RecoveryConvention uint8

const (
	// RecoveryUnspecified is rejected by SignAuthorization.
	RecoveryUnspecified RecoveryConvention = iota

	// RecoveryLegacy encodes V as 27 or 28, what Solidity's ecrecover(hash, v, r, s) takes.
	RecoveryLegacy

	// RecoveryRaw encodes V as the bare y-parity, 0 or 1.
	RecoveryRaw
)

func (c RecoveryConvention) String() string {
	switch c {
	case RecoveryLegacy:
		return "legacy"
	case RecoveryRaw:
		return "raw"
	default:
		return "unspecified"
	}
}

// ParseRecoveryConvention accepts a convention name or either v value it
// produces: "legacy", "27", "28" or "raw", "0", "1".
func ParseRecoveryConvention(s string) (RecoveryConvention, error) {
	switch s {
	case "legacy", "27", "28":
		return RecoveryLegacy, nil
	case "raw", "0", "1":
		return RecoveryRaw, nil
	default:
		return RecoveryUnspecified, fmt.Errorf("%w: %q", ErrRecoveryConvention, s)
	}
}

func (c RecoveryConvention) offset() (byte, error) {
	switch c {
	case RecoveryLegacy:
		return legacyRecoveryOffset, nil
	case RecoveryRaw:
		return 0, nil
	default:
		return 0, ErrRecoveryConvention
	}
}

// Signature is a canonical (low-s) secp256k1 signature.
//
// It serializes as the 65-byte r ‖ s ‖ v concatenation (Bytes, Hex), the form
// verifiers taking a single `bytes signature` expect; the R, S and V fields are
// the triple for verifiers taking (v, r, s) separately. V carries the recovery
// id under the convention chosen at signing time.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// SignatureFromBytes parses a 65-byte r ‖ s ‖ v signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(b))
	}
	copy(sig.R[:], b[0:32])
	copy(sig.S[:], b[32:64])
	sig.V = b[64]
	if _, err := sig.RecoveryID(); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// ParseSignatureHex parses the 0x-prefixed hex form produced by Hex.
func ParseSignatureHex(s string) (Signature, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return SignatureFromBytes(b)
}

// Bytes returns r ‖ s ‖ v.
func (s Signature) Bytes() []byte {
	out := make([]byte, SignatureSize)
	copy(out[0:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// Hex returns the 0x-prefixed hex encoding of Bytes.
func (s Signature) Hex() string {
	return hexutil.Encode(s.Bytes())
}

func (s Signature) String() string {
	return s.Hex()
}

// MarshalText encodes the signature as Hex.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

// UnmarshalText decodes the Hex form.
func (s *Signature) UnmarshalText(text []byte) error {
	sig, err := ParseSignatureHex(string(text))
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// RecoveryID returns the bare y-parity, whichever convention V uses.
func (s Signature) RecoveryID() (byte, error) {
	switch s.V {
	case 0, 1:
		return s.V, nil
	case legacyRecoveryOffset, legacyRecoveryOffset + 1:
		return s.V - legacyRecoveryOffset, nil
	default:
		return 0, fmt.Errorf("%w: v=%d", ErrInvalidSignature, s.V)
	}
}

// Convention reports the convention V is encoded in.
func (s Signature) Convention() RecoveryConvention {
	switch s.V {
	case 0, 1:
		return RecoveryRaw
	case legacyRecoveryOffset, legacyRecoveryOffset + 1:
		return RecoveryLegacy
	default:
		return RecoveryUnspecified
	}
}

// Convert re-encodes V under another convention. R and S are unchanged.
func (s Signature) Convert(conv RecoveryConvention) (Signature, error) {
	recID, err := s.RecoveryID()
	if err != nil {
		return Signature{}, err
	}
	off, err := conv.offset()
	if err != nil {
		return Signature{}, err
	}
	s.V = recID + off
	return s, nil
}

// PackAuthorization tightly packs nonce, counterparty and amount in that order,
// byte-identical to Solidity's abi.encodePacked(uint256, address, uint256).
// Nil integers pack as zero.
func PackAuthorization(nonce *uint256.Int, counterparty common.Address, amount *uint256.Int) []byte {
	packed := make([]byte, 0, PackedAuthorizationSize)
	packed = append(packed, word(nonce)...)
	packed = append(packed, counterparty.Bytes()...)
	packed = append(packed, word(amount)...)
	return packed
}

func word(v *uint256.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	b := v.Bytes32()
	return b[:]
}

// AuthorizationHash is keccak256(PackAuthorization(...)), the message hash the
// verifying contract computes before applying the eth_sign prefix.
func AuthorizationHash(nonce *uint256.Int, counterparty common.Address, amount *uint256.Int) common.Hash {
	return crypto.Keccak256Hash(PackAuthorization(nonce, counterparty, amount))
}

// PersonalDigest applies the "\x19Ethereum Signed Message:\n32" prefix to a
// 32-byte hash and hashes again.
func PersonalDigest(hash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte(personalMessagePrefix), hash[:])
}

// AuthorizationDigest is the final digest that gets signed.
func AuthorizationDigest(nonce *uint256.Int, counterparty common.Address, amount *uint256.Int) common.Hash {
	return PersonalDigest(AuthorizationHash(nonce, counterparty, amount))
}

// SignAuthorization signs the (nonce, counterparty, amount) authorization.
//
// The pipeline is fixed: pack, keccak256, eth_sign prefix, keccak256, then a
// deterministic (RFC 6979) secp256k1 signature normalized to low s. conv must
// be RecoveryLegacy or RecoveryRaw; it must match what the verifier passes to
// ecrecover.
func SignAuthorization(key *PrivateKey, conv RecoveryConvention, nonce *uint256.Int, counterparty common.Address, amount *uint256.Int) (Signature, error) {
	if nonce == nil {
		return Signature{}, &ArgumentError{Method: "authorization", Index: 0, Err: errors.New("nonce is nil")}
	}
	if amount == nil {
		return Signature{}, &ArgumentError{Method: "authorization", Index: 2, Err: errors.New("amount is nil")}
	}
	return signDigest(key, AuthorizationDigest(nonce, counterparty, amount), conv)
}

func signDigest(key *PrivateKey, digest common.Hash, conv RecoveryConvention) (Signature, error) {
	off, err := conv.offset()
	if err != nil {
		return Signature{}, err
	}
	if key.Destroyed() {
		return Signature{}, &InvalidKeyError{Reason: "key destroyed"}
	}

	// compact is [27+recid] ‖ R ‖ S.
	compact := ecdsa.SignCompact(key.key, digest[:], false)
	recID := compact[0] - legacyRecoveryOffset

	var s secp256k1.ModNScalar
	s.SetByteSlice(compact[33:65])
	if s.IsOverHalfOrder() {
		s.Negate()
		recID ^= 1
	}

	var sig Signature
	copy(sig.R[:], compact[1:33])
	sig.S = s.Bytes()
	sig.V = recID + off
	return sig, nil
}

// RecoverDigest returns the address that produced sig over digest. High-s
// signatures are rejected, matching verifiers that guard against malleability.
func RecoverDigest(digest common.Hash, sig Signature) (common.Address, error) {
	recID, err := sig.RecoveryID()
	if err != nil {
		return common.Address{}, err
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(recID, r, s, true) {
		return common.Address{}, fmt.Errorf("%w: r or s out of range", ErrInvalidSignature)
	}

	raw := sig.Bytes()
	raw[64] = recID
	pub, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverAuthorizer recovers the signer of an authorization, reproducing what
// the on-chain verifier does.
func RecoverAuthorizer(nonce *uint256.Int, counterparty common.Address, amount *uint256.Int, sig Signature) (common.Address, error) {
	return RecoverDigest(AuthorizationDigest(nonce, counterparty, amount), sig)
}
