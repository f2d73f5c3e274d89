package evmkit

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

var (
	testCounterparty = common.HexToAddress("0xB5eF866Aa826E1428f38b0C9396F8348167e44fD")
	halfOrder        = new(big.Int).Rsh(crypto.S256().Params().N, 1)
)

func TestPackAuthorization(t *testing.T) {
	packed := PackAuthorization(uint256.NewInt(1), testCounterparty, uint256.NewInt(100))

	t.Run("length is 84", func(t *testing.T) {
		if len(packed) != PackedAuthorizationSize {
			t.Fatalf("Expected %d bytes, got %d", PackedAuthorizationSize, len(packed))
		}
	})

	t.Run("nonce is a 32-byte big-endian word", func(t *testing.T) {
		want := make([]byte, 32)
		want[31] = 1
		if !bytes.Equal(packed[0:32], want) {
			t.Errorf("Expected nonce word %x, got %x", want, packed[0:32])
		}
	})

	t.Run("address is 20 raw bytes", func(t *testing.T) {
		if !bytes.Equal(packed[32:52], testCounterparty.Bytes()) {
			t.Errorf("Expected address %x, got %x", testCounterparty.Bytes(), packed[32:52])
		}
	})

	t.Run("amount is a 32-byte big-endian word", func(t *testing.T) {
		want := make([]byte, 32)
		want[31] = 100
		if !bytes.Equal(packed[52:84], want) {
			t.Errorf("Expected amount word %x, got %x", want, packed[52:84])
		}
	})

	t.Run("max values", func(t *testing.T) {
		max := new(uint256.Int).SetAllOne()
		p := PackAuthorization(max, common.Address{}, max)
		if !bytes.Equal(p[0:32], bytes.Repeat([]byte{0xff}, 32)) {
			t.Error("Expected all-ones nonce word")
		}
		if !bytes.Equal(p[52:84], bytes.Repeat([]byte{0xff}, 32)) {
			t.Error("Expected all-ones amount word")
		}
	})
}

func TestAuthorizationHashMatchesKeccak(t *testing.T) {
	nonce, amount := uint256.NewInt(1), uint256.NewInt(100)

	h := sha3.NewLegacyKeccak256()
	h.Write(PackAuthorization(nonce, testCounterparty, amount))
	want := h.Sum(nil)

	got := AuthorizationHash(nonce, testCounterparty, amount)
	if !bytes.Equal(got[:], want) {
		t.Errorf("Expected hash %x, got %x", want, got)
	}
}

func TestPersonalDigestMatchesTextHash(t *testing.T) {
	hash := AuthorizationHash(uint256.NewInt(7), testCounterparty, uint256.NewInt(42))

	want := accounts.TextHash(hash[:])
	got := PersonalDigest(hash)
	if !bytes.Equal(got[:], want) {
		t.Errorf("Expected digest %x, got %x", want, got)
	}
}

func TestSignAuthorization(t *testing.T) {
	key := mustTestKey(t)
	nonce, amount := uint256.NewInt(1), uint256.NewInt(100)
	signer := common.HexToAddress(testAddrHex)

	t.Run("example scenario recovers the signer", func(t *testing.T) {
		sig, err := SignAuthorization(key, RecoveryLegacy, nonce, testCounterparty, amount)
		if err != nil {
			t.Fatalf("SignAuthorization failed: %v", err)
		}
		if len(sig.Bytes()) != SignatureSize {
			t.Fatalf("Expected %d byte signature, got %d", SignatureSize, len(sig.Bytes()))
		}

		got, err := RecoverAuthorizer(nonce, testCounterparty, amount, sig)
		if err != nil {
			t.Fatalf("RecoverAuthorizer failed: %v", err)
		}
		if got != signer {
			t.Errorf("Expected signer %s, got %s", signer.Hex(), got.Hex())
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := SignAuthorization(key, RecoveryLegacy, nonce, testCounterparty, amount)
		if err != nil {
			t.Fatalf("SignAuthorization failed: %v", err)
		}
		b, err := SignAuthorization(key, RecoveryLegacy, nonce, testCounterparty, amount)
		if err != nil {
			t.Fatalf("SignAuthorization failed: %v", err)
		}
		if a != b {
			t.Errorf("Expected identical signatures, got %s and %s", a, b)
		}
	})

	t.Run("legacy v is 27 or 28", func(t *testing.T) {
		for i := uint64(0); i < 16; i++ {
			sig, err := SignAuthorization(key, RecoveryLegacy, uint256.NewInt(i), testCounterparty, amount)
			if err != nil {
				t.Fatalf("SignAuthorization failed: %v", err)
			}
			if sig.V != 27 && sig.V != 28 {
				t.Fatalf("Expected v in {27, 28}, got %d", sig.V)
			}
		}
	})

	t.Run("raw v is 0 or 1", func(t *testing.T) {
		sig, err := SignAuthorization(key, RecoveryRaw, nonce, testCounterparty, amount)
		if err != nil {
			t.Fatalf("SignAuthorization failed: %v", err)
		}
		if sig.V > 1 {
			t.Errorf("Expected v in {0, 1}, got %d", sig.V)
		}
	})

	t.Run("conventions share r and s", func(t *testing.T) {
		legacy, _ := SignAuthorization(key, RecoveryLegacy, nonce, testCounterparty, amount)
		raw, _ := SignAuthorization(key, RecoveryRaw, nonce, testCounterparty, amount)

		if legacy.R != raw.R || legacy.S != raw.S {
			t.Error("Expected r and s to be independent of the convention")
		}
		if legacy.V-27 != raw.V {
			t.Errorf("Expected v %d to map to %d", legacy.V, raw.V)
		}
	})

	t.Run("s is always low", func(t *testing.T) {
		for i := uint64(0); i < 32; i++ {
			sig, err := SignAuthorization(key, RecoveryRaw, nonce, testCounterparty, uint256.NewInt(i))
			if err != nil {
				t.Fatalf("SignAuthorization failed: %v", err)
			}
			if new(big.Int).SetBytes(sig.S[:]).Cmp(halfOrder) > 0 {
				t.Fatalf("Expected low s for amount %d", i)
			}
		}
	})

	t.Run("unspecified convention is rejected", func(t *testing.T) {
		_, err := SignAuthorization(key, RecoveryUnspecified, nonce, testCounterparty, amount)
		if !errors.Is(err, ErrRecoveryConvention) {
			t.Errorf("Expected ErrRecoveryConvention, got %v", err)
		}
	})

	t.Run("nil inputs are rejected", func(t *testing.T) {
		var argErr *ArgumentError
		if _, err := SignAuthorization(key, RecoveryLegacy, nil, testCounterparty, amount); !errors.As(err, &argErr) || argErr.Index != 0 {
			t.Errorf("Expected ArgumentError for nonce, got %v", err)
		}
		if _, err := SignAuthorization(key, RecoveryLegacy, nonce, testCounterparty, nil); !errors.As(err, &argErr) || argErr.Index != 2 {
			t.Errorf("Expected ArgumentError for amount, got %v", err)
		}
	})

	t.Run("destroyed key is rejected", func(t *testing.T) {
		k := mustTestKey(t)
		k.Destroy()

		_, err := SignAuthorization(k, RecoveryLegacy, nonce, testCounterparty, amount)
		var keyErr *InvalidKeyError
		if !errors.As(err, &keyErr) {
			t.Errorf("Expected InvalidKeyError, got %v", err)
		}
	})
}

func TestSignAuthorizationFieldOrder(t *testing.T) {
	key := mustTestKey(t)
	signer := key.Address()

	sig, err := SignAuthorization(key, RecoveryLegacy, uint256.NewInt(1), testCounterparty, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("SignAuthorization failed: %v", err)
	}

	// A verifier that swaps nonce and amount recovers some other address.
	got, err := RecoverAuthorizer(uint256.NewInt(100), testCounterparty, uint256.NewInt(1), sig)
	if err != nil {
		t.Fatalf("RecoverAuthorizer failed: %v", err)
	}
	if got == signer {
		t.Error("Expected swapped fields to recover a different address")
	}

	// So does one that skips the eth_sign prefix.
	raw := sig.Bytes()
	raw[64] -= 27
	hash := AuthorizationHash(uint256.NewInt(1), testCounterparty, uint256.NewInt(100))
	pub, err := crypto.SigToPub(hash[:], raw)
	if err == nil && crypto.PubkeyToAddress(*pub) == signer {
		t.Error("Expected unprefixed hash to recover a different address")
	}
}

func TestRecoverMatchesBtcec(t *testing.T) {
	key := mustTestKey(t)
	nonce, amount := uint256.NewInt(3), uint256.NewInt(1_000_000)

	sig, err := SignAuthorization(key, RecoveryRaw, nonce, testCounterparty, amount)
	if err != nil {
		t.Fatalf("SignAuthorization failed: %v", err)
	}

	compact := make([]byte, 0, 65)
	compact = append(compact, 27+sig.V)
	compact = append(compact, sig.R[:]...)
	compact = append(compact, sig.S[:]...)

	digest := AuthorizationDigest(nonce, testCounterparty, amount)
	pub, _, err := btcecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		t.Fatalf("RecoverCompact failed: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub.ToECDSA()); got != key.Address() {
		t.Errorf("Expected btcec to recover %s, got %s", key.Address().Hex(), got.Hex())
	}

	// The signature also verifies as a plain ECDSA signature.
	var r, s btcec.ModNScalar
	r.SetByteSlice(sig.R[:])
	s.SetByteSlice(sig.S[:])
	if !btcecdsa.NewSignature(&r, &s).Verify(digest[:], pub) {
		t.Error("Expected signature to verify against the recovered key")
	}
}

func TestRecoverDigestRejectsHighS(t *testing.T) {
	key := mustTestKey(t)
	digest := AuthorizationDigest(uint256.NewInt(1), testCounterparty, uint256.NewInt(100))

	sig, err := signDigest(key, digest, RecoveryLegacy)
	if err != nil {
		t.Fatalf("signDigest failed: %v", err)
	}

	// (r, N-s, v^1) is the malleated twin of the canonical signature.
	n := crypto.S256().Params().N
	highS := new(big.Int).Sub(n, new(big.Int).SetBytes(sig.S[:]))
	twin := sig
	highS.FillBytes(twin.S[:])
	twin.V ^= 1

	if _, err := RecoverDigest(digest, twin); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Expected ErrInvalidSignature for high s, got %v", err)
	}
}

func TestSignatureEncoding(t *testing.T) {
	key := mustTestKey(t)
	sig, err := SignAuthorization(key, RecoveryLegacy, uint256.NewInt(1), testCounterparty, uint256.NewInt(100))
	if err != nil {
		t.Fatalf("SignAuthorization failed: %v", err)
	}

	t.Run("bytes layout is r s v", func(t *testing.T) {
		b := sig.Bytes()
		if !bytes.Equal(b[0:32], sig.R[:]) || !bytes.Equal(b[32:64], sig.S[:]) || b[64] != sig.V {
			t.Errorf("Unexpected layout %x", b)
		}
	})

	t.Run("bytes round trip", func(t *testing.T) {
		parsed, err := SignatureFromBytes(sig.Bytes())
		if err != nil {
			t.Fatalf("SignatureFromBytes failed: %v", err)
		}
		if parsed != sig {
			t.Errorf("Expected %s, got %s", sig, parsed)
		}
	})

	t.Run("hex round trip", func(t *testing.T) {
		h := sig.Hex()
		if len(h) != 2+2*SignatureSize {
			t.Fatalf("Expected %d hex chars, got %d", 2+2*SignatureSize, len(h))
		}
		parsed, err := ParseSignatureHex(h)
		if err != nil {
			t.Fatalf("ParseSignatureHex failed: %v", err)
		}
		if parsed != sig {
			t.Errorf("Expected %s, got %s", sig, parsed)
		}
	})

	t.Run("text round trip", func(t *testing.T) {
		text, _ := sig.MarshalText()
		var parsed Signature
		if err := parsed.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText failed: %v", err)
		}
		if parsed != sig {
			t.Errorf("Expected %s, got %s", sig, parsed)
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		if _, err := SignatureFromBytes(make([]byte, 64)); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("Expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("bad v", func(t *testing.T) {
		b := sig.Bytes()
		b[64] = 35
		if _, err := SignatureFromBytes(b); !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("Expected ErrInvalidSignature, got %v", err)
		}
	})
}

func TestSignatureConvert(t *testing.T) {
	key := mustTestKey(t)
	nonce, amount := uint256.NewInt(9), uint256.NewInt(9)

	legacy, err := SignAuthorization(key, RecoveryLegacy, nonce, testCounterparty, amount)
	if err != nil {
		t.Fatalf("SignAuthorization failed: %v", err)
	}

	raw, err := legacy.Convert(RecoveryRaw)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if raw.Convention() != RecoveryRaw {
		t.Errorf("Expected raw convention, got %s", raw.Convention())
	}

	back, err := raw.Convert(RecoveryLegacy)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if back != legacy {
		t.Errorf("Expected lossless conversion, got %s want %s", back, legacy)
	}

	// Either convention recovers the same signer.
	for _, s := range []Signature{legacy, raw} {
		got, err := RecoverAuthorizer(nonce, testCounterparty, amount, s)
		if err != nil {
			t.Fatalf("RecoverAuthorizer failed: %v", err)
		}
		if got != key.Address() {
			t.Errorf("Expected %s, got %s", key.Address().Hex(), got.Hex())
		}
	}

	if _, err := legacy.Convert(RecoveryUnspecified); !errors.Is(err, ErrRecoveryConvention) {
		t.Errorf("Expected ErrRecoveryConvention, got %v", err)
	}
}

func TestParseRecoveryConvention(t *testing.T) {
	tests := []struct {
		in   string
		want RecoveryConvention
	}{
		{"legacy", RecoveryLegacy},
		{"27", RecoveryLegacy},
		{"28", RecoveryLegacy},
		{"raw", RecoveryRaw},
		{"0", RecoveryRaw},
		{"1", RecoveryRaw},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRecoveryConvention(tt.in)
			if err != nil {
				t.Fatalf("ParseRecoveryConvention failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	for _, in := range []string{"", "2", "29", "Legacy"} {
		if _, err := ParseRecoveryConvention(in); !errors.Is(err, ErrRecoveryConvention) {
			t.Errorf("Expected ErrRecoveryConvention for %q, got %v", in, err)
		}
	}
}
