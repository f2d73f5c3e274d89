package evmkit

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// units maps a suffix to its decimal places. "gwei" must precede "wei".
var units = []struct {
	suffix   string
	decimals int
}{
	{"ether", 18},
	{"eth", 18},
	{"gwei", 9},
	{"wei", 0},
}

// ParseValue parses an amount of wei. Accepted forms are plain integers
// ("1000", "0x3e8") and decimals with a unit suffix ("1ether", "0.5 gwei",
// "2.25eth"). Fractions finer than one wei are rejected.
func ParseValue(s string) (*big.Int, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return nil, fmt.Errorf("evmkit: empty value")
	}

	decimals := 0
	for _, u := range units {
		if strings.HasSuffix(in, u.suffix) {
			in = strings.TrimSpace(strings.TrimSuffix(in, u.suffix))
			decimals = u.decimals
			break
		}
	}

	if decimals == 0 || !strings.Contains(in, ".") {
		n, ok := new(big.Int).SetString(in, 0)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("evmkit: invalid value %q", s)
		}
		return n.Mul(n, pow10(decimals)), nil
	}

	whole, frac, _ := strings.Cut(in, ".")
	if len(frac) > decimals {
		return nil, fmt.Errorf("evmkit: value %q is finer than one wei", s)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("evmkit: invalid value %q", s)
	}
	return n, nil
}

// FormatEther renders wei as a decimal ether amount without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	ether := big.NewInt(params.Ether)
	q, r := new(big.Int).QuoRem(new(big.Int).Abs(wei), ether, new(big.Int))

	out := q.String()
	if r.Sign() != 0 {
		frac := fmt.Sprintf("%018s", r.String())
		out += "." + strings.TrimRight(frac, "0")
	}
	if wei.Sign() < 0 {
		out = "-" + out
	}
	return out
}

func pow10(n int) *big.Int {
	switch n {
	case 18:
		return big.NewInt(params.Ether)
	case 9:
		return big.NewInt(params.GWei)
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
