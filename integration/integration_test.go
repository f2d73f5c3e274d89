package integration

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/branched-services/go-evmkit"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test private key (Anvil default account 0)
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const gasLimit = 3_000_000

type chain struct {
	client   *ethclient.Client
	key      *evmkit.PrivateKey
	deployer *evmkit.Deployer
	compiler *evmkit.Compiler
}

func rpcURL() string {
	if url := os.Getenv("ANVIL_URL"); url != "" {
		return url
	}
	return "http://localhost:8545"
}

func setup(t *testing.T) *chain {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "1" {
		t.Skip("Set INTEGRATION_TEST=1 to run integration tests")
	}
	if _, err := exec.LookPath("solc"); err != nil {
		t.Skip("solc not found in PATH")
	}
	ctx := context.Background()

	client, err := ethclient.DialContext(ctx, rpcURL())
	require.NoError(t, err, "Failed to connect to Anvil")
	t.Cleanup(client.Close)

	key, err := evmkit.HexToPrivateKey(testPrivateKey)
	require.NoError(t, err)
	t.Cleanup(key.Destroy)

	backend, err := evmkit.NewKeyedBackend(ctx, client, key)
	require.NoError(t, err)
	t.Logf("Connected to chain ID: %d", backend.ChainID())

	logger := log.NewLogger(log.DiscardHandler())
	return &chain{
		client:   client,
		key:      key,
		deployer: evmkit.NewDeployer(backend, evmkit.WithDeployLogger(logger)),
		compiler: evmkit.NewCompiler(evmkit.WithCompilerLogger(logger)),
	}
}

func (c *chain) deployAuthorizer(t *testing.T, signer common.Address) *evmkit.DeployedContract {
	t.Helper()
	ctx := context.Background()

	artifact, err := c.compiler.Compile(ctx, "../testdata/Authorizer.sol", "Authorizer")
	require.NoError(t, err)

	contract, err := c.deployer.Deploy(ctx, artifact, c.key.Address(), gasLimit, signer)
	require.NoError(t, err)
	t.Logf("Authorizer deployed at: %s", contract.Address().Hex())
	return contract
}

func TestAuthorizationRoundTrip(t *testing.T) {
	c := setup(t)
	ctx := context.Background()
	authorizer := c.deployAuthorizer(t, c.key.Address())

	nonce := uint256.NewInt(1)
	counterparty := c.key.Address()
	amount := uint256.NewInt(100)

	sig, err := evmkit.SignAuthorization(c.key, evmkit.RecoveryLegacy, nonce, counterparty, amount)
	require.NoError(t, err)

	t.Run("digest matches contract", func(t *testing.T) {
		out, err := authorizer.Call(ctx, "digest", nonce, counterparty, amount)
		require.NoError(t, err)
		assert.Equal(t, [32]byte(evmkit.AuthorizationDigest(nonce, counterparty, amount)), out[0])
	})

	t.Run("recover with v r s", func(t *testing.T) {
		out, err := authorizer.Call(ctx, "recover", nonce, counterparty, amount, sig.V, sig.R, sig.S)
		require.NoError(t, err)
		assert.Equal(t, c.key.Address(), out[0])
	})

	t.Run("recover from bytes", func(t *testing.T) {
		out, err := authorizer.Call(ctx, "recoverBytes", nonce, counterparty, amount, sig.Bytes())
		require.NoError(t, err)
		assert.Equal(t, c.key.Address(), out[0])
	})

	t.Run("raw convention is not what ecrecover takes", func(t *testing.T) {
		raw, err := sig.Convert(evmkit.RecoveryRaw)
		require.NoError(t, err)

		out, err := authorizer.Call(ctx, "recover", nonce, counterparty, amount, raw.V, raw.R, raw.S)
		require.NoError(t, err)
		assert.Equal(t, common.Address{}, out[0])
	})

	t.Run("pass-through abi works with bind", func(t *testing.T) {
		bound := bind.NewBoundContract(authorizer.Address(), authorizer.ABI(), c.client, c.client, c.client)
		var out []any
		err := bound.Call(&bind.CallOpts{Context: ctx}, &out, "signer")
		require.NoError(t, err)
		assert.Equal(t, c.key.Address(), out[0])
	})

	t.Run("redeem once", func(t *testing.T) {
		receipt, err := authorizer.Transact(ctx, c.key.Address(), 0, nil, "redeem", nonce, amount, sig.V, sig.R, sig.S)
		require.NoError(t, err)
		assert.Len(t, receipt.Logs, 1)

		_, err = authorizer.Transact(ctx, c.key.Address(), 200_000, nil, "redeem", nonce, amount, sig.V, sig.R, sig.S)
		var revertErr *evmkit.RevertError
		require.ErrorAs(t, err, &revertErr)
		assert.Equal(t, "nonce used", revertErr.Reason)
		assert.NotEqual(t, common.Hash{}, revertErr.TxHash)
	})

	t.Run("wrong amount is rejected", func(t *testing.T) {
		_, err := authorizer.Transact(ctx, c.key.Address(), 0, nil, "redeem", uint256.NewInt(2), uint256.NewInt(101), sig.V, sig.R, sig.S)
		var revertErr *evmkit.RevertError
		require.ErrorAs(t, err, &revertErr)
		assert.Equal(t, "bad signature", revertErr.Reason)
	})
}

func TestDeployFailures(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	t.Run("constructor revert", func(t *testing.T) {
		artifact, err := c.compiler.Compile(ctx, "../testdata/Authorizer.sol", "Authorizer")
		require.NoError(t, err)

		_, err = c.deployer.Deploy(ctx, artifact, c.key.Address(), gasLimit, common.Address{})
		var revertErr *evmkit.RevertError
		require.ErrorAs(t, err, &revertErr)
		assert.Equal(t, "zero signer", revertErr.Reason)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := c.compiler.Compile(ctx, "../testdata/Broken.sol", "Broken")
		var compErr *evmkit.CompilationError
		require.ErrorAs(t, err, &compErr)
		assert.NotEmpty(t, compErr.Diagnostics)
	})

	t.Run("abstract contract", func(t *testing.T) {
		_, err := c.compiler.Compile(ctx, "../testdata/Abstract.sol", "Base")
		assert.True(t, errors.Is(err, evmkit.ErrNoBytecode))
	})
}

func TestNodeManagedAccounts(t *testing.T) {
	c := setup(t)
	ctx := context.Background()

	node, err := evmkit.Dial(ctx, rpcURL())
	require.NoError(t, err)
	t.Cleanup(node.Close)

	deployer := evmkit.NewDeployer(node, evmkit.WithDeployLogger(log.NewLogger(log.DiscardHandler())))
	sender, err := deployer.DefaultSender(ctx)
	require.NoError(t, err)

	t.Run("deploy", func(t *testing.T) {
		artifact, err := c.compiler.Compile(ctx, "../testdata/Authorizer.sol", "Authorizer")
		require.NoError(t, err)

		contract, err := deployer.Deploy(ctx, artifact, sender, gasLimit, sender)
		require.NoError(t, err)

		out, err := contract.Call(ctx, "signer")
		require.NoError(t, err)
		assert.Equal(t, sender, out[0])
	})

	t.Run("constructor revert reason", func(t *testing.T) {
		artifact, err := c.compiler.Compile(ctx, "../testdata/Reverter.sol", "Reverter")
		require.NoError(t, err)

		_, err = deployer.Deploy(ctx, artifact, sender, gasLimit)
		var revertErr *evmkit.RevertError
		require.ErrorAs(t, err, &revertErr)
		assert.Equal(t, "nope", revertErr.Reason)
	})
}
