// Package evmkit builds, deploys and authorizes against Solidity contracts
// from Go.
//
// It covers three independent jobs:
//   - compile Solidity source with a pinned solc into an Artifact
//   - deploy an Artifact synchronously and get a DeployedContract handle
//   - sign (nonce, counterparty, amount) authorizations that an on-chain
//     ecrecover verifier accepts
//
// # Compiling
//
//	compiler := evmkit.NewCompiler(evmkit.WithSolcVersion("0.8.24"), evmkit.WithOptimizer(200))
//	artifact, err := compiler.Compile(ctx, "contracts/Vault.sol", "Vault")
//
// Prebuilt Foundry or Hardhat artifacts can be read with LoadArtifact, and
// SaveArtifact writes one back in the Hardhat layout.
//
// # Deploying
//
// A Deployer sends through a Backend. NodeBackend uses accounts the node
// manages (Anvil, Hardhat, geth --dev); KeyedBackend signs locally.
//
//	backend, err := evmkit.Dial(ctx, "http://localhost:8545")
//	deployer := evmkit.NewDeployer(backend, evmkit.WithReceiptTimeout(time.Minute))
//	sender, err := deployer.DefaultSender(ctx)
//	vault, err := deployer.Deploy(ctx, artifact, sender, 3_000_000, owner)
//
//	out, err := vault.Call(ctx, "owner")
//	receipt, err := vault.Transact(ctx, sender, 0, nil, "pause")
//
// Constructor and method arguments are coerced to their ABI types first, so
// plain ints, decimal strings and hex addresses are accepted (see CoerceArgs).
// ParseValue reads wei amounts such as "0.9ether" for payable calls.
//
// # Signing
//
// The signed digest is
//
//	keccak256("\x19Ethereum Signed Message:\n32" ‖ keccak256(nonce ‖ counterparty ‖ amount))
//
// with nonce and amount as 32-byte big-endian words and counterparty as 20
// raw bytes, matching abi.encodePacked(uint256, address, uint256). Signatures
// are deterministic (RFC 6979) and always low-s. The recovery id convention
// must be chosen explicitly:
//
//	key, err := evmkit.HexToPrivateKey(os.Getenv("SIGNER_KEY"))
//	defer key.Destroy()
//	sig, err := evmkit.SignAuthorization(key, evmkit.RecoveryLegacy, nonce, recipient, amount)
//
//	sig.Hex()           // 65-byte r ‖ s ‖ v for verifiers taking `bytes signature`
//	sig.R, sig.S, sig.V // the triple for verifiers taking (v, r, s)
//
// # Errors
//
// Failures are typed: *CompilationError, *NotFoundError, *SubmissionError,
// *RevertError, *TimeoutError, *InvalidKeyError and *ArgumentError, plus the
// Err* sentinels. Use errors.As and errors.Is.
package evmkit
