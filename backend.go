package evmkit

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// TxRequest is an unsigned transaction as the caller describes it. A nil To
// creates a contract. Zero Gas lets the backend estimate it.
type TxRequest struct {
	From  common.Address
	To    *common.Address
	Gas   uint64
	Value *big.Int
	Data  []byte
}

// Backend is the chain capability the deployer and contract handles consume.
// Nonce management and signing are the backend's concern.
type Backend interface {
	// Accounts lists the addresses the backend can send from.
	Accounts(ctx context.Context) ([]common.Address, error)

	// SendTransaction submits req and returns its hash without waiting.
	SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error)

	// TransactionReceipt returns ethereum.NotFound while the tx is pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// NodeBackend sends from accounts the node itself manages (unlocked dev
// accounts on Anvil, Hardhat or geth --dev) via eth_sendTransaction.
type NodeBackend struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

var _ Backend = (*NodeBackend)(nil)

// NewNodeBackend wraps an established RPC connection.
func NewNodeBackend(client *rpc.Client) *NodeBackend {
	return &NodeBackend{rpc: client, eth: ethclient.NewClient(client)}
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rawURL string) (*NodeBackend, error) {
	client, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("evmkit: dial %s: %w", rawURL, err)
	}
	return NewNodeBackend(client), nil
}

// Close closes the underlying connection.
func (b *NodeBackend) Close() {
	b.rpc.Close()
}

// Client exposes the ethclient for reads outside this package's scope.
func (b *NodeBackend) Client() *ethclient.Client {
	return b.eth
}

// Accounts calls eth_accounts.
func (b *NodeBackend) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := b.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// sendTxArgs is the eth_sendTransaction parameter object.
type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// SendTransaction calls eth_sendTransaction; the node signs and assigns the nonce.
func (b *NodeBackend) SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error) {
	args := sendTxArgs{From: req.From, To: req.To, Data: req.Data}
	if req.Gas > 0 {
		gas := hexutil.Uint64(req.Gas)
		args.Gas = &gas
	}
	if req.Value != nil {
		args.Value = (*hexutil.Big)(req.Value)
	}

	var hash common.Hash
	if err := b.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (b *NodeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return b.eth.TransactionReceipt(ctx, txHash)
}

func (b *NodeBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return b.eth.CodeAt(ctx, account, blockNumber)
}

func (b *NodeBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.eth.CallContract(ctx, call, blockNumber)
}

// KeyedClient is the subset of *ethclient.Client (and the go-ethereum
// simulated backend client) a KeyedBackend needs.
type KeyedClient interface {
	ethereum.ChainIDReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.GasPricer1559
	ethereum.TransactionSender
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// KeyedBackend signs locally with a single PrivateKey and broadcasts raw
// transactions. It reads the pending nonce per submission and does not queue;
// concurrent senders on the same key must coordinate themselves.
type KeyedBackend struct {
	client  KeyedClient
	key     *PrivateKey
	chainID *big.Int
	signer  types.Signer
}

var _ Backend = (*KeyedBackend)(nil)

// NewKeyedBackend binds key to client. The chain id is read once.
func NewKeyedBackend(ctx context.Context, client KeyedClient, key *PrivateKey) (*KeyedBackend, error) {
	if key.Destroyed() {
		return nil, &InvalidKeyError{Reason: "key destroyed"}
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("evmkit: get chain id: %w", err)
	}
	return &KeyedBackend{
		client:  client,
		key:     key,
		chainID: chainID,
		signer:  types.LatestSignerForChainID(chainID),
	}, nil
}

// ChainID returns the chain id the backend signs for.
func (b *KeyedBackend) ChainID() *big.Int {
	return new(big.Int).Set(b.chainID)
}

// Accounts returns the key's address.
func (b *KeyedBackend) Accounts(context.Context) ([]common.Address, error) {
	return []common.Address{b.key.Address()}, nil
}

// SendTransaction fills nonce and fees, signs and broadcasts. EIP-1559 fees
// are used when the head block has a base fee.
func (b *KeyedBackend) SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error) {
	if req.From != b.key.Address() {
		return common.Hash{}, fmt.Errorf("no key for account %s", req.From.Hex())
	}

	nonce, err := b.client.PendingNonceAt(ctx, req.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get nonce: %w", err)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gas := req.Gas
	if gas == 0 {
		gas, err = b.client.EstimateGas(ctx, ethereum.CallMsg{From: req.From, To: req.To, Value: value, Data: req.Data})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	head, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get head: %w", err)
	}

	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := b.client.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("suggest tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   b.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        req.To,
			Value:     value,
			Data:      req.Data,
		})
	} else {
		gasPrice, err := b.client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       req.To,
			Value:    value,
			Data:     req.Data,
		})
	}

	ecdsaKey, err := b.key.ecdsaKey()
	if err != nil {
		return common.Hash{}, err
	}
	signed, err := types.SignTx(tx, b.signer, ecdsaKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

func (b *KeyedBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return b.client.TransactionReceipt(ctx, txHash)
}

func (b *KeyedBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return b.client.CodeAt(ctx, account, blockNumber)
}

func (b *KeyedBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return b.client.CallContract(ctx, call, blockNumber)
}

// isNotFound reports a receipt that does not exist yet.
func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
