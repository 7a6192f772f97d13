package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Reader performs eth_call reads pinned to a block height.
type Reader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// LogSource is the node surface used by the log runner.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

const (
	// maxCachedTimestamps bounds the timestamp cache; the runner walks blocks
	// forward so older entries are not read again.
	maxCachedTimestamps = 50_000
	// headerBatchSize caps the eth_getBlockByNumber calls sent in one batch.
	headerBatchSize = 100
)

// Client wraps go-ethereum RPC for log scans and historical contract reads.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

var (
	_ Reader    = (*Client)(nil)
	_ LogSource = (*Client)(nil)
)

// NewClient dials the RPC URL. Historical reads need an archive node.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// BlockTimestamps returns timestamps for the given blocks. Cached blocks are
// served from memory; the rest are fetched with batched header requests.
func (c *Client) BlockTimestamps(ctx context.Context, numbers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(numbers))
	missing := make([]uint64, 0, len(numbers))
	queued := make(map[uint64]struct{}, len(numbers))

	c.mu.RLock()
	for _, n := range numbers {
		if ts, ok := c.tsCache[n]; ok {
			out[n] = ts
			continue
		}
		if _, ok := queued[n]; !ok {
			queued[n] = struct{}{}
			missing = append(missing, n)
		}
	}
	c.mu.RUnlock()

	for start := 0; start < len(missing); start += headerBatchSize {
		end := start + headerBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		if err := c.fetchHeaders(ctx, missing[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type headerTime struct {
	Time hexutil.Uint64 `json:"timestamp"`
}

func (c *Client) fetchHeaders(ctx context.Context, numbers []uint64, out map[uint64]uint64) error {
	headers := make([]*headerTime, len(numbers))
	batch := make([]rpc.BatchElem, len(numbers))
	for i, n := range numbers {
		headers[i] = new(headerTime)
		batch[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{hexutil.EncodeUint64(n), false},
			Result: headers[i],
		}
	}
	if err := c.rpcClient.BatchCallContext(ctx, batch); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tsCache)+len(numbers) > maxCachedTimestamps {
		c.tsCache = make(map[uint64]uint64)
	}
	for i, n := range numbers {
		if batch[i].Error != nil {
			return fmt.Errorf("header %d: %w", n, batch[i].Error)
		}
		ts := uint64(headers[i].Time)
		if ts == 0 {
			return fmt.Errorf("header %d: block not found", n)
		}
		c.tsCache[n] = ts
		out[n] = ts
	}
	return nil
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// CallContract performs an eth_call at blockNumber; nil means latest.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
