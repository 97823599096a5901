// Package dex implements the AMM venue client: pool reserve reads, swap
// quotes, and signed swap transactions over an Ethereum JSON-RPC endpoint.
package dex

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sable-labs/crossarb/internal/domain"
)

const venueName = "dex"

// Contract ABIs for the constant-product pair, the router, and ERC-20
// balance reads. Only the fragments the client calls are declared.
const (
	pairABIJSON = `[
		{"name":"getReserves","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]},
		{"name":"token0","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
	]`
	routerABIJSON = `[
		{"name":"getAmountsOut","type":"function","stateMutability":"view","inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
		{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}
	]`
	erc20ABIJSON = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`
)

// receiptPollInterval is how often Swap polls for the transaction receipt.
const receiptPollInterval = 2 * time.Second

// HexAddress parses a hex contract address for ClientConfig fields.
func HexAddress(s string) common.Address { return common.HexToAddress(s) }

// Token describes one side of the pair on chain.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
}

// ClientConfig configures the DEX client.
type ClientConfig struct {
	RPCURL      string
	ChainID     int64
	Router      string
	Pair        string
	Base        Token
	Quote       Token
	GasAsset    string
	PrivateKey  *ecdsa.PrivateKey // nil in monitoring mode
	SwapTimeout time.Duration
}

// Client talks to the AMM through an Ethereum RPC endpoint.
type Client struct {
	eth         *ethclient.Client
	chainID     *big.Int
	key         *ecdsa.PrivateKey
	wallet      common.Address
	router      common.Address
	pair        common.Address
	base        Token
	quote       Token
	gasAsset    string
	pairABI     abi.ABI
	routerABI   abi.ABI
	erc20ABI    abi.ABI
	swapTimeout time.Duration
}

// NewClient dials the RPC endpoint and prepares the contract bindings.
func NewClient(cfg ClientConfig) (*Client, error) {
	eth, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dex: dial rpc: %w", err)
	}

	pairABI, err := abi.JSON(strings.NewReader(pairABIJSON))
	if err != nil {
		return nil, fmt.Errorf("dex: parse pair abi: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("dex: parse router abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("dex: parse erc20 abi: %w", err)
	}

	c := &Client{
		eth:         eth,
		chainID:     big.NewInt(cfg.ChainID),
		key:         cfg.PrivateKey,
		router:      common.HexToAddress(cfg.Router),
		pair:        common.HexToAddress(cfg.Pair),
		base:        cfg.Base,
		quote:       cfg.Quote,
		gasAsset:    cfg.GasAsset,
		pairABI:     pairABI,
		routerABI:   routerABI,
		erc20ABI:    erc20ABI,
		swapTimeout: cfg.SwapTimeout,
	}
	if c.swapTimeout <= 0 {
		c.swapTimeout = 2 * time.Minute
	}
	if cfg.PrivateKey != nil {
		c.wallet = ethcrypto.PubkeyToAddress(cfg.PrivateKey.PublicKey)
	}
	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// Wallet returns the swap wallet address (zero address in monitoring mode).
func (c *Client) Wallet() common.Address { return c.wallet }

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// GetReserves returns the pool's base and quote reserves adjusted for token
// decimals.
func (c *Client) GetReserves(ctx context.Context) (float64, float64, error) {
	out, err := c.call(ctx, c.pair, c.pairABI, "getReserves")
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_reserves", err)
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return 0, 0, domain.NewVenueError(venueName, "get_reserves", fmt.Errorf("unexpected output types"))
	}

	t0, err := c.call(ctx, c.pair, c.pairABI, "token0")
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "get_reserves", err)
	}
	token0, ok := t0[0].(common.Address)
	if !ok {
		return 0, 0, domain.NewVenueError(venueName, "get_reserves", fmt.Errorf("unexpected token0 type"))
	}

	// The pair orders reserves by token address; map them back to base/quote.
	if token0 == c.base.Address {
		return fromUnits(reserve0, c.base.Decimals), fromUnits(reserve1, c.quote.Decimals), nil
	}
	return fromUnits(reserve1, c.base.Decimals), fromUnits(reserve0, c.quote.Decimals), nil
}

// Quote returns the router's expected output for swapping amountIn of
// tokenIn, and the slippage-bounded minimum output. slippage is a
// percentage, e.g. 0.5 for 0.5%.
func (c *Client) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn, slippage float64) (float64, float64, error) {
	in, err := c.token(tokenIn)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "quote", err)
	}
	outTok, err := c.token(tokenOut)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "quote", err)
	}

	path := []common.Address{in.Address, outTok.Address}
	out, err := c.call(ctx, c.router, c.routerABI, "getAmountsOut", toUnits(amountIn, in.Decimals), path)
	if err != nil {
		return 0, 0, domain.NewVenueError(venueName, "quote", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return 0, 0, domain.NewVenueError(venueName, "quote", fmt.Errorf("unexpected amounts output"))
	}

	expected := fromUnits(amounts[len(amounts)-1], outTok.Decimals)
	minOut := expected * (1 - slippage/100)
	return expected, minOut, nil
}

// GetBalance returns the wallet's balance of a token. An empty string or the
// gas-asset symbol returns the native balance.
func (c *Client) GetBalance(ctx context.Context, token string) (float64, error) {
	if token == "" || strings.EqualFold(token, c.gasAsset) {
		wei, err := c.eth.BalanceAt(ctx, c.wallet, nil)
		if err != nil {
			return 0, domain.NewVenueError(venueName, "get_balance", err)
		}
		return fromUnits(wei, 18), nil
	}

	tok, err := c.token(token)
	if err != nil {
		return 0, domain.NewVenueError(venueName, "get_balance", err)
	}
	out, err := c.call(ctx, tok.Address, c.erc20ABI, "balanceOf", c.wallet)
	if err != nil {
		return 0, domain.NewVenueError(venueName, "get_balance", err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return 0, domain.NewVenueError(venueName, "get_balance", fmt.Errorf("unexpected balance type"))
	}
	return fromUnits(bal, tok.Decimals), nil
}

// --------------------------------------------------------------------------
// Swap
// --------------------------------------------------------------------------

// Swap executes swapExactTokensForTokens with the given minimum-out bound
// and waits for the transaction receipt.
func (c *Client) Swap(ctx context.Context, tokenIn, tokenOut string, amountIn, minOut float64) (domain.SwapResult, error) {
	if c.key == nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", fmt.Errorf("no signing key configured"))
	}

	in, err := c.token(tokenIn)
	if err != nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", err)
	}
	outTok, err := c.token(tokenOut)
	if err != nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", err)
	}

	deadline := big.NewInt(time.Now().Add(5 * time.Minute).Unix())
	path := []common.Address{in.Address, outTok.Address}
	calldata, err := c.routerABI.Pack("swapExactTokensForTokens",
		toUnits(amountIn, in.Decimals),
		toUnits(minOut, outTok.Decimals),
		path,
		c.wallet,
		deadline,
	)
	if err != nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", fmt.Errorf("pack calldata: %w", err))
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.wallet)
	if err != nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", fmt.Errorf("nonce: %w", err))
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", fmt.Errorf("gas price: %w", err))
	}
	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.wallet,
		To:   &c.router,
		Data: calldata,
	})
	if err != nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", fmt.Errorf("estimate gas: %w", err))
	}

	tx := types.NewTransaction(nonce, c.router, big.NewInt(0), gasLimit, gasPrice, calldata)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", fmt.Errorf("sign: %w", err))
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return domain.SwapResult{}, domain.NewVenueError(venueName, "swap", fmt.Errorf("send: %w", err))
	}

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return domain.SwapResult{TxHash: signed.Hash().Hex()}, domain.NewVenueError(venueName, "swap", err)
	}

	gasUsedNative := fromUnits(new(big.Int).Mul(big.NewInt(int64(receipt.GasUsed)), gasPrice), 18)
	result := domain.SwapResult{
		TxHash:  signed.Hash().Hex(),
		GasUsed: gasUsedNative,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if !result.Success {
		return result, domain.NewVenueError(venueName, "swap", fmt.Errorf("transaction %s reverted", result.TxHash))
	}

	// The realized output is the sum of tokenOut Transfer events credited to
	// the wallet in the receipt logs, not the router's estimate. minOut is
	// the guaranteed lower bound when the logs carry no transfer.
	result.AmountOut = minOut
	if out, ok := transferredTo(receipt, outTok.Address, c.wallet, outTok.Decimals); ok {
		result.AmountOut = out
	}
	return result, nil
}

// transferEventSig is keccak256("Transfer(address,address,uint256)").
var transferEventSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// transferredTo sums the token's Transfer amounts credited to recipient in
// the receipt logs.
func transferredTo(receipt *types.Receipt, token, recipient common.Address, decimals int) (float64, bool) {
	total := new(big.Int)
	found := false
	for _, lg := range receipt.Logs {
		if lg.Address != token || len(lg.Topics) != 3 || lg.Topics[0] != transferEventSig {
			continue
		}
		if common.BytesToAddress(lg.Topics[2].Bytes()) != recipient {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(lg.Data))
		found = true
	}
	if !found {
		return 0, false
	}
	return fromUnits(total, decimals), true
}

// waitMined polls for the transaction receipt until the swap timeout.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.swapTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: receipt for %s", domain.ErrExecutionTimeout, hash.Hex())
		case <-ticker.C:
		}
	}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// call performs a read-only contract call and unpacks the outputs.
func (c *Client) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	calldata, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// token resolves a symbol to its on-chain token description.
func (c *Client) token(symbol string) (Token, error) {
	switch {
	case strings.EqualFold(symbol, c.base.Symbol):
		return c.base, nil
	case strings.EqualFold(symbol, c.quote.Symbol):
		return c.quote, nil
	}
	return Token{}, fmt.Errorf("unknown token %q", symbol)
}

// toUnits converts a float amount to integer token units.
func toUnits(amount float64, decimals int) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(math.Pow10(decimals)))
	out, _ := f.Int(nil)
	return out
}

// fromUnits converts integer token units to a float amount.
func fromUnits(units *big.Int, decimals int) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(units), big.NewFloat(math.Pow10(decimals)))
	out, _ := f.Float64()
	return out
}

// Compile-time interface check.
var _ domain.DEXClient = (*Client)(nil)
