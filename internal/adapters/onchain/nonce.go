package onchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// NonceClient implements ports.ChainNonceProvider over a Polygon RPC
// endpoint. It is deliberately minimal next to MergeClient: the insider
// scorer only ever reads a transaction count, never signs or sends.
type NonceClient struct {
	client *ethclient.Client
}

// NewNonceClient dials rpcURL and returns a ready NonceClient.
func NewNonceClient(rpcURL string) (*NonceClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain: dial rpc %s: %w", rpcURL, err)
	}
	return &NonceClient{client: client}, nil
}

// NonceAt implements ports.ChainNonceProvider.
func (nc *NonceClient) NonceAt(ctx context.Context, address string) (int64, error) {
	nonce, err := nc.client.NonceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, fmt.Errorf("onchain: nonce at %s: %w", address, err)
	}
	return int64(nonce), nil
}
