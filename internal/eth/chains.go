package eth

import "strings"

// Chain is a canonical blockchain network. Wallets are known to misreport
// the network name while the numeric chain ID stays correct, so the ID is
// authoritative and the reported name is only a fallback.
type Chain struct {
	ID      uint64
	Name    string
	Testnet bool
}

var chainsByID = map[uint64]Chain{
	1:        {ID: 1, Name: "mainnet"},
	10:       {ID: 10, Name: "optimism"},
	56:       {ID: 56, Name: "bsc"},
	137:      {ID: 137, Name: "polygon"},
	8453:     {ID: 8453, Name: "base"},
	42161:    {ID: 42161, Name: "arbitrum"},
	43114:    {ID: 43114, Name: "avalanche"},
	11155111: {ID: 11155111, Name: "sepolia", Testnet: true},
	17000:    {ID: 17000, Name: "holesky", Testnet: true},
	80002:    {ID: 80002, Name: "amoy", Testnet: true},
}

var chainAliases = map[string]uint64{
	"mainnet":   1,
	"ethereum":  1,
	"eth":       1,
	"homestead": 1,
	"optimism":  10,
	"bsc":       56,
	"binance":   56,
	"polygon":   137,
	"matic":     137,
	"base":      8453,
	"arbitrum":  42161,
	"avalanche": 43114,
	"sepolia":   11155111,
	"holesky":   17000,
	"amoy":      80002,
}

// NormalizeChain resolves the canonical chain for a wallet-reported
// (chainID, network name) pair. The numeric ID wins whenever it is known;
// the name is consulted only when the ID is zero or unrecognized. A fully
// unrecognized pair falls back to mainnet, matching what most wallets
// actually connect to when they misreport.
func NormalizeChain(chainID uint64, reported string) Chain {
	if c, ok := chainsByID[chainID]; ok {
		return c
	}
	if id, ok := chainAliases[strings.ToLower(strings.TrimSpace(reported))]; ok {
		return chainsByID[id]
	}
	if chainID != 0 {
		// Unknown but explicit ID, keep it rather than guessing.
		return Chain{ID: chainID, Name: "unknown"}
	}
	return chainsByID[1]
}
