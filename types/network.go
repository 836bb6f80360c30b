package types

// Network represents supported blockchain networks
type Network string

const (
	// Solana clusters
	NetworkSolanaMainnet Network = "mainnet-beta"
	NetworkSolanaDevnet  Network = "devnet"  // testnet
	NetworkSolanaTestnet Network = "testnet" // testnet

	// EVM Networks
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet
	NetworkBaseSepolia Network = "base-sepolia" // testnet
	NetworkBase        Network = "base"
)

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainEVM    ChainFamily = "evm"
	ChainSolana ChainFamily = "solana"
)

// Helper functions for network classification
func (n Network) IsEVM() bool {
	return n == NetworkPolygon || n == NetworkPolygonAmoy || n == NetworkBaseSepolia || n == NetworkBase
}

func (n Network) IsSolana() bool {
	return n == NetworkSolanaMainnet || n == NetworkSolanaDevnet || n == NetworkSolanaTestnet
}

func (n Network) IsTestnet() bool {
	return n == NetworkPolygonAmoy || n == NetworkBaseSepolia || n == NetworkSolanaDevnet || n == NetworkSolanaTestnet
}

// Family returns the chain family of the network, or "" when unsupported.
func (n Network) Family() ChainFamily {
	switch {
	case n.IsSolana():
		return ChainSolana
	case n.IsEVM():
		return ChainEVM
	default:
		return ""
	}
}

// Decimals is the number of decimals of the network's native currency.
func (n Network) Decimals() int32 {
	if n.IsEVM() {
		return 18
	}
	return 9
}

// NativeSymbol is the ticker of the network's native currency.
func (n Network) NativeSymbol() string {
	switch n {
	case NetworkPolygon, NetworkPolygonAmoy:
		return "POL"
	case NetworkBase, NetworkBaseSepolia:
		return "ETH"
	default:
		return "SOL"
	}
}

// DefaultRPCURL returns the public RPC endpoint for the network.
func (n Network) DefaultRPCURL() string {
	switch n {
	case NetworkSolanaMainnet:
		return "https://api.mainnet-beta.solana.com"
	case NetworkSolanaDevnet:
		return "https://api.devnet.solana.com"
	case NetworkSolanaTestnet:
		return "https://api.testnet.solana.com"
	case NetworkPolygon:
		return "https://polygon-rpc.com"
	case NetworkPolygonAmoy:
		return "https://rpc-amoy.polygon.technology"
	case NetworkBase:
		return "https://mainnet.base.org"
	case NetworkBaseSepolia:
		return "https://sepolia.base.org"
	default:
		return ""
	}
}

func (n Network) String() string {
	return string(n)
}
