package types

import "math/big"

// NativeTransferGas is the fixed gas cost of a plain value transfer on EVM chains.
const NativeTransferGas uint64 = 21000

// EVMCheckpoint carries the account and fee state an EVM transfer is bound to.
type EVMCheckpoint struct {
	Nonce    uint64   `json:"nonce"`
	GasPrice *big.Int `json:"gasPrice"`
	ChainID  *big.Int `json:"chainId"`
}
