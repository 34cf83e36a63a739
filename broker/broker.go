// Package broker defines the surface the core needs from a broker connection
// and provides an in-memory paper implementation for standalone runs.
package broker

import "quantumfx/types"

// Broker is the external collaborator interface: symbol metadata, account
// snapshots, margin estimation and order submission.
type Broker interface {
	SymbolInfo(symbol string) (types.SymbolInfo, error)
	Account() (types.AccountInfo, error)
	RequiredMargin(symbol string, volume, price float64) (float64, error)
	Submit(o types.Order) error
	OpenPositions() int
	Position(symbol string) (volume, avgPrice float64)
}
