package core

import (
	"encoding/json"

	"github.com/tolelom/procrastichain/crypto"
)

// Module identities. Each module owns an account whose address is derived
// from its name; nobody holds a private key for it, so only the module's own
// code can move its funds.
const (
	ModuleVault      = "vault"
	ModulePool       = "penalty_pool"
	ModuleTemptation = "temptation"
)

// ModuleAddress returns the account address of the named module.
func ModuleAddress(name string) string {
	return crypto.DomainHash("module", []byte(name))
}

// Receipt status values.
const (
	ReceiptOK     = "ok"
	ReceiptFailed = "failed"
)

// Receipt is the outcome of executing one transaction: either a result payload
// or a protocol error code.
type Receipt struct {
	TxID        string          `json:"tx_id"`
	Type        TxType          `json:"type"`
	From        string          `json:"from"`
	BlockHeight int64           `json:"block_height"`
	Status      string          `json:"status"`
	Code        uint32          `json:"code,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}
