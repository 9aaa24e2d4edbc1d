package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/procrastichain/core"
	"github.com/tolelom/procrastichain/indexer"
	"github.com/tolelom/procrastichain/protocol"
)

// Handler holds all dependencies needed to serve RPC methods. Protocol reads
// are evaluated at the chain's current tick. The node hands it a committed
// view (storage.StateDB.Committed) so reads never include a block that is
// still executing.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	proto   *protocol.Protocol
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, proto *protocol.Protocol, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, proto: proto, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())
	case "getBlock":
		return h.getBlock(req)
	case "getBalance":
		return h.getBalance(req)
	case "sendTx":
		return h.sendTx(req)
	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())
	case "getReceipt":
		return h.getReceipt(req)

	// vault
	case "getLockedAmount":
		return h.getLockedAmount(req)
	case "getPosition":
		return h.getPosition(req)
	case "getCurrentBonus":
		return h.getCurrentBonus(req)

	// streak
	case "getStreakBlocks":
		return h.getStreak(req, false)
	case "getStreakDays":
		return h.getStreak(req, true)

	// pool and temptations
	case "getPoolBalance":
		return h.getPoolBalance(req)
	case "getCurrentTemptation":
		return h.getCurrentTemptation(req)
	case "getTemptationClaims":
		return h.getTemptationClaims(req)

	case "getLeaderboard":
		return h.getLeaderboard(req)

	// achievements
	case "getBadges":
		return okResponse(req.ID, h.proto.Achievements.Badges())
	case "getOwner":
		return h.getOwner(req)
	case "getTokenURI":
		return h.getTokenURI(req)
	case "hasBadge":
		return h.hasBadge(req)
	case "getTokensByOwner":
		return h.getTokensByOwner(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// parseParams decodes req.Params into v. Missing params decode as {}.
func parseParams(req Request, v any) *Response {
	raw := req.Params
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		return &resp
	}
	return nil
}

type addressParams struct {
	Address string `json:"address"`
}

func (h *Handler) address(req Request) (string, *Response) {
	var params addressParams
	if resp := parseParams(req, &params); resp != nil {
		return "", resp
	}
	if params.Address == "" {
		resp := errResponse(req.ID, CodeInvalidParams, "address is required")
		return "", &resp
	}
	return params.Address, nil
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if resp := parseParams(req, &params); resp != nil {
		return *resp
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	acc, err := h.state.GetAccount(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": addr, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		code := CodeInvalidParams
		if errors.Is(err, core.ErrMempoolFull) {
			code = CodeInternalError
		}
		return errResponse(req.ID, code, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if resp := parseParams(req, &params); resp != nil {
		return *resp
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	r, err := h.indexer.GetReceipt(params.TxID)
	if errors.Is(err, core.ErrNotFound) {
		return errResponse(req.ID, CodeInvalidParams, "receipt not found")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, r)
}

func (h *Handler) getLockedAmount(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	amount, err := h.proto.Vault.GetLockedAmount(h.state, addr)
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, amount)
}

func (h *Handler) getPosition(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	pos, err := h.proto.Vault.GetPosition(h.state, addr)
	if err != nil {
		return errFromErr(req.ID, err)
	}
	pos.Owner = addr
	return okResponse(req.ID, pos)
}

func (h *Handler) getCurrentBonus(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	bonus, err := h.proto.Vault.GetCurrentBonus(h.state, addr, h.bc.CurrentTick())
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, bonus)
}

func (h *Handler) getStreak(req Request, days bool) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	tick := h.bc.CurrentTick()
	var (
		n   int64
		err error
	)
	if days {
		n, err = h.proto.Streak.GetDays(h.state, addr, tick)
	} else {
		n, err = h.proto.Streak.GetBlocks(h.state, addr, tick)
	}
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, n)
}

func (h *Handler) getPoolBalance(req Request) Response {
	bal, err := h.proto.Pool.GetBalance(h.state)
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, bal)
}

func (h *Handler) getCurrentTemptation(req Request) Response {
	var params struct {
		Tick *int64 `json:"tick"`
	}
	if resp := parseParams(req, &params); resp != nil {
		return *resp
	}
	tick := h.bc.CurrentTick()
	if params.Tick != nil {
		tick = *params.Tick
	}
	t, err := h.proto.Temptation.GetCurrentTemptation(tick)
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, t)
}

func (h *Handler) getTemptationClaims(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	recs, err := h.indexer.GetTemptationClaims(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, recs)
}

func (h *Handler) getLeaderboard(req Request) Response {
	rows, err := h.proto.Leaderboard.GetLeaderboard(h.state)
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, rows)
}

type tokenParams struct {
	TokenID uint64 `json:"token_id"`
}

func (h *Handler) getOwner(req Request) Response {
	var params tokenParams
	if resp := parseParams(req, &params); resp != nil {
		return *resp
	}
	owner, ok, err := h.proto.Achievements.GetOwner(h.state, params.TokenID)
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"token_id": params.TokenID, "exists": ok, "owner": owner})
}

func (h *Handler) getTokenURI(req Request) Response {
	var params tokenParams
	if resp := parseParams(req, &params); resp != nil {
		return *resp
	}
	uri, ok, err := h.proto.Achievements.GetTokenURI(h.state, params.TokenID)
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"token_id": params.TokenID, "exists": ok, "uri": uri})
}

func (h *Handler) hasBadge(req Request) Response {
	var params struct {
		Address string `json:"address"`
		BadgeID uint64 `json:"badge_id"`
	}
	if resp := parseParams(req, &params); resp != nil {
		return *resp
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	has, err := h.proto.Achievements.HasBadge(h.state, params.Address, params.BadgeID)
	if err != nil {
		return errFromErr(req.ID, err)
	}
	return okResponse(req.ID, has)
}

func (h *Handler) getTokensByOwner(req Request) Response {
	addr, resp := h.address(req)
	if resp != nil {
		return *resp
	}
	ids, err := h.indexer.GetTokensByOwner(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}
