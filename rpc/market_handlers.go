package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"relicmarket/core"
	"relicmarket/core/types"
	"relicmarket/crypto"
	"relicmarket/native/market"
)

type transactionParam struct {
	Command          string  `json:"command"`
	From             string  `json:"from"`
	Nonce            *uint64 `json:"nonce,omitempty"`
	Seller           string  `json:"seller,omitempty"`
	Creator          string  `json:"creator,omitempty"`
	ItemID           uint64  `json:"itemId,omitempty"`
	Price            uint64  `json:"price,omitempty"`
	Amount           uint64  `json:"amount,omitempty"`
	RoyaltyRateMilli uint64  `json:"royaltyRateMilli,omitempty"`
	WaitingRounds    uint64  `json:"waitingRounds,omitempty"`
}

type addressParam struct {
	Address string `json:"address"`
	ItemID  uint64 `json:"itemId,omitempty"`
}

type sellerParam struct {
	Seller string `json:"seller"`
}

type ListingResult struct {
	Creator          string `json:"creator"`
	ItemID           uint64 `json:"itemId"`
	RoyaltyRateMilli uint64 `json:"royaltyRateMilli"`
	WaitingRounds    uint64 `json:"waitingRounds"`
	CollectedFees    uint64 `json:"collectedFees"`
}

type SaleResult struct {
	Seller      string `json:"seller"`
	Price       uint64 `json:"price"`
	Committed   bool   `json:"committed"`
	Buyer       string `json:"buyer,omitempty"`
	CommitRound uint64 `json:"commitRound,omitempty"`
}

type BalanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type ItemBalanceResult struct {
	Address string `json:"address"`
	ItemID  uint64 `json:"itemId"`
	Balance uint64 `json:"balance"`
}

type SendTransactionResult struct {
	TxHash string `json:"txHash"`
}

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.RelicPrefix, addr).String()
}

func parseAddr(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Bytes(), nil
}

func firstParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return fmt.Errorf("parameter object required")
	}
	return json.Unmarshal(req.Params[0], out)
}

func buildTransaction(param *transactionParam) (*types.Transaction, error) {
	from, err := parseAddr(param.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	switch param.Command {
	case "initialize":
		creator := from
		if param.Creator != "" {
			if creator, err = parseAddr(param.Creator); err != nil {
				return nil, fmt.Errorf("invalid creator address: %w", err)
			}
		}
		return core.NewInitializeTx(from, creator, param.ItemID, param.RoyaltyRateMilli, param.WaitingRounds)
	case "offer":
		return core.NewOfferTx(from, param.Price)
	case "commit":
		seller, err := parseAddr(param.Seller)
		if err != nil {
			return nil, fmt.Errorf("invalid seller address: %w", err)
		}
		return core.NewCommitTx(from, seller, param.ItemID, param.Amount)
	case "finalize":
		seller, err := parseAddr(param.Seller)
		if err != nil {
			return nil, fmt.Errorf("invalid seller address: %w", err)
		}
		return core.NewFinalizeTx(from, seller), nil
	case "refund":
		seller, err := parseAddr(param.Seller)
		if err != nil {
			return nil, fmt.Errorf("invalid seller address: %w", err)
		}
		return core.NewRefundTx(from, seller), nil
	case "claimFees":
		return core.NewClaimFeesTx(from), nil
	default:
		return nil, fmt.Errorf("unknown command %q", param.Command)
	}
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	now := time.Now()
	if !s.allowSource(clientSource(r), now) {
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "transaction rate limit exceeded", nil)
		return
	}

	var param transactionParam
	if err := firstParam(req, &param); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction parameter", err.Error())
		return
	}

	tx, err := buildTransaction(&param)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}

	// Stamp the sender nonce so every distinct submission hashes
	// differently. An explicit nonce below the account's current value has
	// already been consumed by a committed command.
	account, err := s.node.GetAccount(tx.From)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load sender account", err.Error())
		return
	}
	tx.Nonce = account.Nonce
	if param.Nonce != nil {
		if *param.Nonce < account.Nonce {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams,
				fmt.Sprintf("nonce %d has already been used; current account nonce is %d", *param.Nonce, account.Nonce), nil)
			return
		}
		tx.Nonce = *param.Nonce
	}

	hashBytes, err := tx.Hash()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to hash transaction", err.Error())
		return
	}
	hash := hex.EncodeToString(hashBytes)
	if !s.rememberTx(hash, now) {
		writeError(w, http.StatusConflict, req.ID, codeDuplicateTx, "transaction already submitted", hash)
		return
	}

	if err := s.node.SubmitTransaction(tx); err != nil {
		writeError(w, http.StatusUnprocessableEntity, req.ID, marketErrorCode(err), err.Error(), nil)
		return
	}
	writeResult(w, req.ID, &SendTransactionResult{TxHash: hash})
}

// marketErrorCode keeps envelope and argument problems distinguishable from
// state-dependent rejections on the wire.
func marketErrorCode(err error) int {
	switch {
	case errors.Is(err, market.ErrMalformedRequest), errors.Is(err, market.ErrUnsafeEnvelope), errors.Is(err, market.ErrInvalidAmount):
		return codeInvalidParams
	default:
		return codeServerError
	}
}

func (s *Server) handleAdvanceRound(w http.ResponseWriter, req *RPCRequest) {
	round, err := s.node.AdvanceRound()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to advance round", err.Error())
		return
	}
	writeResult(w, req.ID, round)
}

func (s *Server) handleGetListing(w http.ResponseWriter, req *RPCRequest) {
	listing, ok, err := s.node.GetListing()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load market record", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "market not initialized", nil)
		return
	}
	writeResult(w, req.ID, &ListingResult{
		Creator:          formatAddr(listing.Creator),
		ItemID:           listing.ItemID,
		RoyaltyRateMilli: listing.RoyaltyRateMilli,
		WaitingRounds:    listing.WaitingRounds,
		CollectedFees:    listing.CollectedFees,
	})
}

func (s *Server) handleGetSale(w http.ResponseWriter, req *RPCRequest) {
	var param sellerParam
	if err := firstParam(req, &param); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "seller parameter required", err.Error())
		return
	}
	seller, err := parseAddr(param.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid seller address", err.Error())
		return
	}
	sale, ok, err := s.node.GetSale(seller)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load sale record", err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "no active sale for seller", nil)
		return
	}
	result := &SaleResult{
		Seller:    formatAddr(sale.Seller),
		Price:     sale.Price,
		Committed: sale.Committed(),
	}
	if sale.Committed() {
		result.Buyer = formatAddr(sale.Buyer)
		result.CommitRound = sale.CommitRound
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var param addressParam
	if err := firstParam(req, &param); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address parameter required", err.Error())
		return
	}
	addr, err := parseAddr(param.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, &BalanceResult{
		Address: formatAddr(addr),
		Balance: account.Balance,
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleGetItemBalance(w http.ResponseWriter, req *RPCRequest) {
	var param addressParam
	if err := firstParam(req, &param); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address parameter required", err.Error())
		return
	}
	addr, err := parseAddr(param.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	balance, err := s.node.ItemBalance(addr, param.ItemID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load holding", err.Error())
		return
	}
	writeResult(w, req.ID, &ItemBalanceResult{
		Address: formatAddr(addr),
		ItemID:  param.ItemID,
		Balance: balance,
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.node.Events())
}

func (s *Server) handleVaultAddress(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, formatAddr(s.node.VaultAddress()))
}
