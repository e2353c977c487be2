package routes

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"epkfarm/crypto"
	"epkfarm/gateway/middleware"
	"epkfarm/native/farm"
	"epkfarm/services/eventindex"
)

// FarmService is the node surface the HTTP routes drive.
type FarmService interface {
	StakeToken() string
	RewardToken() string
	FarmAddress() crypto.Address
	Pool(ctx context.Context) (*farm.Pool, uint64, error)
	StakerInfo(ctx context.Context, addr crypto.Address) (*farm.Staker, uint64, error)
	TokenBalance(ctx context.Context, symbol string, addr crypto.Address) (*big.Int, error)
	Allowance(ctx context.Context, symbol string, owner, spender crypto.Address) (*big.Int, error)
	IncreaseJackpot(ctx context.Context, funder crypto.Address, amount *big.Int, endBlock uint64) (*farm.Pool, uint64, error)
	Stake(ctx context.Context, caller crypto.Address, amount *big.Int) (*farm.Staker, uint64, error)
	Unstake(ctx context.Context, caller crypto.Address) (*big.Int, error)
	Harvest(ctx context.Context, caller crypto.Address) (*big.Int, error)
	Approve(ctx context.Context, symbol string, owner, spender crypto.Address, amount *big.Int) error
}

// EventHistory serves GET /v1/farm/events.
type EventHistory interface {
	Query(ctx context.Context, q eventindex.Query) ([]eventindex.Entry, error)
}

type PoolResponse struct {
	Height              uint64 `json:"height"`
	StakeToken          string `json:"stakeToken"`
	RewardToken         string `json:"rewardToken"`
	FarmAddress         string `json:"farmAddress"`
	GlobalRewardBalance string `json:"globalRewardBalance"`
	GlobalStakeBalance  string `json:"globalStakeBalance"`
	BlockReward         string `json:"blockReward"`
	EndBlock            uint64 `json:"endBlock"`
	LastUpdateBlock     uint64 `json:"lastUpdateBlock"`
	AccRewardPerShare   string `json:"accRewardPerShare"`
	Unallocated         string `json:"unallocated"`
}

type AccountResponse struct {
	Height         uint64 `json:"height"`
	Address        string `json:"address"`
	Staked         string `json:"staked"`
	Pending        string `json:"pending"`
	RewardSnapshot string `json:"rewardSnapshot"`
}

type BalanceResponse struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type AmountRequest struct {
	Amount string `json:"amount"`
}

type JackpotRequest struct {
	Amount   string `json:"amount"`
	EndBlock uint64 `json:"endBlock"`
}

type ApproveRequest struct {
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

type AmountResponse struct {
	Amount string `json:"amount"`
}

type farmRoutes struct {
	node    FarmService
	history EventHistory
	auth    *middleware.Authenticator
	timeout time.Duration
}

func (fr *farmRoutes) mount(r chi.Router) {
	r.Get("/pool", fr.getPool)
	r.Get("/accounts/{addr}", fr.getAccount)
	r.Get("/tokens/{symbol}/balances/{addr}", fr.getBalance)
	r.Get("/events", fr.listEvents)

	r.Group(func(wr chi.Router) {
		if fr.auth != nil {
			wr.Use(fr.auth.Middleware())
		}
		wr.Post("/stake", fr.stake)
		wr.Post("/unstake", fr.unstake)
		wr.Post("/harvest", fr.harvest)
		wr.Post("/jackpot", fr.jackpot)
		wr.Post("/tokens/{symbol}/approve", fr.approve)
	})
}

func (fr *farmRoutes) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := fr.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

func (fr *farmRoutes) getPool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := fr.context(r.Context())
	defer cancel()

	pool, height, err := fr.node.Pool(ctx)
	if err != nil {
		writeFarmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fr.poolResponse(pool, height))
}

func (fr *farmRoutes) getAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := fr.context(r.Context())
	defer cancel()

	staker, height, err := fr.node.StakerInfo(ctx, addr)
	if err != nil {
		writeFarmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fr.accountResponse(addr, staker, height))
}

func (fr *farmRoutes) getBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	ctx, cancel := fr.context(r.Context())
	defer cancel()

	balance, err := fr.node.TokenBalance(ctx, symbol, addr)
	if err != nil {
		writeFarmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Address: addr.String(), Token: symbol, Balance: amountString(balance)})
}

func (fr *farmRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	if fr.history == nil {
		writeJSONError(w, http.StatusNotImplemented, errors.New("event index disabled"))
		return
	}
	query := r.URL.Query()
	q := eventindex.Query{
		Account: query.Get("account"),
		Type:    query.Get("type"),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeBadRequest(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		q.Limit = limit
	}
	if raw := query.Get("before"); raw != "" {
		before, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid before %q", raw))
			return
		}
		q.Before = before
	}
	ctx, cancel := fr.context(r.Context())
	defer cancel()

	entries, err := fr.history.Query(ctx, q)
	if err != nil {
		writeFarmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": entries})
}

func (fr *farmRoutes) stake(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("caller not identified"))
		return
	}
	var req AmountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := fr.context(r.Context())
	defer cancel()

	staker, height, err := fr.node.Stake(ctx, caller, amount)
	if err != nil {
		writeFarmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fr.accountResponse(caller, staker, height))
}

func (fr *farmRoutes) unstake(w http.ResponseWriter, r *http.Request) {
	fr.payout(w, r, fr.node.Unstake)
}

func (fr *farmRoutes) harvest(w http.ResponseWriter, r *http.Request) {
	fr.payout(w, r, fr.node.Harvest)
}

func (fr *farmRoutes) payout(w http.ResponseWriter, r *http.Request, op func(context.Context, crypto.Address) (*big.Int, error)) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("caller not identified"))
		return
	}
	ctx, cancel := fr.context(r.Context())
	defer cancel()

	amount, err := op(ctx, caller)
	if err != nil {
		writeFarmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Amount: amountString(amount)})
}

func (fr *farmRoutes) jackpot(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("caller not identified"))
		return
	}
	var req JackpotRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ctx, cancel := fr.context(r.Context())
	defer cancel()

	pool, height, err := fr.node.IncreaseJackpot(ctx, caller, amount, req.EndBlock)
	if err != nil {
		writeFarmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fr.poolResponse(pool, height))
}

func (fr *farmRoutes) approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, errors.New("caller not identified"))
		return
	}
	var req ApproveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	spender := fr.node.FarmAddress()
	if strings.TrimSpace(req.Spender) != "" {
		decoded, err := crypto.DecodeAddress(strings.TrimSpace(req.Spender))
		if err != nil {
			writeBadRequest(w, fmt.Errorf("invalid spender: %w", err))
			return
		}
		spender = decoded
	}
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	ctx, cancel := fr.context(r.Context())
	defer cancel()

	if err := fr.node.Approve(ctx, symbol, caller, spender, amount); err != nil {
		writeFarmError(w, err)
		return
	}
	allowance, err := fr.node.Allowance(ctx, symbol, caller, spender)
	if err != nil {
		writeFarmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Amount: amountString(allowance)})
}

func (fr *farmRoutes) poolResponse(pool *farm.Pool, height uint64) PoolResponse {
	return PoolResponse{
		Height:              height,
		StakeToken:          fr.node.StakeToken(),
		RewardToken:         fr.node.RewardToken(),
		FarmAddress:         fr.node.FarmAddress().String(),
		GlobalRewardBalance: amountString(pool.GlobalRewardBalance),
		GlobalStakeBalance:  amountString(pool.GlobalStakeBalance),
		BlockReward:         amountString(pool.BlockReward),
		EndBlock:            pool.EndBlock,
		LastUpdateBlock:     pool.LastUpdateBlock,
		AccRewardPerShare:   amountString(pool.AccRewardPerShare),
		Unallocated:         amountString(pool.Unallocated),
	}
}

func (fr *farmRoutes) accountResponse(addr crypto.Address, staker *farm.Staker, height uint64) AccountResponse {
	return AccountResponse{
		Height:         height,
		Address:        addr.String(),
		Staked:         amountString(staker.Staked),
		Pending:        amountString(staker.Pending),
		RewardSnapshot: amountString(staker.RewardSnapshot),
	}
}

// parseAmount accepts a non-negative decimal integer in base units.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount must be provided")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address: %w", err)
	}
	return addr, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
