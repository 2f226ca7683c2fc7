package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vwtips/native/tips"
)

// Contract is the read surface of the tips engine served over HTTP.
type Contract interface {
	Config() (*tips.Config, error)
	LedgerBalance() (*big.Int, error)
	ContractAddress() common.Address
	FeeScale() uint64
	RoleMembers(role common.Hash) ([]common.Address, error)
	HasRole(role common.Hash, account common.Address) (bool, error)
	CurrentRate(ctx context.Context) (tips.ConversionRate, error)
}

// ServerConfig configures the query server.
type ServerConfig struct {
	ServiceName string
	RateLimit   RateLimit
	Network     string
	ChainID     uint64
	// RateTimeout bounds each price feed query.
	RateTimeout time.Duration
	// Observer, when set, records the outcome of every rate query.
	Observer tips.Observer
}

// OpRate labels price feed reads served over HTTP.
const OpRate = "rate"


// Server exposes read-only contract state.
type Server struct {
	cfg      ServerConfig
	contract Contract
	logger   *slog.Logger
	limiter  *RateLimiter
}

func NewServer(contract Contract, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "tipsd"
	}
	if cfg.RateTimeout <= 0 {
		cfg.RateTimeout = 5 * time.Second
	}
	return &Server{
		cfg:      cfg,
		contract: contract,
		logger:   logger,
		limiter:  NewRateLimiter(cfg.RateLimit, logger),
	}
}

// Handler builds the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(instrument(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/tips", func(sr chi.Router) {
		sr.Use(s.limiter.Middleware("tips"))
		sr.Get("/", s.handleStatus)
		sr.Get("/rate", s.handleRate)
		sr.Get("/roles/{role}", s.handleRoleMembers)
		sr.Get("/roles/{role}/{account}", s.handleHasRole)
	})
	return otelhttp.NewHandler(r, s.cfg.ServiceName)
}

// StatusResponse describes the contract configuration and ledger.
type StatusResponse struct {
	Network       string   `json:"network,omitempty"`
	ChainID       uint64   `json:"chainId,omitempty"`
	Contract      string   `json:"contract"`
	PriceFeed     string   `json:"priceFeed"`
	FeeRate       uint64   `json:"feeRate"`
	FeeScale      uint64   `json:"feeScale"`
	Version       uint64   `json:"version"`
	LedgerBalance string   `json:"ledgerBalance"`
	Admins        []string `json:"admins"`
}

// RateResponse is the latest validated price feed answer.
type RateResponse struct {
	Feed      string `json:"feed"`
	RoundID   string `json:"roundId"`
	Value     string `json:"value"`
	Decimals  uint8  `json:"decimals"`
	Price     string `json:"price"`
	UpdatedAt int64  `json:"updatedAt"`
}

// RoleResponse reports a role membership check.
type RoleResponse struct {
	Role    string `json:"role"`
	Account string `json:"account"`
	HasRole bool   `json:"hasRole"`
}

// RoleMembersResponse lists the holders of a role.
type RoleMembersResponse struct {
	Role    string   `json:"role"`
	Members []string `json:"members"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.contract.Config()
	if err != nil {
		s.writeContractError(w, err)
		return
	}
	ledger, err := s.contract.LedgerBalance()
	if err != nil {
		s.writeContractError(w, err)
		return
	}
	admins, err := s.contract.RoleMembers(tips.DefaultAdminRole)
	if err != nil {
		s.writeContractError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Network:       s.cfg.Network,
		ChainID:       s.cfg.ChainID,
		Contract:      strings.ToLower(s.contract.ContractAddress().Hex()),
		PriceFeed:     cfg.PriceFeed.Hex(),
		FeeRate:       cfg.FeeRate,
		FeeScale:      s.contract.FeeScale(),
		Version:       cfg.ImplementationVersion,
		LedgerBalance: ledger.String(),
		Admins:        formatAddresses(admins),
	})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RateTimeout)
	defer cancel()
	rate, err := s.contract.CurrentRate(ctx)
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveOperation(OpRate, err)
	}
	if err != nil {
		s.writeContractError(w, err)
		return
	}
	roundID := "0"
	if rate.RoundID != nil {
		roundID = rate.RoundID.String()
	}
	writeJSON(w, http.StatusOK, RateResponse{
		Feed:      rate.Feed.Hex(),
		RoundID:   roundID,
		Value:     rate.Value.String(),
		Decimals:  rate.Decimals,
		Price:     rate.String(),
		UpdatedAt: rate.UpdatedAt.Unix(),
	})
}

func (s *Server) handleRoleMembers(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	members, err := s.contract.RoleMembers(role)
	if err != nil {
		s.writeContractError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RoleMembersResponse{Role: role.Hex(), Members: formatAddresses(members)})
}

func (s *Server) handleHasRole(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rawAccount := chi.URLParam(r, "account")
	if !common.IsHexAddress(rawAccount) {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	account := common.HexToAddress(rawAccount)
	ok, err := s.contract.HasRole(role, account)
	if err != nil {
		s.writeContractError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RoleResponse{Role: role.Hex(), Account: strings.ToLower(account.Hex()), HasRole: ok})
}

func (s *Server) writeContractError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tips.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	case errors.Is(err, tips.ErrOracleUnavailable):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("contract query failed", slog.Any("error", err))
	}
	writeError(w, status, err.Error())
}

// ParseRole accepts a 32-byte hex role identifier or the DEFAULT_ADMIN_ROLE
// alias ("admin" also works).
func ParseRole(raw string) (common.Hash, error) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "admin", "default_admin_role":
		return tips.DefaultAdminRole, nil
	}
	hexPart := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hexutil.Decode("0x" + hexPart)
	if err != nil || len(decoded) != common.HashLength {
		return common.Hash{}, errors.New("role must be 32-byte hex or DEFAULT_ADMIN_ROLE")
	}
	return common.BytesToHash(decoded), nil
}

func formatAddresses(list []common.Address) []string {
	out := make([]string, 0, len(list))
	for _, addr := range list {
		out = append(out, strings.ToLower(addr.Hex()))
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
