package relayer

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/cccp-relayer/pkg/app/errors"
	apphttp "github.com/chainsafe/cccp-relayer/pkg/app/http"
	"github.com/chainsafe/cccp-relayer/pkg/db"
	"github.com/chainsafe/cccp-relayer/pkg/relayer"
)

const defaultHTTPMiddlewareTimeout = 60 * time.Second

// engineState is the read side of the relayer engine served over HTTP.
type engineState interface {
	IsReady() bool
	Status() relayer.Status
}

type handler struct {
	engine engineState
	store  db.SocketEventStore
	logger *zap.Logger
}

func newRouter(engine engineState, store db.SocketEventStore, metricsEnabled bool, logger *zap.Logger) http.Handler {
	h := &handler{engine: engine, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !engine.IsReady() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", apphttp.HandleError(h.getStatus))
		r.Get("/requests/{hash}", apphttp.HandleError(h.getRequest))
	})

	return r
}

func (h *handler) getStatus(w http.ResponseWriter, _ *http.Request) error {
	return apphttp.WriteJSON(w, http.StatusOK, h.engine.Status())
}

type requestResponse struct {
	RequestHash string `json:"request_hash"`
	SrcChainID  uint32 `json:"src_chain_id"`
	DstChainID  uint32 `json:"dst_chain_id"`
	Sequence    string `json:"sequence"`
	Status      string `json:"status"`
	Terminal    bool   `json:"terminal"`
	ChainID     uint32 `json:"observed_chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
}

func (h *handler) getRequest(w http.ResponseWriter, r *http.Request) error {
	raw := chi.URLParam(r, "hash")
	decoded, err := hexutil.Decode(raw)
	if err != nil || len(decoded) != common.HashLength {
		return apperrors.BadRequestError(err, "request hash must be a 0x-prefixed 32 byte hex string")
	}

	event, err := h.store.GetSocketEvent(r.Context(), common.BytesToHash(decoded))
	if errors.Is(err, db.ErrSocketEventNotFound) {
		return apperrors.ResourceNotFoundError(err, "request not found")
	}
	if err != nil {
		h.logger.Error("Failed to load socket event", zap.String("request_hash", raw), zap.Error(err))
		return apperrors.GeneralError(err)
	}

	sequence := "0"
	if event.Sequence != nil {
		sequence = event.Sequence.String()
	}
	return apphttp.WriteJSON(w, http.StatusOK, requestResponse{
		RequestHash: event.RequestHash.Hex(),
		SrcChainID:  uint32(event.SrcChainID),
		DstChainID:  uint32(event.DstChainID),
		Sequence:    sequence,
		Status:      event.Status.String(),
		Terminal:    event.Status.IsTerminal(),
		ChainID:     uint32(event.ChainID),
		BlockNumber: event.BlockNumber,
		TxHash:      event.TxHash.Hex(),
	})
}
