package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/utbetaling/internal/domain"
	"github.com/vladislavdragonenkov/utbetaling/internal/health"
	utbsvc "github.com/vladislavdragonenkov/utbetaling/internal/service/utbetaling"
)

// utbetalingResponse — JSON-представление поручения для internal API.
type utbetalingResponse struct {
	ID                 string          `json:"id"`
	SakID              string          `json:"sakId"`
	BehandlingID       string          `json:"behandlingId"`
	VedtakID           string          `json:"vedtakId"`
	Status             string          `json:"status"`
	Opprettet          time.Time       `json:"opprettet"`
	Endret             time.Time       `json:"endret"`
	Avstemmingsnoekkel time.Time       `json:"avstemmingsnoekkel"`
	Stoenadsmottaker   string          `json:"stoenadsmottaker"`
	Kvittering         *kvitteringInfo `json:"kvittering,omitempty"`
	Linjer             []linjeResponse `json:"linjer"`
}

type kvitteringInfo struct {
	MeldingKode string `json:"meldingKode"`
	Feilkode    string `json:"feilkode,omitempty"`
	Beskrivelse string `json:"beskrivelse,omitempty"`
}

type linjeResponse struct {
	ID          string          `json:"id"`
	Fra         time.Time       `json:"fra"`
	Til         *time.Time      `json:"til,omitempty"`
	Beloep      decimal.Decimal `json:"beloep"`
	ErstatterID string          `json:"erstatterId,omitempty"`
	Endring     string          `json:"endring,omitempty"`
}

type hendelseResponse struct {
	Type      string    `json:"type"`
	Detalj    string    `json:"detalj,omitempty"`
	UtfoertAv string    `json:"utfoertAv,omitempty"`
	Occurred  time.Time `json:"occurred"`
}

type kvitterRequest struct {
	UtfoertAv string `json:"utfoertAv"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// newRouter собирает операционный HTTP API: метрики, health и internal-ручки
// для дежурного оператора.
func newRouter(svc *utbsvc.Service, hendelser domain.HendelseRepository, healthHandler *health.Handler, logger *log.Entry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Method(http.MethodGet, "/healthz", healthHandler)
	r.Get("/livez", health.LivenessHandler)
	r.Get("/readyz", healthHandler.ReadinessHandler)

	r.Route("/internal/utbetaling", func(r chi.Router) {
		r.Get("/{vedtakId}", handleGetUtbetaling(svc))
		r.Get("/{vedtakId}/hendelser", handleListHendelser(hendelser))
		r.Post("/{vedtakId}/kvitter", handleForceKvittering(svc, logger))
	})

	return r
}

func handleGetUtbetaling(svc *utbsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vedtakID := domain.VedtakId(chi.URLParam(r, "vedtakId"))

		utbetaling, err := svc.Get(vedtakID)
		if err != nil {
			if errors.Is(err, domain.ErrUtbetalingIkkeFunnet) {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "utbetaling not found"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, toUtbetalingResponse(utbetaling))
	}
}

func handleListHendelser(hendelser domain.HendelseRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vedtakID := domain.VedtakId(chi.URLParam(r, "vedtakId"))

		items, err := hendelser.List(vedtakID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		result := make([]hendelseResponse, 0, len(items))
		for _, h := range items {
			result = append(result, hendelseResponse{
				Type:      h.Type,
				Detalj:    h.Detalj,
				UtfoertAv: h.UtfoertAv.String(),
				Occurred:  h.Occurred,
			})
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// handleForceKvittering — аварийная ручка оператора: вручную квитирует
// поручение, когда внешняя система приняла его, а квитанция не дошла.
func handleForceKvittering(svc *utbsvc.Service, logger *log.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vedtakID := domain.VedtakId(chi.URLParam(r, "vedtakId"))

		var req kvitterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
		if req.UtfoertAv == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "utfoertAv is required"})
			return
		}

		err := svc.ForceKvittering(vedtakID, domain.NavIdent(req.UtfoertAv))
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrUtbetalingIkkeFunnet):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "utbetaling not found"})
			return
		case errors.Is(err, domain.ErrStatusLaast):
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		default:
			logger.WithError(err).WithField("vedtak_id", vedtakID.String()).
				Error("manual kvittering failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}

		utbetaling, err := svc.Get(vedtakID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, toUtbetalingResponse(utbetaling))
	}
}

func toUtbetalingResponse(utbetaling domain.Utbetaling) utbetalingResponse {
	resp := utbetalingResponse{
		ID:                 utbetaling.ID,
		SakID:              utbetaling.SakID.String(),
		BehandlingID:       utbetaling.BehandlingID.String(),
		VedtakID:           utbetaling.VedtakID.String(),
		Status:             string(utbetaling.Status),
		Opprettet:          utbetaling.Opprettet,
		Endret:             utbetaling.Endret,
		Avstemmingsnoekkel: utbetaling.Avstemmingsnoekkel,
		Stoenadsmottaker:   utbetaling.Stoenadsmottaker.String(),
		Linjer:             make([]linjeResponse, 0, len(utbetaling.Linjer)),
	}

	if utbetaling.KvitteringMeldingKode != "" {
		resp.Kvittering = &kvitteringInfo{
			MeldingKode: utbetaling.KvitteringMeldingKode,
			Feilkode:    utbetaling.KvitteringFeilkode,
			Beskrivelse: utbetaling.KvitteringBeskrivelse,
		}
	}

	for _, linje := range utbetaling.Linjer {
		lr := linjeResponse{
			ID:      linje.ID.String(),
			Fra:     linje.Fra,
			Til:     linje.Til,
			Beloep:  linje.Beloep,
			Endring: string(linje.Endring),
		}
		if linje.ErstatterID != nil {
			lr.ErstatterID = linje.ErstatterID.String()
		}
		resp.Linjer = append(resp.Linjer, lr)
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
