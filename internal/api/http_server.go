package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/domain"
	"sessionbook/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

const (
	dateLayout  = "2006-01-02"
	xlsxContent = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	maxBodySize = 1 << 20
)

// Services bundles the operations served over HTTP and gRPC.
type Services struct {
	Slots     domain.SlotService
	Bookings  domain.BookingService
	Lifecycle domain.LifecycleService
	Export    domain.ExportService
	// Ready reports whether the store and other hard dependencies answer.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the scheduling API as JSON over HTTP.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{cfg: cfg, svc: svc, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))
	if len(s.cfg.HTTP.CORSOrigins) > 0 {
		r.Use(s.corsHandler())
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Authenticate)

		r.With(s.auth.Require(permReadSlots)).Get("/providers/{slug}/slots", s.handleListSlots)
		r.With(s.auth.Require(permWriteBookings)).Post("/providers/{slug}/bookings", s.handleCreateBooking)
		r.With(s.auth.Require(permExport)).Get("/providers/{slug}/bookings/export", s.handleExport)

		r.With(s.auth.Require(permReadBookings)).Get("/bookings/{id}", s.handleGetBooking)
		r.With(s.auth.Require(permManageLifecycle)).Post("/bookings/{id}/cancel", s.handleCancel)
		r.With(s.auth.Require(permManageLifecycle)).Post("/bookings/{id}/complete", s.handleComplete)

		r.With(s.auth.Require(permManageLifecycle)).Post("/autocomplete", s.handleAutoComplete)
		r.With(s.auth.Require(permManageLifecycle)).Post("/reconcile", s.handleReconcile)
	})
	return r
}

func (s *HTTPServer) corsHandler() func(http.Handler) http.Handler {
	auth := s.cfg.Auth
	return cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Content-Type", requestIDMetadataKey,
			headerName(auth.HeaderAPIKey, apiKeyHeaderDefault),
			headerName(auth.HeaderExtra, apiExtraHeaderDefault),
			headerName(auth.HeaderProvider, providerHeaderDefault),
		},
		ExposedHeaders: []string{requestIDMetadataKey, "Content-Disposition"},
		MaxAge:         300,
	})
}

// Handler returns the routed handler, used by tests and embedding servers.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleListSlots(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	listing, err := s.svc.Slots.ListSlots(r.Context(), chi.URLParam(r, "slug"), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slotListingView(listing))
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ProviderSlug = chi.URLParam(r, "slug")

	result, err := s.svc.Bookings.CreateBooking(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookingResultView(result))
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), id, CallerFromContext(r.Context()).ProviderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	result, err := s.svc.Lifecycle.CancelBooking(r.Context(), id, CallerFromContext(r.Context()).ProviderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Lifecycle.CompleteBooking(r.Context(), id, CallerFromContext(r.Context()).ProviderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleAutoComplete(w http.ResponseWriter, r *http.Request) {
	var opts models.AutoCompleteOptions
	if err := decodeBody(r, &opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	opts, err := scopeAutoComplete(CallerFromContext(r.Context()), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.svc.Lifecycle.RunAutoCompletion(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProviderID int64 `json:"provider_id"`
	}
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	opts, err := scopeAutoComplete(CallerFromContext(r.Context()), models.AutoCompleteOptions{ProviderID: body.ProviderID})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.svc.Lifecycle.ReconcileCounters(r.Context(), opts.ProviderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	from, err := parseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := parseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}

	// buffered so a failed export still gets a JSON error
	var buf bytes.Buffer
	caller := CallerFromContext(r.Context())
	if err := s.svc.Export.ExportBookings(r.Context(), slug, caller.ProviderID, from, to.AddDate(0, 0, 1), &buf); err != nil {
		writeDomainError(w, err)
		return
	}

	filename := fmt.Sprintf("bookings_%s_%s_%s.xlsx", slug, from.Format(dateLayout), to.Format(dateLayout))
	w.Header().Set("Content-Type", xlsxContent)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// scopeAutoComplete pins a provider-scoped caller to its own provider.
func scopeAutoComplete(caller Caller, opts models.AutoCompleteOptions) (models.AutoCompleteOptions, error) {
	if caller.ProviderID == 0 {
		return opts, nil
	}
	if opts.ProviderID != 0 && opts.ProviderID != caller.ProviderID {
		return opts, domain.ErrNotBookingOwner.WithMessage("provider %d belongs to another account", opts.ProviderID)
	}
	opts.ProviderID = caller.ProviderID
	return opts, nil
}

func bookingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return 0, false
	}
	return id, true
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func parseDay(raw string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(raw))
}

type slotListing struct {
	Provider     string   `json:"provider"`
	ProviderName string   `json:"provider_name"`
	Date         string   `json:"date"`
	Timezone     string   `json:"timezone"`
	Slots        []string `json:"slots"`
}

func slotListingView(l *models.SlotListing) slotListing {
	return slotListing{
		Provider:     l.ProviderSlug,
		ProviderName: l.ProviderName,
		Date:         l.Date,
		Timezone:     l.Timezone,
		Slots:        l.Labels(),
	}
}

type bookingResult struct {
	Booking           *models.Booking `json:"booking"`
	ClientID          int64           `json:"client_id"`
	ClientCreated     bool            `json:"client_created"`
	CompletedSessions int             `json:"completed_sessions"`
}

func bookingResultView(res *models.BookingResult) bookingResult {
	view := bookingResult{Booking: res.Booking, ClientCreated: res.ClientCreated}
	if res.Client != nil {
		view.ClientID = res.Client.ID
		view.CompletedSessions = res.Client.CompletedSessions
	}
	return view
}
