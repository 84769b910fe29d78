package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"rently/internal/app"
	"rently/internal/domain"
)

// UserHeader carries the authenticated caller's id, set by the gateway in
// front of the API.
const UserHeader = "X-User-ID"

type Handlers struct {
	Engine  *app.ReservationEngine
	Q       *app.QueryService
	Tickets *app.TicketService
	Roles   *app.RoleChangeService
}

type problem struct {
	Type   string      `json:"type"`
	Title  string      `json:"title"`
	Status int         `json:"status"`
	Kind   domain.Kind `json:"kind,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/properties/{id}/availability", h.checkAvailability)
		r.Get("/bookings/{code}", h.getBooking)
		r.Get("/tickets/{id}", h.getTicket)
		r.Get("/role-requests/{id}", h.getRoleRequest)

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(s.writes))
			r.Post("/bookings", h.createBooking)
			r.Delete("/bookings/{code}", h.cancelBooking)
			r.Post("/tickets", h.openTicket)
			r.Post("/tickets/{id}/{action}", h.ticketAction)
			r.Post("/role-requests", h.submitRoleRequest)
			r.Post("/role-requests/{id}/{action}", h.roleRequestAction)
		})
	})
}

// statusFor maps an error kind to the HTTP status it is reported with.
var statusFor = map[domain.Kind]int{
	domain.KindInvalidRequest:         http.StatusBadRequest,
	domain.KindUnauthorized:           http.StatusForbidden,
	domain.KindNotFound:               http.StatusNotFound,
	domain.KindCouponNotFound:         http.StatusUnprocessableEntity,
	domain.KindCouponExpired:          http.StatusUnprocessableEntity,
	domain.KindCouponAlreadyUsed:      http.StatusConflict,
	domain.KindUnavailableProperty:    http.StatusConflict,
	domain.KindIllegalStateTransition: http.StatusConflict,
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, kind domain.Kind, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := problem{Type: "about:blank", Title: http.StatusText(status), Status: status, Kind: kind, Detail: detail}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("write JSON problem response failed")
	}
}

// writeError reports err by kind. Internal errors are logged and their
// message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status, ok := statusFor[kind]
	if !ok {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, r, http.StatusInternalServerError, domain.KindInternal, "")
		return
	}
	writeProblem(w, r, status, kind, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeCacheable writes v with a weak ETag and honors If-None-Match.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

func requester(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := strings.TrimSpace(r.Header.Get(UserHeader))
	if u == "" {
		writeProblem(w, r, http.StatusUnauthorized, domain.KindUnauthorized, UserHeader+" header is required")
		return "", false
	}
	return u, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, r, http.StatusBadRequest, domain.KindInvalidRequest, "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: dates must be YYYY-MM-DD, got %q", domain.ErrInvalidRequest, s)
	}
	return t, nil
}

// ---- bookings ----

func (h *Handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in, err := parseDay(q.Get("checkIn"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := parseDay(q.Get("checkOut"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	guests := 1
	if gs := q.Get("guests"); gs != "" {
		g, err := strconv.Atoi(gs)
		if err != nil || g < 1 {
			writeProblem(w, r, http.StatusBadRequest, domain.KindInvalidRequest, "guests must be a positive integer")
			return
		}
		guests = g
	}

	id := chi.URLParam(r, "id")
	ok, err := h.Engine.CheckAvailability(r.Context(), id, in, out, guests)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		PropertyID: id,
		CheckIn:    in.Format(time.DateOnly),
		CheckOut:   out.Format(time.DateOnly),
		Guests:     guests,
		Available:  ok,
	})
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := parseDay(req.CheckIn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := parseDay(req.CheckOut)
	if err != nil {
		writeError(w, r, err)
		return
	}

	b, err := h.Engine.CreateBooking(r.Context(), domain.BookingRequest{
		PropertyID:  req.PropertyID,
		UserID:      user,
		CheckIn:     in,
		CheckOut:    out,
		NumAdults:   req.NumAdults,
		NumChildren: req.NumChildren,
		CouponCode:  req.CouponCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/bookings/"+b.ConfirmationCode)
	writeJSON(w, http.StatusCreated, toBooking(b))
}

// getBooking is visible to the guest and the host only. Anyone else gets 404
// so confirmation codes cannot be probed.
func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}
	b, err := h.Q.GetBooking(r.Context(), chi.URLParam(r, "code"))
	if err == nil && user != b.UserID && user != b.HostID {
		err = domain.ErrNotFound
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, toBooking(b))
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}
	if err := h.Engine.CancelBooking(r.Context(), chi.URLParam(r, "code"), user); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- tickets ----

func (h *Handlers) openTicket(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}
	var req openTicketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, err := h.Tickets.Open(r.Context(), user, req.Title, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/tickets/"+t.ID)
	writeJSON(w, http.StatusCreated, toTicket(t))
}

func (h *Handlers) getTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tickets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, toTicket(t))
}

func (h *Handlers) ticketAction(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tickets.Apply(r.Context(), chi.URLParam(r, "id"), domain.TicketAction(chi.URLParam(r, "action")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicket(t))
}

// ---- change role requests ----

func (h *Handlers) submitRoleRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := requester(w, r)
	if !ok {
		return
	}
	var req submitRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.Roles.Submit(r.Context(), user, req.Motivation)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/role-requests/"+c.ID)
	writeJSON(w, http.StatusCreated, toRoleRequest(c))
}

func (h *Handlers) getRoleRequest(w http.ResponseWriter, r *http.Request) {
	c, err := h.Roles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCacheable(w, r, toRoleRequest(c))
}

func (h *Handlers) roleRequestAction(w http.ResponseWriter, r *http.Request) {
	c, err := h.Roles.Apply(r.Context(), chi.URLParam(r, "id"), domain.RoleChangeAction(chi.URLParam(r, "action")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleRequest(c))
}
