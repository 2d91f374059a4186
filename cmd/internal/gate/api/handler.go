// Package gateapi exposes the visit lifecycle and gate admission engine
// over HTTP. Actor identity arrives via trusted gateway headers; the engine
// never reads ambient session state.
package gateapi

import (
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gatepass/cmd/internal/actor"
	"gatepass/cmd/internal/blacklist"
	"gatepass/cmd/internal/credential"
	"gatepass/cmd/internal/gate"
	"gatepass/cmd/internal/visit"
)

// Config tunes the HTTP surface.
type Config struct {
	// MaxBodyBytes bounds request bodies (default 64 KiB).
	MaxBodyBytes int64
}

func (c Config) maxBody() int64 {
	if c.MaxBodyBytes > 0 {
		return c.MaxBodyBytes
	}
	return 64 << 10
}

// Handler wires HTTP endpoints to the visit and gate services.
type Handler struct {
	log *slog.Logger
	cfg Config

	visits  *visit.Service
	coord   *gate.Coordinator
	blocked *blacklist.Service

	// pool is used only for best-effort audit inserts; nil disables them.
	pool *pgxpool.Pool
}

// NewHandler constructs a Handler. pool may be nil (audit disabled).
func NewHandler(log *slog.Logger, visits *visit.Service, coord *gate.Coordinator, blocked *blacklist.Service, pool *pgxpool.Pool, cfg Config) (*Handler, error) {
	if visits == nil || coord == nil || blocked == nil {
		return nil, errors.New("gateapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, cfg: cfg, visits: visits, coord: coord, blocked: blocked, pool: pool}, nil
}

// Register wires routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/visits/invite", h.handleInviteCreate)
	mux.HandleFunc("/visits/walkin", h.handleWalkinCreate)
	mux.HandleFunc("/visits/approve", h.handleApprove)
	mux.HandleFunc("/visits/reject", h.handleReject)
	mux.HandleFunc("/visits/cancel", h.handleCancel)
	mux.HandleFunc("/visits", h.handleVisitList)
	mux.HandleFunc("/checkin/otp", h.handleCheckInOTP)
	mux.HandleFunc("/checkin/qr", h.handleCheckInQR)
	mux.HandleFunc("/checkin/checkout", h.handleCheckOut)
	mux.HandleFunc("/dashboard/muster", h.handleMuster)
	mux.HandleFunc("/dashboard/stats", h.handleStats)
	mux.HandleFunc("/dashboard/my-requests", h.handleMyRequests)
	mux.HandleFunc("/blacklist", h.handleBlacklist)
	mux.HandleFunc("/blacklist/", h.handleBlacklistRemove)
}

// actorFromRequest extracts the acting identity from gateway headers.
func actorFromRequest(r *http.Request) (actor.Actor, bool) {
	id := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	if id == "" {
		return actor.Actor{}, false
	}
	return actor.Actor{ID: id, Roles: actor.ParseRoles(r.Header.Get("X-Actor-Roles"))}, true
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (actor.Actor, bool) {
	a, ok := actorFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return actor.Actor{}, false
	}
	return a, true
}

// ---- visit lifecycle ----

func (h *Handler) handleInviteCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req inviteCreateRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	v, issued, err := h.visits.CreateInvite(ctx, visit.InviteInput{
		Actor:           a,
		VisitorPhone:    req.VisitorPhone,
		VisitorName:     req.VisitorName,
		VisitorEmail:    req.VisitorEmail,
		Purpose:         req.Purpose,
		ExpectedArrival: req.ExpectedArrival,
		Now:             now,
	})
	if err != nil {
		h.logDomainError(r, "visits.invite", err)
		writeDomainError(w, err)
		return
	}

	h.auditVisitCreated(ctx, a.ID, v.ID, false)
	writeJSON(w, http.StatusCreated, inviteCreateResponse{
		Visit:  toVisitResponse(v),
		OTP:    issued.OTP,
		QRCode: issued.QRToken,
	})
}

func (h *Handler) handleWalkinCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req walkinCreateRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	v, err := h.visits.CreateWalkIn(ctx, visit.WalkInInput{
		Actor:        a,
		HostID:       req.HostID,
		VisitorPhone: req.VisitorPhone,
		VisitorName:  req.VisitorName,
		Purpose:      req.Purpose,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		h.logDomainError(r, "visits.walkin", err)
		writeDomainError(w, err)
		return
	}

	h.auditVisitCreated(ctx, a.ID, v.ID, true)
	writeJSON(w, http.StatusCreated, struct {
		Visit visitResponse `json:"visit"`
	}{Visit: toVisitResponse(v)})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req visitActionRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.VisitID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "visit_id is required")
		return
	}

	ctx := r.Context()
	v, issued, err := h.visits.Approve(ctx, req.VisitID, a, time.Now().UTC())
	if err != nil {
		h.logDomainError(r, "visits.approve", err)
		writeDomainError(w, err)
		return
	}

	h.auditVisitAction(ctx, a.ID, v.ID, "visit.approved")
	resp := approveResponse{Visit: toVisitResponse(v)}
	if issued != nil {
		resp.OTP = issued.OTP
		resp.QRCode = issued.QRToken
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req visitActionRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.VisitID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "visit_id is required")
		return
	}

	ctx := r.Context()
	v, err := h.visits.Reject(ctx, req.VisitID, a, time.Now().UTC())
	if err != nil {
		h.logDomainError(r, "visits.reject", err)
		writeDomainError(w, err)
		return
	}

	h.auditVisitAction(ctx, a.ID, v.ID, "visit.rejected")
	writeJSON(w, http.StatusOK, struct {
		Visit visitResponse `json:"visit"`
	}{Visit: toVisitResponse(v)})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req visitActionRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.VisitID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "visit_id is required")
		return
	}

	ctx := r.Context()
	v, err := h.visits.Cancel(ctx, req.VisitID, a, time.Now().UTC())
	if err != nil {
		h.logDomainError(r, "visits.cancel", err)
		writeDomainError(w, err)
		return
	}

	h.auditVisitAction(ctx, a.ID, v.ID, "visit.cancelled")
	writeJSON(w, http.StatusOK, struct {
		Visit visitResponse `json:"visit"`
	}{Visit: toVisitResponse(v)})
}

func (h *Handler) handleVisitList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	f := visit.Filter{Limit: 50}
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st := visit.Status(raw)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown status")
			return
		}
		f.Status = &st
	}
	if raw := strings.TrimSpace(q.Get("host_id")); raw != "" {
		f.HostID = &raw
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be 1..200")
			return
		}
		f.Limit = n
	}

	vs, err := h.visits.List(r.Context(), f, a)
	if err != nil {
		h.logDomainError(r, "visits.list", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Visits []visitResponse `json:"visits"`
	}{Visits: toVisitResponses(vs)})
}

// ---- gate admission ----

func (h *Handler) handleCheckInOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req checkinOTPRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	h.checkIn(w, r, gate.CheckInInput{
		Code:           req.OTP,
		Kind:           credential.KindOTP,
		ConsentGiven:   req.ConsentGiven,
		OverrideWindow: req.OverrideWindow,
		Actor:          a,
		Now:            time.Now().UTC(),
	})
}

func (h *Handler) handleCheckInQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req checkinQRRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	h.checkIn(w, r, gate.CheckInInput{
		Code:           req.QRCode,
		Kind:           credential.KindQR,
		ConsentGiven:   req.ConsentGiven,
		OverrideWindow: req.OverrideWindow,
		Actor:          a,
		Now:            time.Now().UTC(),
	})
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request, in gate.CheckInInput) {
	ctx := r.Context()
	adm, err := h.coord.CheckIn(ctx, in)
	if err != nil {
		h.logDomainError(r, "gate.checkin", err)
		writeDomainError(w, err)
		return
	}

	h.auditVisitAction(ctx, in.Actor.ID, adm.Visit.ID, "gate.checkin")
	writeJSON(w, http.StatusOK, checkinResponse{
		Visit:   toVisitResponse(adm.Visit),
		Visitor: toVisitorResponse(adm.Visitor),
	})
}

func (h *Handler) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req visitActionRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.VisitID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "visit_id is required")
		return
	}

	ctx := r.Context()
	v, err := h.coord.CheckOut(ctx, req.VisitID, a, time.Now().UTC())
	if err != nil {
		h.logDomainError(r, "gate.checkout", err)
		writeDomainError(w, err)
		return
	}

	h.auditVisitAction(ctx, a.ID, v.ID, "gate.checkout")
	writeJSON(w, http.StatusOK, struct {
		Visit visitResponse `json:"visit"`
	}{Visit: toVisitResponse(v)})
}

// ---- dashboard ----

func (h *Handler) handleMuster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	entries, err := h.coord.Muster(r.Context(), a)
	if err != nil {
		h.logDomainError(r, "dashboard.muster", err)
		writeDomainError(w, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		writeMusterCSV(w, entries)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Count   int                `json:"count"`
		Entries []gate.MusterEntry `json:"entries"`
	}{Count: len(entries), Entries: entries})
}

func writeMusterCSV(w http.ResponseWriter, entries []gate.MusterEntry) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="muster.csv"`)
	w.Header().Set("Cache-Control", "no-store")

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"visitor_name", "visitor_phone", "host", "purpose", "checkin_time"})
	for _, e := range entries {
		purpose := ""
		if e.Purpose != nil {
			purpose = *e.Purpose
		}
		arrival := ""
		if e.ArrivalAt != nil {
			arrival = e.ArrivalAt.UTC().Format(time.RFC3339)
		}
		_ = cw.Write([]string{e.VisitorName, e.VisitorPhone, e.HostID, purpose, arrival})
	}
	cw.Flush()
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.requireActor(w, r); !ok {
		return
	}

	stats, err := h.visits.Stats(r.Context(), time.Now().UTC())
	if err != nil {
		h.logDomainError(r, "dashboard.stats", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		VisitorsToday:    stats.VisitorsToday,
		PendingApprovals: stats.PendingApprovals,
		CheckedIn:        stats.CheckedIn,
	})
}

func (h *Handler) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	vs, err := h.visits.MyRequests(r.Context(), a)
	if err != nil {
		h.logDomainError(r, "dashboard.my_requests", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Visits []visitResponse `json:"visits"`
	}{Visits: toVisitResponses(vs)})
}

// ---- blacklist ----

func (h *Handler) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleBlacklistAdd(w, r)
	case http.MethodGet:
		h.handleBlacklistList(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleBlacklistAdd(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req blacklistAddRequest
	if err := decodeJSON(w, r, h.cfg.maxBody(), &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	e, err := h.blocked.Add(ctx, blacklist.AddInput{
		Actor:     a,
		VisitorID: req.VisitorID,
		Phone:     req.Phone,
		Name:      req.Name,
		Reason:    req.Reason,
		Now:       time.Now().UTC(),
	})
	if err != nil {
		h.logDomainError(r, "blacklist.add", err)
		writeDomainError(w, err)
		return
	}

	h.auditBlacklist(ctx, a.ID, e.VisitorID, "blacklist.added")
	writeJSON(w, http.StatusCreated, struct {
		Entry blacklistEntryResponse `json:"entry"`
	}{Entry: toBlacklistResponses([]blacklist.Entry{e})[0]})
}

func (h *Handler) handleBlacklistList(w http.ResponseWriter, r *http.Request) {
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	es, err := h.blocked.List(r.Context(), a)
	if err != nil {
		h.logDomainError(r, "blacklist.list", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Entries []blacklistEntryResponse `json:"entries"`
	}{Entries: toBlacklistResponses(es)})
}

func (h *Handler) handleBlacklistRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	visitorID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/blacklist/"), "/")
	if visitorID == "" || strings.Contains(visitorID, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "visitor id is required")
		return
	}

	ctx := r.Context()
	if err := h.blocked.Remove(ctx, a, visitorID); err != nil {
		h.logDomainError(r, "blacklist.remove", err)
		writeDomainError(w, err)
		return
	}

	h.auditBlacklist(ctx, a.ID, visitorID, "blacklist.removed")
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func (h *Handler) logDomainError(r *http.Request, op string, err error) {
	if isServerError(err) {
		h.log.Error(op+".fail", "err", err, "path", r.URL.Path)
		return
	}
	h.log.Debug(op+".denied", "err", err, "path", r.URL.Path)
}
