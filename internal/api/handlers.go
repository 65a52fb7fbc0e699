package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/slot-reservation/internal/appointment"
	"github.com/hackgods/slot-reservation/internal/patient"
	"github.com/hackgods/slot-reservation/internal/validation"
)

const maxBodyBytes = 1 << 16

type handlers struct {
	svc         *appointment.Service
	patients    patient.Resolver
	exposeCodes bool
}

func (h *handlers) listSlots(w http.ResponseWriter, r *http.Request) {
	providerID, ok := parseID(w, r, "invalid_provider_id")
	if !ok {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required (YYYY-MM-DD)")
		return
	}

	resp := SlotsResponse{ProviderID: providerID, Date: date, Slots: []SlotResponse{}}

	if includeClaimed, _ := strconv.ParseBool(r.URL.Query().Get("include_claimed")); includeClaimed {
		slots, err := h.svc.DaySlots(r.Context(), providerID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{At: s.At, LocalTime: s.LocalTime, Claimed: s.Claimed})
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	open, err := h.svc.ListOpenSlots(r.Context(), providerID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	for _, at := range open {
		resp.Slots = append(resp.Slots, SlotResponse{At: at})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeBody(w, r, &req) || !validBody(w, req) {
		return
	}

	// tags already vetted the formats; these parses cannot fail
	providerID, _ := uuid.Parse(req.ProviderID)
	at, _ := time.Parse(time.RFC3339, req.ScheduledAt)

	ref := patient.Ref{}
	if req.PatientID != "" {
		ref.ID, _ = uuid.Parse(req.PatientID)
	} else {
		ref.Contact = &patient.Contact{Name: req.Patient.Name, Email: req.Patient.Email, Phone: req.Patient.Phone}
	}

	patientID, err := h.patients.Resolve(r.Context(), ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	appt, err := h.svc.Reserve(r.Context(), appointment.ReserveRequest{
		ProviderID: providerID,
		At:         at,
		PatientID:  patientID,
		Reason:     req.Reason,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, h.exposeCodes))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patientID, err := uuid.Parse(q.Get("patient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id query parameter must be a valid UUID")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	appts, err := h.svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := ListAppointmentsResponse{Appointments: make([]AppointmentResponse, 0, len(appts)), Limit: limit, Offset: offset}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i], false))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, false))
}

func (h *handlers) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	status, err := h.svc.GetStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{ID: id, Status: string(status)})
}

func (h *handlers) reissueCode(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	appt, err := h.svc.ReissueCode(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, h.exposeCodes))
}

func (h *handlers) verifyAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	var req VerifyRequest
	if !decodeBody(w, r, &req) || !validBody(w, req) {
		return
	}

	appt, err := h.svc.Verify(r.Context(), id, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, false))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	var req CancelRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	// system cancellations belong to the expiry sweep
	if appointment.Actor(req.Actor) == appointment.ActorSystem {
		writeError(w, http.StatusBadRequest, "invalid_actor", "actor must be patient, provider or staff")
		return
	}

	appt, err := h.svc.Cancel(r.Context(), id, appointment.Actor(req.Actor))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, false))
}

func (h *handlers) completeAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	appt, err := h.svc.Complete(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt, false))
}

func parseID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// validBody runs the request's validate tags and writes a 400 listing the failed fields.
func validBody(w http.ResponseWriter, v any) bool {
	err := validation.Struct(v)
	if err == nil {
		return true
	}
	writeValidationError(w, err)
	return false
}

func writeValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "invalid_request", Details: err.Error()}
	var verr *validation.Error
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrValidation),
		errors.Is(err, patient.ErrInvalidContact):
		writeValidationError(w, err)
	case errors.Is(err, appointment.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, patient.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, appointment.ErrExpired):
		writeError(w, http.StatusGone, "code_expired", err.Error())
	case errors.Is(err, appointment.ErrMismatch):
		writeError(w, http.StatusUnprocessableEntity, "code_mismatch", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
