package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/community-payback-reconciler/internal/outcome"
	redisclient "github.com/hackgods/community-payback-reconciler/internal/redis"
	"github.com/hackgods/community-payback-reconciler/internal/scheduling"
)

const dateLayout = "2006-01-02"

func updateOutcomesHandler(svc OutcomeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OutcomeUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if len(req.Outcomes) == 0 {
			writeError(w, http.StatusBadRequest, "empty_outcomes", "at least one outcome is required")
			return
		}

		updates := make([]outcome.Update, 0, len(req.Outcomes))
		for i, o := range req.Outcomes {
			content, err := toContent(o)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_outcome", fmt.Sprintf("outcomes[%d]: %v", i, err))
				return
			}
			updates = append(updates, outcome.Update{AppointmentID: o.AppointmentID, Content: content})
		}

		if err := svc.UpdateOutcomes(r.Context(), updates); err != nil {
			handleOutcomeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getOutcomeRecordHandler(svc OutcomeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_record_id", "id must be a valid UUID")
			return
		}

		rec, err := svc.GetRecord(r.Context(), id)
		if err != nil {
			handleOutcomeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRecordResponse(*rec))
	}
}

func outcomeHistoryHandler(svc OutcomeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := strconv.ParseInt(chi.URLParam(r, "appointmentId"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointmentId must be an integer")
			return
		}

		records, err := svc.History(r.Context(), appointmentID)
		if err != nil {
			handleOutcomeError(w, err)
			return
		}

		resp := OutcomeHistoryResponse{
			AppointmentID: appointmentID,
			Records:       make([]OutcomeRecordResponse, 0, len(records)),
		}
		for _, rec := range records {
			resp.Records = append(resp.Records, toRecordResponse(rec))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func reconcileHandler(svc Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		crn := chi.URLParam(r, "crn")

		req := ReconcileRequest{TriggerType: string(scheduling.TriggerManual)}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
			if req.TriggerType == "" {
				req.TriggerType = string(scheduling.TriggerManual)
			}
		}

		trigger := scheduling.Trigger{
			Type:          scheduling.TriggerType(req.TriggerType),
			AppointmentID: req.AppointmentID,
		}

		result, err := svc.Reconcile(r.Context(), crn, trigger)
		if err != nil {
			handleReconcileError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toReconcileResponse(crn, result))
	}
}

func handleOutcomeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, outcome.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, "invalid_appointment_reference", err.Error())
	case errors.Is(err, outcome.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "outcome_not_found", err.Error())
	case errors.Is(err, outcome.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, "empty_outcomes", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "appointment_being_updated", "appointment outcome is currently being updated, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleReconcileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrRequirementNotFound):
		writeError(w, http.StatusNotFound, "requirement_not_found", err.Error())
	case errors.Is(err, scheduling.ErrInvalidRequest):
		writeError(w, http.StatusUnprocessableEntity, "invalid_scheduling_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func toContent(o OutcomeUpdate) (outcome.Content, error) {
	if !o.EndTime.After(o.StartTime) {
		return outcome.Content{}, errors.New("end_time must be after start_time")
	}
	if o.ContactOutcomeID == uuid.Nil {
		return outcome.Content{}, errors.New("contact_outcome_id is required")
	}

	c := outcome.Content{
		ProjectTypeID:         o.ProjectTypeID,
		StartTime:             o.StartTime,
		EndTime:               o.EndTime,
		ContactOutcomeID:      o.ContactOutcomeID,
		SupervisorTeamID:      o.SupervisorTeamID,
		SupervisorOfficerCode: o.SupervisorOfficerCode,
		Notes:                 o.Notes,
		HiVisWorn:             o.HiVisWorn,
		WorkedIntensively:     o.WorkedIntensively,
		PenaltyMinutes:        o.PenaltyMinutes,
		EnforcementActionID:   o.EnforcementActionID,
	}

	var err error
	if c.WorkQuality, err = parseRating("work_quality", o.WorkQuality); err != nil {
		return outcome.Content{}, err
	}
	if c.Behaviour, err = parseRating("behaviour", o.Behaviour); err != nil {
		return outcome.Content{}, err
	}

	if o.RespondBy != nil {
		d, err := time.Parse(dateLayout, *o.RespondBy)
		if err != nil {
			return outcome.Content{}, errors.New("respond_by must be YYYY-MM-DD")
		}
		c.RespondBy = &d
	}

	return c, nil
}

func parseRating(field string, raw *string) (*outcome.Rating, error) {
	if raw == nil {
		return nil, nil
	}
	r := outcome.Rating(*raw)
	if !r.Valid() {
		return nil, fmt.Errorf("%s %q is not a recognised rating", field, *raw)
	}
	return &r, nil
}

func toRecordResponse(rec outcome.Record) OutcomeRecordResponse {
	resp := OutcomeRecordResponse{
		ID:                    rec.ID,
		AppointmentID:         rec.AppointmentID,
		ProjectTypeID:         rec.ProjectTypeID,
		StartTime:             rec.StartTime,
		EndTime:               rec.EndTime,
		ContactOutcomeID:      rec.ContactOutcomeID,
		SupervisorTeamID:      rec.SupervisorTeamID,
		SupervisorOfficerCode: rec.SupervisorOfficerCode,
		Notes:                 rec.Notes,
		HiVisWorn:             rec.HiVisWorn,
		WorkedIntensively:     rec.WorkedIntensively,
		PenaltyMinutes:        rec.PenaltyMinutes,
		EnforcementActionID:   rec.EnforcementActionID,
		CreatedAt:             rec.CreatedAt,
		UpdatedAt:             rec.UpdatedAt,
	}
	if rec.WorkQuality != nil {
		s := string(*rec.WorkQuality)
		resp.WorkQuality = &s
	}
	if rec.Behaviour != nil {
		s := string(*rec.Behaviour)
		resp.Behaviour = &s
	}
	if rec.RespondBy != nil {
		s := rec.RespondBy.Format(dateLayout)
		resp.RespondBy = &s
	}
	return resp
}

func toReconcileResponse(crn string, result scheduling.Outcome) ReconcileResponse {
	resp := ReconcileResponse{CRN: crn, Outcome: result.Name()}

	insufficient, ok := result.(scheduling.ExistingAppointmentsInsufficient)
	if !ok {
		return resp
	}

	resp.AppointmentCreationCount = insufficient.Plan.CreateCount()
	for _, action := range insufficient.Plan {
		switch a := action.(type) {
		case scheduling.CreateAppointment:
			resp.Plan = append(resp.Plan, PlanActionResponse{
				Action:      "create",
				ProjectCode: a.Required.ProjectCode,
				StartTime:   a.Required.StartTime,
				EndTime:     a.Required.EndTime,
			})
		case scheduling.RetainAppointment:
			id := a.Existing.ID
			resp.Plan = append(resp.Plan, PlanActionResponse{
				Action:        "retain",
				AppointmentID: &id,
				ProjectCode:   a.Existing.ProjectCode,
				StartTime:     a.Existing.StartTime,
				EndTime:       a.Existing.EndTime,
				Notes:         a.Notes,
			})
		}
	}
	return resp
}
