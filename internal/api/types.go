package api

import (
	"time"

	"github.com/google/uuid"
)

type OutcomeUpdateRequest struct {
	Outcomes []OutcomeUpdate `json:"outcomes"`
}

type OutcomeUpdate struct {
	AppointmentID         int64      `json:"appointment_id"`
	ProjectTypeID         int64      `json:"project_type_id"`
	StartTime             time.Time  `json:"start_time"`
	EndTime               time.Time  `json:"end_time"`
	ContactOutcomeID      uuid.UUID  `json:"contact_outcome_id"`
	SupervisorTeamID      int64      `json:"supervisor_team_id"`
	SupervisorOfficerCode string     `json:"supervisor_officer_code"`
	Notes                 *string    `json:"notes,omitempty"`
	HiVisWorn             *bool      `json:"hi_vis_worn,omitempty"`
	WorkedIntensively     *bool      `json:"worked_intensively,omitempty"`
	PenaltyMinutes        *int64     `json:"penalty_minutes,omitempty"`
	WorkQuality           *string    `json:"work_quality,omitempty"`
	Behaviour             *string    `json:"behaviour,omitempty"`
	EnforcementActionID   *uuid.UUID `json:"enforcement_action_id,omitempty"`
	RespondBy             *string    `json:"respond_by,omitempty"` // YYYY-MM-DD
}

type OutcomeRecordResponse struct {
	ID                    uuid.UUID  `json:"id"`
	AppointmentID         int64      `json:"appointment_id"`
	ProjectTypeID         int64      `json:"project_type_id"`
	StartTime             time.Time  `json:"start_time"`
	EndTime               time.Time  `json:"end_time"`
	ContactOutcomeID      uuid.UUID  `json:"contact_outcome_id"`
	SupervisorTeamID      int64      `json:"supervisor_team_id"`
	SupervisorOfficerCode string     `json:"supervisor_officer_code"`
	Notes                 *string    `json:"notes,omitempty"`
	HiVisWorn             *bool      `json:"hi_vis_worn,omitempty"`
	WorkedIntensively     *bool      `json:"worked_intensively,omitempty"`
	PenaltyMinutes        *int64     `json:"penalty_minutes,omitempty"`
	WorkQuality           *string    `json:"work_quality,omitempty"`
	Behaviour             *string    `json:"behaviour,omitempty"`
	EnforcementActionID   *uuid.UUID `json:"enforcement_action_id,omitempty"`
	RespondBy             *string    `json:"respond_by,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

type OutcomeHistoryResponse struct {
	AppointmentID int64                   `json:"appointment_id"`
	Records       []OutcomeRecordResponse `json:"records"`
}

type ReconcileRequest struct {
	TriggerType   string `json:"trigger_type"`
	AppointmentID *int64 `json:"appointment_id,omitempty"`
}

type PlanActionResponse struct {
	Action        string    `json:"action"`
	AppointmentID *int64    `json:"appointment_id,omitempty"`
	ProjectCode   string    `json:"project_code"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Notes         string    `json:"notes,omitempty"`
}

type ReconcileResponse struct {
	CRN                      string               `json:"crn"`
	Outcome                  string               `json:"outcome"`
	AppointmentCreationCount int                  `json:"appointment_creation_count"`
	Plan                     []PlanActionResponse `json:"plan,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
