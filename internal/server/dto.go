package server

import (
	"safetrack/internal/domain"
)

type SubmitObservationRequest struct {
	Kind              string  `json:"kind" enum:"safe,unsafe,near-miss" doc:"Observation kind"`
	Focus             string  `json:"focus" enum:"act,condition" doc:"Behavioral act or workplace condition"`
	Location          string  `json:"location"`
	Unit              string  `json:"unit"`
	AreaManager       string  `json:"area_manager"`
	Category          string  `json:"category"`
	SubCategory       string  `json:"sub_category"`
	Description       string  `json:"description"`
	SuggestedSolution string  `json:"suggested_solution,omitempty"`
	ActionDeadline    *string `json:"action_deadline,omitempty" format:"date-time"`
	ImageBase64       string  `json:"image_base64,omitempty" doc:"Optional image payload, base64-encoded"`
}

func (r SubmitObservationRequest) draft() domain.Draft {
	return domain.Draft{
		Kind:              domain.Kind(r.Kind),
		Focus:             domain.Focus(r.Focus),
		Location:          r.Location,
		Unit:              r.Unit,
		AreaManager:       r.AreaManager,
		Category:          r.Category,
		SubCategory:       r.SubCategory,
		Description:       r.Description,
		SuggestedSolution: r.SuggestedSolution,
		ActionDeadline:    r.ActionDeadline,
	}
}

type AddCommentRequest struct {
	Text string `json:"text" doc:"Comment text; a new comment moves the observation to pending"`
}

type ReassignRequest struct {
	AreaManager string `json:"area_manager" doc:"New area manager; the observation reopens"`
}

type AssignActionRequest struct {
	AssigneeID string `json:"assignee_id"`
}

type ObservationListResponse struct {
	Observations []domain.Observation `json:"observations"`
	Degraded     bool                 `json:"degraded" doc:"True when served from the offline cache after a backend failure"`
}

type VocabularyResponse struct {
	Locations    []string            `json:"locations"`
	Units        []string            `json:"units"`
	AreaManagers []string            `json:"area_managers"`
	Categories   map[string][]string `json:"categories"`
}
