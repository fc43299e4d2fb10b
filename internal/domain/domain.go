package domain

// Role is the closed set of roles known to the directory.
type Role string

const (
	RoleObserver Role = "observer"
	RoleManager  Role = "manager"
	RoleHSE      Role = "hse"
)

func (r Role) Valid() bool {
	switch r {
	case RoleObserver, RoleManager, RoleHSE:
		return true
	}
	return false
}

// Status is the review state of an observation.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPending Status = "pending"
	StatusClosed  Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPending, StatusClosed:
		return true
	}
	return false
}

// Kind is the severity/valence of an observation, fixed at creation.
type Kind string

const (
	KindSafe     Kind = "safe"
	KindUnsafe   Kind = "unsafe"
	KindNearMiss Kind = "near-miss"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSafe, KindUnsafe, KindNearMiss:
		return true
	}
	return false
}

// Focus distinguishes behavioral acts from workplace conditions.
type Focus string

const (
	FocusAct       Focus = "act"
	FocusCondition Focus = "condition"
)

func (f Focus) Valid() bool {
	return f == FocusAct || f == FocusCondition
}

// ActionStatus tracks the remediation action of an actionable observation.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in-progress"
	ActionCompleted  ActionStatus = "completed"
)

func (a ActionStatus) Valid() bool {
	switch a {
	case ActionPending, ActionInProgress, ActionCompleted:
		return true
	}
	return false
}

// NotificationKind classifies stored notifications.
type NotificationKind string

const (
	NotifyInfo    NotificationKind = "info"
	NotifyAlert   NotificationKind = "alert"
	NotifySuccess NotificationKind = "success"
)

// Identity is a directory entry. Immutable once created; owned by the
// directory, never by this service.
type Identity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Role       Role   `json:"role" enum:"observer,manager,hse"`
}

// Comment is an append-only note on an observation.
type Comment struct {
	ID         string `json:"id"`
	AuthorID   string `json:"author_id"`
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Observation is a Safety Behavioral Observation record.
//
// ObserverSnapshot is the submitting identity copied at creation time;
// later directory changes never retroactively alter past observations.
type Observation struct {
	ID                string        `json:"id"`
	Kind              Kind          `json:"kind" enum:"safe,unsafe,near-miss"`
	Focus             Focus         `json:"focus" enum:"act,condition"`
	Location          string        `json:"location"`
	Unit              string        `json:"unit"`
	AreaManager       string        `json:"area_manager"`
	Category          string        `json:"category"`
	SubCategory       string        `json:"sub_category"`
	Description       string        `json:"description"`
	SuggestedSolution string        `json:"suggested_solution,omitempty"`
	ImageRef          string        `json:"image_ref,omitempty"`
	Status            Status        `json:"status" enum:"open,pending,closed"`
	Comments          []Comment     `json:"comments"`
	ObserverSnapshot  Identity      `json:"observer"`
	CreatedAt         string        `json:"created_at" format:"date-time"`
	ClosedAt          *string       `json:"closed_at,omitempty" format:"date-time"`
	ClosedBy          *string       `json:"closed_by,omitempty"`
	IsActionable      bool          `json:"is_actionable"`
	ActionAssigneeID  *string       `json:"action_assignee_id,omitempty"`
	ActionStatus      *ActionStatus `json:"action_status,omitempty" enum:"pending,in-progress,completed"`
	ActionDeadline    *string       `json:"action_deadline,omitempty" format:"date-time"`
	ActionAssignedAt  *string       `json:"action_assigned_at,omitempty" format:"date-time"`
	ActionCompletedAt *string       `json:"action_completed_at,omitempty" format:"date-time"`
}

// Draft is the caller-supplied part of a new observation.
type Draft struct {
	Kind              Kind    `json:"kind" enum:"safe,unsafe,near-miss"`
	Focus             Focus   `json:"focus" enum:"act,condition"`
	Location          string  `json:"location"`
	Unit              string  `json:"unit"`
	AreaManager       string  `json:"area_manager"`
	Category          string  `json:"category"`
	SubCategory       string  `json:"sub_category"`
	Description       string  `json:"description"`
	SuggestedSolution string  `json:"suggested_solution,omitempty"`
	ImageRef          string  `json:"image_ref,omitempty"`
	ActionDeadline    *string `json:"action_deadline,omitempty" format:"date-time"`
}

// Notification is a best-effort side-channel message to a recipient.
type Notification struct {
	ID            string           `json:"id"`
	RecipientID   string           `json:"recipient_id"`
	Message       string           `json:"message"`
	Kind          NotificationKind `json:"kind" enum:"info,alert,success"`
	ObservationID string           `json:"observation_id,omitempty"`
	CreatedAt     string           `json:"created_at" format:"date-time"`
	Read          bool             `json:"read"`
}

// Event is an append-only audit log entry.
type Event struct {
	ID            int64  `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Type          string `json:"type"`
	ObservationID string `json:"observation_id,omitempty"`
	ActorID       string `json:"actor_id"`
	Payload       string `json:"payload_json"`
}
