package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ComplaintStatus is the lifecycle state of a complaint
type ComplaintStatus string

const (
	StatusSubmitted   ComplaintStatus = "submitted"
	StatusUnderReview ComplaintStatus = "under_review"
	StatusInProgress  ComplaintStatus = "in_progress"
	StatusResolved    ComplaintStatus = "resolved"
	StatusClosed      ComplaintStatus = "closed"
	StatusEscalated   ComplaintStatus = "escalated"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []ComplaintStatus {
	return []ComplaintStatus{
		StatusSubmitted, StatusUnderReview, StatusInProgress,
		StatusResolved, StatusClosed, StatusEscalated,
	}
}

func (s ComplaintStatus) Valid() bool {
	for _, v := range AllStatuses() {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the complaint is resolved or closed.
func (s ComplaintStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// IsPending reports whether the complaint still awaits handling. Escalated
// complaints are neither pending nor terminal.
func (s ComplaintStatus) IsPending() bool {
	return s == StatusSubmitted || s == StatusUnderReview || s == StatusInProgress
}

// Priority of a complaint
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func AllPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

func (p Priority) Valid() bool {
	for _, v := range AllPriorities() {
		if p == v {
			return true
		}
	}
	return false
}

// Category is the closed set of complaint subjects
type Category string

const (
	CategoryAcademic       Category = "academic"
	CategoryHousing        Category = "housing"
	CategoryHarassment     Category = "harassment"
	CategoryFinancial      Category = "financial"
	CategoryFacilities     Category = "facilities"
	CategoryDiscrimination Category = "discrimination"
	CategorySafety         Category = "safety"
	CategoryTechnology     Category = "technology"
	CategoryFoodServices   Category = "food_services"
	CategoryTransportation Category = "transportation"
	CategoryOther          Category = "other"
)

func AllCategories() []Category {
	return []Category{
		CategoryAcademic, CategoryHousing, CategoryHarassment, CategoryFinancial,
		CategoryFacilities, CategoryDiscrimination, CategorySafety, CategoryTechnology,
		CategoryFoodServices, CategoryTransportation, CategoryOther,
	}
}

func (c Category) Valid() bool {
	for _, v := range AllCategories() {
		if c == v {
			return true
		}
	}
	return false
}

// Complaint is a case filed by a user against their university.
// UniversityID is copied from the complainant at creation and never changes.
type Complaint struct {
	ID                 uint                        `gorm:"primarykey" json:"id"`
	CreatedAt          time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
	DeletedAt          gorm.DeletedAt              `gorm:"index" json:"-"`
	Title              string                      `gorm:"size:200;not null" json:"title"`
	Description        string                      `gorm:"type:text;not null" json:"description"`
	Category           Category                    `gorm:"type:varchar(30);not null;index" json:"category"`
	Priority           Priority                    `gorm:"type:varchar(20);default:'medium'" json:"priority"`
	Status             ComplaintStatus             `gorm:"type:varchar(20);default:'submitted';index" json:"status"`
	ComplainantID      uint                        `gorm:"not null;index" json:"complainant_id"`
	UniversityID       uint                        `gorm:"not null;index" json:"university_id"`
	DepartmentID       *uint                       `gorm:"index" json:"department_id,omitempty"`
	IsAnonymous        bool                        `gorm:"default:false" json:"is_anonymous"`
	IncidentDate       *time.Time                  `json:"incident_date,omitempty"`
	Location           string                      `json:"location,omitempty"`
	Witnesses          datatypes.JSONSlice[string] `json:"witnesses"`
	Resolution         string                      `gorm:"type:text" json:"resolution,omitempty"`
	ResolvedAt         *time.Time                  `json:"resolved_at,omitempty"`
	ResolvedByID       *uint                       `json:"resolved_by_id,omitempty"`
	DueDate            *time.Time                  `gorm:"index" json:"due_date,omitempty"`
	SatisfactionRating *int                        `json:"satisfaction_rating,omitempty"`
	Feedback           string                      `gorm:"type:text" json:"feedback,omitempty"`
	Version            uint                        `gorm:"not null;default:1" json:"version"`

	// Relationships
	Complainant User                  `gorm:"foreignKey:ComplainantID" json:"-"`
	Assignments []ComplaintAssignment `gorm:"foreignKey:ComplaintID" json:"-"`
}

// AssignedUserIDs returns the ids of the currently assigned users. Assignments
// must be preloaded.
func (c *Complaint) AssignedUserIDs() []uint {
	ids := make([]uint, 0, len(c.Assignments))
	for _, a := range c.Assignments {
		ids = append(ids, a.UserID)
	}
	return ids
}

// IsAssigned reports whether userID is in the assigned set.
func (c *Complaint) IsAssigned(userID uint) bool {
	for _, a := range c.Assignments {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// ComplaintAssignment links a complaint to one of its assigned users. The
// pair is unique, so the assigned users form a set.
type ComplaintAssignment struct {
	ComplaintID uint      `gorm:"primaryKey;autoIncrement:false" json:"complaint_id"`
	UserID      uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName keeps the join table name stable
func (ComplaintAssignment) TableName() string {
	return "complaint_assignments"
}
