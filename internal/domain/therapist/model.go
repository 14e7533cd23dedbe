package therapist

import (
	"errors"
	"slices"
	"time"
)

// Wizard step constants, in the order they are presented.
const (
	StepPersonal     = "personal"
	StepProfessional = "professional"
	StepRates        = "rates"
	StepReview       = "review"
)

// Steps lists the onboarding steps in order.
var Steps = []string{StepPersonal, StepProfessional, StepRates, StepReview}

// Application status constants as reported by the API.
const (
	StatusSubmitted   = "submitted"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

// Domain errors.
var (
	ErrUnknownStep     = errors.New("unknown onboarding step")
	ErrStepLocked      = errors.New("complete the previous steps first")
	ErrIncomplete      = errors.New("all onboarding steps must be completed before submitting")
	ErrEmptyDraftOwner = errors.New("draft owner cannot be empty")
)

// Personal holds the first wizard step.
type Personal struct {
	FirstName    string   `json:"first_name" validate:"required,notblank,max=60"`
	LastName     string   `json:"last_name" validate:"required,notblank,max=60"`
	Email        string   `json:"email" validate:"required,email,max=254"`
	ConfirmEmail string   `json:"confirm_email" validate:"required,eqfield=Email"`
	Phone        string   `json:"phone" validate:"required,e164"`
	CountryCode  string   `json:"country_code" validate:"required,iso3166_1_alpha2"`
	Languages    []string `json:"languages" validate:"required,min=1,max=10,dive,len=2,lowercase"`
}

// Professional holds the second wizard step.
type Professional struct {
	LicenseNumber   string   `json:"license_number" validate:"required,alphanumdash,min=4,max=40"`
	LicenseCountry  string   `json:"license_country" validate:"required,iso3166_1_alpha2"`
	YearsExperience int      `json:"years_experience" validate:"gte=0,lte=60"`
	Specializations []string `json:"specializations" validate:"required,min=1,max=8,unique,dive,required"`
	Bio             string   `json:"bio" validate:"required,min=80,max=2000"`
}

// Rates holds the third wizard step.
type Rates struct {
	CurrencyCode   string  `json:"currency_code" validate:"required,iso4217"`
	SessionPrice   float64 `json:"session_price" validate:"gt=0,lte=10000"`
	SessionMinutes int     `json:"session_minutes" validate:"oneof=30 45 50 60 90"`
	SlidingScale   bool    `json:"sliding_scale"`
	MinPrice       float64 `json:"min_price" validate:"required_if=SlidingScale true,gte=0"`
}

// Application is the full onboarding payload sent to the API.
type Application struct {
	Personal     Personal     `json:"personal"`
	Professional Professional `json:"professional"`
	Rates        Rates        `json:"rates"`
}

// Submitted is the API's acknowledgement of an application.
type Submitted struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is a therapist row as listed by the API.
type Summary struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	Version   int    `json:"version"`
}

// Draft is a partially completed application saved between wizard steps.
// INVARIANT: Completed only contains known steps, in wizard order.
type Draft struct {
	OwnerID   string
	Data      Application
	Completed []string
	UpdatedAt time.Time
}

// IsKnownStep reports whether step names a wizard step.
func IsKnownStep(step string) bool {
	return slices.Contains(Steps, step)
}

// IsComplete reports whether step has been completed.
func (d *Draft) IsComplete(step string) bool {
	return slices.Contains(d.Completed, step)
}

// CanEnter reports whether every step before step is complete.
// PRE: step is a known step
func (d *Draft) CanEnter(step string) bool {
	idx := slices.Index(Steps, step)
	if idx < 0 {
		return false
	}
	for _, prev := range Steps[:idx] {
		if !d.IsComplete(prev) {
			return false
		}
	}
	return true
}

// MarkComplete records step as done.
// PRE: step is known and enterable
// POST: Completed contains step, sorted in wizard order
func (d *Draft) MarkComplete(step string) error {
	if !IsKnownStep(step) {
		return ErrUnknownStep
	}
	if !d.CanEnter(step) {
		return ErrStepLocked
	}
	if d.IsComplete(step) {
		return nil
	}
	d.Completed = append(d.Completed, step)
	slices.SortFunc(d.Completed, func(a, b string) int {
		return slices.Index(Steps, a) - slices.Index(Steps, b)
	})
	return nil
}

// CurrentStep returns the first incomplete step, or StepReview when all are done.
func (d *Draft) CurrentStep() string {
	for _, s := range Steps {
		if !d.IsComplete(s) {
			return s
		}
	}
	return StepReview
}

// NextStep returns the step after step, or "" for the last one.
func NextStep(step string) string {
	idx := slices.Index(Steps, step)
	if idx < 0 || idx == len(Steps)-1 {
		return ""
	}
	return Steps[idx+1]
}

// ReadyToSubmit reports whether the data steps are complete.
func (d *Draft) ReadyToSubmit() bool {
	for _, s := range Steps[:len(Steps)-1] {
		if !d.IsComplete(s) {
			return false
		}
	}
	return true
}
