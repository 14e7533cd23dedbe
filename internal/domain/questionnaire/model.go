package questionnaire

import (
	"errors"
	"slices"
	"strings"
	"time"

	"portal/internal/domain/ordering"
)

// Questionnaire status constants.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Question type constants.
const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeText           = "text"
	TypeScale          = "scale"
)

// QuestionTypes lists the question types in the order editors offer them.
var QuestionTypes = []string{TypeSingleChoice, TypeMultipleChoice, TypeText, TypeScale}

// Max length constants for user-editable fields.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxQuestionLength    = 500
	MaxOptionLength      = 200
	MaxOptions           = 20
)

// ValidTypes contains all valid question types.
var ValidTypes = []string{TypeSingleChoice, TypeMultipleChoice, TypeText, TypeScale}

// Domain errors.
var (
	ErrEmptyTitle          = errors.New("questionnaire title cannot be empty")
	ErrTitleTooLong        = errors.New("questionnaire title cannot exceed 200 characters")
	ErrDescriptionTooLong  = errors.New("questionnaire description cannot exceed 2000 characters")
	ErrInvalidStatus       = errors.New("invalid questionnaire status")
	ErrAlreadyPublished    = errors.New("questionnaire is already published")
	ErrNotPublished        = errors.New("only published questionnaires can be archived")
	ErrArchived            = errors.New("archived questionnaires cannot be modified")
	ErrEmptyQuestionnaire  = errors.New("questionnaire ID cannot be empty")
	ErrEmptyText           = errors.New("question text cannot be empty")
	ErrTextTooLong         = errors.New("question text cannot exceed 500 characters")
	ErrInvalidType         = errors.New("question type must be one of: single_choice, multiple_choice, text, scale")
	ErrTooFewOptions       = errors.New("choice questions need at least two options")
	ErrTooManyOptions      = errors.New("a question cannot have more than 20 options")
	ErrUnexpectedOptions   = errors.New("text and scale questions cannot have options")
	ErrEmptyOption         = errors.New("options cannot be empty")
	ErrOptionTooLong       = errors.New("options cannot exceed 200 characters")
	ErrDuplicateOption     = errors.New("options must be unique")
	ErrQuestionNotInParent = errors.New("question does not belong to this questionnaire")
)

// Questionnaire is an intake or assessment form made of ordered questions.
type Questionnaire struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the questionnaire's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (q *Questionnaire) Validate() error {
	title := strings.TrimSpace(q.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if len(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if len(q.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if q.Status != StatusDraft && q.Status != StatusPublished && q.Status != StatusArchived {
		return ErrInvalidStatus
	}
	return nil
}

// Publish transitions the questionnaire from draft to published.
// PRE: Status is draft
// POST: Status is published
func (q *Questionnaire) Publish() error {
	switch q.Status {
	case StatusPublished:
		return ErrAlreadyPublished
	case StatusArchived:
		return ErrArchived
	}
	q.Status = StatusPublished
	return nil
}

// Archive transitions the questionnaire from published to archived.
// PRE: Status is published
// POST: Status is archived
func (q *Questionnaire) Archive() error {
	if q.Status != StatusPublished {
		return ErrNotPublished
	}
	q.Status = StatusArchived
	return nil
}

// IsEditable returns true unless the questionnaire has been archived.
func (q *Questionnaire) IsEditable() bool {
	return q.Status != StatusArchived
}

// Question is one orderable item of a questionnaire.
// INVARIANT: Order establishes the display order among questions sharing a
// QuestionnaireID. It is set on creation and changed only by a reorder or an
// explicit edit; deleting a sibling never renumbers the rest.
type Question struct {
	ID              string   `json:"id"`
	QuestionnaireID string   `json:"questionnaire_id"`
	Text            string   `json:"text"`
	Type            string   `json:"type"`
	Options         []string `json:"options"`
	Required        bool     `json:"required"`
	Order           float64  `json:"order"`
	Version         int      `json:"version"`
}

// Validate checks the question's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (q *Question) Validate() error {
	if q.QuestionnaireID == "" {
		return ErrEmptyQuestionnaire
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return ErrEmptyText
	}
	if len(text) > MaxQuestionLength {
		return ErrTextTooLong
	}
	if !slices.Contains(ValidTypes, q.Type) {
		return ErrInvalidType
	}
	return validateOptions(q.Type, q.Options)
}

// IsChoice returns true for single and multiple choice questions.
func (q *Question) IsChoice() bool {
	return q.Type == TypeSingleChoice || q.Type == TypeMultipleChoice
}

func validateOptions(qType string, options []string) error {
	if qType == TypeText || qType == TypeScale {
		if len(options) > 0 {
			return ErrUnexpectedOptions
		}
		return nil
	}
	if len(options) < 2 {
		return ErrTooFewOptions
	}
	if len(options) > MaxOptions {
		return ErrTooManyOptions
	}
	seen := make(map[string]bool, len(options))
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			return ErrEmptyOption
		}
		if len(o) > MaxOptionLength {
			return ErrOptionTooLong
		}
		key := strings.ToLower(o)
		if seen[key] {
			return ErrDuplicateOption
		}
		seen[key] = true
	}
	return nil
}

// OrderItems projects questions onto ordering items, preserving slice order.
func OrderItems(questions []Question) []ordering.Item {
	out := make([]ordering.Item, len(questions))
	for i, q := range questions {
		out[i] = ordering.Item{ID: q.ID, Order: q.Order}
	}
	return out
}

// SortQuestions orders questions ascending by Order; ties keep fetch order.
func SortQuestions(questions []Question) {
	slices.SortStableFunc(questions, func(a, b Question) int {
		switch {
		case a.Order < b.Order:
			return -1
		case a.Order > b.Order:
			return 1
		}
		return 0
	})
}
