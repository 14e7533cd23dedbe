package forms

// Login is the portal sign-in form.
type Login struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

// Contact is the public contact form on the marketing site.
// Website is a honeypot and must stay empty.
type Contact struct {
	Name    string `json:"name" validate:"required,notblank,max=100"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Topic   string `json:"topic" validate:"required,oneof=general therapist billing press"`
	Message string `json:"message" validate:"required,min=20,max=4000"`
	Website string `json:"website" validate:"max=0"`
}

// NewAdmin is the create-admin form; the password is forwarded to the API and never stored.
type NewAdmin struct {
	Name            string `json:"name" validate:"required,notblank,max=100"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Role            string `json:"role" validate:"required,oneof=super_admin admin"`
	Password        string `json:"password" validate:"required,min=12,max=256"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// CancelSession is the cancel-appointment form.
type CancelSession struct {
	ID      string `json:"id" validate:"required"`
	Reason  string `json:"reason" validate:"required,notblank,max=500"`
	Version int    `json:"version" validate:"gte=0"`
}

// Reorder is the drag-and-drop reorder request.
type Reorder struct {
	QuestionnaireID string `json:"questionnaire_id" validate:"required"`
	QuestionID      string `json:"question_id" validate:"required"`
	NewIndex        int    `json:"new_index" validate:"gte=0"`
}
