package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"portal/internal/application/forms"
	"portal/internal/domain/admin"
	"portal/internal/domain/audit"
	"portal/internal/domain/country"
	"portal/internal/domain/currency"
	"portal/internal/domain/language"
	"portal/internal/domain/questionnaire"
	"portal/internal/domain/specialization"
	"portal/internal/domain/therapist"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func adminResource(c Collection[admin.Admin]) resource[admin.Admin] {
	return resource[admin.Admin]{
		Name:     "admins",
		Title:    "Administrators",
		Category: audit.CategorySystem,
		Coll:     c,
		Columns:  []column{{"name", "Name"}, {"email", "Email"}, {"role", "Role"}, {"", "Active"}},
		Cells: func(a admin.Admin) []string {
			return []string{a.Name, a.Email, a.Role, yesNo(a.Active)}
		},
		ID:       func(a admin.Admin) string { return a.ID },
		Sortable: []string{"name", "email", "role", "created_at"},
		Filters:  []string{"role", "active"},
		Fields: []field{
			{Name: "name", Label: "Name", Type: "text", Required: true},
			{Name: "email", Label: "Email", Type: "email", Required: true},
			{Name: "role", Label: "Role", Type: "select", Options: admin.ValidRoles, Required: true},
			{Name: "active", Label: "Active", Type: "checkbox"},
			{Name: "password", Label: "Password", Type: "password", Required: true, CreateOnly: true},
			{Name: "confirm_password", Label: "Confirm password", Type: "password", Required: true, CreateOnly: true},
		},
		Prepare: func(a *admin.Admin) error {
			a.Name = strings.TrimSpace(a.Name)
			a.Email = strings.ToLower(strings.TrimSpace(a.Email))
			return invalid(a.Validate())
		},
		CreateBody: createAdminBody,
		Guard: func(r *http.Request, s *Server, id string, next *admin.Admin) error {
			all, err := listAll(r, s, c)
			if err != nil {
				return err
			}
			if next == nil {
				// a delete is a deactivation for this check
				i := slices.IndexFunc(all, func(a admin.Admin) bool { return a.ID == id })
				if i < 0 {
					return nil
				}
				gone := all[i]
				gone.Active = false
				return admin.CheckDemotion(all, gone)
			}
			upd := *next
			upd.ID = id
			return admin.CheckDemotion(all, upd)
		},
	}
}

// createAdminBody validates the new-admin form. The password goes to the
// API once and is never kept.
func createAdminBody(s *Server, raw []byte) (any, error) {
	var in struct {
		forms.NewAdmin
		Active *bool `json:"active"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, invalid(errMalformed(err))
	}
	f := in.NewAdmin
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	if err := s.Validator.Struct(f); err != nil {
		return nil, err
	}
	return map[string]any{
		"name":     f.Name,
		"email":    f.Email,
		"role":     f.Role,
		"password": f.Password,
		"active":   in.Active == nil || *in.Active,
	}, nil
}

func countryResource(c Collection[country.Country]) resource[country.Country] {
	return resource[country.Country]{
		Name:     "countries",
		Title:    "Countries",
		Category: audit.CategoryReference,
		Coll:     c,
		Columns:  []column{{"name", "Name"}, {"iso_code", "ISO"}, {"", "Dial code"}, {"", "Currency"}, {"", "Active"}},
		Cells: func(x country.Country) []string {
			return []string{x.Name, x.ISOCode, x.DialCode, x.CurrencyCode, yesNo(x.Active)}
		},
		ID:       func(x country.Country) string { return x.ID },
		Sortable: []string{"name", "iso_code"},
		Filters:  []string{"active"},
		Fields: []field{
			{Name: "name", Label: "Name", Type: "text", Required: true},
			{Name: "iso_code", Label: "ISO code", Type: "text", Required: true},
			{Name: "dial_code", Label: "Dial code", Type: "text"},
			{Name: "currency_code", Label: "Currency code", Type: "text"},
			{Name: "active", Label: "Active", Type: "checkbox"},
		},
		Prepare: func(x *country.Country) error {
			x.Normalize()
			return invalid(x.Validate())
		},
	}
}

func currencyResource(c Collection[currency.Currency]) resource[currency.Currency] {
	return resource[currency.Currency]{
		Name:     "currencies",
		Title:    "Currencies",
		Category: audit.CategoryReference,
		Coll:     c,
		Columns:  []column{{"code", "Code"}, {"name", "Name"}, {"", "Symbol"}, {"", "Decimals"}, {"", "Active"}},
		Cells: func(x currency.Currency) []string {
			return []string{x.Code, x.Name, x.Symbol, strconv.Itoa(x.Decimals), yesNo(x.Active)}
		},
		ID:       func(x currency.Currency) string { return x.ID },
		Sortable: []string{"code", "name"},
		Filters:  []string{"active"},
		Fields: []field{
			{Name: "code", Label: "Code", Type: "text", Required: true},
			{Name: "name", Label: "Name", Type: "text", Required: true},
			{Name: "symbol", Label: "Symbol", Type: "text"},
			{Name: "decimals", Label: "Decimals", Type: "number"},
			{Name: "active", Label: "Active", Type: "checkbox"},
		},
		Prepare: func(x *currency.Currency) error {
			x.Code = strings.ToUpper(strings.TrimSpace(x.Code))
			x.Name = strings.TrimSpace(x.Name)
			return invalid(x.Validate())
		},
	}
}

func languageResource(c Collection[language.Language]) resource[language.Language] {
	return resource[language.Language]{
		Name:     "languages",
		Title:    "Languages",
		Category: audit.CategoryReference,
		Coll:     c,
		Columns:  []column{{"code", "Code"}, {"name", "Name"}, {"", "Native name"}, {"", "Active"}},
		Cells: func(x language.Language) []string {
			return []string{x.Code, x.Name, x.NativeName, yesNo(x.Active)}
		},
		ID:       func(x language.Language) string { return x.ID },
		Sortable: []string{"code", "name"},
		Filters:  []string{"active"},
		Fields: []field{
			{Name: "code", Label: "Code", Type: "text", Required: true},
			{Name: "name", Label: "Name", Type: "text", Required: true},
			{Name: "native_name", Label: "Native name", Type: "text"},
			{Name: "active", Label: "Active", Type: "checkbox"},
		},
		Prepare: func(x *language.Language) error {
			x.Code = strings.ToLower(strings.TrimSpace(x.Code))
			x.Name = strings.TrimSpace(x.Name)
			return invalid(x.Validate())
		},
	}
}

func specializationResource(c Collection[specialization.Specialization]) resource[specialization.Specialization] {
	return resource[specialization.Specialization]{
		Name:     "specializations",
		Title:    "Specializations",
		Category: audit.CategoryReference,
		Coll:     c,
		Columns:  []column{{"name", "Name"}, {"", "Description"}, {"", "Active"}},
		Cells: func(x specialization.Specialization) []string {
			return []string{x.Name, x.Description, yesNo(x.Active)}
		},
		ID:       func(x specialization.Specialization) string { return x.ID },
		Sortable: []string{"name"},
		Filters:  []string{"active"},
		Fields: []field{
			{Name: "name", Label: "Name", Type: "text", Required: true},
			{Name: "description", Label: "Description", Type: "textarea"},
			{Name: "active", Label: "Active", Type: "checkbox"},
		},
		Prepare: func(x *specialization.Specialization) error {
			x.Name = strings.TrimSpace(x.Name)
			return invalid(x.Validate())
		},
	}
}

func questionnaireResource(c Collection[questionnaire.Questionnaire]) resource[questionnaire.Questionnaire] {
	return resource[questionnaire.Questionnaire]{
		Name:     "questionnaires",
		Title:    "Questionnaires",
		Category: audit.CategoryQuestionnaire,
		Coll:     c,
		Columns:  []column{{"title", "Title"}, {"status", "Status"}, {"updated_at", "Updated"}},
		Cells: func(q questionnaire.Questionnaire) []string {
			return []string{q.Title, q.Status, q.UpdatedAt.UTC().Format("2006-01-02")}
		},
		ID:       func(q questionnaire.Questionnaire) string { return q.ID },
		Sortable: []string{"title", "status", "updated_at"},
		Filters:  []string{"status"},
		Fields: []field{
			{Name: "title", Label: "Title", Type: "text", Required: true},
			{Name: "description", Label: "Description", Type: "textarea"},
		},
		Prepare: func(q *questionnaire.Questionnaire) error {
			q.Title = strings.TrimSpace(q.Title)
			q.Description = strings.TrimSpace(q.Description)
			if q.Status == "" {
				q.Status = questionnaire.StatusDraft
			}
			return invalid(q.Validate())
		},
		Detail: func(q questionnaire.Questionnaire) string { return "/admin/questionnaires/" + q.ID },
	}
}

// therapistResource is read-only: applications are reviewed in the API's
// own back office.
func therapistResource(c Collection[therapist.Summary]) resource[therapist.Summary] {
	return resource[therapist.Summary]{
		Name:     "therapists",
		Title:    "Therapists",
		Category: audit.CategoryOnboarding,
		Coll:     c,
		Columns:  []column{{"last_name", "Name"}, {"email", "Email"}, {"status", "Status"}},
		Cells: func(t therapist.Summary) []string {
			return []string{t.FirstName + " " + t.LastName, t.Email, t.Status}
		},
		ID:       func(t therapist.Summary) string { return t.ID },
		Sortable: []string{"last_name", "email", "status"},
		Filters:  []string{"status"},
	}
}
