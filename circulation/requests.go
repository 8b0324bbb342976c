package circulation

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// DueDateLayout is the calendar date layout accepted for due dates, besides RFC 3339.
const DueDateLayout = "2006-01-02"

// IssueRequest carries the borrower data of an Issue.
type IssueRequest struct {
	Mobile   string `json:"mobile" validate:"required"`
	Borrower string `json:"borrower" validate:"required"`
	DueDate  string `json:"dueDate" validate:"required"`
}

// ReturnRequest carries the identity of the person returning a book; at least one field is required.
type ReturnRequest struct {
	BorrowerName string `json:"borrowerName" validate:"required_without=Mobile"`
	Mobile       string `json:"mobile" validate:"required_without=BorrowerName"`
}

// NewBook is the data needed to add a book to the inventory.
type NewBook struct {
	ISBN   string `json:"isbn" validate:"required"`
	Title  string `json:"title" validate:"required"`
	Author string `json:"author" validate:"required"`
}

// NewMember is the data needed to register a member.
type NewMember struct {
	Name   string `json:"name" validate:"required"`
	Mobile string `json:"mobile" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

// MemberUpdate holds the contact fields to change; empty fields are left untouched.
type MemberUpdate struct {
	Name   string `json:"name" validate:"required_without=Mobile"`
	Mobile string `json:"mobile" validate:"required_without=Name"`
}

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}

		return name
	})

	return v
}

// validateRequest runs the struct tag rules and converts violations into a validation error.
func validateRequest(op string, request any) error {
	err := requestValidator.Struct(request)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
			return fe.Field() + " (" + fe.Tag() + ")"
		})

		return validationError(op, "missing or invalid fields: "+strings.Join(fields, ", "))
	}

	return validationError(op, err.Error())
}

func validateISBN(op, isbn string) error {
	if strings.TrimSpace(isbn) == "" {
		return validationError(op, "missing or invalid fields: isbn (required)")
	}

	return nil
}

// parseDueDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func parseDueDate(op, raw string) (time.Time, error) {
	if dueDate, err := time.Parse(DueDateLayout, raw); err == nil {
		return dueDate.UTC(), nil
	}

	if dueDate, err := time.Parse(time.RFC3339, raw); err == nil {
		return dueDate.UTC(), nil
	}

	return time.Time{}, validationError(op, "dueDate must be a date (YYYY-MM-DD) or an RFC 3339 timestamp")
}

func (r IssueRequest) normalized() IssueRequest {
	return IssueRequest{
		Mobile:   strings.TrimSpace(r.Mobile),
		Borrower: strings.TrimSpace(r.Borrower),
		DueDate:  strings.TrimSpace(r.DueDate),
	}
}

func (r ReturnRequest) normalized() ReturnRequest {
	return ReturnRequest{
		BorrowerName: strings.TrimSpace(r.BorrowerName),
		Mobile:       strings.TrimSpace(r.Mobile),
	}
}

func (b NewBook) normalized() NewBook {
	return NewBook{
		ISBN:   strings.TrimSpace(b.ISBN),
		Title:  strings.TrimSpace(b.Title),
		Author: strings.TrimSpace(b.Author),
	}
}

func (m NewMember) normalized() NewMember {
	return NewMember{
		Name:   strings.TrimSpace(m.Name),
		Mobile: strings.TrimSpace(m.Mobile),
		Email:  strings.TrimSpace(m.Email),
	}
}

func (u MemberUpdate) normalized() MemberUpdate {
	return MemberUpdate{
		Name:   strings.TrimSpace(u.Name),
		Mobile: strings.TrimSpace(u.Mobile),
	}
}
