package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Details are the contact fields collected before an order is confirmed.
type Details struct {
	Name         string `json:"name" validate:"required,max=200"`
	Phone        string `json:"phone" validate:"required,min=7,max=32"`
	Email        string `json:"email" validate:"required,email"`
	Comment      string `json:"comment,omitempty" validate:"max=2000"`
	AgreeToTerms bool   `json:"agree_to_terms" validate:"eq=true"`
}

// Customer is the contact part of a submission.
type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// FileMetadata describes one printed design without its content.
type FileMetadata struct {
	Name         string  `json:"name"`
	MIMEType     string  `json:"mime_type,omitempty"`
	Size         int64   `json:"size"`
	WidthCm      float64 `json:"width_cm"`
	HeightCm     float64 `json:"height_cm"`
	HasPixelData bool    `json:"has_pixel_data"`
}

// Submission is the order handed to fulfilment.
type Submission struct {
	ID              string         `json:"id"`
	Files           []FileMetadata `json:"files"`
	TotalPrice      float64        `json:"total_price"`
	Currency        string         `json:"currency"`
	PrintMode       string         `json:"print_mode"`
	Copies          int            `json:"copies"`
	CustomerComment string         `json:"customer_comment,omitempty"`
	Customer        Customer       `json:"customer"`
	CreatedAt       time.Time      `json:"created_at"`
}

// FieldError is a single failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists every field of Details that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Rule
	}
	return "invalid order details: " + strings.Join(parts, ", ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate trims the details and checks every rule, returning a *ValidationError
// when the input is rejected.
func (d *Details) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Phone = strings.TrimSpace(d.Phone)
	d.Email = strings.TrimSpace(d.Email)
	d.Comment = strings.TrimSpace(d.Comment)

	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("validate order details: %w", err)
	}
	fields := make([]FieldError, len(ve))
	for i, fe := range ve {
		fields[i] = FieldError{Field: jsonFieldName(fe.Field()), Rule: fe.Tag()}
	}
	return &ValidationError{Fields: fields}
}

func jsonFieldName(field string) string {
	switch field {
	case "AgreeToTerms":
		return "agree_to_terms"
	}
	return strings.ToLower(field)
}

// NewSubmission assembles a submission with a fresh ID.
func NewSubmission(d Details, files []FileMetadata, mode string, copies int, total float64, currency string, now time.Time) Submission {
	return Submission{
		ID:              uuid.NewString(),
		Files:           files,
		TotalPrice:      total,
		Currency:        currency,
		PrintMode:       mode,
		Copies:          copies,
		CustomerComment: d.Comment,
		Customer:        Customer{Name: d.Name, Phone: d.Phone, Email: d.Email},
		CreatedAt:       now.UTC(),
	}
}
