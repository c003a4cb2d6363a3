package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	MessageFieldsRequired = "All fields are required"
	MessageInvalidEmail   = "Please enter a valid email address"

	notificationSubjectPrefix = "New Contact Form Submission: "
	confirmationSubject       = "Thank you for contacting us"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ContactForm is a contact submission.
type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// ContactReceipt carries the provider ids of both messages.
type ContactReceipt struct {
	NotificationID string
	ConfirmationID string
}

// ValidationError reports a contact form the service refuses to send.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string { return e.Message }

// ValidateContact checks required fields and email syntax. The error message is safe to show.
func ValidateContact(form ContactForm) error {
	if strings.TrimSpace(form.Name) == "" || strings.TrimSpace(form.Email) == "" ||
		strings.TrimSpace(form.Subject) == "" || strings.TrimSpace(form.Message) == "" {
		return &ValidationError{Message: MessageFieldsRequired}
	}
	if !emailPattern.MatchString(strings.TrimSpace(form.Email)) {
		return &ValidationError{Message: MessageInvalidEmail}
	}
	return nil
}

// ContactServiceDeps groups constructor parameters for the contact service.
type ContactServiceDeps struct {
	Sender Sender
	From   string
	Inbox  string
	Logger *zap.Logger
}

// ContactService turns a submission into a notification for the team and a confirmation for
// the submitter.
type ContactService struct {
	sender Sender
	from   string
	inbox  string
	logger *zap.Logger
}

var (
	// ErrSenderMissing signals that no Sender was configured.
	ErrSenderMissing = errors.New("mail: sender is not configured")
	// ErrAddressMissing signals that the from or inbox address is empty.
	ErrAddressMissing = errors.New("mail: from and inbox addresses are required")
)

// NewContactService constructs the service with the supplied dependencies.
func NewContactService(deps ContactServiceDeps) (*ContactService, error) {
	if deps.Sender == nil {
		return nil, ErrSenderMissing
	}
	from, inbox := strings.TrimSpace(deps.From), strings.TrimSpace(deps.Inbox)
	if from == "" || inbox == "" {
		return nil, ErrAddressMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactService{sender: deps.Sender, from: from, inbox: inbox, logger: logger}, nil
}

// Send validates form and dispatches the notification, then the confirmation. The two sends
// succeed or fail as one unit: the first failure stops the sequence and is returned.
func (s *ContactService) Send(ctx context.Context, form ContactForm) (ContactReceipt, error) {
	form = normalizeForm(form)
	if err := ValidateContact(form); err != nil {
		return ContactReceipt{}, err
	}

	notification, err := render("notification.html", form)
	if err != nil {
		return ContactReceipt{}, err
	}
	confirmation, err := render("confirmation.html", form)
	if err != nil {
		return ContactReceipt{}, err
	}

	var receipt ContactReceipt
	receipt.NotificationID, err = s.sender.Send(ctx, Message{
		From:    s.from,
		To:      []string{s.inbox},
		Subject: notificationSubjectPrefix + form.Subject,
		HTML:    notification,
	})
	if err != nil {
		s.logger.Error("mail: contact notification failed", zap.Error(err))
		return ContactReceipt{}, fmt.Errorf("mail: send notification: %w", err)
	}

	receipt.ConfirmationID, err = s.sender.Send(ctx, Message{
		From:    s.from,
		To:      []string{form.Email},
		Subject: confirmationSubject,
		HTML:    confirmation,
	})
	if err != nil {
		s.logger.Error("mail: contact confirmation failed",
			zap.String("notification_id", receipt.NotificationID),
			zap.Error(err),
		)
		return ContactReceipt{}, fmt.Errorf("mail: send confirmation: %w", err)
	}

	s.logger.Info("mail: contact submission sent",
		zap.String("notification_id", receipt.NotificationID),
		zap.String("confirmation_id", receipt.ConfirmationID),
	)
	return receipt, nil
}

func normalizeForm(form ContactForm) ContactForm {
	return ContactForm{
		Name:    strings.TrimSpace(form.Name),
		Email:   strings.TrimSpace(form.Email),
		Subject: strings.Join(strings.Fields(form.Subject), " "),
		Message: strings.TrimSpace(form.Message),
	}
}

func render(name string, form ContactForm) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, form); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}
