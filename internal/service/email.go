package service

import (
	"context"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/integrations"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/internal/store"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
)

const (
	resourceEmail = "email"

	emailPreviewLen = 200
	maxSearchLimit  = 50
)

var (
	// editableEmail are the states a draft edit may start from. A failed
	// send can be corrected and retried.
	editableEmail = []model.EmailStatus{model.EmailDraft, model.EmailPendingConfirmation, model.EmailFailed}
	// sendableEmail are the states a confirmed send may claim.
	sendableEmail = editableEmail
	// awaitableEmail are the states an unconfirmed send moves to pending.
	awaitableEmail = []model.EmailStatus{model.EmailDraft, model.EmailFailed}
)

// EmailService drafts and sends outgoing email. A draft only becomes sent
// through a confirmed Send.
type EmailService struct {
	emails  store.EmailRepo
	mailer  integrations.Mailer
	gate    *Gate
	journal Journal
	log     *logger.Logger
	now     Clock
}

// NewEmailService creates an EmailService.
func NewEmailService(emails store.EmailRepo, mailer integrations.Mailer, gate *Gate, journal Journal, log *logger.Logger) *EmailService {
	if journal == nil {
		journal = NopJournal{}
	}
	return &EmailService{
		emails:  emails,
		mailer:  mailer,
		gate:    gate,
		journal: journal,
		log:     log.With("service", "EmailService"),
		now:     time.Now,
	}
}

// Get returns one email.
func (s *EmailService) Get(ctx context.Context, id uint) (*model.Email, error) {
	email, err := s.emails.Get(ctx, id)
	return lookup(email, err, fmt.Sprintf("Email %d not found", id))
}

// List returns emails matching the optional status and mailbox.
func (s *EmailService) List(ctx context.Context, status model.EmailStatus, mailbox model.Mailbox) ([]model.Email, error) {
	if mailbox != "" && !mailbox.Valid() {
		return nil, apperr.Validation("unknown mailbox %q", mailbox)
	}
	filter := store.EmailFilter{Mailbox: mailbox}
	if status != "" {
		filter.Statuses = []model.EmailStatus{status}
	}
	emails, err := s.emails.List(ctx, filter)
	if err != nil {
		return nil, storageErr(err)
	}
	return emails, nil
}

// Pending returns drafts and emails awaiting confirmation.
func (s *EmailService) Pending(ctx context.Context) ([]model.Email, error) {
	emails, err := s.emails.List(ctx, store.EmailFilter{
		Statuses: []model.EmailStatus{model.EmailDraft, model.EmailPendingConfirmation},
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return emails, nil
}

// Search matches query against subject, body and recipient.
func (s *EmailService) Search(ctx context.Context, query string, limit int) ([]model.Email, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = 10
	}
	emails, err := s.emails.Search(ctx, query, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return emails, nil
}

// Draft stores a new email in draft status.
func (s *EmailService) Draft(ctx context.Context, req model.DraftEmailRequest) *model.ActionResult {
	email := &model.Email{
		Mailbox:   req.Mailbox,
		ToAddress: strings.TrimSpace(req.To),
		CcAddress: req.Cc,
		Subject:   strings.TrimSpace(req.Subject),
		Body:      req.Body,
		Status:    model.EmailDraft,
	}
	if email.Mailbox == "" {
		email.Mailbox = model.MailboxPersonal
	}
	if err := validateEmail(email); err != nil {
		return s.done(ctx, "draft", 0, model.ActionFailed(resourceEmail, err))
	}

	if err := s.emails.Create(ctx, email); err != nil {
		return s.done(ctx, "draft", 0, model.ActionFailed(resourceEmail, storageErr(err)))
	}
	return s.done(ctx, "draft", email.ID, model.NewAction(model.ActionDrafted, resourceEmail,
		fmt.Sprintf("Drafted email to %s: '%s'. Ask me to send it when ready.", email.ToAddress, email.Subject),
		emailPayload(email)))
}

// Update edits a draft. Emails awaiting confirmation or whose send failed
// return to draft so the edited content is confirmed again.
func (s *EmailService) Update(ctx context.Context, id uint, req model.UpdateEmailRequest) *model.ActionResult {
	email, err := s.Get(ctx, id)
	if err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceEmail, err))
	}
	if !slices.Contains(editableEmail, email.Status) {
		return s.done(ctx, "update", id, model.ActionFailed(resourceEmail, notEditable(email)))
	}

	if req.Mailbox != nil {
		email.Mailbox = *req.Mailbox
	}
	if req.To != nil {
		email.ToAddress = strings.TrimSpace(*req.To)
	}
	if req.Cc != nil {
		email.CcAddress = req.Cc
	}
	if req.Subject != nil {
		email.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Body != nil {
		email.Body = *req.Body
	}

	if err := validateEmail(email); err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceEmail, err))
	}
	saved, err := s.emails.SaveDraft(ctx, email, editableEmail)
	if err != nil {
		return s.done(ctx, "update", id, model.ActionFailed(resourceEmail, storageErr(err)))
	}
	if !saved {
		err := s.lostRace(ctx, id)
		if err == nil {
			err = notEditable(email)
		}
		return s.done(ctx, "update", id, model.ActionFailed(resourceEmail, err))
	}
	email.Status = model.EmailDraft
	return s.done(ctx, "update", id, model.NewAction(model.ActionUpdated, resourceEmail,
		fmt.Sprintf("Updated draft '%s'", email.Subject), emailPayload(email)))
}

// Send transmits an email once confirmed. An unconfirmed call moves the
// email to pending_confirmation and returns a preview.
func (s *EmailService) Send(ctx context.Context, id uint, confirmed bool) *model.ActionResult {
	return Guard(ctx, s.gate, GuardedOp[model.Email]{
		Resource:  resourceEmail,
		Operation: "send",
		ID:        id,
		Load:      func(ctx context.Context) (*model.Email, error) { return s.Get(ctx, id) },
		Terminal: func(e *model.Email) string {
			switch e.Status {
			case model.EmailSent:
				return fmt.Sprintf("Email %d was already sent", e.ID)
			case model.EmailSending:
				return fmt.Sprintf("Email %d is already being sent", e.ID)
			}
			return ""
		},
		MarkPending: func(ctx context.Context, e *model.Email) error {
			if e.Status == model.EmailPendingConfirmation {
				return nil
			}
			moved, err := s.emails.Transition(ctx, e.ID, awaitableEmail, model.EmailPendingConfirmation)
			if err != nil {
				return storageErr(err)
			}
			if !moved {
				if err := s.lostRace(ctx, e.ID); err != nil {
					return err
				}
			}
			e.Status = model.EmailPendingConfirmation
			return nil
		},
		Preview: func(e *model.Email) (string, map[string]any) {
			return fmt.Sprintf("Ready to send '%s' to %s. Please confirm.", e.Subject, e.ToAddress),
				map[string]any{
					"email_id": e.ID,
					"action":   "send_email",
					"to":       e.ToAddress,
					"subject":  e.Subject,
					"preview":  truncateRunes(e.Body, emailPreviewLen),
					"status":   e.Status,
				}
		},
		Execute: s.transmit,
	}, confirmed)
}

// transmit claims the email by moving it to sending before the mailer is
// called, so only one confirmed caller can ever transmit it.
func (s *EmailService) transmit(ctx context.Context, e *model.Email) *model.ActionResult {
	claimed, err := s.emails.Transition(ctx, e.ID, sendableEmail, model.EmailSending)
	if err != nil {
		return model.ActionFailed(resourceEmail, storageErr(err))
	}
	if !claimed {
		err := s.lostRace(ctx, e.ID)
		if err == nil {
			err = apperr.AlreadyTerminal("Email %d changed while sending, try again", e.ID)
		}
		return model.ActionFailed(resourceEmail, err)
	}

	err = s.mailer.Send(ctx, integrations.Outgoing{
		Mailbox: string(e.Mailbox),
		To:      e.ToAddress,
		Cc:      ptrValue(e.CcAddress),
		Subject: e.Subject,
		Body:    e.Body,
	})
	if err != nil {
		s.log.Error("email transmission failed", "email_id", e.ID, "error", err)
		failCtx := context.WithoutCancel(ctx)
		if _, serr := s.emails.Transition(failCtx, e.ID, []model.EmailStatus{model.EmailSending}, model.EmailFailed); serr != nil {
			s.log.Error("failed to mark email failed", "email_id", e.ID, "error", serr)
		}
		return model.ActionFailed(resourceEmail, apperr.Upstream("failed to send email: %v", err))
	}

	now := s.now().UTC()
	if _, err := s.emails.MarkSent(context.WithoutCancel(ctx), e.ID, now); err != nil {
		s.log.Error("email sent but not recorded", "email_id", e.ID, "error", err)
		return model.ActionFailed(resourceEmail, storageErr(err))
	}
	e.Status = model.EmailSent
	e.SentAt = &now
	return model.NewAction(model.ActionSent, resourceEmail,
		fmt.Sprintf("Sent '%s' to %s", e.Subject, e.ToAddress), emailPayload(e))
}

// lostRace explains why a conditional transition matched no row. It
// returns nil when the email is in a state the caller may still act on.
func (s *EmailService) lostRace(ctx context.Context, id uint) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	switch current.Status {
	case model.EmailSent:
		return apperr.AlreadyTerminal("Email %d was already sent", id)
	case model.EmailSending:
		return apperr.AlreadyTerminal("Email %d is already being sent", id)
	}
	return nil
}

// Delete removes a draft directly. Deleting a sent email requires
// confirmation.
func (s *EmailService) Delete(ctx context.Context, id uint, confirmed bool) *model.ActionResult {
	email, err := s.Get(ctx, id)
	if err != nil {
		return s.done(ctx, "delete", id, model.ActionFailed(resourceEmail, err))
	}

	if email.Status == model.EmailSending {
		return s.done(ctx, "delete", id, model.ActionFailed(resourceEmail,
			apperr.AlreadyTerminal("Email %d is being sent and cannot be deleted yet", id)))
	}
	if email.Status == model.EmailSent {
		return Guard(ctx, s.gate, GuardedOp[model.Email]{
			Resource:  resourceEmail,
			Operation: "delete",
			ID:        id,
			Load:      func(context.Context) (*model.Email, error) { return email, nil },
			Preview: func(e *model.Email) (string, map[string]any) {
				return fmt.Sprintf("Are you sure you want to delete sent email '%s'? This cannot be undone.", e.Subject),
					map[string]any{"id": e.ID, "action": "delete", "title": e.Subject}
			},
			Execute: s.remove,
		}, confirmed)
	}
	return s.done(ctx, "delete", id, s.remove(ctx, email))
}

func (s *EmailService) remove(ctx context.Context, e *model.Email) *model.ActionResult {
	if err := s.emails.Delete(ctx, e.ID); err != nil {
		return model.ActionFailed(resourceEmail, storageErr(err))
	}
	return model.NewAction(model.ActionDeleted, resourceEmail,
		fmt.Sprintf("Deleted email '%s'", e.Subject), map[string]any{"id": e.ID, "title": e.Subject})
}

func (s *EmailService) done(ctx context.Context, op string, id uint, r *model.ActionResult) *model.ActionResult {
	recordAction(ctx, s.journal, s.log, op, id, r)
	return r
}

func notEditable(e *model.Email) error {
	return apperr.AlreadyTerminal("Email %d is %s and can no longer be edited", e.ID, e.Status)
}

func emailPayload(e *model.Email) map[string]any {
	return map[string]any{"email_id": e.ID, "status": e.Status, "email": e}
}

func validateEmail(e *model.Email) error {
	if !e.Mailbox.Valid() {
		return apperr.Validation("unknown mailbox %q", e.Mailbox)
	}
	if e.ToAddress == "" {
		return apperr.Validation("recipient is required")
	}
	if _, err := mail.ParseAddressList(e.ToAddress); err != nil {
		return apperr.Validation("invalid recipient %q", e.ToAddress)
	}
	if cc := strings.TrimSpace(ptrValue(e.CcAddress)); cc != "" {
		if _, err := mail.ParseAddressList(cc); err != nil {
			return apperr.Validation("invalid cc %q", cc)
		}
	}
	if e.Subject == "" {
		return apperr.Validation("subject is required")
	}
	if len([]rune(e.Subject)) > 500 {
		return apperr.Validation("subject exceeds 500 characters")
	}
	return nil
}
