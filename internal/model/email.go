package model

import (
	"time"
)

// EmailStatus is the lifecycle state of an outgoing email.
type EmailStatus string

const (
	EmailDraft               EmailStatus = "draft"
	EmailPendingConfirmation EmailStatus = "pending_confirmation"
	EmailSending             EmailStatus = "sending"
	EmailSent                EmailStatus = "sent"
	EmailFailed              EmailStatus = "failed"
)

// Mailbox selects the sending account.
type Mailbox string

const (
	MailboxPersonal   Mailbox = "personal"
	MailboxUniversity Mailbox = "university"
	MailboxWork       Mailbox = "work"
)

// Valid reports whether m is a known mailbox.
func (m Mailbox) Valid() bool {
	switch m {
	case MailboxPersonal, MailboxUniversity, MailboxWork:
		return true
	}
	return false
}

// Email is an outgoing message. It reaches EmailSent only through a
// confirmed send.
type Email struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Mailbox   Mailbox     `gorm:"size:20;not null;default:personal" json:"mailbox"`
	ToAddress string      `gorm:"size:500;not null" json:"to_address"`
	CcAddress *string     `gorm:"size:500" json:"cc_address,omitempty"`
	Subject   string      `gorm:"size:500;not null" json:"subject"`
	Body      string      `gorm:"type:text;not null" json:"body"`
	Status    EmailStatus `gorm:"size:30;not null;index;default:draft" json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	SentAt    *time.Time  `json:"sent_at,omitempty"`
}

// DraftEmailRequest is the request to draft an email.
type DraftEmailRequest struct {
	Mailbox Mailbox `json:"mailbox"`
	To      string  `json:"to"`
	Cc      *string `json:"cc,omitempty"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
}

// UpdateEmailRequest is a partial draft update.
type UpdateEmailRequest struct {
	Mailbox *Mailbox `json:"mailbox,omitempty"`
	To      *string  `json:"to,omitempty"`
	Cc      *string  `json:"cc,omitempty"`
	Subject *string  `json:"subject,omitempty"`
	Body    *string  `json:"body,omitempty"`
}
