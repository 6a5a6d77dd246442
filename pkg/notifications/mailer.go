package notifications

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Email is an outgoing email
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends email. The transport lives outside this module.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// LogMailer writes emails to the log instead of sending them
type LogMailer struct {
	log *logrus.Logger
}

// NewLogMailer creates a mailer writing to log
func NewLogMailer(log *logrus.Logger) *LogMailer {
	if log == nil {
		log = logrus.New()
	}
	return &LogMailer{log: log}
}

// Send implements Mailer
func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.log.WithFields(logrus.Fields{
		"to":      email.To,
		"subject": email.Subject,
	}).Info("email")
	return nil
}

var subjects = map[string]string{
	EventStatusChange:       "Your account status changed",
	EventRoleChange:         "Your system role changed",
	EventTeamRoleChange:     "Your team role changed",
	EventAssociationChange:  "Your team membership changed",
	EventProfileUpdate:      "Your profile was updated",
	EventUserUpdate:         "Your account was updated",
	EventInvitationAccepted: "Your invitation was accepted",
	EventEmailChanged:       "Your email address changed",
	EventEmailChangeDenied:  "Your email change request was rejected",
	EventPlanChanged:        "Your subscription plan changed",
	EventAnnouncement:       "New announcement",
}

// RenderEmail builds the email for a message
func RenderEmail(msg Message) Email {
	subject, ok := subjects[msg.EventType]
	if !ok {
		subject = "Account notification"
	}

	keys := make([]string, 0, len(msg.Payload))
	for k := range msg.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var body strings.Builder
	body.WriteString(subject)
	body.WriteString(".\n\n")
	for _, k := range keys {
		fmt.Fprintf(&body, "%s: %v\n", k, msg.Payload[k])
	}
	return Email{To: msg.Recipient.Email, Subject: subject, Body: body.String()}
}
