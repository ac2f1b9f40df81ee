// Package mail sends the customer notification raised when an album is
// sent. Sending is fire-and-forget from the core's perspective; the
// dispatcher owns failure handling.
package mail

import (
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// Notification carries everything the customer email template needs.
type Notification struct {
	AlbumCode     string
	AlbumName     string
	AlbumLink     string
	ProjectName   string
	CompanyName   string
	CustomerEmail string
	CustomerName  string
}

type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func New(host string, port int, username, password, from string) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// SendStatusNotification emails the customer that their album went out.
func (m *Mailer) SendStatusNotification(n Notification) error {
	if n.CustomerEmail == "" {
		return fmt.Errorf("notification has no customer email")
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", n.CustomerEmail)
	msg.SetHeader("Subject", fmt.Sprintf("Album %s has been sent", n.AlbumCode))
	msg.SetBody("text/plain", body(n))
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send notification to %s: %w", n.CustomerEmail, err)
	}
	return nil
}

func body(n Notification) string {
	greeting := "Hello"
	if n.CustomerName != "" {
		greeting = "Hello, " + n.CustomerName
	}
	text := fmt.Sprintf(`%s!

Album %s (%s) from project %s has been sent to you.
`, greeting, n.AlbumCode, n.AlbumName, n.ProjectName)
	if n.AlbumLink != "" {
		text += fmt.Sprintf("\nYou can view it here: %s\n", n.AlbumLink)
	}
	if n.CompanyName != "" {
		text += fmt.Sprintf("\n— %s\n", n.CompanyName)
	}
	return text
}
