package email

import (
	"fmt"
	"net/smtp"
	"os"
)

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

func NewEmailService() *EmailService {
	return &EmailService{
		host:     os.Getenv("SMTP_HOST"),
		port:     os.Getenv("SMTP_PORT"),
		user:     os.Getenv("SMTP_USER"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     os.Getenv("SMTP_FROM"),
	}
}

// SendConfirmationCode delivers the signup confirmation code. Best effort:
// the caller decides what to do with a delivery failure, nothing is retried
// here.
func (e *EmailService) SendConfirmationCode(to, code string) error {
	subject := "Your confirmation code"
	body := fmt.Sprintf(`Hello!

Your confirmation code is:

%s

Exchange it at /api/v1/auth/token to receive an access token.

If you did not sign up, ignore this email.
`, code)

	message := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", e.from, to, subject, body)

	auth := smtp.PlainAuth("", e.user, e.password, e.host)
	addr := fmt.Sprintf("%s:%s", e.host, e.port)

	if err := smtp.SendMail(addr, auth, e.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("sending confirmation email: %w", err)
	}

	return nil
}
