package email

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/jusmatch/jusmatch-backend/pkg/logger"
)

// Sender delivers transactional mail over SMTP. With no SMTP_HOST configured
// it degrades to logging the would-be message, which keeps local dev and CI
// free of a mail server.
type Sender struct {
	host string
	port int
	user string
	pass string
	from string
	log  *logger.Logger
}

func NewSender(log *logger.Logger) *Sender {
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if port == 0 {
		port = 587
	}
	return &Sender{
		host: os.Getenv("SMTP_HOST"),
		port: port,
		user: os.Getenv("SMTP_USER"),
		pass: os.Getenv("SMTP_PASS"),
		from: os.Getenv("SMTP_FROM"),
		log:  log,
	}
}

func (s *Sender) Enabled() bool { return s.host != "" }

func (s *Sender) send(to, subject, htmlBody string) error {
	if !s.Enabled() {
		s.log.Info("smtp disabled, skipping email", "to", to, "subject", subject)
		return nil
	}

	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("email: invalid from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return fmt.Errorf("email: invalid recipient: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(s.host,
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.user),
		mail.WithPassword(s.pass),
	)
	if err != nil {
		return fmt.Errorf("email: client: %w", err)
	}
	if err := client.DialAndSend(m); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

// SendNewMatch tells an advogado a new caso was offered to them.
func (s *Sender) SendNewMatch(to, lawyerName, casoTitle string, score int, expiresAt time.Time) error {
	subject := "Novo caso compatível com seu perfil"
	body := fmt.Sprintf(`
		<p>Olá, %s!</p>
		<p>Um novo caso foi direcionado a você: <strong>%s</strong>
		(compatibilidade %d%%).</p>
		<p>A oferta expira em %s. Acesse a plataforma para ver os detalhes
		e responder.</p>`,
		lawyerName, casoTitle, score,
		expiresAt.Format("02/01/2006 15:04"),
	)
	return s.send(to, subject, body)
}
