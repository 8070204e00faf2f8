package email

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/wneessen/go-mail"
)

// Message исходящее письмо
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

// Sender транспорт доставки писем
type Sender interface {
	// Send возвращает Message-ID отправленного письма
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPConfig параметры SMTP (Brevo)
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Configured сообщает, заданы ли минимальные параметры для отправки
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != "" && c.From != ""
}

// SMTPSender отправляет письма через SMTP с обязательным STARTTLS
type SMTPSender struct {
	cfg SMTPConfig
	log *logger.Logger
}

// NewSMTPSender создает отправителя
func NewSMTPSender(cfg SMTPConfig, log *logger.Logger) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg, log: log}
}

// Send отправляет одно письмо, открывая отдельное соединение
func (s *SMTPSender) Send(ctx context.Context, msg Message) (string, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
		return "", fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.AddToFormat(msg.ToName, msg.To); err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	m.SetDate()

	messageID := fmt.Sprintf("%s@%s", uuid.NewString(), s.cfg.Host)
	m.SetMessageIDWithValue(messageID)

	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		s.log.Errorw("SMTP send error", "error", err, "host", s.cfg.Host)
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	s.log.Debugw("Email sent via SMTP", "messageID", messageID)
	return "<" + messageID + ">", nil
}

// LogSender пишет письма в лог вместо отправки (SMTP не настроен)
type LogSender struct {
	log *logger.Logger
}

// NewLogSender создает отправителя-заглушку
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	id := "log-" + uuid.NewString()
	s.log.Infow("SMTP is not configured, email logged instead of sent", "to", msg.To, "subject", msg.Subject, "messageID", id)
	return id, nil
}
