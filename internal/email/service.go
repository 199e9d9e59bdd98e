package email

import (
	"fmt"
	"net/smtp"

	"github.com/groshare/groupbuy/internal/domain/order"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendOrderLocked tells a participant their group order reached its threshold
// and is locked for fulfillment.
func (s *Service) SendOrderLocked(to string, o *order.Order) error {
	subject := fmt.Sprintf("Group order locked: %s", o.ItemName)
	body := BuildOrderLockedBody(o)
	return s.send(to, subject, body)
}

// SendOrderCompleted tells a participant their group order was completed and
// when delivery happens.
func (s *Service) SendOrderCompleted(to string, o *order.Order) error {
	subject := fmt.Sprintf("Group order completed: %s", o.ItemName)
	body := BuildOrderCompletedBody(o)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
