// Package mailer sends the post-payment receipt email. Delivery is best
// effort: a failed send is logged and never affects the order.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/smtp"
	"strings"

	"duckbunn/backend/internal/domain"
)

type Message struct {
	Subject string
	HTML    string
}

type Notifier interface {
	Send(ctx context.Context, to string, msg Message) error
}

type SMTPNotifier struct {
	addr     string // host:port
	username string
	password string
	from     string
}

func NewSMTP(addr, username, password, from string) *SMTPNotifier {
	return &SMTPNotifier{addr: addr, username: username, password: password, from: from}
}

func (n *SMTPNotifier) Send(ctx context.Context, to string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	host, _, err := net.SplitHostPort(n.addr)
	if err != nil {
		return fmt.Errorf("smtp addr %q: %w", n.addr, err)
	}

	var body strings.Builder
	body.WriteString("From: " + n.from + "\r\n")
	body.WriteString("To: " + to + "\r\n")
	body.WriteString("Subject: " + msg.Subject + "\r\n")
	body.WriteString("MIME-Version: 1.0\r\n")
	body.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	body.WriteString("\r\n")
	body.WriteString(msg.HTML)

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, host)
	}
	if err := smtp.SendMail(n.addr, auth, n.from, []string{to}, []byte(body.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogNotifier stands in when SMTP is not configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, to string, msg Message) error {
	log.Printf("[mailer] skipped (no SMTP configured): to=%s subject=%q", to, msg.Subject)
	return nil
}

var invoiceTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"centsToDisplay": centsToDisplay,
	"subtotal": func(it domain.OrderItem) string {
		return centsToDisplay(int64(it.Quantity) * it.PriceCents)
	},
}).Parse(invoiceBody))

const invoiceBody = `<html>
<body>
<h2>DuckBunn Store</h2>
<p>Thank you for your purchase. Order <strong>{{.Code}}</strong> is paid.</p>
<table border="1" cellpadding="6" cellspacing="0">
  <tr><th>Item</th><th>Qty</th><th>Price</th><th>Subtotal</th></tr>
  {{range .Items}}
  <tr>
    <td>{{.Name}}</td>
    <td>{{.Quantity}}</td>
    <td>{{centsToDisplay .PriceCents}}</td>
    <td>{{subtotal .}}</td>
  </tr>
  {{end}}
</table>
<p><strong>Total: {{centsToDisplay .TotalCents}}</strong></p>
</body>
</html>`

func centsToDisplay(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// RenderInvoice builds the HTML receipt for a paid order.
func RenderInvoice(order domain.Order) (Message, error) {
	var buf bytes.Buffer
	if err := invoiceTmpl.Execute(&buf, order); err != nil {
		return Message{}, fmt.Errorf("render invoice: %w", err)
	}
	return Message{
		Subject: "Your DuckBunn receipt " + order.Code,
		HTML:    buf.String(),
	}, nil
}
