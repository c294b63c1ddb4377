package notify

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

type SMTPConfig struct {
	Host     string // SMTP_HOST, e.g. smtp.gmail.com
	Port     string // SMTP_PORT, e.g. 587
	Username string // SMTP_USERNAME
	Password string // SMTP_PASSWORD, app password or smtp password
	From     string // SMTP_FROM (为空时回退 Username)
	AppName  string // APP_NAME
}

func SMTPConfigFromEnv() SMTPConfig {
	get := func(k, d string) string {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
		return d
	}
	return SMTPConfig{
		Host:     get("SMTP_HOST", ""),
		Port:     get("SMTP_PORT", "587"),
		Username: get("SMTP_USERNAME", ""),
		Password: get("SMTP_PASSWORD", ""),
		From:     get("SMTP_FROM", ""),
		AppName:  get("APP_NAME", "Equipment Lending"),
	}
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer 通过 SMTP 发邮件。未配置 SMTP 时只打印，不报错。
type Mailer struct {
	conf   SMTPConfig
	admins []string
	send   sendFunc
	log    log.FieldLogger
}

func NewMailer(conf SMTPConfig, adminEmails []string, logger log.FieldLogger) *Mailer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Mailer{conf: conf, admins: adminEmails, send: smtp.SendMail, log: logger}
}

func (m *Mailer) recipients(ev Event) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, t := range ev.To {
		add(t)
	}
	if ev.ToAdmins {
		for _, a := range m.admins {
			add(a)
		}
	}
	return out
}

func (m *Mailer) Notify(ctx context.Context, ev Event) error {
	to := m.recipients(ev)
	if len(to) == 0 {
		return nil
	}
	conf := m.conf

	// 未配置 SMTP → 开发模式
	if conf.Host == "" || (conf.Username == "" && conf.From == "") {
		m.log.WithFields(log.Fields{"to": to, "event": ev.Type}).Infof("[DEV] mail: %s", ev.Subject)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fromAddr := conf.From
	if fromAddr == "" {
		fromAddr = conf.Username
	}
	subject := fmt.Sprintf("[%s] %s", conf.AppName, ev.Subject)
	msg := buildMIMEWithFromName(conf.AppName, fromAddr, strings.Join(to, ", "), subject, renderHTML(ev))

	auth := smtp.PlainAuth("", conf.Username, conf.Password, conf.Host)
	addr := conf.Host + ":" + conf.Port
	if err := m.send(addr, auth, fromAddr, to, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send %s: %w", ev.Type, err)
	}
	return nil
}

func renderHTML(ev Event) string {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<div style="font-family:Arial,sans-serif; font-size:14px; color:#222">`)
	fmt.Fprintf(&b, "<p>%s</p><table>", html.EscapeString(ev.Subject))
	for _, k := range keys {
		fmt.Fprintf(&b, "<tr><td><b>%s</b></td><td>%s</td></tr>",
			html.EscapeString(k), html.EscapeString(fmt.Sprint(ev.Payload[k])))
	}
	b.WriteString(`</table><hr/><p style="color:#666">This is an automated message.</p></div>`)
	return b.String()
}

func buildMIMEWithFromName(fromName, fromAddr, to, subject, body string) string {
	headers := []string{
		fmt.Sprintf("From: %s <%s>", fromName, fromAddr),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}
	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}
