package email

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/gatekeep-io/gatekeep/internal/auth"
)

// message is a rendered outbound email.
type message struct {
	Subject string
	Body    string
}

type messageTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[string]messageTemplate{
	auth.TemplateVerifyEmail: {
		subject: "Your verification code",
		body: template.Must(template.New(auth.TemplateVerifyEmail).Parse(
			"Hi {{.username}},\n\n" +
				"Your verification code is {{.code}}. It expires in {{.minutes}} minutes.\n\n" +
				"If you did not request this, you can ignore this email.\n")),
	},
	auth.TemplatePasswordReset: {
		subject: "Your password reset code",
		body: template.Must(template.New(auth.TemplatePasswordReset).Parse(
			"Hi {{.username}},\n\n" +
				"Your password reset code is {{.code}}. It expires in {{.minutes}} minutes.\n\n" +
				"If you did not request a password reset, you can ignore this email.\n")),
	},
}

// render produces the subject and body for a named template.
func render(name string, vars map[string]string) (*message, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", name)
	}

	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, vars); err != nil {
		return nil, fmt.Errorf("render email template %q: %w", name, err)
	}
	return &message{Subject: tmpl.subject, Body: body.String()}, nil
}
