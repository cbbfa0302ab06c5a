package notify

import (
	"fmt"
	"html/template"
	"strings"

	"subwatch/internal/models"
)

var renewalHTML = template.Must(template.New("renewal").Parse(`<html>
<body style="font-family: sans-serif; color: #222;">
<h2>{{.Title}}</h2>
<p><strong>{{.Name}}</strong> renews on <strong>{{.Date}}</strong> for <strong>{{.Amount}} {{.Currency}}</strong>.</p>
<p>If you no longer use it, cancel before the billing date to avoid the charge.</p>
<p style="color: #888; font-size: 12px;">You receive this because reminders are enabled in your subwatch settings.</p>
</body>
</html>`))

var welcomeHTML = template.Must(template.New("welcome").Parse(`<html>
<body style="font-family: sans-serif; color: #222;">
<h2>Welcome to subwatch{{if .Name}}, {{.Name}}{{end}}!</h2>
<p>Your account is ready. Add your subscriptions and we will remind you before every renewal.</p>
</body>
</html>`))

// RenderRenewal builds the reminder message for all channels. The HTML body
// is only used by email; the plain text goes everywhere else.
func RenderRenewal(info RenewalInfo) *Message {
	title := renewalTitle(info.Name, info.DaysBefore)
	date := info.BillingDate.Format("2006-01-02")
	text := fmt.Sprintf("%s. %s renews on %s for %s %s.", title, info.Name, date, info.Amount, info.Currency)

	var buf strings.Builder
	err := renewalHTML.Execute(&buf, map[string]string{
		"Title":    title,
		"Name":     info.Name,
		"Date":     date,
		"Amount":   info.Amount,
		"Currency": info.Currency,
	})
	if err != nil {
		// Static template over string fields, execution cannot fail.
		buf.Reset()
		buf.WriteString(text)
	}

	return &Message{
		Kind:    models.KindRenewalReminder,
		Title:   title,
		Text:    text,
		HTML:    buf.String(),
		Renewal: &info,
	}
}

// RenderWelcome builds the greeting for a new account.
func RenderWelcome(name string) *Message {
	title := "Welcome to subwatch"
	text := "Your account is ready. Add your subscriptions and we will remind you before every renewal."

	var buf strings.Builder
	if err := welcomeHTML.Execute(&buf, map[string]string{"Name": name}); err != nil {
		buf.Reset()
		buf.WriteString(text)
	}

	return &Message{
		Kind:  models.KindWelcome,
		Title: title,
		Text:  text,
		HTML:  buf.String(),
	}
}

// RenderTest builds the message for channel test sends.
func RenderTest() *Message {
	return &Message{
		Kind:  models.KindTest,
		Title: "subwatch test notification",
		Text:  "This is a test notification from subwatch. Your channel is working.",
		HTML:  "<html><body><p>This is a test notification from <strong>subwatch</strong>. Your channel is working.</p></body></html>",
	}
}

func renewalTitle(name string, days int) string {
	switch {
	case days <= 0:
		return fmt.Sprintf("%s renews today", name)
	case days == 1:
		return fmt.Sprintf("%s renews tomorrow", name)
	default:
		return fmt.Sprintf("%s renews in %d days", name, days)
	}
}
