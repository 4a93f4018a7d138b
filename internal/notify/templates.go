package notify

import (
	"fmt"
	"strings"
	"text/template"

	"sessionbook/internal/models"
)

var templates = template.Must(template.New("notify").Option("missingkey=zero").Parse(`
{{define "booking_confirmed"}}Здравствуйте, {{.client_name}}!

Ваша запись к {{.provider}} подтверждена.
📅 {{.date}}, {{.time}}–{{.end_time}} ({{.timezone}})
⏱ {{.duration}} мин.{{if .price}}
💰 {{.price}}{{end}}

Номер записи: #{{.booking_id}}{{end}}

{{define "booking_cancelled"}}Здравствуйте, {{.client_name}}!

Ваша запись к {{.provider}} на {{.date}}, {{.time}} ({{.timezone}}) отменена.
Номер записи: #{{.booking_id}}{{end}}

{{define "provider_new_booking"}}🆕 Новая запись #{{.booking_id}}

👤 {{.client_name}} <{{.client_email}}>{{if .client_phone}}
📱 {{.client_phone}}{{end}}
📅 {{.date}}, {{.time}}–{{.end_time}} ({{.timezone}})
⏱ {{.duration}} мин.{{if .notes}}

📝 {{.notes}}{{end}}{{end}}
`))

// Render formats a notification template with booking data.
func Render(name string, data map[string]string) (string, error) {
	switch name {
	case models.TemplateBookingConfirmed, models.TemplateBookingCancelled, models.TemplateProviderBooked:
	default:
		return "", fmt.Errorf("unknown template: %s", name)
	}

	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return sb.String(), nil
}
