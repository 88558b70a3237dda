package service

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

const footer = `<p style="color: #9ca3af; font-size: 12px; text-align: center; margin-top: 20px;">{{.Footer}}</p>`

var emailTemplates = template.Must(template.New("emails").Parse(`
{{define "reminder"}}
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; background: #f9fafb; padding: 40px; border-radius: 12px;">
  <h1 style="color: #6366f1; font-size: 28px; text-align: center;">Time Capsule Reminder</h1>
  <div style="background: white; padding: 30px; border-radius: 8px;">
    <p style="color: #374151; font-size: 16px;">Your time capsule <strong style="color: #6366f1">"{{.Title}}"</strong> is almost ready to unlock!</p>
    <p style="color: #6b7280;">It will unlock on <strong>{{.UnlockDate}}</strong>, just 3 days away.</p>
    <div style="text-align: center; margin-top: 30px;">
      <a href="{{.DashboardURL}}" style="background: #6366f1; color: white; padding: 12px 30px; border-radius: 6px; text-decoration: none; font-weight: bold;">View Dashboard</a>
    </div>
  </div>
  ` + footer + `
</div>
{{end}}

{{define "unlocked"}}
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; background: #f9fafb; padding: 40px; border-radius: 12px;">
  <h1 style="color: #10b981; font-size: 28px; text-align: center;">Your Time Capsule Has Unlocked!</h1>
  <div style="background: white; padding: 30px; border-radius: 8px;">
    {{if .Name}}<p style="color: #374151;">Hi <strong>{{.Name}}</strong>,</p>{{end}}
    <p style="color: #374151; font-size: 16px;">The time capsule <strong style="color: #10b981">"{{.Title}}"</strong> has been unlocked and is ready to view!</p>
    {{if .ShareURL}}
    <div style="text-align: center; margin-top: 30px;">
      <a href="{{.ShareURL}}" style="background: #10b981; color: white; padding: 12px 30px; border-radius: 6px; text-decoration: none; font-weight: bold;">Open Capsule</a>
    </div>
    {{end}}
  </div>
  ` + footer + `
</div>
{{end}}

{{define "scheduled"}}
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; background: #f9fafb; padding: 40px; border-radius: 12px;">
  <h1 style="color: #6366f1; font-size: 28px; text-align: center;">A Message From The Past</h1>
  <div style="background: white; padding: 30px; border-radius: 8px;">
    {{if .Name}}<p style="color: #374151;">A message from <strong>{{.Name}}</strong>:</p>{{end}}
    <div style="border-left: 4px solid #6366f1; padding-left: 20px; margin: 20px 0;">
      <p style="color: #374151; font-size: 16px; white-space: pre-wrap;">{{.Message}}</p>
    </div>
  </div>
  ` + footer + `
</div>
{{end}}

{{define "reset"}}
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; background: #f9fafb; padding: 40px; border-radius: 12px;">
  <h1 style="color: #6366f1; font-size: 28px; text-align: center;">Password Reset Request</h1>
  <div style="background: white; padding: 30px; border-radius: 8px;">
    <p style="color: #374151;">You requested a password reset. Click the button below to reset your password. This link expires in 1 hour.</p>
    <div style="text-align: center; margin-top: 30px;">
      <a href="{{.ResetURL}}" style="background: #6366f1; color: white; padding: 12px 30px; border-radius: 6px; text-decoration: none; font-weight: bold;">Reset Password</a>
    </div>
    <p style="color: #9ca3af; font-size: 13px; margin-top: 20px;">If you didn't request this, ignore this email. Your password will remain unchanged.</p>
  </div>
</div>
{{end}}
`))

type emailData struct {
	Name         string
	Title        string
	UnlockDate   string
	DashboardURL string
	ShareURL     string
	ResetURL     string
	Message      string
	Footer       string
}

func render(name string, data emailData) (string, error) {
	if data.Footer == "" {
		data.Footer = "Digital Time Capsule. Preserve your moments"
	}
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", name, err)
	}
	return buf.String(), nil
}

// links builds client URLs that go into emails.
type links struct {
	clientURL string
}

func newLinks(clientURL string) links {
	return links{clientURL: strings.TrimRight(clientURL, "/")}
}

func (l links) dashboard() string         { return l.clientURL + "/dashboard" }
func (l links) share(token string) string { return l.clientURL + "/capsule/share/" + token }
func (l links) reset(token string) string { return l.clientURL + "/reset-password/" + token }

func reminderEmail(l links, title string, unlockDate time.Time) (string, string, error) {
	body, err := render("reminder", emailData{
		Title:        title,
		UnlockDate:   unlockDate.Format("Monday, January 2, 2006"),
		DashboardURL: l.dashboard(),
	})
	return fmt.Sprintf("Your capsule %q unlocks in 3 days!", title), body, err
}

func unlockedEmail(l links, name, title, shareToken string) (string, string, error) {
	body, err := render("unlocked", emailData{
		Name:     name,
		Title:    title,
		ShareURL: l.share(shareToken),
	})
	return fmt.Sprintf("Time Capsule %q has unlocked!", title), body, err
}

func scheduledMessageEmail(senderName, message string) (string, error) {
	return render("scheduled", emailData{
		Name:    senderName,
		Message: message,
		Footer:  "Delivered via Digital Time Capsule",
	})
}

func passwordResetEmail(l links, token string) (string, string, error) {
	body, err := render("reset", emailData{ResetURL: l.reset(token)})
	return "Password Reset Request", body, err
}
