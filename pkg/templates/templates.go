package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Template names
const (
	NginxSite      = "nginx-site"
	SystemdService = "systemd-service"
)

//go:embed files/*.template
var builtin embed.FS

// SystemdData fills the systemd-service template.
type SystemdData struct {
	User               string
	Group              string
	WorkingDir         string
	Binary             string
	ConfigFile         string
	EnvFile            string
	StopTimeoutSeconds int
}

// NginxData fills the nginx-site template.
type NginxData struct {
	Domain             string
	WebhookPath        string
	Upstream           string
	ReadTimeoutSeconds int
}

// GetTemplatePaths returns the override search paths for a template.
func GetTemplatePaths(templateName string) []string {
	filename := templateName + ".template"
	return []string{
		filepath.Join(".", "templates", filename),
		filepath.Join(".", "config", "templates", filename),
		filepath.Join("/etc", "deployhook", "templates", filename),
	}
}

// GetTemplate returns the raw template content by name.
// A file in one of the override paths wins over the built-in copy:
// 1. ./templates/<name>.template
// 2. ./config/templates/<name>.template
// 3. /etc/deployhook/templates/<name>.template
func GetTemplate(name string) (string, error) {
	if !ValidateTemplate(name) {
		return "", fmt.Errorf("unknown template: %s", name)
	}

	for _, path := range GetTemplatePaths(name) {
		if content, err := os.ReadFile(path); err == nil {
			return string(content), nil
		}
	}

	content, err := builtin.ReadFile("files/" + name + ".template")
	if err != nil {
		return "", fmt.Errorf("built-in template missing: %s", name)
	}
	return string(content), nil
}

// Render renders a template using Go's text/template package.
// Missing fields are an error rather than an empty string.
func Render(templateName string, data interface{}) (string, error) {
	tmplContent, err := GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(templateName).Option("missingkey=error").Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// RenderSystemdService renders the systemd unit running "deployhook serve".
func RenderSystemdService(data SystemdData) (string, error) {
	return Render(SystemdService, data)
}

// RenderNginxSite renders a TLS-terminating reverse proxy for the webhook path.
func RenderNginxSite(data NginxData) (string, error) {
	return Render(NginxSite, data)
}

// ListTemplates returns a list of all available template names.
func ListTemplates() []string {
	return []string{
		NginxSite,
		SystemdService,
	}
}

// ValidateTemplate checks if a template name is valid.
func ValidateTemplate(name string) bool {
	for _, n := range ListTemplates() {
		if n == name {
			return true
		}
	}
	return false
}
