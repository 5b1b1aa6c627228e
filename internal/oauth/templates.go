package oauth

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// loadTemplates parses the bundled login/success pages, preferring files
// found under overrideDir when set so operators can reskin the login form
// without rebuilding the binary.
func loadTemplates(overrideDir string) (*template.Template, error) {
	tmpl := template.New("oauth")
	names := []string{"login.html", "success.html"}

	for _, name := range names {
		if overrideDir != "" {
			path := filepath.Join(overrideDir, name)
			if _, err := os.Stat(path); err == nil {
				if _, err := tmpl.New(name).ParseFiles(path); err != nil {
					return nil, fmt.Errorf("oauth: parse override template %s: %w", name, err)
				}
				continue
			}
		}
		content, err := embeddedTemplates.ReadFile("templates/" + name)
		if err != nil {
			return nil, fmt.Errorf("oauth: read embedded template %s: %w", name, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return nil, fmt.Errorf("oauth: parse embedded template %s: %w", name, err)
		}
	}
	return tmpl, nil
}
