package worker

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/shaiso/courier/internal/domain"
)

var welcomeTemplate = template.Must(template.New("welcome").Parse(
	"Привет, {{.Name}}! Добро пожаловать в наш сервис! 🎉",
))

// renderWelcome собирает приветствие. Без имени обращается по username.
func renderWelcome(p domain.WelcomePayload) (string, error) {
	name := strings.TrimSpace(p.Name)
	if name != "" {
		// Caser хранит состояние, поэтому новый на каждый вызов
		name = cases.Title(language.Russian).String(name)
	} else {
		name = strings.TrimSpace(p.TelegramUsername)
	}

	var buf bytes.Buffer
	if err := welcomeTemplate.Execute(&buf, struct{ Name string }{Name: name}); err != nil {
		return "", fmt.Errorf("render welcome: %w", err)
	}
	return buf.String(), nil
}
