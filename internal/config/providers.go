package config

import (
	"fmt"
	"os"
	"strings"

	"sessionbook/internal/models"
	"sessionbook/internal/schedule"

	"gopkg.in/yaml.v2"
)

type providerSeed struct {
	Slug           string                      `yaml:"slug"`
	DisplayName    string                      `yaml:"display_name"`
	Timezone       string                      `yaml:"timezone"`
	SessionMinutes int                         `yaml:"session_minutes"`
	BreakMinutes   int                         `yaml:"break_minutes"`
	DefaultPrice   *float64                    `yaml:"default_price"`
	TelegramChatID int64                       `yaml:"telegram_chat_id"`
	Calendar       *models.CalendarCredentials `yaml:"calendar"`
	Schedule       interface{}                 `yaml:"schedule"`
}

// LoadProviders reads the provider seed file. A provider without a schedule
// gets the default Monday-Friday schedule.
func LoadProviders(path string) ([]*models.Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseProviders(data)
}

func ParseProviders(data []byte) ([]*models.Provider, error) {
	var file struct {
		Providers []providerSeed `yaml:"providers"`
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return nil, fmt.Errorf("parse providers: %w", err)
	}

	seen := make(map[string]bool, len(file.Providers))
	providers := make([]*models.Provider, 0, len(file.Providers))
	for i, p := range file.Providers {
		slug := strings.TrimSpace(p.Slug)
		if slug == "" {
			return nil, fmt.Errorf("provider #%d has no slug", i+1)
		}
		if seen[slug] {
			return nil, fmt.Errorf("duplicate provider slug %q", slug)
		}
		seen[slug] = true

		if p.Timezone == "" {
			p.Timezone = "UTC"
		}
		if _, err := schedule.LoadZone(p.Timezone); err != nil {
			return nil, fmt.Errorf("provider %s: %w", slug, err)
		}
		if p.SessionMinutes < 0 || p.BreakMinutes < 0 {
			return nil, fmt.Errorf("provider %s: session and break minutes must not be negative", slug)
		}

		ws := schedule.Default()
		if p.Schedule != nil {
			parsed, err := schedule.FromValue(p.Schedule)
			if err != nil {
				return nil, fmt.Errorf("provider %s schedule: %w", slug, err)
			}
			ws = parsed
		}

		name := p.DisplayName
		if name == "" {
			name = slug
		}
		providers = append(providers, &models.Provider{
			Slug:           slug,
			DisplayName:    name,
			Timezone:       p.Timezone,
			Schedule:       ws,
			SessionMinutes: p.SessionMinutes,
			BreakMinutes:   p.BreakMinutes,
			DefaultPrice:   p.DefaultPrice,
			Calendar:       p.Calendar,
			TelegramChatID: p.TelegramChatID,
		})
	}
	return providers, nil
}
