package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/reminder"
)

// scheduleFile is the YAML form of the reminder schedule:
//
//	enabled: true
//	reminders:
//	  - number: 1
//	    after: 1h
//	  - number: 2
//	    after: 6h
type scheduleFile struct {
	Enabled   *bool `yaml:"enabled"`
	Reminders []struct {
		Number int    `yaml:"number"`
		After  string `yaml:"after"`
	} `yaml:"reminders"`
}

func LoadSchedule(path string) (reminder.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return reminder.Config{}, fmt.Errorf("read reminder schedule: %w", err)
	}
	return ParseSchedule(raw)
}

func ParseSchedule(raw []byte) (reminder.Config, error) {
	var f scheduleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return reminder.Config{}, fmt.Errorf("parse reminder schedule: %w", err)
	}

	cfg := reminder.Config{Enabled: true}
	if f.Enabled != nil {
		cfg.Enabled = *f.Enabled
	}
	for _, r := range f.Reminders {
		d, err := time.ParseDuration(r.After)
		if err != nil {
			return reminder.Config{}, fmt.Errorf("reminder %d: %w", r.Number, err)
		}
		cfg.Slots = append(cfg.Slots, reminder.Slot{Ordinal: r.Number, Offset: d})
	}
	if err := cfg.Validate(); err != nil {
		return reminder.Config{}, err
	}
	return cfg, nil
}
