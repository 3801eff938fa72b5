package config

import (
	"fmt"
	"os"
	"time"

	"redmine-email-connector/internal/models"

	"gopkg.in/yaml.v2"
)

// DefaultCheckInterval is used when the configuration does not set one.
const DefaultCheckInterval = 5 * time.Minute

// Load reads the configuration from the specified YAML file and returns a Config struct
func Load(filepath string) (*models.Config, error) {
	configFile, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := yaml.Unmarshal(configFile, &config); err != nil {
		return nil, err
	}

	if config.Email.CheckInterval <= 0 {
		config.Email.CheckInterval = DefaultCheckInterval
	}
	if config.Email.MailBox == "" {
		config.Email.MailBox = "INBOX"
	}
	if config.Email.From == "" {
		config.Email.From = config.Email.Login
	}
	if config.HTTP.Listen == "" {
		config.HTTP.Listen = ":5000"
	}

	if config.Redmine.URL == "" {
		return nil, fmt.Errorf("redmine.url is required")
	}
	if config.Redmine.DefaultProjectID == 0 {
		return nil, fmt.Errorf("redmine.defaultProjectId is required")
	}

	return &config, nil
}
