package models

import "time"

// Config represents the application configuration
type Config struct {
	Redmine RedmineConfig `yaml:"redmine"`
	Email   EmailConfig   `yaml:"email"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// RedmineConfig represents the Redmine REST API configuration
type RedmineConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"apiKey"`
	DefaultProjectID int    `yaml:"defaultProjectId"`

	// Optional classifiers applied to issues created from e-mail.
	// Zero means "let Redmine pick its own default".
	TrackerID    int `yaml:"trackerId"`
	StatusID     int `yaml:"statusId"`
	PriorityID   int `yaml:"priorityId"`
	AssignedToID int `yaml:"assignedToId"`
}

// EmailConfig represents IMAP and SMTP mail configuration
type EmailConfig struct {
	Imap          string        `yaml:"imap"`
	SMTPHost      string        `yaml:"smtpHost"`
	SMTPPort      int           `yaml:"smtpPort"`
	Login         string        `yaml:"login"`
	Password      string        `yaml:"password"`
	From          string        `yaml:"from"`
	CheckInterval time.Duration `yaml:"checkInterval"`
	MailBox       string        `yaml:"mailbox"`

	// SMTPTLS selects the transport: "smtps" (implicit TLS), "starttls"
	// or "none". Empty picks by port (465 means smtps).
	SMTPTLS string `yaml:"smtpTLS"`
	// SMTPAuthType selects "plain" (default) or "login".
	SMTPAuthType string `yaml:"smtpAuthType"`
}

// HTTPConfig represents the webhook HTTP server configuration
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}
