package imapclient

import (
	"fmt"

	"redmine-email-connector/internal/logging"
	"redmine-email-connector/internal/mailparse"
	"redmine-email-connector/internal/models"
)

// Session is one connected, logged-in mailbox session. The orchestrator
// opens a fresh session per poll cycle and closes it when the cycle ends.
type Session struct {
	client Client
}

// Open dials the configured IMAP server, logs in and selects the mailbox.
func Open(cfg models.EmailConfig) (*Session, error) {
	return openWith(NewStandardClient(), cfg)
}

func openWith(c Client, cfg models.EmailConfig) (*Session, error) {
	if err := c.Connect(cfg.Imap); err != nil {
		return nil, err
	}
	if err := c.Login(cfg.Login, cfg.Password); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("login error: %w", err)
	}
	if err := c.SelectMailbox(cfg.MailBox); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("folder selection error: %w", err)
	}
	return &Session{client: c}, nil
}

// FetchUnread returns all unseen messages as normalized InboundMessages.
// A message that cannot be fetched or parsed is logged and skipped; it
// stays unseen and will be retried on the next cycle.
func (s *Session) FetchUnread() ([]models.InboundMessage, error) {
	seqNums, err := s.client.ListUnseenSeqNums()
	if err != nil {
		return nil, err
	}

	var inbound []models.InboundMessage
	for _, seqNum := range seqNums {
		msg, err := s.client.FetchMessage(seqNum)
		if err != nil {
			logging.Log.Errorf("Error fetching message %d: %v", seqNum, err)
			continue
		}

		parsed, err := mailparse.Parse(msg)
		if err != nil {
			logging.Log.Errorf("Error parsing message %d: %v", seqNum, err)
			continue
		}
		if parsed.SeqNum == 0 {
			parsed.SeqNum = seqNum
		}

		inbound = append(inbound, *parsed)
	}

	return inbound, nil
}

// MarkSeen flags one message as processed.
func (s *Session) MarkSeen(seqNum uint32) error {
	return s.client.MarkSeen(seqNum)
}

// Close logs out.
func (s *Session) Close() error {
	return s.client.Close()
}
