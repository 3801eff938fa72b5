package models

import "time"

// InboundMessage represents a normalized inbound e-mail, either pulled from
// the support mailbox over IMAP or pushed by the mail-relay webhook.
// SeqNum is the message's sequence number within the mailbox session it was
// fetched from; it is zero for webhook-sourced messages.
type InboundMessage struct {
	SeqNum       uint32
	From         string
	Subject      string
	BodyText     string
	InternalDate time.Time
	TraceID      string
}
