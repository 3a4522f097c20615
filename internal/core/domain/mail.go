package domain

import (
	"strings"
	"time"
)

// RawMessage is one fetched mailbox message. It is never mutated after fetch.
type RawMessage struct {
	UID        string    `json:"uid"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewRawMessage is the entry point for timestamps into the pipeline; the
// received time is stored in UTC so every later comparison is unambiguous.
func NewRawMessage(uid, sender, subject, body string, receivedAt time.Time) RawMessage {
	return RawMessage{
		UID:        strings.TrimSpace(uid),
		Sender:     strings.TrimSpace(sender),
		Subject:    strings.TrimSpace(subject),
		Body:       body,
		ReceivedAt: receivedAt.UTC(),
	}
}

// SenderDomain returns the host part of the sender address, lower-cased.
func (m RawMessage) SenderDomain() string {
	addr := m.Sender
	if start := strings.LastIndex(addr, "<"); start >= 0 {
		addr = strings.TrimSuffix(addr[start+1:], ">")
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[at+1:]))
}
