package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a communication relative to the municipality.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// ChannelType is the channel a communication arrived on or left through.
type ChannelType string

const (
	ChannelEmail      ChannelType = "EMAIL"
	ChannelSMS        ChannelType = "SMS"
	ChannelWebMessage ChannelType = "WEB_MESSAGE"
)

// Attachment is a file carried by a communication. Content may be nil when
// only shadow metadata has been ingested; the binary is then fetched lazily
// by external attachment id.
type Attachment struct {
	ID                   uuid.UUID `json:"id"`
	FileName             string    `json:"file_name"`
	ContentType          string    `json:"content_type"`
	Content              []byte    `json:"content,omitempty"`
	ExternalAttachmentID string    `json:"external_attachment_id,omitempty"`
}

// CommunicationRecord is a persisted message on an errand. The per-channel
// ExternalID is the dedupe key: re-ingesting the same upstream message must
// not create a duplicate record.
type CommunicationRecord struct {
	ID           uuid.UUID    `json:"id"`
	ErrandNumber string       `json:"errand_number"`
	Direction    Direction    `json:"direction"`
	ChannelType  ChannelType  `json:"channel_type"`
	ExternalID   string       `json:"external_id"`
	Sender       string       `json:"sender,omitempty"`
	Subject      string       `json:"subject,omitempty"`
	Body         string       `json:"body"`
	SentAt       time.Time    `json:"sent_at"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// NewInboundCommunication creates an inbound communication record for the
// given channel.
func NewInboundCommunication(errandNumber string, channel ChannelType, externalID, sender, subject, body string, sentAt time.Time) *CommunicationRecord {
	return &CommunicationRecord{
		ID:           uuid.New(),
		ErrandNumber: errandNumber,
		Direction:    DirectionInbound,
		ChannelType:  channel,
		ExternalID:   externalID,
		Sender:       sender,
		Subject:      subject,
		Body:         body,
		SentAt:       sentAt,
	}
}
