package app

import (
	"context"

	"github.com/municipio/support-management/internal/errand_service/adapters/conversationexchange"
	"github.com/municipio/support-management/internal/errand_service/adapters/emailreader"
	"github.com/municipio/support-management/internal/errand_service/adapters/relations"
	"github.com/municipio/support-management/internal/errand_service/adapters/webmessagecollector"
)

// Client interfaces consumed by the workers, satisfied by the HTTP adapters.

type EmailReaderClient interface {
	GetEmails(ctx context.Context, municipalityID, namespace string) ([]emailreader.Email, error)
	DeleteEmail(ctx context.Context, municipalityID, emailID string) error
}

type WebMessageCollectorClient interface {
	GetWebMessages(ctx context.Context, municipalityID, familyID, instance string) ([]webmessagecollector.WebMessage, error)
	GetAttachment(ctx context.Context, municipalityID, attachmentID string) ([]byte, string, error)
}

type ConversationExchangeClient interface {
	GetConversations(ctx context.Context, municipalityID, namespace, filter string, page, size int) (*conversationexchange.Page, error)
	MergeMessages(ctx context.Context, municipalityID, namespace, externalConversationID string, shadowID string) error
}

type RelationsClient interface {
	GetRelation(ctx context.Context, municipalityID, relationID string) (*relations.Relation, error)
}

type MessagingClient interface {
	SendEmail(ctx context.Context, municipalityID, recipient, subject, message string) error
}

type EmployeeDirectoryClient interface {
	GetDisplayName(ctx context.Context, municipalityID, loginName string) (string, error)
}
