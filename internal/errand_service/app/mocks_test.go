package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/municipio/support-management/internal/errand_service/adapters/conversationexchange"
	"github.com/municipio/support-management/internal/errand_service/adapters/emailreader"
	"github.com/municipio/support-management/internal/errand_service/adapters/relations"
	"github.com/municipio/support-management/internal/errand_service/adapters/webmessagecollector"
	"github.com/municipio/support-management/internal/errand_service/domain"
)

// --- Repository mocks ---

type MockErrandRepository struct {
	mock.Mock
}

func (m *MockErrandRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Errand, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Errand), args.Error(1)
}

func (m *MockErrandRepository) GetByErrandNumber(ctx context.Context, namespace, municipalityID, errandNumber string) (*domain.Errand, error) {
	args := m.Called(ctx, namespace, municipalityID, errandNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Errand), args.Error(1)
}

func (m *MockErrandRepository) GetByExternalTag(ctx context.Context, namespace, municipalityID, key, value string) (*domain.Errand, error) {
	args := m.Called(ctx, namespace, municipalityID, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Errand), args.Error(1)
}

func (m *MockErrandRepository) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockErrandRepository) Create(ctx context.Context, errand *domain.Errand) error {
	args := m.Called(ctx, errand)
	return args.Error(0)
}

func (m *MockErrandRepository) Update(ctx context.Context, errand *domain.Errand) error {
	args := m.Called(ctx, errand)
	return args.Error(0)
}

func (m *MockErrandRepository) FindExpiredSuspensions(ctx context.Context, namespace, municipalityID string, now time.Time) ([]*domain.Errand, error) {
	args := m.Called(ctx, namespace, municipalityID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Errand), args.Error(1)
}

type MockErrandNumberGenerator struct {
	mock.Mock
}

func (m *MockErrandNumberGenerator) Next(ctx context.Context, namespace, municipalityID, shortcode string, now time.Time) (string, error) {
	args := m.Called(ctx, namespace, municipalityID, shortcode, now)
	return args.String(0), args.Error(1)
}

type MockCommunicationRepository struct {
	mock.Mock
}

func (m *MockCommunicationRepository) ExistsByExternalID(ctx context.Context, channel domain.ChannelType, externalID string) (bool, error) {
	args := m.Called(ctx, channel, externalID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCommunicationRepository) Create(ctx context.Context, record *domain.CommunicationRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockCommunicationRepository) SetAttachmentContent(ctx context.Context, externalAttachmentID string, contentType string, content []byte) error {
	args := m.Called(ctx, externalAttachmentID, contentType, content)
	return args.Error(0)
}

func (m *MockCommunicationRepository) AttachmentContentExists(ctx context.Context, externalAttachmentID string) (bool, error) {
	args := m.Called(ctx, externalAttachmentID)
	return args.Bool(0), args.Error(1)
}

type MockConversationShadowRepository struct {
	mock.Mock
}

func (m *MockConversationShadowRepository) ExistsForRelation(ctx context.Context, externalConversationID, targetRelationID string) (bool, error) {
	args := m.Called(ctx, externalConversationID, targetRelationID)
	return args.Bool(0), args.Error(1)
}

func (m *MockConversationShadowRepository) Create(ctx context.Context, shadow *domain.ConversationShadow) error {
	args := m.Called(ctx, shadow)
	return args.Error(0)
}

type MockSyncCursorRepository struct {
	mock.Mock
}

func (m *MockSyncCursorRepository) ListActive(ctx context.Context) ([]*domain.SyncCursor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SyncCursor), args.Error(1)
}

func (m *MockSyncCursorRepository) Advance(ctx context.Context, namespace, municipalityID string, sequenceNumber int64) error {
	args := m.Called(ctx, namespace, municipalityID, sequenceNumber)
	return args.Error(0)
}

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockNotificationRepository) ExistsUnacknowledged(ctx context.Context, ownerID string, errandID uuid.UUID, description string, createdAfter time.Time) (bool, error) {
	args := m.Called(ctx, ownerID, errandID, description, createdAfter)
	return args.Bool(0), args.Error(1)
}

func (m *MockNotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// stubTxRunner hands the registered stores straight to the unit of work.
// Transactional semantics are covered by the pgx-backed runner's own tests.
type stubTxRunner struct {
	stores domain.Stores
}

func (s *stubTxRunner) Within(ctx context.Context, fn func(ctx context.Context, stores domain.Stores) error) error {
	return fn(ctx, s.stores)
}

// --- Upstream client mocks ---

type MockEmailReaderClient struct {
	mock.Mock
}

func (m *MockEmailReaderClient) GetEmails(ctx context.Context, municipalityID, namespace string) ([]emailreader.Email, error) {
	args := m.Called(ctx, municipalityID, namespace)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]emailreader.Email), args.Error(1)
}

func (m *MockEmailReaderClient) DeleteEmail(ctx context.Context, municipalityID, emailID string) error {
	args := m.Called(ctx, municipalityID, emailID)
	return args.Error(0)
}

type MockWebMessageCollectorClient struct {
	mock.Mock
}

func (m *MockWebMessageCollectorClient) GetWebMessages(ctx context.Context, municipalityID, familyID, instance string) ([]webmessagecollector.WebMessage, error) {
	args := m.Called(ctx, municipalityID, familyID, instance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]webmessagecollector.WebMessage), args.Error(1)
}

func (m *MockWebMessageCollectorClient) GetAttachment(ctx context.Context, municipalityID, attachmentID string) ([]byte, string, error) {
	args := m.Called(ctx, municipalityID, attachmentID)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

type MockConversationExchangeClient struct {
	mock.Mock
}

func (m *MockConversationExchangeClient) GetConversations(ctx context.Context, municipalityID, namespace, filter string, page, size int) (*conversationexchange.Page, error) {
	args := m.Called(ctx, municipalityID, namespace, filter, page, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*conversationexchange.Page), args.Error(1)
}

func (m *MockConversationExchangeClient) MergeMessages(ctx context.Context, municipalityID, namespace, externalConversationID string, shadowID string) error {
	args := m.Called(ctx, municipalityID, namespace, externalConversationID, shadowID)
	return args.Error(0)
}

type MockRelationsClient struct {
	mock.Mock
}

func (m *MockRelationsClient) GetRelation(ctx context.Context, municipalityID, relationID string) (*relations.Relation, error) {
	args := m.Called(ctx, municipalityID, relationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*relations.Relation), args.Error(1)
}

type MockMessagingClient struct {
	mock.Mock
}

func (m *MockMessagingClient) SendEmail(ctx context.Context, municipalityID, recipient, subject, message string) error {
	args := m.Called(ctx, municipalityID, recipient, subject, message)
	return args.Error(0)
}

type MockEmployeeDirectoryClient struct {
	mock.Mock
}

func (m *MockEmployeeDirectoryClient) GetDisplayName(ctx context.Context, municipalityID, loginName string) (string, error) {
	args := m.Called(ctx, municipalityID, loginName)
	return args.String(0), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}
