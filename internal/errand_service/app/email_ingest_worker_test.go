package app

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/municipio/support-management/internal/errand_service/adapters/emailreader"
	"github.com/municipio/support-management/internal/errand_service/domain"
)

const testGraceWindow = 5 * 24 * time.Hour

type emailWorkerTestComponents struct {
	worker             *EmailIngestWorker
	mockEmailClient    *MockEmailReaderClient
	mockMessaging      *MockMessagingClient
	mockErrands        *MockErrandRepository
	mockCommunications *MockCommunicationRepository
	mockNumbers        *MockErrandNumberGenerator
	mockPublisher      *MockEventPublisher
	health             *WorkerHealth
}

func setupEmailWorkerTest(t *testing.T) emailWorkerTestComponents {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mockEmailClient := new(MockEmailReaderClient)
	mockMessaging := new(MockMessagingClient)
	mockErrands := new(MockErrandRepository)
	mockCommunications := new(MockCommunicationRepository)
	mockNumbers := new(MockErrandNumberGenerator)
	mockPublisher := new(MockEventPublisher)
	health := NewHealthRegistry().Register(emailWorkerName)

	txRunner := &stubTxRunner{stores: domain.Stores{
		Errands:        mockErrands,
		Communications: mockCommunications,
	}}

	worker := NewEmailIngestWorker(
		testNamespace, testMunicipalityID, "KC", testGraceWindow,
		mockEmailClient, mockMessaging,
		newTestMatcher(nil),
		domain.NewStateLedger(logger),
		mockNumbers, txRunner, mockPublisher, health, logger,
	)

	return emailWorkerTestComponents{
		worker:             worker,
		mockEmailClient:    mockEmailClient,
		mockMessaging:      mockMessaging,
		mockErrands:        mockErrands,
		mockCommunications: mockCommunications,
		mockNumbers:        mockNumbers,
		mockPublisher:      mockPublisher,
		health:             health,
	}
}

func solvedErrand(errandNumber string, touchedAt time.Time) *domain.Errand {
	errand := domain.NewErrand(testNamespace, testMunicipalityID, errandNumber, "Trasig gatlykta", "beskrivning")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := domain.NewStateLedger(logger)
	ledger.OpenInitial(errand, "adm01", touchedAt.Add(-time.Hour))
	ledger.ApplyTransition(context.Background(), errand, domain.StatusSolved, "adm01", touchedAt)
	errand.TouchedAt = touchedAt
	return errand
}

func TestEmailIngestWorker_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("ReactivatesRecentlySolvedErrand", func(t *testing.T) {
		comps := setupEmailWorkerTest(t)

		errand := solvedErrand("KC-2405-0001", time.Now().UTC().Add(-48*time.Hour))
		email := emailreader.Email{
			ID:      "mail-1",
			Sender:  "medborgare@example.com",
			Subject: "Ärende #KC-2405-0001 Follow-up",
			Message: "Lampan är fortfarande trasig.",
		}

		comps.mockEmailClient.On("GetEmails", ctx, testMunicipalityID, testNamespace).Return([]emailreader.Email{email}, nil).Once()
		comps.mockCommunications.On("ExistsByExternalID", mock.Anything, domain.ChannelEmail, "mail-1").Return(false, nil).Once()
		comps.mockErrands.On("GetByErrandNumber", mock.Anything, testNamespace, testMunicipalityID, "KC-2405-0001").Return(errand, nil).Once()
		comps.mockErrands.On("Update", mock.Anything, errand).Return(nil).Once()
		comps.mockCommunications.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.CommunicationRecord) bool {
			return r.ErrandNumber == "KC-2405-0001" && r.ChannelType == domain.ChannelEmail &&
				r.Direction == domain.DirectionInbound && r.ExternalID == "mail-1"
		})).Return(nil).Once()
		comps.mockPublisher.On("Publish", mock.Anything, SubjectErrandStatusChanged, mock.Anything).Return(nil).Once()
		comps.mockEmailClient.On("DeleteEmail", ctx, testMunicipalityID, "mail-1").Return(nil).Once()

		err := comps.worker.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, domain.StatusOngoing, errand.Status)
		assert.Equal(t, domain.StatusSolved, errand.PreviousStatus)
		// The SOLVED ledger entry is closed and exactly one ONGOING entry is
		// open.
		openIdx := domain.OpenEntryIndex(errand.TimeMeasures)
		require.GreaterOrEqual(t, openIdx, 0)
		assert.Equal(t, domain.StatusOngoing, errand.TimeMeasures[openIdx].Status)
		assert.True(t, comps.health.Healthy())
		mock.AssertExpectationsForObjects(t, comps.mockEmailClient, comps.mockErrands, comps.mockCommunications, comps.mockPublisher)
	})

	t.Run("StaleSolvedErrandGetsClosingNoticeNotReopened", func(t *testing.T) {
		comps := setupEmailWorkerTest(t)

		errand := solvedErrand("KC-2405-0001", time.Now().UTC().Add(-10*24*time.Hour))
		email := emailreader.Email{
			ID:      "mail-2",
			Sender:  "medborgare@example.com",
			Subject: "Re: #KC-2405-0001",
			Message: "Hallå?",
		}

		comps.mockEmailClient.On("GetEmails", ctx, testMunicipalityID, testNamespace).Return([]emailreader.Email{email}, nil).Once()
		comps.mockCommunications.On("ExistsByExternalID", mock.Anything, domain.ChannelEmail, "mail-2").Return(false, nil).Once()
		comps.mockErrands.On("GetByErrandNumber", mock.Anything, testNamespace, testMunicipalityID, "KC-2405-0001").Return(errand, nil).Once()
		comps.mockCommunications.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		comps.mockMessaging.On("SendEmail", ctx, testMunicipalityID, "medborgare@example.com", closingNoticeSubject, closingNoticeBody).Return(nil).Once()
		comps.mockEmailClient.On("DeleteEmail", ctx, testMunicipalityID, "mail-2").Return(nil).Once()

		err := comps.worker.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, domain.StatusSolved, errand.Status)
		comps.mockErrands.AssertNotCalled(t, "Update")
		mock.AssertExpectationsForObjects(t, comps.mockMessaging, comps.mockCommunications)
	})

	t.Run("ClosingNoticeFailureStillClearsUpstream", func(t *testing.T) {
		comps := setupEmailWorkerTest(t)

		errand := solvedErrand("KC-2405-0001", time.Now().UTC().Add(-10*24*time.Hour))
		email := emailreader.Email{ID: "mail-3", Sender: "medborgare@example.com", Subject: "#KC-2405-0001", Message: "..."}

		comps.mockEmailClient.On("GetEmails", ctx, testMunicipalityID, testNamespace).Return([]emailreader.Email{email}, nil).Once()
		comps.mockCommunications.On("ExistsByExternalID", mock.Anything, domain.ChannelEmail, "mail-3").Return(false, nil).Once()
		comps.mockErrands.On("GetByErrandNumber", mock.Anything, testNamespace, testMunicipalityID, "KC-2405-0001").Return(errand, nil).Once()
		comps.mockCommunications.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		comps.mockMessaging.On("SendEmail", ctx, testMunicipalityID, "medborgare@example.com", closingNoticeSubject, closingNoticeBody).
			Return(domain.ErrMandatorySettingMissing).Once()
		comps.mockEmailClient.On("DeleteEmail", ctx, testMunicipalityID, "mail-3").Return(nil).Once()

		err := comps.worker.Run(ctx)
		require.NoError(t, err)
		assert.False(t, comps.health.Healthy())
		comps.mockEmailClient.AssertExpectations(t)
	})

	t.Run("UnmatchedEmailCreatesNewErrand", func(t *testing.T) {
		comps := setupEmailWorkerTest(t)

		content := base64.StdEncoding.EncodeToString([]byte("fotobevis"))
		email := emailreader.Email{
			ID:      "mail-4",
			Sender:  "medborgare@example.com",
			Subject: "Trasig gatlykta på Storgatan",
			Message: "Lyktan utanför nummer 12 är släckt.",
			Attachments: []emailreader.Attachment{
				{Name: "lampa.jpg", ContentType: "image/jpeg", ContentBase64: content},
			},
		}

		comps.mockEmailClient.On("GetEmails", ctx, testMunicipalityID, testNamespace).Return([]emailreader.Email{email}, nil).Once()
		comps.mockCommunications.On("ExistsByExternalID", mock.Anything, domain.ChannelEmail, "mail-4").Return(false, nil).Once()
		comps.mockNumbers.On("Next", mock.Anything, testNamespace, testMunicipalityID, "KC", mock.AnythingOfType("time.Time")).Return("KC-2609-0042", nil).Once()
		comps.mockErrands.On("Create", mock.Anything, mock.MatchedBy(func(e *domain.Errand) bool {
			return e.ErrandNumber == "KC-2609-0042" && e.Status == domain.StatusNew &&
				e.StakeholderContact == "medborgare@example.com" &&
				domain.OpenEntryIndex(e.TimeMeasures) == 0
		})).Return(nil).Once()
		comps.mockCommunications.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.CommunicationRecord) bool {
			return r.ErrandNumber == "KC-2609-0042" && len(r.Attachments) == 1 &&
				string(r.Attachments[0].Content) == "fotobevis"
		})).Return(nil).Once()
		comps.mockEmailClient.On("DeleteEmail", ctx, testMunicipalityID, "mail-4").Return(nil).Once()

		err := comps.worker.Run(ctx)
		require.NoError(t, err)
		mock.AssertExpectationsForObjects(t, comps.mockNumbers, comps.mockErrands, comps.mockCommunications)
	})

	t.Run("AlreadyIngestedEmailOnlyClearsUpstream", func(t *testing.T) {
		comps := setupEmailWorkerTest(t)

		email := emailreader.Email{ID: "mail-5", Sender: "medborgare@example.com", Subject: "#KC-2405-0001"}

		comps.mockEmailClient.On("GetEmails", ctx, testMunicipalityID, testNamespace).Return([]emailreader.Email{email}, nil).Once()
		comps.mockCommunications.On("ExistsByExternalID", mock.Anything, domain.ChannelEmail, "mail-5").Return(true, nil).Once()
		comps.mockEmailClient.On("DeleteEmail", ctx, testMunicipalityID, "mail-5").Return(nil).Once()

		err := comps.worker.Run(ctx)
		require.NoError(t, err)
		comps.mockErrands.AssertNotCalled(t, "GetByErrandNumber")
		comps.mockCommunications.AssertNotCalled(t, "Create")
	})

	t.Run("OneFailingEmailDoesNotAbortTheBatch", func(t *testing.T) {
		comps := setupEmailWorkerTest(t)

		failing := emailreader.Email{ID: "mail-6", Sender: "a@example.com", Subject: "ett"}
		passing := emailreader.Email{ID: "mail-7", Sender: "b@example.com", Subject: "två"}

		comps.mockEmailClient.On("GetEmails", ctx, testMunicipalityID, testNamespace).Return([]emailreader.Email{failing, passing}, nil).Once()
		comps.mockCommunications.On("ExistsByExternalID", mock.Anything, domain.ChannelEmail, "mail-6").Return(false, errors.New("connection reset")).Once()
		comps.mockCommunications.On("ExistsByExternalID", mock.Anything, domain.ChannelEmail, "mail-7").Return(true, nil).Once()
		comps.mockEmailClient.On("DeleteEmail", ctx, testMunicipalityID, "mail-7").Return(nil).Once()

		err := comps.worker.Run(ctx)
		require.NoError(t, err)
		assert.False(t, comps.health.Healthy())
		// The failing email stays upstream for the next run.
		comps.mockEmailClient.AssertNotCalled(t, "DeleteEmail", ctx, testMunicipalityID, "mail-6")
	})

	t.Run("BatchFetchFailureFailsTheRun", func(t *testing.T) {
		comps := setupEmailWorkerTest(t)

		comps.mockEmailClient.On("GetEmails", ctx, testMunicipalityID, testNamespace).Return(nil, errors.New("upstream unavailable")).Once()

		err := comps.worker.Run(ctx)
		require.Error(t, err)
		assert.False(t, comps.health.Healthy())
	})
}

func TestEmailIngestWorker_GraceWindowBoundary(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, touchedAt time.Time) (reopened bool) {
		comps := setupEmailWorkerTest(t)
		errand := solvedErrand("KC-2405-0001", touchedAt)
		email := emailreader.Email{ID: "mail-b", Sender: "medborgare@example.com", Subject: "#KC-2405-0001"}

		comps.mockEmailClient.On("GetEmails", ctx, testMunicipalityID, testNamespace).Return([]emailreader.Email{email}, nil).Once()
		comps.mockCommunications.On("ExistsByExternalID", mock.Anything, domain.ChannelEmail, "mail-b").Return(false, nil).Once()
		comps.mockErrands.On("GetByErrandNumber", mock.Anything, testNamespace, testMunicipalityID, "KC-2405-0001").Return(errand, nil).Once()
		comps.mockErrands.On("Update", mock.Anything, mock.Anything).Return(nil).Maybe()
		comps.mockCommunications.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		comps.mockMessaging.On("SendEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
		comps.mockPublisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
		comps.mockEmailClient.On("DeleteEmail", ctx, testMunicipalityID, "mail-b").Return(nil).Once()

		require.NoError(t, comps.worker.Run(ctx))
		return errand.Status == domain.StatusOngoing
	}

	t.Run("JustInsideGraceWindowReopens", func(t *testing.T) {
		assert.True(t, run(t, time.Now().UTC().Add(-testGraceWindow+time.Minute)))
	})

	t.Run("JustOutsideGraceWindowStaysSolved", func(t *testing.T) {
		assert.False(t, run(t, time.Now().UTC().Add(-testGraceWindow-time.Minute)))
	})
}
