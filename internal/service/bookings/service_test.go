package bookings

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	bookingRepo "github.com/m04kA/SMC-ReservationService/internal/infra/storage/booking"
	"github.com/m04kA/SMC-ReservationService/internal/integrations/placeservice"
	"github.com/m04kA/SMC-ReservationService/internal/integrations/userservice"
	"github.com/m04kA/SMC-ReservationService/internal/notify"
	"github.com/m04kA/SMC-ReservationService/internal/service/bookings/models"
	"github.com/m04kA/SMC-ReservationService/pkg/types"
)

// Тестовые дублёры

type fakeBookingRepo struct {
	bookings map[int64]*domain.Booking

	deleted       []int64
	statusUpdates []statusUpdate
	markPaidCalls int
}

type statusUpdate struct {
	id int64
	to domain.BookingStatus
}

func newFakeBookingRepo(bookings ...*domain.Booking) *fakeBookingRepo {
	repo := &fakeBookingRepo{bookings: make(map[int64]*domain.Booking)}
	for _, b := range bookings {
		repo.bookings[b.ID] = b
	}
	return repo
}

func (r *fakeBookingRepo) GetByID(_ context.Context, id int64) (*domain.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingRepo.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) GetByUserID(_ context.Context, userID int64, status *domain.BookingStatus) ([]*domain.Booking, error) {
	var result []*domain.Booking
	for _, b := range r.bookings {
		if b.UserID != userID {
			continue
		}
		if status != nil && b.Status != *status {
			continue
		}
		cp := *b
		result = append(result, &cp)
	}
	return result, nil
}

func (r *fakeBookingRepo) GetByPlaceWithFilter(_ context.Context, filter domain.PlaceBookingsFilter) ([]*domain.Booking, error) {
	var result []*domain.Booking
	for _, b := range r.bookings {
		if b.PlaceID != filter.PlaceID {
			continue
		}
		if filter.ExcludeID != nil && b.ID == *filter.ExcludeID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if b.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		cp := *b
		result = append(result, &cp)
	}
	return result, nil
}

func (r *fakeBookingRepo) UpdateStatus(_ context.Context, id int64, from []domain.BookingStatus, to domain.BookingStatus) error {
	b, ok := r.bookings[id]
	if !ok {
		return bookingRepo.ErrBookingNotFound
	}
	match := false
	for _, s := range from {
		if b.Status == s {
			match = true
			break
		}
	}
	if !match {
		return bookingRepo.ErrStatusConflict
	}
	b.Status = to
	stampStatus(b, to)
	r.statusUpdates = append(r.statusUpdates, statusUpdate{id: id, to: to})
	return nil
}

func (r *fakeBookingRepo) MarkPaid(_ context.Context, id int64, providerTxID string, providerResponse string) (bool, error) {
	b, ok := r.bookings[id]
	if !ok {
		return false, bookingRepo.ErrBookingNotFound
	}
	r.markPaidCalls++
	if b.PaidAt != nil || !b.AcceptsPayment() {
		return false, nil
	}
	now := time.Now()
	b.PaidAt = &now
	b.PaymentProviderID = &providerTxID
	b.PaymentResponse = &providerResponse
	b.Status = domain.StatusApproved
	stampStatus(b, domain.StatusApproved)
	return true, nil
}

// stampStatus выставляет lifecycle-метку статуса только при первом входе,
// повторяя COALESCE(x_at, NOW()) реального репозитория
func stampStatus(b *domain.Booking, to domain.BookingStatus) {
	now := time.Now()
	switch to {
	case domain.StatusSelected:
		if b.SelectedAt == nil {
			b.SelectedAt = &now
		}
	case domain.StatusApproved:
		if b.ApprovedAt == nil {
			b.ApprovedAt = &now
		}
	case domain.StatusRejected:
		if b.RejectedAt == nil {
			b.RejectedAt = &now
		}
	case domain.StatusCancelled:
		if b.CancelledAt == nil {
			b.CancelledAt = &now
		}
	}
}

func (r *fakeBookingRepo) MarkPaidToHost(_ context.Context, id int64) (bool, error) {
	b, ok := r.bookings[id]
	if !ok {
		return false, bookingRepo.ErrBookingNotFound
	}
	if b.Status != domain.StatusApproved || b.PaidToHost {
		return false, nil
	}
	now := time.Now()
	b.PaidToHost = true
	b.PaidToHostAt = &now
	return true, nil
}

func (r *fakeBookingRepo) Delete(_ context.Context, id int64) error {
	if _, ok := r.bookings[id]; !ok {
		return bookingRepo.ErrBookingNotFound
	}
	delete(r.bookings, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type fakePlaceClient struct {
	places map[int64]*placeservice.Place
}

func (c *fakePlaceClient) GetPlace(_ context.Context, placeID int64) (*placeservice.Place, error) {
	p, ok := c.places[placeID]
	if !ok {
		return nil, placeservice.ErrPlaceNotFound
	}
	return p, nil
}

type fakeUserClient struct {
	users  map[int64]*userservice.User
	agents []userservice.User
}

func (c *fakeUserClient) GetUser(_ context.Context, userID int64) (*userservice.User, error) {
	u, ok := c.users[userID]
	if !ok {
		return nil, userservice.ErrUserNotFound
	}
	return u, nil
}

func (c *fakeUserClient) GetAgents(_ context.Context) ([]userservice.User, error) {
	return c.agents, nil
}

type sentEvent struct {
	userID    int64
	eventType notify.EventType
}

type fakeNotifier struct {
	events []sentEvent
}

func (n *fakeNotifier) Notify(userID int64, eventType notify.EventType, _ map[string]interface{}) {
	n.events = append(n.events, sentEvent{userID: userID, eventType: eventType})
}

func (n *fakeNotifier) countByType(eventType notify.EventType) int {
	count := 0
	for _, e := range n.events {
		if e.eventType == eventType {
			count++
		}
	}
	return count
}

type fakeTxManager struct{}

func (m *fakeTxManager) DoSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// Фикстуры

const (
	clientID   = int64(10)
	hostID     = int64(20)
	agentID    = int64(30)
	strangerID = int64(40)
	placeID    = int64(100)
)

func testPlace(cooldown int) *placeservice.Place {
	return &placeservice.Place{
		ID:              placeID,
		OwnerID:         hostID,
		Name:            "Conference Hall A",
		CooldownMinutes: cooldown,
	}
}

func testUsers() map[int64]*userservice.User {
	return map[int64]*userservice.User{
		clientID:   {ID: clientID, Role: domain.RoleClient},
		hostID:     {ID: hostID, Role: domain.RoleHost},
		agentID:    {ID: agentID, Role: domain.RoleAgent},
		strangerID: {ID: strangerID, Role: domain.RoleClient},
	}
}

func slot(date, start, end string) domain.TimeSlot {
	return domain.TimeSlot{
		Date:      date,
		StartTime: types.TimeString(start),
		EndTime:   types.TimeString(end),
	}
}

func testBooking(id int64, userID int64, status domain.BookingStatus, slots ...domain.TimeSlot) *domain.Booking {
	checkIn, _ := time.Parse(domain.DateFormat, "2026-09-01")
	b := &domain.Booking{
		ID:           id,
		RequestID:    fmt.Sprintf("req-%d", id),
		UserID:       userID,
		PlaceID:      placeID,
		CheckInDate:  checkIn,
		CheckOutDate: checkIn,
		TimeSlots:    slots,
		Status:       status,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	return b
}

func newTestService(repo *fakeBookingRepo, place *placeservice.Place, notifier *fakeNotifier) *Service {
	return NewService(
		repo,
		&fakePlaceClient{places: map[int64]*placeservice.Place{placeID: place}},
		&fakeUserClient{users: testUsers(), agents: []userservice.User{{ID: agentID, Role: domain.RoleAgent}}},
		notifier,
		&fakeTxManager{},
		nil,
		noopLogger{},
	)
}

// Тесты

func TestSetStatus_TransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.BookingStatus
		to      string
		wantErr error
	}{
		{"pending to selected", domain.StatusPending, "selected", nil},
		{"pending to approved", domain.StatusPending, "approved", nil},
		{"pending to rejected", domain.StatusPending, "rejected", nil},
		{"selected to approved", domain.StatusSelected, "approved", nil},
		{"selected to rejected", domain.StatusSelected, "rejected", nil},
		{"pending to cancelled", domain.StatusPending, "cancelled", ErrInvalidStateTransition},
		{"selected to selected", domain.StatusSelected, "selected", ErrInvalidStateTransition},
		{"approved to rejected", domain.StatusApproved, "rejected", ErrInvalidStateTransition},
		{"approved to selected", domain.StatusApproved, "selected", ErrInvalidStateTransition},
		{"rejected to approved", domain.StatusRejected, "approved", ErrInvalidStateTransition},
		{"cancelled to approved", domain.StatusCancelled, "approved", ErrInvalidStateTransition},
		{"unknown status", domain.StatusPending, "archived", ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := testBooking(1, clientID, tt.from, slot("2026-09-01", "10:00", "12:00"))
			repo := newFakeBookingRepo(booking)
			svc := newTestService(repo, testPlace(0), &fakeNotifier{})

			_, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
				UserID:        hostID,
				Status:        tt.to,
				AgentApproval: true,
			})

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSetStatus_Authorization(t *testing.T) {
	tests := []struct {
		name    string
		userID  int64
		to      string
		wantErr error
	}{
		{"host selects", hostID, "selected", nil},
		{"agent selects", agentID, "selected", nil},
		{"client cannot select", clientID, "selected", ErrAccessDenied},
		{"stranger cannot select", strangerID, "selected", ErrAccessDenied},
		{"host approves", hostID, "approved", nil},
		{"agent approves", agentID, "approved", nil},
		{"client cannot approve", clientID, "approved", ErrAccessDenied},
		{"host rejects", hostID, "rejected", nil},
		{"client rejects own booking", clientID, "rejected", nil},
		{"stranger cannot reject", strangerID, "rejected", ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))
			repo := newFakeBookingRepo(booking)
			svc := newTestService(repo, testPlace(0), &fakeNotifier{})

			_, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
				UserID:        tt.userID,
				Status:        tt.to,
				AgentApproval: true,
			})

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSetStatus_PaymentGate(t *testing.T) {
	t.Run("approve without confirmation is refused", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusSelected, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		_, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
			UserID: hostID,
			Status: "approved",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRequiresPaymentCheck)

		// Статус не изменился
		stored, getErr := repo.GetByID(context.Background(), 1)
		require.NoError(t, getErr)
		assert.Equal(t, domain.StatusSelected, stored.Status)
	})

	t.Run("approve with paymentConfirmed succeeds", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusSelected, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		resp, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
			UserID:           hostID,
			Status:           "approved",
			PaymentConfirmed: true,
		})

		require.NoError(t, err)
		assert.Equal(t, "approved", resp.Status)
	})

	t.Run("approve with agentApproval succeeds", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		resp, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
			UserID:        agentID,
			Status:        "approved",
			AgentApproval: true,
		})

		require.NoError(t, err)
		assert.Equal(t, "approved", resp.Status)
	})
}

func TestSetStatus_ApproveRejectsCompetitors(t *testing.T) {
	winner := testBooking(1, clientID, domain.StatusSelected, slot("2026-09-01", "10:00", "12:00"))
	overlapping := testBooking(2, strangerID, domain.StatusPending, slot("2026-09-01", "11:00", "13:00"))
	disjoint := testBooking(3, strangerID, domain.StatusPending, slot("2026-09-01", "14:00", "16:00"))
	otherDate := testBooking(4, strangerID, domain.StatusSelected, slot("2026-09-02", "10:00", "12:00"))

	repo := newFakeBookingRepo(winner, overlapping, disjoint, otherDate)
	notifier := &fakeNotifier{}
	svc := newTestService(repo, testPlace(0), notifier)

	resp, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
		UserID:           hostID,
		Status:           "approved",
		PaymentConfirmed: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "approved", resp.Status)

	// Пересекающийся конкурент отклонён, остальные не тронуты
	assert.Equal(t, domain.StatusRejected, repo.bookings[2].Status)
	assert.Equal(t, domain.StatusPending, repo.bookings[3].Status)
	assert.Equal(t, domain.StatusSelected, repo.bookings[4].Status)

	// Проигравший клиент получил уведомление об отказе
	assert.GreaterOrEqual(t, notifier.countByType(notify.EventBookingRejected), 1)
}

func TestSetStatus_ApproveConflictsWithApproved(t *testing.T) {
	t.Run("overlapping approved booking blocks approve", func(t *testing.T) {
		candidate := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))
		taken := testBooking(2, strangerID, domain.StatusApproved, slot("2026-09-01", "11:00", "13:00"))

		repo := newFakeBookingRepo(candidate, taken)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		_, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
			UserID:        hostID,
			Status:        "approved",
			AgentApproval: true,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSlotConflict)

		var conflictErr *SlotConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, "2026-09-01", conflictErr.Slot.Date)

		assert.Equal(t, domain.StatusPending, repo.bookings[1].Status)
	})

	t.Run("cooldown gap blocks approve", func(t *testing.T) {
		// Слот заканчивается в 12:00, следующий начинается в 12:30,
		// cooldown площадки 30 минут
		candidate := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "12:30", "14:00"))
		taken := testBooking(2, strangerID, domain.StatusApproved, slot("2026-09-01", "10:00", "12:00"))

		repo := newFakeBookingRepo(candidate, taken)
		svc := newTestService(repo, testPlace(30), &fakeNotifier{})

		_, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
			UserID:        hostID,
			Status:        "approved",
			AgentApproval: true,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSlotConflict)
	})

	t.Run("back-to-back approved at zero cooldown passes", func(t *testing.T) {
		candidate := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "12:00", "14:00"))
		taken := testBooking(2, strangerID, domain.StatusApproved, slot("2026-09-01", "10:00", "12:00"))

		repo := newFakeBookingRepo(candidate, taken)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		resp, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
			UserID:        hostID,
			Status:        "approved",
			AgentApproval: true,
		})

		require.NoError(t, err)
		assert.Equal(t, "approved", resp.Status)
	})
}

func TestSetStatus_ClientRejectDeletesBooking(t *testing.T) {
	booking := testBooking(1, clientID, domain.StatusSelected, slot("2026-09-01", "10:00", "12:00"))
	repo := newFakeBookingRepo(booking)
	notifier := &fakeNotifier{}
	svc := newTestService(repo, testPlace(0), notifier)

	resp, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
		UserID: clientID,
		Status: "rejected",
	})

	require.NoError(t, err)
	assert.Equal(t, "rejected", resp.Status)

	// Заявка удалена физически, хост уведомлён
	assert.Contains(t, repo.deleted, int64(1))
	require.Len(t, notifier.events, 1)
	assert.Equal(t, hostID, notifier.events[0].userID)
	assert.Equal(t, notify.EventBookingRejected, notifier.events[0].eventType)
}

func TestSetStatus_HostRejectKeepsRecord(t *testing.T) {
	booking := testBooking(1, clientID, domain.StatusSelected, slot("2026-09-01", "10:00", "12:00"))
	repo := newFakeBookingRepo(booking)
	notifier := &fakeNotifier{}
	svc := newTestService(repo, testPlace(0), notifier)

	resp, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
		UserID: hostID,
		Status: "rejected",
	})

	require.NoError(t, err)
	assert.Equal(t, "rejected", resp.Status)

	// Запись сохранена со статусом rejected, клиент уведомлён
	assert.Empty(t, repo.deleted)
	assert.Equal(t, domain.StatusRejected, repo.bookings[1].Status)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, clientID, notifier.events[0].userID)
}

func TestSetStatus_SelectedNotifiesClient(t *testing.T) {
	booking := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))
	repo := newFakeBookingRepo(booking)
	notifier := &fakeNotifier{}
	svc := newTestService(repo, testPlace(0), notifier)

	_, err := svc.SetStatus(context.Background(), 1, &models.UpdateStatusRequest{
		UserID: hostID,
		Status: "selected",
	})

	require.NoError(t, err)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, clientID, notifier.events[0].userID)
	assert.Equal(t, notify.EventBookingSelected, notifier.events[0].eventType)
}

func TestCancel(t *testing.T) {
	t.Run("owner cancels own booking", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		notifier := &fakeNotifier{}
		svc := newTestService(repo, testPlace(0), notifier)

		err := svc.Cancel(context.Background(), 1, &models.CancelBookingRequest{UserID: clientID})

		require.NoError(t, err)
		assert.Contains(t, repo.deleted, int64(1))
		require.Len(t, notifier.events, 1)
		assert.Equal(t, hostID, notifier.events[0].userID)
	})

	t.Run("non-owner cannot cancel", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		err := svc.Cancel(context.Background(), 1, &models.CancelBookingRequest{UserID: strangerID})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("approved booking cannot be cancelled", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusApproved, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		err := svc.Cancel(context.Background(), 1, &models.CancelBookingRequest{UserID: clientID})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("missing booking", func(t *testing.T) {
		repo := newFakeBookingRepo()
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		err := svc.Cancel(context.Background(), 404, &models.CancelBookingRequest{UserID: clientID})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}

func TestMarkPaid(t *testing.T) {
	t.Run("first application approves and notifies", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusSelected, slot("2026-09-01", "10:00", "12:00"))
		competitor := testBooking(2, strangerID, domain.StatusPending, slot("2026-09-01", "11:00", "13:00"))
		repo := newFakeBookingRepo(booking, competitor)
		notifier := &fakeNotifier{}
		svc := newTestService(repo, testPlace(0), notifier)

		applied, err := svc.MarkPaid(context.Background(), 1, "tx-123", `{"status":2}`)

		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, domain.StatusApproved, repo.bookings[1].Status)
		require.NotNil(t, repo.bookings[1].PaymentProviderID)
		assert.Equal(t, "tx-123", *repo.bookings[1].PaymentProviderID)

		// Конкурент отклонён
		assert.Equal(t, domain.StatusRejected, repo.bookings[2].Status)

		// Агент получил payout_due, хост и клиент уведомлены
		assert.Equal(t, 1, notifier.countByType(notify.EventPayoutDue))
		assert.Equal(t, 1, notifier.countByType(notify.EventBookingApproved))
		assert.Equal(t, 1, notifier.countByType(notify.EventBookingPaid))
	})

	t.Run("repeat application is a no-op", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusSelected, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		notifier := &fakeNotifier{}
		svc := newTestService(repo, testPlace(0), notifier)

		applied, err := svc.MarkPaid(context.Background(), 1, "tx-123", `{"status":2}`)
		require.NoError(t, err)
		require.True(t, applied)
		firstBatch := len(notifier.events)

		require.NotNil(t, repo.bookings[1].ApprovedAt)
		firstApprovedAt := *repo.bookings[1].ApprovedAt

		// Повторный webhook или догнавший поллер
		applied, err = svc.MarkPaid(context.Background(), 1, "tx-123", `{"status":2}`)
		require.NoError(t, err)
		assert.False(t, applied)

		// Побочных эффектов нет: ровно один набор уведомлений, метка
		// approved_at не перезаписана
		assert.Len(t, notifier.events, firstBatch)
		assert.Equal(t, "tx-123", *repo.bookings[1].PaymentProviderID)
		assert.Equal(t, firstApprovedAt, *repo.bookings[1].ApprovedAt)
	})

	t.Run("late signal on rejected booking is refused", func(t *testing.T) {
		rejected := testBooking(1, clientID, domain.StatusRejected, slot("2026-09-01", "10:00", "12:00"))
		winner := testBooking(2, strangerID, domain.StatusApproved, slot("2026-09-01", "11:00", "13:00"))
		repo := newFakeBookingRepo(rejected, winner)
		notifier := &fakeNotifier{}
		svc := newTestService(repo, testPlace(0), notifier)

		applied, err := svc.MarkPaid(context.Background(), 1, "tx-late", `{"status":2}`)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.False(t, applied)

		// Заявка не воскресла, оплата не записана, уведомлений нет
		assert.Equal(t, domain.StatusRejected, repo.bookings[1].Status)
		assert.Nil(t, repo.bookings[1].PaidAt)
		assert.Empty(t, notifier.events)
	})

	t.Run("late signal on cancelled booking is refused", func(t *testing.T) {
		cancelled := testBooking(1, clientID, domain.StatusCancelled, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(cancelled)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		applied, err := svc.MarkPaid(context.Background(), 1, "tx-late", `{"status":2}`)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		assert.False(t, applied)
		assert.Equal(t, domain.StatusCancelled, repo.bookings[1].Status)
		assert.Nil(t, repo.bookings[1].PaidAt)
	})

	t.Run("payment on approved booking keeps approval timestamp", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusApproved, slot("2026-09-01", "10:00", "12:00"))
		approvedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		booking.ApprovedAt = &approvedAt
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		applied, err := svc.MarkPaid(context.Background(), 1, "tx-123", `{"status":2}`)

		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, approvedAt, *repo.bookings[1].ApprovedAt)
	})

	t.Run("missing booking", func(t *testing.T) {
		repo := newFakeBookingRepo()
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		_, err := svc.MarkPaid(context.Background(), 404, "tx-1", "{}")

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}

func TestMarkPaidToHost(t *testing.T) {
	t.Run("agent marks payout on approved booking", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusApproved, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		notifier := &fakeNotifier{}
		svc := newTestService(repo, testPlace(0), notifier)

		err := svc.MarkPaidToHost(context.Background(), 1, agentID)

		require.NoError(t, err)
		assert.True(t, repo.bookings[1].PaidToHost)
		assert.Equal(t, 1, notifier.countByType(notify.EventPayoutDone))
	})

	t.Run("non-agent is refused", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusApproved, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		err := svc.MarkPaidToHost(context.Background(), 1, hostID)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAccessDenied)
		assert.False(t, repo.bookings[1].PaidToHost)
	})

	t.Run("not approved booking is refused", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusSelected, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		err := svc.MarkPaidToHost(context.Background(), 1, agentID)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotApproved)
	})

	t.Run("repeat payout mark is a no-op", func(t *testing.T) {
		booking := testBooking(1, clientID, domain.StatusApproved, slot("2026-09-01", "10:00", "12:00"))
		repo := newFakeBookingRepo(booking)
		notifier := &fakeNotifier{}
		svc := newTestService(repo, testPlace(0), notifier)

		require.NoError(t, svc.MarkPaidToHost(context.Background(), 1, agentID))
		require.NoError(t, svc.MarkPaidToHost(context.Background(), 1, agentID))

		assert.Equal(t, 1, notifier.countByType(notify.EventPayoutDone))
	})
}

func TestGetByID(t *testing.T) {
	booking := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))

	tests := []struct {
		name    string
		userID  int64
		wantErr error
	}{
		{"owner reads own booking", clientID, nil},
		{"host reads booking", hostID, nil},
		{"agent reads booking", agentID, nil},
		{"stranger is refused", strangerID, ErrAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeBookingRepo(booking)
			svc := newTestService(repo, testPlace(0), &fakeNotifier{})

			resp, err := svc.GetByID(context.Background(), 1, tt.userID)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(1), resp.ID)
				assert.Equal(t, "pending", resp.Status)
			}
		})
	}
}

func TestGetPlaceBookings_Authorization(t *testing.T) {
	booking := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))

	t.Run("host lists place bookings", func(t *testing.T) {
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		resp, err := svc.GetPlaceBookings(context.Background(), &models.GetPlaceBookingsRequest{
			UserID:  hostID,
			PlaceID: placeID,
		})

		require.NoError(t, err)
		assert.Len(t, resp.Bookings, 1)
	})

	t.Run("agent lists place bookings", func(t *testing.T) {
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		_, err := svc.GetPlaceBookings(context.Background(), &models.GetPlaceBookingsRequest{
			UserID:  agentID,
			PlaceID: placeID,
		})

		require.NoError(t, err)
	})

	t.Run("client is refused", func(t *testing.T) {
		repo := newFakeBookingRepo(booking)
		svc := newTestService(repo, testPlace(0), &fakeNotifier{})

		_, err := svc.GetPlaceBookings(context.Background(), &models.GetPlaceBookingsRequest{
			UserID:  clientID,
			PlaceID: placeID,
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestGetUserBookings(t *testing.T) {
	b1 := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))
	b2 := testBooking(2, clientID, domain.StatusApproved, slot("2026-09-02", "10:00", "12:00"))
	b3 := testBooking(3, strangerID, domain.StatusPending, slot("2026-09-03", "10:00", "12:00"))

	repo := newFakeBookingRepo(b1, b2, b3)
	svc := newTestService(repo, testPlace(0), &fakeNotifier{})

	t.Run("all user bookings", func(t *testing.T) {
		resp, err := svc.GetUserBookings(context.Background(), &models.GetUserBookingsRequest{UserID: clientID})
		require.NoError(t, err)
		assert.Len(t, resp.Bookings, 2)
	})

	t.Run("filtered by status", func(t *testing.T) {
		status := "approved"
		resp, err := svc.GetUserBookings(context.Background(), &models.GetUserBookingsRequest{
			UserID: clientID,
			Status: &status,
		})
		require.NoError(t, err)
		require.Len(t, resp.Bookings, 1)
		assert.Equal(t, int64(2), resp.Bookings[0].ID)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		status := "archived"
		_, err := svc.GetUserBookings(context.Background(), &models.GetUserBookingsRequest{
			UserID: clientID,
			Status: &status,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

// Полный жизненный цикл: создание конкурентов, выбор, оплата, выплата хосту
func TestLifecycle_EndToEnd(t *testing.T) {
	winner := testBooking(1, clientID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))
	loser := testBooking(2, strangerID, domain.StatusPending, slot("2026-09-01", "10:00", "12:00"))

	repo := newFakeBookingRepo(winner, loser)
	notifier := &fakeNotifier{}
	svc := newTestService(repo, testPlace(0), notifier)
	ctx := context.Background()

	// Хост выбирает победителя
	resp, err := svc.SetStatus(ctx, 1, &models.UpdateStatusRequest{UserID: hostID, Status: "selected"})
	require.NoError(t, err)
	require.Equal(t, "selected", resp.Status)

	// Конкурент пока жив: выбор не отклоняет
	assert.Equal(t, domain.StatusPending, repo.bookings[2].Status)

	// Оплата приходит через webhook
	applied, err := svc.MarkPaid(ctx, 1, "tx-lifecycle", `{"status":2}`)
	require.NoError(t, err)
	require.True(t, applied)

	assert.Equal(t, domain.StatusApproved, repo.bookings[1].Status)
	assert.Equal(t, domain.StatusRejected, repo.bookings[2].Status)

	// Поллер догоняет: ничего не меняется
	applied, err = svc.MarkPaid(ctx, 1, "tx-lifecycle", `{"status":2}`)
	require.NoError(t, err)
	assert.False(t, applied)

	// Агент фиксирует выплату хосту
	require.NoError(t, svc.MarkPaidToHost(ctx, 1, agentID))
	assert.True(t, repo.bookings[1].PaidToHost)

	// В терминальном статусе ничего изменить нельзя
	_, err = svc.SetStatus(ctx, 1, &models.UpdateStatusRequest{UserID: hostID, Status: "rejected"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStateTransition))
}
