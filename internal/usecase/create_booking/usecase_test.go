package create_booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	"github.com/m04kA/SMC-ReservationService/internal/integrations/placeservice"
	"github.com/m04kA/SMC-ReservationService/internal/notify"
	"github.com/m04kA/SMC-ReservationService/pkg/ptr"
	"github.com/m04kA/SMC-ReservationService/pkg/types"
)

type fakeRepo struct {
	approved []*domain.Booking
	created  []*domain.Booking
	nextID   int64
}

func (r *fakeRepo) Create(_ context.Context, booking *domain.Booking) (*domain.Booking, error) {
	r.nextID++
	cp := *booking
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.created = append(r.created, &cp)
	return &cp, nil
}

func (r *fakeRepo) GetByPlaceWithFilter(_ context.Context, filter domain.PlaceBookingsFilter) ([]*domain.Booking, error) {
	var result []*domain.Booking
	for _, b := range r.approved {
		if b.PlaceID == filter.PlaceID {
			result = append(result, b)
		}
	}
	return result, nil
}

type fakePlaceClient struct {
	place *placeservice.Place
}

func (c *fakePlaceClient) GetPlace(_ context.Context, placeID int64) (*placeservice.Place, error) {
	if c.place == nil || c.place.ID != placeID {
		return nil, placeservice.ErrPlaceNotFound
	}
	return c.place, nil
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

type fakeTxManager struct{}

func (m *fakeTxManager) DoSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixedTimeProvider struct{ now time.Time }

func (p fixedTimeProvider) Now() time.Time { return p.now }

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

const (
	clientID = int64(10)
	hostID   = int64(20)
	placeID  = int64(100)
)

// allDayOpen площадка без ограничений расписания
func allDayOpen(cooldown int) *placeservice.Place {
	open := placeservice.DaySchedule{IsOpen: true}
	return &placeservice.Place{
		ID:              placeID,
		OwnerID:         hostID,
		Name:            "Loft on Main",
		CooldownMinutes: cooldown,
		WorkingHours: placeservice.WeekSchedule{
			Monday: open, Tuesday: open, Wednesday: open, Thursday: open,
			Friday: open, Saturday: open, Sunday: open,
		},
		RefundPolicy: ptr.Ptr("full refund 48h before check-in"),
	}
}

func approvedBooking(id int64, date, start, end string) *domain.Booking {
	checkIn, _ := time.Parse(domain.DateFormat, date)
	return &domain.Booking{
		ID:           id,
		PlaceID:      placeID,
		Status:       domain.StatusApproved,
		CheckInDate:  checkIn,
		CheckOutDate: checkIn,
		TimeSlots: domain.TimeSlots{
			{Date: date, StartTime: types.TimeString(start), EndTime: types.TimeString(end)},
		},
	}
}

func newTestUseCase(repo *fakeRepo, place *placeservice.Place, notifier *fakeNotifier) *UseCase {
	uc := NewUseCase(repo, &fakePlaceClient{place: place}, notifier, &fakeTxManager{}, noopLogger{})
	// 2026-06-01 10:00 UTC
	uc.timeProvider = fixedTimeProvider{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
	uc.newRequestID = func() string { return "req-test" }
	return uc
}

func slottedRequest(slots ...SlotRequest) *Request {
	return &Request{
		UserID:    clientID,
		PlaceID:   placeID,
		TimeSlots: slots,
	}
}

func TestExecute_CreatesPendingBooking(t *testing.T) {
	repo := &fakeRepo{}
	notifier := &fakeNotifier{}
	uc := newTestUseCase(repo, allDayOpen(0), notifier)

	resp, err := uc.Execute(context.Background(), slottedRequest(
		SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"},
	))

	require.NoError(t, err)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "req-test", resp.RequestID)
	assert.Equal(t, "2026-07-01", resp.CheckInDate.Format(domain.DateFormat))
	require.NotNil(t, resp.RefundPolicy)
	assert.Equal(t, "full refund 48h before check-in", *resp.RefundPolicy)

	// Хост уведомлён о новой заявке
	require.Len(t, notifier.events, 1)
	assert.Equal(t, hostID, notifier.events[0].userID)
	assert.Equal(t, notify.EventBookingRequested, notifier.events[0].eventType)
}

func TestExecute_DateRangeFromSlots(t *testing.T) {
	repo := &fakeRepo{}
	uc := newTestUseCase(repo, allDayOpen(0), &fakeNotifier{})

	resp, err := uc.Execute(context.Background(), slottedRequest(
		SlotRequest{Date: "2026-07-03", StartTime: "10:00", EndTime: "12:00"},
		SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"},
		SlotRequest{Date: "2026-07-02", StartTime: "10:00", EndTime: "12:00"},
	))

	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", resp.CheckInDate.Format(domain.DateFormat))
	assert.Equal(t, "2026-07-03", resp.CheckOutDate.Format(domain.DateFormat))
}

func TestExecute_FullRangeBooking(t *testing.T) {
	repo := &fakeRepo{}
	uc := newTestUseCase(repo, allDayOpen(0), &fakeNotifier{})

	checkIn := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)

	resp, err := uc.Execute(context.Background(), &Request{
		UserID:       clientID,
		PlaceID:      placeID,
		CheckInDate:  &checkIn,
		CheckOutDate: &checkOut,
	})

	require.NoError(t, err)
	assert.Equal(t, "pending", resp.Status)
	assert.Empty(t, resp.TimeSlots)
}

func TestExecute_PendingCompetitorsCoexist(t *testing.T) {
	// Конкурирующая pending-заявка на тот же слот не блокирует создание
	pending := approvedBooking(1, "2026-07-01", "10:00", "12:00")
	pending.Status = domain.StatusPending

	repo := &fakeRepo{approved: []*domain.Booking{pending}}
	uc := newTestUseCase(repo, allDayOpen(0), &fakeNotifier{})

	_, err := uc.Execute(context.Background(), slottedRequest(
		SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"},
	))

	require.NoError(t, err)
}

func TestExecute_ApprovedConflictBlocks(t *testing.T) {
	repo := &fakeRepo{approved: []*domain.Booking{
		approvedBooking(1, "2026-07-01", "10:00", "12:00"),
	}}
	uc := newTestUseCase(repo, allDayOpen(0), &fakeNotifier{})

	_, err := uc.Execute(context.Background(), slottedRequest(
		SlotRequest{Date: "2026-07-01", StartTime: "11:00", EndTime: "13:00"},
	))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlotConflict)

	var conflictErr *SlotConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "2026-07-01", conflictErr.Slot.Date)
	assert.Empty(t, repo.created)
}

func TestExecute_CooldownBlocksAdjacentSlot(t *testing.T) {
	repo := &fakeRepo{approved: []*domain.Booking{
		approvedBooking(1, "2026-07-01", "10:00", "12:00"),
	}}

	t.Run("30 minute gap at cooldown 30 conflicts", func(t *testing.T) {
		uc := newTestUseCase(repo, allDayOpen(30), &fakeNotifier{})

		_, err := uc.Execute(context.Background(), slottedRequest(
			SlotRequest{Date: "2026-07-01", StartTime: "12:30", EndTime: "14:00"},
		))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSlotConflict)
	})

	t.Run("back-to-back at zero cooldown passes", func(t *testing.T) {
		uc := newTestUseCase(&fakeRepo{approved: repo.approved}, allDayOpen(0), &fakeNotifier{})

		_, err := uc.Execute(context.Background(), slottedRequest(
			SlotRequest{Date: "2026-07-01", StartTime: "12:00", EndTime: "14:00"},
		))

		require.NoError(t, err)
	})
}

func TestExecute_ScheduleValidation(t *testing.T) {
	t.Run("blocked date", func(t *testing.T) {
		place := allDayOpen(0)
		place.BlockedDates = []string{"2026-07-01"}
		uc := newTestUseCase(&fakeRepo{}, place, &fakeNotifier{})

		_, err := uc.Execute(context.Background(), slottedRequest(
			SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"},
		))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDateBlocked)
	})

	t.Run("blocked weekday", func(t *testing.T) {
		place := allDayOpen(0)
		// 2026-07-05 воскресенье
		place.BlockedWeekdays = []int{0}
		uc := newTestUseCase(&fakeRepo{}, place, &fakeNotifier{})

		_, err := uc.Execute(context.Background(), slottedRequest(
			SlotRequest{Date: "2026-07-05", StartTime: "10:00", EndTime: "12:00"},
		))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDateBlocked)
	})

	t.Run("closed day", func(t *testing.T) {
		place := allDayOpen(0)
		// 2026-07-01 среда
		place.WorkingHours.Wednesday = placeservice.DaySchedule{IsOpen: false}
		uc := newTestUseCase(&fakeRepo{}, place, &fakeNotifier{})

		_, err := uc.Execute(context.Background(), slottedRequest(
			SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"},
		))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPlaceClosed)
	})

	t.Run("outside working hours", func(t *testing.T) {
		place := allDayOpen(0)
		place.WorkingHours.Wednesday = placeservice.DaySchedule{
			IsOpen:    true,
			OpenTime:  ptr.Ptr("09:00"),
			CloseTime: ptr.Ptr("18:00"),
		}
		uc := newTestUseCase(&fakeRepo{}, place, &fakeNotifier{})

		_, err := uc.Execute(context.Background(), slottedRequest(
			SlotRequest{Date: "2026-07-01", StartTime: "17:00", EndTime: "19:00"},
		))

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOutsideWorkingHours)
	})

	t.Run("within working hours", func(t *testing.T) {
		place := allDayOpen(0)
		place.WorkingHours.Wednesday = placeservice.DaySchedule{
			IsOpen:    true,
			OpenTime:  ptr.Ptr("09:00"),
			CloseTime: ptr.Ptr("18:00"),
		}
		uc := newTestUseCase(&fakeRepo{}, place, &fakeNotifier{})

		_, err := uc.Execute(context.Background(), slottedRequest(
			SlotRequest{Date: "2026-07-01", StartTime: "09:00", EndTime: "18:00"},
		))

		require.NoError(t, err)
	})
}

func TestExecute_InputValidation(t *testing.T) {
	uc := newTestUseCase(&fakeRepo{}, allDayOpen(0), &fakeNotifier{})

	tests := []struct {
		name    string
		req     *Request
		wantErr error
	}{
		{
			"zero user id",
			&Request{PlaceID: placeID, TimeSlots: []SlotRequest{{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"}}},
			ErrInvalidInput,
		},
		{
			"no slots and no dates",
			&Request{UserID: clientID, PlaceID: placeID},
			ErrInvalidInput,
		},
		{
			"inverted slot",
			slottedRequest(SlotRequest{Date: "2026-07-01", StartTime: "12:00", EndTime: "10:00"}),
			ErrInvalidInput,
		},
		{
			"zero-length slot",
			slottedRequest(SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "10:00"}),
			ErrInvalidInput,
		},
		{
			"malformed time",
			slottedRequest(SlotRequest{Date: "2026-07-01", StartTime: "25:99", EndTime: "26:00"}),
			ErrInvalidInput,
		},
		{
			"malformed date",
			slottedRequest(SlotRequest{Date: "01.07.2026", StartTime: "10:00", EndTime: "12:00"}),
			ErrInvalidInput,
		},
		{
			"past date",
			slottedRequest(SlotRequest{Date: "2026-05-01", StartTime: "10:00", EndTime: "12:00"}),
			ErrInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Execute(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExecute_PlaceNotFound(t *testing.T) {
	uc := newTestUseCase(&fakeRepo{}, nil, &fakeNotifier{})

	_, err := uc.Execute(context.Background(), slottedRequest(
		SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"},
	))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlaceNotFound)
}

func TestExecute_UniqueRequestIDs(t *testing.T) {
	repo := &fakeRepo{}
	uc := NewUseCase(repo, &fakePlaceClient{place: allDayOpen(0)}, &fakeNotifier{}, &fakeTxManager{}, noopLogger{})
	uc.timeProvider = fixedTimeProvider{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}

	r1, err := uc.Execute(context.Background(), slottedRequest(
		SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"},
	))
	require.NoError(t, err)

	r2, err := uc.Execute(context.Background(), slottedRequest(
		SlotRequest{Date: "2026-07-01", StartTime: "10:00", EndTime: "12:00"},
	))
	require.NoError(t, err)

	assert.NotEmpty(t, r1.RequestID)
	assert.NotEqual(t, r1.RequestID, r2.RequestID)
}
