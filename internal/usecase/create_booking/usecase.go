package create_booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	placeClient "github.com/m04kA/SMC-ReservationService/internal/integrations/placeservice"
	"github.com/m04kA/SMC-ReservationService/internal/notify"
	"github.com/m04kA/SMC-ReservationService/internal/service/conflict"
)

// UseCase use case для создания заявки на бронирование
type UseCase struct {
	bookingRepo  BookingRepository
	placeClient  PlaceServiceClient
	notifier     Notifier
	txManager    TransactionManager
	timeProvider TimeProvider
	newRequestID func() string
	logger       Logger
}

// NewUseCase создает новый экземпляр use case
func NewUseCase(
	bookingRepo BookingRepository,
	placeClient PlaceServiceClient,
	notifier Notifier,
	txManager TransactionManager,
	logger Logger,
) *UseCase {
	return &UseCase{
		bookingRepo:  bookingRepo,
		placeClient:  placeClient,
		notifier:     notifier,
		txManager:    txManager,
		timeProvider: &RealTimeProvider{},
		newRequestID: uuid.NewString,
		logger:       logger,
	}
}

// Execute выполняет use case создания заявки.
// Заявка рождается в статусе pending: конкурирующие pending/selected заявки
// на те же слоты допустимы, блокируют только подтверждённые (approved)
// бронирования с учётом cooldown-буфера площадки.
func (uc *UseCase) Execute(ctx context.Context, req *Request) (*Response, error) {
	uc.logger.Info("CreateBooking: user=%d, place=%d, slots=%d",
		req.UserID, req.PlaceID, len(req.TimeSlots))

	// 1. Валидация входных данных
	if err := validateRequest(req); err != nil {
		uc.logger.Warn("CreateBooking: validation failed: %v", err)
		return nil, err
	}

	now := uc.timeProvider.Now()

	// 2. Получаем площадку: cooldown, расписание, политика возврата
	place, err := uc.placeClient.GetPlace(ctx, req.PlaceID)
	if err != nil {
		if errors.Is(err, placeClient.ErrPlaceNotFound) {
			uc.logger.Warn("CreateBooking: place id=%d not found", req.PlaceID)
			return nil, ErrPlaceNotFound
		}
		uc.logger.Error("CreateBooking: failed to get place id=%d: %v", req.PlaceID, err)
		return nil, fmt.Errorf("%w: failed to get place: %v", ErrInternal, err)
	}

	// 3. Определяем окно заявки
	slots := toDomainSlots(req.TimeSlots)
	var checkIn, checkOut time.Time
	if len(slots) > 0 {
		var ok bool
		checkIn, checkOut, ok = slots.DateRange(time.UTC)
		if !ok {
			return nil, fmt.Errorf("%w: no parsable slot dates", ErrInvalidInput)
		}
	} else {
		checkIn, checkOut = *req.CheckInDate, *req.CheckOutDate
	}

	// 4. Окно не в прошлом
	if err := validateDates(checkOut, now); err != nil {
		uc.logger.Warn("CreateBooking: date validation failed for place id=%d: %v", req.PlaceID, err)
		return nil, err
	}

	// 5. Каждый слот против расписания площадки
	for _, slot := range slots {
		if err := validateSlotAgainstPlace(place, slot); err != nil {
			uc.logger.Warn("CreateBooking: slot %s %s-%s rejected: %v",
				slot.Date, slot.StartTime, slot.EndTime, err)
			return nil, err
		}
	}

	cooldown := place.CooldownMinutes
	if cooldown < 0 {
		cooldown = domain.DefaultCooldownMinutes
	}

	var result *domain.Booking

	// 6. Проверка конфликтов и вставка в сериализуемой транзакции:
	// параллельное создание против параллельного approve разрешается
	// изоляцией, а не удачей
	err = uc.txManager.DoSerializable(ctx, func(txCtx context.Context) error {
		approvedStatus := domain.StatusApproved
		approved, err := uc.bookingRepo.GetByPlaceWithFilter(txCtx, domain.PlaceBookingsFilter{
			PlaceID:   req.PlaceID,
			StartDate: &checkIn,
			EndDate:   &checkOut,
			Status:    &approvedStatus,
		})
		if err != nil {
			uc.logger.Error("CreateBooking: failed to get approved bookings: %v", err)
			return fmt.Errorf("%w: failed to get approved bookings: %v", ErrInternal, err)
		}

		if len(slots) > 0 {
			res := conflict.ValidateAgainstApproved(slots, approved, cooldown)
			if !res.OK {
				uc.logger.Warn("CreateBooking: slot %s %s-%s conflicts with an approved booking",
					res.ConflictingSlot.Date, res.ConflictingSlot.StartTime, res.ConflictingSlot.EndTime)
				return &SlotConflictError{Slot: *res.ConflictingSlot}
			}
		} else {
			candidate := &domain.Booking{CheckInDate: checkIn, CheckOutDate: checkOut}
			for _, other := range approved {
				if conflict.Overlaps(candidate, other) {
					return &SlotConflictError{Slot: domain.TimeSlot{
						Date: checkIn.Format(domain.DateFormat),
					}}
				}
			}
		}

		booking := &domain.Booking{
			RequestID:    uc.newRequestID(),
			UserID:       req.UserID,
			PlaceID:      req.PlaceID,
			CheckInDate:  checkIn,
			CheckOutDate: checkOut,
			TimeSlots:    slots,
			Status:       domain.StatusPending,
			// Политика возврата снимается с площадки в момент создания
			// и дальше не меняется
			RefundPolicy: place.RefundPolicy,
		}

		created, err := uc.bookingRepo.Create(txCtx, booking)
		if err != nil {
			uc.logger.Error("CreateBooking: failed to create booking: %v", err)
			return fmt.Errorf("%w: failed to create booking: %v", ErrInternal, err)
		}

		result = created
		return nil
	})

	if err != nil {
		return nil, err
	}

	uc.logger.Info("CreateBooking: successfully created booking id=%d, request_id=%s",
		result.ID, result.RequestID)

	// 7. Хост узнаёт о новой заявке
	uc.notifier.Notify(place.OwnerID, notify.EventBookingRequested, map[string]interface{}{
		"bookingId": result.ID,
		"requestId": result.RequestID,
		"placeId":   result.PlaceID,
	})

	return &Response{
		ID:           result.ID,
		RequestID:    result.RequestID,
		UserID:       result.UserID,
		PlaceID:      result.PlaceID,
		CheckInDate:  result.CheckInDate,
		CheckOutDate: result.CheckOutDate,
		TimeSlots:    result.TimeSlots,
		Status:       string(result.Status),
		RefundPolicy: result.RefundPolicy,
		CreatedAt:    result.CreatedAt,
		UpdatedAt:    result.UpdatedAt,
	}, nil
}
