// Package bookings реализует машину состояний жизненного цикла бронирования.
//
// Переходы статусов, авторизация по ролям, платёжный гейт и авто-отклонение
// конкурирующих заявок при подтверждении живут здесь. Уведомления уходят
// через Notifier строго fire-and-forget: их сбой не прерывает переход.
package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	bookingRepo "github.com/m04kA/SMC-ReservationService/internal/infra/storage/booking"
	placeClient "github.com/m04kA/SMC-ReservationService/internal/integrations/placeservice"
	"github.com/m04kA/SMC-ReservationService/internal/notify"
	"github.com/m04kA/SMC-ReservationService/internal/service/bookings/models"
	"github.com/m04kA/SMC-ReservationService/internal/service/conflict"
)

// Service сервис жизненного цикла бронирований
type Service struct {
	bookingRepo BookingRepository
	placeClient PlaceServiceClient
	userClient  UserServiceClient
	notifier    Notifier
	txManager   TransactionManager
	reaper      Reaper // опционально, nil отключает опортунистическую чистку
	logger      Logger
}

// NewService создает новый экземпляр сервиса бронирований
func NewService(
	bookingRepo BookingRepository,
	placeClient PlaceServiceClient,
	userClient UserServiceClient,
	notifier Notifier,
	txManager TransactionManager,
	reaper Reaper,
	logger Logger,
) *Service {
	return &Service{
		bookingRepo: bookingRepo,
		placeClient: placeClient,
		userClient:  userClient,
		notifier:    notifier,
		txManager:   txManager,
		reaper:      reaper,
		logger:      logger,
	}
}

// actor результат разбора прав пользователя относительно бронирования
type actor struct {
	isOwner bool // клиент-владелец заявки
	isHost  bool // хост площадки
	isAgent bool // агент платформы
}

func (a actor) canManage() bool {
	return a.isHost || a.isAgent
}

// GetByID получает бронирование по ID.
// Доступно владельцу заявки, хосту площадки и агенту.
func (s *Service) GetByID(ctx context.Context, id int64, userID int64) (*models.BookingResponse, error) {
	booking, err := s.getBooking(ctx, "GetByID", id)
	if err != nil {
		return nil, err
	}

	act, err := s.resolveActor(ctx, booking, userID)
	if err != nil {
		return nil, err
	}
	if !act.isOwner && !act.canManage() {
		s.logger.Warn("GetByID: access denied for user=%d to booking id=%d", userID, id)
		return nil, ErrAccessDenied
	}

	return models.FromDomainBooking(booking), nil
}

// GetUserBookings получает историю бронирований пользователя.
// Перед выборкой опортунистически вычищаются устаревшие заявки.
func (s *Service) GetUserBookings(ctx context.Context, req *models.GetUserBookingsRequest) (*models.BookingListResponse, error) {
	s.logger.Info("GetUserBookings: fetching bookings for user=%d, status=%v", req.UserID, req.Status)
	s.sweepExpired(ctx)

	var domainStatus *domain.BookingStatus
	if req.Status != nil {
		status, err := models.ToDomainBookingStatus(*req.Status)
		if err != nil {
			s.logger.Warn("GetUserBookings: invalid status=%s for user=%d", *req.Status, req.UserID)
			return nil, fmt.Errorf("%w: invalid status", ErrInvalidInput)
		}
		domainStatus = &status
	}

	bookingList, err := s.bookingRepo.GetByUserID(ctx, req.UserID, domainStatus)
	if err != nil {
		s.logger.Error("GetUserBookings: repository error for user=%d: %v", req.UserID, err)
		return nil, fmt.Errorf("%w: GetUserBookings - repository error: %v", ErrInternal, err)
	}

	return models.FromDomainBookingList(bookingList), nil
}

// GetPlaceBookings получает бронирования площадки.
// Доступно хосту площадки и агенту.
func (s *Service) GetPlaceBookings(ctx context.Context, req *models.GetPlaceBookingsRequest) (*models.BookingListResponse, error) {
	s.logger.Info("GetPlaceBookings: fetching bookings for place=%d, user=%d", req.PlaceID, req.UserID)
	s.sweepExpired(ctx)

	place, err := s.getPlace(ctx, "GetPlaceBookings", req.PlaceID)
	if err != nil {
		return nil, err
	}

	if place.OwnerID != req.UserID {
		if err := s.checkAgent(ctx, req.UserID); err != nil {
			s.logger.Warn("GetPlaceBookings: access denied for user=%d to place=%d", req.UserID, req.PlaceID)
			return nil, err
		}
	}

	filter, err := req.ToDomainFilter()
	if err != nil {
		s.logger.Warn("GetPlaceBookings: invalid filter for place=%d: %v", req.PlaceID, err)
		return nil, fmt.Errorf("%w: invalid filter", ErrInvalidInput)
	}

	bookingList, err := s.bookingRepo.GetByPlaceWithFilter(ctx, filter)
	if err != nil {
		s.logger.Error("GetPlaceBookings: repository error for place=%d: %v", req.PlaceID, err)
		return nil, fmt.Errorf("%w: GetPlaceBookings - repository error: %v", ErrInternal, err)
	}

	return models.FromDomainBookingList(bookingList), nil
}

// SetStatus переводит бронирование в новый статус.
//
// Правила:
//   - переход должен входить в таблицу переходов (иначе ErrInvalidStateTransition);
//   - selected/approved доступны хосту площадки и агенту;
//   - rejected доступен также клиенту-владельцу: это клиентская отмена,
//     заявка физически удаляется, хост получает уведомление об отказе;
//   - перевод в approved требует paymentConfirmed или agentApproval
//     (иначе ErrRequiresPaymentCheck);
//   - при approve конкурирующие pending/selected заявки с пересекающимися
//     слотами отклоняются автоматически.
func (s *Service) SetStatus(ctx context.Context, bookingID int64, req *models.UpdateStatusRequest) (*models.BookingResponse, error) {
	s.logger.Info("SetStatus: booking id=%d -> %s by user=%d", bookingID, req.Status, req.UserID)

	target, err := models.ToDomainBookingStatus(req.Status)
	if err != nil {
		s.logger.Warn("SetStatus: invalid status=%s for booking id=%d", req.Status, bookingID)
		return nil, fmt.Errorf("%w: invalid status", ErrInvalidInput)
	}

	booking, err := s.getBooking(ctx, "SetStatus", bookingID)
	if err != nil {
		return nil, err
	}

	if !booking.CanTransitionTo(target) {
		s.logger.Warn("SetStatus: transition %s -> %s not allowed for booking id=%d",
			booking.Status, target, bookingID)
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, booking.Status, target)
	}

	place, err := s.getPlace(ctx, "SetStatus", booking.PlaceID)
	if err != nil {
		return nil, err
	}

	act, err := s.resolveActorWithPlace(ctx, booking, place, req.UserID)
	if err != nil {
		return nil, err
	}

	switch target {
	case domain.StatusSelected, domain.StatusApproved:
		if !act.canManage() {
			s.logger.Warn("SetStatus: user=%d may not set %s on booking id=%d", req.UserID, target, bookingID)
			return nil, ErrAccessDenied
		}
	case domain.StatusRejected:
		if !act.canManage() && !act.isOwner {
			s.logger.Warn("SetStatus: user=%d may not reject booking id=%d", req.UserID, bookingID)
			return nil, ErrAccessDenied
		}
	default:
		// cancelled недостижим через таблицу переходов, ветка для полноты
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, booking.Status, target)
	}

	// Клиентская отмена: отказ, выполненный владельцем заявки
	if target == domain.StatusRejected && act.isOwner && !act.canManage() {
		if err := s.cancelByClient(ctx, booking, place); err != nil {
			return nil, err
		}
		booking.Status = domain.StatusRejected
		return models.FromDomainBooking(booking), nil
	}

	switch target {
	case domain.StatusApproved:
		// Платёжный гейт: approved достижим только через подтверждённую
		// оплату или агентский override
		if !req.PaymentConfirmed && !req.AgentApproval {
			s.logger.Warn("SetStatus: payment check required for booking id=%d", bookingID)
			return nil, ErrRequiresPaymentCheck
		}
		if err := s.approve(ctx, booking, place); err != nil {
			return nil, err
		}
	default:
		if err := s.transition(ctx, booking, target); err != nil {
			return nil, err
		}
		s.notifyTransition(booking, place, target)
	}

	updated, err := s.getBooking(ctx, "SetStatus", bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("SetStatus: booking id=%d is now %s", bookingID, updated.Status)
	return models.FromDomainBooking(updated), nil
}

// Cancel отменяет бронирование по инициативе клиента-владельца
func (s *Service) Cancel(ctx context.Context, bookingID int64, req *models.CancelBookingRequest) error {
	s.logger.Info("Cancel: cancelling booking id=%d by user=%d", bookingID, req.UserID)

	booking, err := s.getBooking(ctx, "Cancel", bookingID)
	if err != nil {
		return err
	}

	if booking.UserID != req.UserID {
		s.logger.Warn("Cancel: user=%d is not the owner of booking id=%d", req.UserID, bookingID)
		return ErrAccessDenied
	}

	if !booking.CanTransitionTo(domain.StatusRejected) {
		s.logger.Warn("Cancel: booking id=%d cannot be cancelled, status=%s", bookingID, booking.Status)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, booking.Status, domain.StatusRejected)
	}

	place, err := s.getPlace(ctx, "Cancel", booking.PlaceID)
	if err != nil {
		return err
	}

	return s.cancelByClient(ctx, booking, place)
}

// MarkPaid применяет подтверждённую оплату: форсированный перевод в approved
// с платёжными метаданными. Системная операция (webhook или поллер),
// авторизация не выполняется. Идемпотентна: повторное применение того же
// платежа не порождает побочных эффектов и возвращает applied=false.
// Поздний сигнал по rejected/cancelled заявке отклоняется с
// ErrInvalidStateTransition: терминальные статусы не воскрешаются оплатой.
func (s *Service) MarkPaid(ctx context.Context, bookingID int64, providerTxID string, providerResponse string) (bool, error) {
	booking, err := s.getBooking(ctx, "MarkPaid", bookingID)
	if err != nil {
		return false, err
	}

	if !booking.AcceptsPayment() {
		s.logger.Warn("MarkPaid: booking id=%d is %s, late payment signal refused", bookingID, booking.Status)
		return false, ErrInvalidStateTransition
	}

	// Статусный предикат в репозитории закрывает гонку со снимком выше:
	// заявка, отклонённая между чтением и записью, вернёт applied=false
	applied, err := s.bookingRepo.MarkPaid(ctx, bookingID, providerTxID, providerResponse)
	if err != nil {
		s.logger.Error("MarkPaid: repository error for booking id=%d: %v", bookingID, err)
		return false, fmt.Errorf("%w: MarkPaid - repository error: %v", ErrInternal, err)
	}

	if !applied {
		s.logger.Info("MarkPaid: payment already applied for booking id=%d, skipping", bookingID)
		return false, nil
	}

	s.logger.Info("MarkPaid: booking id=%d approved via payment, provider_tx=%s", bookingID, providerTxID)

	// Проигравшие конкуренты отклоняются и после платёжного approve
	booking.Status = domain.StatusApproved
	losers := s.rejectCompetitors(ctx, booking)

	// Платёжный путь: агентам причитается выплата хосту, хост и клиент
	// получают подтверждение
	data := s.eventData(booking)
	s.notifyAgents(ctx, notify.EventPayoutDue, data)
	if place, err := s.getPlace(ctx, "MarkPaid", booking.PlaceID); err == nil {
		s.notifier.Notify(place.OwnerID, notify.EventBookingApproved, data)
	} else {
		s.logger.Warn("MarkPaid: place lookup failed for booking id=%d, host not notified: %v", bookingID, err)
	}
	s.notifier.Notify(booking.UserID, notify.EventBookingPaid, data)
	s.notifyLosers(losers)

	return true, nil
}

// MarkPaidToHost отмечает выплату хосту по approved-бронированию.
// Доступно только агенту; флаг одноразовый.
func (s *Service) MarkPaidToHost(ctx context.Context, bookingID int64, agentID int64) error {
	s.logger.Info("MarkPaidToHost: booking id=%d by agent=%d", bookingID, agentID)

	booking, err := s.getBooking(ctx, "MarkPaidToHost", bookingID)
	if err != nil {
		return err
	}

	if err := s.checkAgent(ctx, agentID); err != nil {
		s.logger.Warn("MarkPaidToHost: user=%d is not an agent", agentID)
		return err
	}

	if !booking.IsApproved() {
		s.logger.Warn("MarkPaidToHost: booking id=%d is not approved, status=%s", bookingID, booking.Status)
		return ErrNotApproved
	}

	applied, err := s.bookingRepo.MarkPaidToHost(ctx, bookingID)
	if err != nil {
		s.logger.Error("MarkPaidToHost: repository error for booking id=%d: %v", bookingID, err)
		return fmt.Errorf("%w: MarkPaidToHost - repository error: %v", ErrInternal, err)
	}

	if !applied {
		s.logger.Info("MarkPaidToHost: payout already recorded for booking id=%d", bookingID)
		return nil
	}

	if place, err := s.getPlace(ctx, "MarkPaidToHost", booking.PlaceID); err == nil {
		s.notifier.Notify(place.OwnerID, notify.EventPayoutDone, s.eventData(booking))
	}

	return nil
}

// Внутренние методы

// approve выполняет переход в approved в сериализуемой транзакции:
// повторная проверка конфликтов, CAS-запись статуса и авто-отклонение
// конкурентов происходят атомарно относительно параллельных approve.
func (s *Service) approve(ctx context.Context, booking *domain.Booking, place *placeClient.Place) error {
	fromStatus := booking.Status
	var losers []*domain.Booking

	err := s.txManager.DoSerializable(ctx, func(txCtx context.Context) error {
		// Проверяем слоты против подтверждённых бронирований: другое
		// бронирование могло стать approved после создания этой заявки
		approvedStatus := domain.StatusApproved
		approvedAtPlace, err := s.bookingRepo.GetByPlaceWithFilter(txCtx, domain.PlaceBookingsFilter{
			PlaceID:   booking.PlaceID,
			Status:    &approvedStatus,
			ExcludeID: &booking.ID,
		})
		if err != nil {
			return fmt.Errorf("%w: approve - fetch approved bookings: %v", ErrInternal, err)
		}

		if booking.UsesTimeSlots() {
			res := conflict.ValidateAgainstApproved(booking.TimeSlots, approvedAtPlace, place.CooldownMinutes)
			if !res.OK {
				return &SlotConflictError{Slot: *res.ConflictingSlot}
			}
		} else {
			for _, other := range approvedAtPlace {
				if conflict.Overlaps(booking, other) {
					return &SlotConflictError{Slot: domain.TimeSlot{
						Date: booking.CheckInDate.Format(domain.DateFormat),
					}}
				}
			}
		}

		if err := s.bookingRepo.UpdateStatus(txCtx, booking.ID,
			[]domain.BookingStatus{fromStatus}, domain.StatusApproved); err != nil {
			if errors.Is(err, bookingRepo.ErrStatusConflict) {
				return fmt.Errorf("%w: booking status changed concurrently", ErrInvalidStateTransition)
			}
			return fmt.Errorf("%w: approve - update status: %v", ErrInternal, err)
		}

		losers, err = s.rejectCompetitorsTx(txCtx, booking)
		return err
	})
	if err != nil {
		return err
	}

	booking.Status = domain.StatusApproved

	// Уведомления после фиксации транзакции
	data := s.eventData(booking)
	if fromStatus == domain.StatusSelected {
		// approve после selected идёт платёжным путём: агентам причитается выплата
		s.notifyAgents(ctx, notify.EventPayoutDue, data)
	}
	s.notifier.Notify(place.OwnerID, notify.EventBookingApproved, data)
	s.notifier.Notify(booking.UserID, notify.EventBookingApproved, data)
	s.notifyLosers(losers)

	return nil
}

// transition выполняет простой CAS-переход без разрешения конфликтов
func (s *Service) transition(ctx context.Context, booking *domain.Booking, target domain.BookingStatus) error {
	err := s.bookingRepo.UpdateStatus(ctx, booking.ID, []domain.BookingStatus{booking.Status}, target)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrStatusConflict) {
			return fmt.Errorf("%w: booking status changed concurrently", ErrInvalidStateTransition)
		}
		s.logger.Error("transition: repository error for booking id=%d: %v", booking.ID, err)
		return fmt.Errorf("%w: transition - repository error: %v", ErrInternal, err)
	}
	return nil
}

// cancelByClient клиентская отмена: заявка удаляется физически (она не была
// обязательством, аудит не требуется), хост уведомляется об отказе
func (s *Service) cancelByClient(ctx context.Context, booking *domain.Booking, place *placeClient.Place) error {
	if err := s.bookingRepo.Delete(ctx, booking.ID); err != nil {
		if errors.Is(err, bookingRepo.ErrBookingNotFound) {
			return ErrBookingNotFound
		}
		s.logger.Error("cancelByClient: repository error for booking id=%d: %v", booking.ID, err)
		return fmt.Errorf("%w: cancelByClient - repository error: %v", ErrInternal, err)
	}

	s.logger.Info("cancelByClient: booking id=%d deleted by owner", booking.ID)
	s.notifier.Notify(place.OwnerID, notify.EventBookingRejected, s.eventData(booking))
	return nil
}

// rejectCompetitors отклоняет конкурентов победителя в отдельной транзакции
// (используется платёжным путём, где approve уже применён условной записью)
func (s *Service) rejectCompetitors(ctx context.Context, winner *domain.Booking) []*domain.Booking {
	var losers []*domain.Booking

	err := s.txManager.DoSerializable(ctx, func(txCtx context.Context) error {
		var err error
		losers, err = s.rejectCompetitorsTx(txCtx, winner)
		return err
	})
	if err != nil {
		// Потерянная чистка не отменяет применённый платёж: конкуренты
		// будут отклонены следующим approve или вычищены reaper'ом
		s.logger.Error("rejectCompetitors: failed for booking id=%d: %v", winner.ID, err)
		return nil
	}

	return losers
}

// rejectCompetitorsTx находит и отклоняет конкурирующие заявки с
// пересекающимися слотами. Системное действие: авторизация не выполняется.
func (s *Service) rejectCompetitorsTx(ctx context.Context, winner *domain.Booking) ([]*domain.Booking, error) {
	competitors, err := s.bookingRepo.GetByPlaceWithFilter(ctx, domain.PlaceBookingsFilter{
		PlaceID:   winner.PlaceID,
		Statuses:  domain.CompetingStatuses,
		ExcludeID: &winner.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rejectCompetitors - fetch competitors: %v", ErrInternal, err)
	}

	losers := conflict.ResolveOnApproval(winner, competitors)

	for _, loser := range losers {
		if err := s.bookingRepo.UpdateStatus(ctx, loser.ID, domain.CompetingStatuses, domain.StatusRejected); err != nil {
			if errors.Is(err, bookingRepo.ErrStatusConflict) {
				// Конкурент успел поменять статус, пропускаем
				continue
			}
			return nil, fmt.Errorf("%w: rejectCompetitors - reject booking id=%d: %v", ErrInternal, loser.ID, err)
		}
		s.logger.Info("rejectCompetitors: booking id=%d auto-rejected, winner id=%d", loser.ID, winner.ID)
	}

	return losers, nil
}

// notifyTransition отправляет уведомления для простых переходов
func (s *Service) notifyTransition(booking *domain.Booking, place *placeClient.Place, target domain.BookingStatus) {
	data := s.eventData(booking)

	switch target {
	case domain.StatusSelected:
		s.notifier.Notify(booking.UserID, notify.EventBookingSelected, data)
	case domain.StatusRejected:
		s.notifier.Notify(booking.UserID, notify.EventBookingRejected, data)
	}
	_ = place
}

// notifyLosers уведомляет клиентов авто-отклонённых заявок
func (s *Service) notifyLosers(losers []*domain.Booking) {
	for _, loser := range losers {
		s.notifier.Notify(loser.UserID, notify.EventBookingRejected, s.eventData(loser))
	}
}

// notifyAgents уведомляет всех агентов платформы
func (s *Service) notifyAgents(ctx context.Context, eventType notify.EventType, data map[string]interface{}) {
	agents, err := s.userClient.GetAgents(ctx)
	if err != nil {
		// Уведомления best-effort: ошибка не прерывает операцию
		s.logger.Error("notifyAgents: failed to fetch agents: %v", err)
		return
	}
	for _, agent := range agents {
		s.notifier.Notify(agent.ID, eventType, data)
	}
}

func (s *Service) eventData(booking *domain.Booking) map[string]interface{} {
	return map[string]interface{}{
		"bookingId": booking.ID,
		"requestId": booking.RequestID,
		"placeId":   booking.PlaceID,
	}
}

// getBooking получает бронирование с маппингом ошибок репозитория
func (s *Service) getBooking(ctx context.Context, op string, id int64) (*domain.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrBookingNotFound) {
			s.logger.Warn("%s: booking id=%d not found", op, id)
			return nil, ErrBookingNotFound
		}
		s.logger.Error("%s: repository error for booking id=%d: %v", op, id, err)
		return nil, fmt.Errorf("%w: %s - repository error: %v", ErrInternal, op, err)
	}
	return booking, nil
}

// getPlace получает площадку с маппингом ошибок клиента
func (s *Service) getPlace(ctx context.Context, op string, placeID int64) (*placeClient.Place, error) {
	place, err := s.placeClient.GetPlace(ctx, placeID)
	if err != nil {
		if errors.Is(err, placeClient.ErrPlaceNotFound) {
			s.logger.Warn("%s: place id=%d not found", op, placeID)
			return nil, ErrPlaceNotFound
		}
		s.logger.Error("%s: failed to get place id=%d: %v", op, placeID, err)
		return nil, fmt.Errorf("%w: %s - failed to get place: %v", ErrInternal, op, err)
	}
	return place, nil
}

// resolveActor определяет права пользователя относительно бронирования
func (s *Service) resolveActor(ctx context.Context, booking *domain.Booking, userID int64) (actor, error) {
	place, err := s.getPlace(ctx, "resolveActor", booking.PlaceID)
	if err != nil {
		return actor{}, err
	}
	return s.resolveActorWithPlace(ctx, booking, place, userID)
}

func (s *Service) resolveActorWithPlace(ctx context.Context, booking *domain.Booking, place *placeClient.Place, userID int64) (actor, error) {
	act := actor{
		isOwner: booking.UserID == userID,
		isHost:  place.OwnerID == userID,
	}

	user, err := s.userClient.GetUser(ctx, userID)
	if err != nil {
		s.logger.Error("resolveActor: failed to get user id=%d: %v", userID, err)
		return actor{}, fmt.Errorf("%w: resolveActor - failed to get user: %v", ErrInternal, err)
	}
	act.isAgent = user.Role == domain.RoleAgent

	return act, nil
}

// checkAgent проверяет, что пользователь является агентом платформы
func (s *Service) checkAgent(ctx context.Context, userID int64) error {
	user, err := s.userClient.GetUser(ctx, userID)
	if err != nil {
		s.logger.Error("checkAgent: failed to get user id=%d: %v", userID, err)
		return fmt.Errorf("%w: checkAgent - failed to get user: %v", ErrInternal, err)
	}
	if user.Role != domain.RoleAgent {
		return ErrAccessDenied
	}
	return nil
}

// sweepExpired запускает опортунистическую чистку устаревших заявок.
// Ошибки не прерывают основную операцию.
func (s *Service) sweepExpired(ctx context.Context) {
	if s.reaper == nil {
		return
	}
	if _, err := s.reaper.Sweep(ctx); err != nil {
		s.logger.Warn("sweepExpired: reaper failed: %v", err)
	}
}
