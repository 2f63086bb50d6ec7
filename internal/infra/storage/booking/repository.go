package booking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	"github.com/m04kA/SMC-ReservationService/pkg/dbmetrics"
	"github.com/m04kA/SMC-ReservationService/pkg/psqlbuilder"
)

var bookingColumns = []string{
	"id",
	"request_id",
	"user_id",
	"place_id",
	"check_in_date",
	"check_out_date",
	"time_slots",
	"status",
	"paid_at",
	"paid_to_host",
	"paid_to_host_at",
	"payment_provider_id",
	"payment_response",
	"selected_at",
	"approved_at",
	"rejected_at",
	"cancelled_at",
	"refund_policy",
	"created_at",
	"updated_at",
}

// statusTimestampColumns сопоставляет целевой статус с его lifecycle-меткой.
// Метка выставляется только при первом входе в статус (COALESCE).
var statusTimestampColumns = map[domain.BookingStatus]string{
	domain.StatusSelected:  "selected_at",
	domain.StatusApproved:  "approved_at",
	domain.StatusRejected:  "rejected_at",
	domain.StatusCancelled: "cancelled_at",
}

// Repository репозиторий для работы с бронированиями
type Repository struct {
	db DBExecutor
}

// NewRepository создает новый экземпляр репозитория бронирований
func NewRepository(db DBExecutor) *Repository {
	return &Repository{db: db}
}

// Create создает новое бронирование в статусе pending
func (r *Repository) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	query, args, err := psqlbuilder.Insert("bookings").
		Columns(
			"request_id",
			"user_id",
			"place_id",
			"check_in_date",
			"check_out_date",
			"time_slots",
			"status",
			"refund_policy",
		).
		Values(
			booking.RequestID,
			booking.UserID,
			booking.PlaceID,
			booking.CheckInDate,
			booking.CheckOutDate,
			booking.TimeSlots,
			booking.Status,
			booking.RefundPolicy,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()

	if err != nil {
		return nil, fmt.Errorf("%w: Create - build insert query: %v", ErrBuildQuery, err)
	}

	var createdAt, updatedAt sql.NullTime
	err = executor.QueryRowContext(ctx, query, args...).Scan(
		&booking.ID,
		&createdAt,
		&updatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("%w: Create - execute insert: %v", ErrExecQuery, err)
	}

	booking.CreatedAt = createdAt.Time
	booking.UpdatedAt = updatedAt.Time

	return booking, nil
}

// GetByID получает бронирование по ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id}, "GetByID")
}

// GetByRequestID получает бронирование по публичному референсу.
// Используется платёжными интеграциями: провайдер знает только request_id.
func (r *Repository) GetByRequestID(ctx context.Context, requestID string) (*domain.Booking, error) {
	return r.getOne(ctx, squirrel.Eq{"request_id": requestID}, "GetByRequestID")
}

func (r *Repository) getOne(ctx context.Context, where squirrel.Eq, op string) (*domain.Booking, error) {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	query, args, err := psqlbuilder.Select(bookingColumns...).
		From("bookings").
		Where(where).
		ToSql()

	if err != nil {
		return nil, fmt.Errorf("%w: %s - build select query: %v", ErrBuildQuery, op, err)
	}

	booking, err := scanBooking(executor.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s - scan booking: %v", ErrScanRow, op, err)
	}

	return booking, nil
}

// GetByUserID получает список бронирований пользователя
// Опционально фильтрует по статусу
func (r *Repository) GetByUserID(ctx context.Context, userID int64, status *domain.BookingStatus) ([]*domain.Booking, error) {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	selectBuilder := psqlbuilder.Select(bookingColumns...).
		From("bookings").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("check_in_date DESC, id DESC")

	if status != nil {
		selectBuilder = selectBuilder.Where(squirrel.Eq{"status": *status})
	}

	query, args, err := selectBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: GetByUserID - build select query: %v", ErrBuildQuery, err)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: GetByUserID - execute query: %v", ErrExecQuery, err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// GetByPlaceWithFilter получает бронирования площадки с гибкой фильтрацией.
// Внутри активной транзакции добавляет FOR UPDATE: выборка конкурентов при
// approve должна блокировать строки до записи нового статуса.
func (r *Repository) GetByPlaceWithFilter(ctx context.Context, filter domain.PlaceBookingsFilter) ([]*domain.Booking, error) {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	selectBuilder := psqlbuilder.Select(bookingColumns...).
		From("bookings").
		Where(squirrel.Eq{"place_id": filter.PlaceID})

	if filter.StartDate != nil {
		selectBuilder = selectBuilder.Where(squirrel.GtOrEq{"check_out_date": *filter.StartDate})
	}
	if filter.EndDate != nil {
		selectBuilder = selectBuilder.Where(squirrel.LtOrEq{"check_in_date": *filter.EndDate})
	}

	switch {
	case len(filter.Statuses) > 0:
		statusStrings := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statusStrings[i] = string(s)
		}
		selectBuilder = selectBuilder.Where(squirrel.Eq{"status": statusStrings})
	case filter.Status != nil:
		selectBuilder = selectBuilder.Where(squirrel.Eq{"status": *filter.Status})
	}

	if filter.ExcludeID != nil {
		selectBuilder = selectBuilder.Where(squirrel.NotEq{"id": *filter.ExcludeID})
	}

	selectBuilder = selectBuilder.OrderBy("check_in_date ASC, id ASC")

	if dbmetrics.IsInTransaction(ctx) {
		selectBuilder = selectBuilder.Suffix("FOR UPDATE")
	}

	query, args, err := selectBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: GetByPlaceWithFilter - build select query: %v", ErrBuildQuery, err)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: GetByPlaceWithFilter - execute query: %v", ErrExecQuery, err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// GetCompetingUpTo получает конкурирующие (pending/selected) бронирования,
// чьё окно целиком укладывается до указанной даты включительно.
// Используется reaper'ом для поиска кандидатов на удаление.
func (r *Repository) GetCompetingUpTo(ctx context.Context, date time.Time) ([]*domain.Booking, error) {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	statusStrings := make([]string, len(domain.CompetingStatuses))
	for i, s := range domain.CompetingStatuses {
		statusStrings[i] = string(s)
	}

	query, args, err := psqlbuilder.Select(bookingColumns...).
		From("bookings").
		Where(squirrel.Eq{"status": statusStrings}).
		Where(squirrel.LtOrEq{"check_out_date": date}).
		ToSql()

	if err != nil {
		return nil, fmt.Errorf("%w: GetCompetingUpTo - build select query: %v", ErrBuildQuery, err)
	}

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: GetCompetingUpTo - execute query: %v", ErrExecQuery, err)
	}
	defer rows.Close()

	return scanBookings(rows)
}

// UpdateStatus условно переводит бронирование в новый статус (compare-and-swap).
// Обновление проходит только если текущий статус строки входит в from: это
// закрывает гонку двух одновременных approve по пересекающимся заявкам.
// Lifecycle-метка целевого статуса выставляется только при первом входе.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from []domain.BookingStatus, to domain.BookingStatus) error {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}

	updateBuilder := psqlbuilder.Update("bookings").
		Set("status", to).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": fromStrings})

	if column, ok := statusTimestampColumns[to]; ok {
		updateBuilder = updateBuilder.Set(column, squirrel.Expr(fmt.Sprintf("COALESCE(%s, NOW())", column)))
	}

	query, args, err := updateBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("%w: UpdateStatus - build update query: %v", ErrBuildQuery, err)
	}

	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: UpdateStatus - execute update: %v", ErrExecQuery, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: UpdateStatus - get rows affected: %v", ErrExecQuery, err)
	}

	if rowsAffected == 0 {
		return ErrStatusConflict
	}

	return nil
}

// MarkPaid применяет подтверждённую оплату: форсированный перевод в approved
// с платёжными метаданными. Условие paid_at IS NULL делает операцию
// идемпотентной: повторное применение того же платежа возвращает applied=false
// и не должно порождать побочных эффектов у вызывающего. Предикат по статусу
// не даёт позднему платёжному сигналу воскресить rejected/cancelled заявку.
func (r *Repository) MarkPaid(ctx context.Context, id int64, providerTxID string, providerResponse string) (bool, error) {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	payableStrings := make([]string, len(domain.PayableStatuses))
	for i, s := range domain.PayableStatuses {
		payableStrings[i] = string(s)
	}

	query, args, err := psqlbuilder.Update("bookings").
		Set("status", domain.StatusApproved).
		Set("paid_at", squirrel.Expr("NOW()")).
		Set("approved_at", squirrel.Expr("COALESCE(approved_at, NOW())")).
		Set("payment_provider_id", providerTxID).
		Set("payment_response", providerResponse).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Where("paid_at IS NULL").
		Where(squirrel.Eq{"status": payableStrings}).
		ToSql()

	if err != nil {
		return false, fmt.Errorf("%w: MarkPaid - build update query: %v", ErrBuildQuery, err)
	}

	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: MarkPaid - execute update: %v", ErrExecQuery, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: MarkPaid - get rows affected: %v", ErrExecQuery, err)
	}

	return rowsAffected > 0, nil
}

// MarkPaidToHost отмечает выплату хосту. Флаг одноразовый (false -> true)
// и выставляется только для approved-бронирований. Повторное применение
// возвращает applied=false без изменения строки.
func (r *Repository) MarkPaidToHost(ctx context.Context, id int64) (bool, error) {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	query, args, err := psqlbuilder.Update("bookings").
		Set("paid_to_host", true).
		Set("paid_to_host_at", squirrel.Expr("NOW()")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": domain.StatusApproved}).
		Where(squirrel.Eq{"paid_to_host": false}).
		ToSql()

	if err != nil {
		return false, fmt.Errorf("%w: MarkPaidToHost - build update query: %v", ErrBuildQuery, err)
	}

	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: MarkPaidToHost - execute update: %v", ErrExecQuery, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: MarkPaidToHost - get rows affected: %v", ErrExecQuery, err)
	}

	return rowsAffected > 0, nil
}

// Delete физически удаляет бронирование. Применяется для клиентской отмены
// (заявка не хранится как терминальная строка) и для устаревших заявок,
// по которым нет обязательств аудита.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	query, args, err := psqlbuilder.Delete("bookings").
		Where(squirrel.Eq{"id": id}).
		ToSql()

	if err != nil {
		return fmt.Errorf("%w: Delete - build delete query: %v", ErrBuildQuery, err)
	}

	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: Delete - execute delete: %v", ErrExecQuery, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: Delete - get rows affected: %v", ErrExecQuery, err)
	}

	if rowsAffected == 0 {
		return ErrBookingNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var booking domain.Booking
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(
		&booking.ID,
		&booking.RequestID,
		&booking.UserID,
		&booking.PlaceID,
		&booking.CheckInDate,
		&booking.CheckOutDate,
		&booking.TimeSlots,
		&booking.Status,
		&booking.PaidAt,
		&booking.PaidToHost,
		&booking.PaidToHostAt,
		&booking.PaymentProviderID,
		&booking.PaymentResponse,
		&booking.SelectedAt,
		&booking.ApprovedAt,
		&booking.RejectedAt,
		&booking.CancelledAt,
		&booking.RefundPolicy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.CreatedAt = createdAt.Time
	booking.UpdatedAt = updatedAt.Time

	return &booking, nil
}

// scanBookings сканирует результаты запроса в слайс бронирований
func scanBookings(rows *sql.Rows) ([]*domain.Booking, error) {
	bookings := make([]*domain.Booking, 0)

	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanBookings - scan row: %v", ErrScanRow, err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scanBookings - rows error: %v", ErrScanRow, err)
	}

	return bookings, nil
}
