package payment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/m04kA/SMC-ReservationService/internal/domain"
	"github.com/m04kA/SMC-ReservationService/pkg/dbmetrics"
	"github.com/m04kA/SMC-ReservationService/pkg/psqlbuilder"
)

var recordColumns = []string{
	"id",
	"booking_id",
	"provider",
	"provider_tx_id",
	"state",
	"provider_state",
	"amount",
	"created_at",
	"performed_at",
	"cancelled_at",
	"updated_at",
}

// Repository репозиторий платёжных транзакций. Записи создаются при старте
// платёжной попытки, обновляются идемпотентно и никогда не удаляются:
// таблица служит аудит-трейлом по каждому платёжному провайдеру.
type Repository struct {
	db dbmetrics.DBExecutor
}

// NewRepository создает новый экземпляр репозитория платёжных транзакций
func NewRepository(db dbmetrics.DBExecutor) *Repository {
	return &Repository{db: db}
}

// Upsert создаёт или обновляет транзакцию провайдера по ключу
// (provider, provider_tx_id). Терминальные метки performed_at/cancelled_at
// выставляются только при первом переходе.
func (r *Repository) Upsert(ctx context.Context, record *domain.PaymentRecord) error {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	query, args, err := psqlbuilder.Insert("payment_transactions").
		Columns(
			"booking_id",
			"provider",
			"provider_tx_id",
			"state",
			"provider_state",
			"amount",
		).
		Values(
			record.BookingID,
			record.Provider,
			record.ProviderTxID,
			record.State,
			record.ProviderState,
			record.Amount,
		).
		Suffix(`ON CONFLICT (provider, provider_tx_id) DO UPDATE SET
			state = EXCLUDED.state,
			provider_state = EXCLUDED.provider_state,
			performed_at = COALESCE(payment_transactions.performed_at,
				CASE WHEN EXCLUDED.state = 'paid' THEN NOW() END),
			cancelled_at = COALESCE(payment_transactions.cancelled_at,
				CASE WHEN EXCLUDED.state = 'cancelled' THEN NOW() END),
			updated_at = NOW()`).
		Suffix("RETURNING id").
		ToSql()

	if err != nil {
		return fmt.Errorf("%w: Upsert - build upsert query: %v", ErrBuildQuery, err)
	}

	if err := executor.QueryRowContext(ctx, query, args...).Scan(&record.ID); err != nil {
		return fmt.Errorf("%w: Upsert - execute upsert: %v", ErrExecQuery, err)
	}

	return nil
}

// GetByProviderTx получает транзакцию по ключу провайдера
func (r *Repository) GetByProviderTx(ctx context.Context, provider, providerTxID string) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, psqlbuilder.Select(recordColumns...).
		From("payment_transactions").
		Where(squirrel.Eq{"provider": provider, "provider_tx_id": providerTxID}),
		"GetByProviderTx")
}

// GetLatestByBooking получает самую свежую транзакцию по бронированию.
// Локальная запись (пришедшая через webhook) авторитетнее и дешевле опроса
// провайдера, поэтому reconciler проверяет её первой.
func (r *Repository) GetLatestByBooking(ctx context.Context, bookingID int64) (*domain.PaymentRecord, error) {
	return r.getOne(ctx, psqlbuilder.Select(recordColumns...).
		From("payment_transactions").
		Where(squirrel.Eq{"booking_id": bookingID}).
		OrderBy("created_at DESC").
		Limit(1),
		"GetLatestByBooking")
}

func (r *Repository) getOne(ctx context.Context, builder squirrel.SelectBuilder, op string) (*domain.PaymentRecord, error) {
	executor := dbmetrics.GetExecutor(ctx, r.db)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %s - build select query: %v", ErrBuildQuery, op, err)
	}

	var record domain.PaymentRecord
	var createdAt, updatedAt sql.NullTime

	err = executor.QueryRowContext(ctx, query, args...).Scan(
		&record.ID,
		&record.BookingID,
		&record.Provider,
		&record.ProviderTxID,
		&record.State,
		&record.ProviderState,
		&record.Amount,
		&createdAt,
		&record.PerformedAt,
		&record.CancelledAt,
		&updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s - scan record: %v", ErrScanRow, op, err)
	}

	record.CreatedAt = createdAt.Time
	record.UpdatedAt = updatedAt.Time

	return &record, nil
}
