package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cancelBookingHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/cancel_booking"
	createBookingHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/create_booking"
	getBookingHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/get_booking"
	getPlaceBookingsHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/get_place_bookings"
	getUserBookingsHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/get_user_bookings"
	paymeWebhookHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/payme_webhook"
	payoutHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/payout"
	updateStatusHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/update_status"
	verifyPaymentHandler "github.com/m04kA/SMC-ReservationService/internal/api/handlers/verify_payment"
	"github.com/m04kA/SMC-ReservationService/internal/api/middleware"
	"github.com/m04kA/SMC-ReservationService/internal/config"
	bookingRepo "github.com/m04kA/SMC-ReservationService/internal/infra/storage/booking"
	paymentRepo "github.com/m04kA/SMC-ReservationService/internal/infra/storage/payment"
	clickClient "github.com/m04kA/SMC-ReservationService/internal/integrations/click"
	placeServiceClient "github.com/m04kA/SMC-ReservationService/internal/integrations/placeservice"
	userServiceClient "github.com/m04kA/SMC-ReservationService/internal/integrations/userservice"
	"github.com/m04kA/SMC-ReservationService/internal/notify"
	bookingsService "github.com/m04kA/SMC-ReservationService/internal/service/bookings"
	"github.com/m04kA/SMC-ReservationService/internal/service/payverify"
	reaperService "github.com/m04kA/SMC-ReservationService/internal/service/reaper"
	createBookingUC "github.com/m04kA/SMC-ReservationService/internal/usecase/create_booking"
	"github.com/m04kA/SMC-ReservationService/pkg/dbmetrics"
	"github.com/m04kA/SMC-ReservationService/pkg/logger"
	"github.com/m04kA/SMC-ReservationService/pkg/metrics"
	"github.com/m04kA/SMC-ReservationService/pkg/rabbitmq"
	"github.com/m04kA/SMC-ReservationService/pkg/simpletxmanager"
	"github.com/m04kA/SMC-ReservationService/pkg/txmanager"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.Load("config.toml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализируем логгер
	log, err := logger.New(cfg.Logs.File, cfg.Logs.Level)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info("Starting SMC-ReservationService...")
	log.Info("Configuration loaded from config.toml")

	// Инициализируем метрики (если включены)
	var metricsCollector *metrics.Metrics
	var wrappedDB *dbmetrics.DB
	stopMetricsCh := make(chan struct{})

	if cfg.Metrics.Enabled {
		metricsCollector = metrics.New(cfg.Metrics.ServiceName)
		log.Info("Metrics enabled at %s", cfg.Metrics.Path)
	}

	// Подключаемся к базе данных
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Настраиваем connection pool
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database: %v", err)
	}
	log.Info("Successfully connected to database (host=%s, port=%d, db=%s)",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName)

	// Инициализируем интеграционных клиентов
	placeClient := placeServiceClient.NewClient(
		cfg.PlaceService.URL,
		time.Duration(cfg.PlaceService.Timeout)*time.Second,
		log,
	)
	userClient := userServiceClient.NewClient(
		cfg.UserService.URL,
		time.Duration(cfg.UserService.Timeout)*time.Second,
		log,
	)
	log.Info("Integration clients initialized (PlaceService=%s timeout=%ds, UserService=%s timeout=%ds)",
		cfg.PlaceService.URL, cfg.PlaceService.Timeout, cfg.UserService.URL, cfg.UserService.Timeout)

	// Инициализируем публикацию событий уведомлений
	var publisher notify.Publisher = notify.NopPublisher{}
	if cfg.RabbitMQ.Enabled {
		rmq, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()
		publisher = rmq
		log.Info("RabbitMQ publisher connected (exchange=%s)", cfg.RabbitMQ.Exchange)
	} else {
		log.Warn("RabbitMQ disabled, notification events will be dropped")
	}

	var droppedCounter notify.Counter
	var reapedCounter reaperService.Counter
	var pollsCounter payverify.Counter
	if cfg.Metrics.Enabled {
		droppedCounter = metricsCollector.NotificationsDropped
		reapedCounter = metricsCollector.ExpiredBookingsReaped
		pollsCounter = metricsCollector.PaymentPollsTotal
	}
	notifier := notify.NewDispatcher(publisher, log, droppedCounter)

	// Инициализируем репозитории и transaction manager (с метриками или без)
	var (
		bookingRepository *bookingRepo.Repository
		paymentRepository *paymentRepo.Repository
	)

	type TxManager interface {
		DoSerializable(ctx context.Context, fn func(ctx context.Context) error) error
	}
	var txMgr TxManager

	if cfg.Metrics.Enabled {
		wrappedDB = dbmetrics.WrapWithDefault(db, metricsCollector, cfg.Metrics.ServiceName, stopMetricsCh)
		bookingRepository = bookingRepo.NewRepository(wrappedDB)
		paymentRepository = paymentRepo.NewRepository(wrappedDB)
		txMgr = txmanager.NewTransactionManager(wrappedDB)
		log.Info("Database metrics collection started")
	} else {
		bookingRepository = bookingRepo.NewRepository(db)
		paymentRepository = paymentRepo.NewRepository(db)
		txMgr = simpletxmanager.NewTransactionManager(db)
	}

	// Инициализируем reaper устаревших заявок
	var reaper *reaperService.Reaper
	if cfg.Reaper.Enabled {
		loc, err := time.LoadLocation(cfg.Reaper.Timezone)
		if err != nil {
			log.Fatal("Failed to load reaper timezone %q: %v", cfg.Reaper.Timezone, err)
		}
		reaper = reaperService.New(bookingRepository, loc, reapedCounter, log)
	}

	// Инициализируем сервисы
	var reaperDep bookingsService.Reaper
	if reaper != nil {
		reaperDep = reaper
	}
	bookingSvc := bookingsService.NewService(
		bookingRepository,
		placeClient,
		userClient,
		notifier,
		txMgr,
		reaperDep,
		log,
	)

	// Инициализируем поллер платежей Click (если включён)
	var verifier *payverify.Verifier
	if cfg.Click.Enabled {
		click := clickClient.NewClient(
			cfg.Click.BaseURL,
			cfg.Click.ServiceID,
			cfg.Click.MerchantID,
			cfg.Click.SecretKey,
			time.Duration(cfg.Click.Timeout)*time.Second,
			log,
		)
		verifier = payverify.NewVerifier(
			bookingRepository,
			paymentRepository,
			click,
			bookingSvc,
			pollsCounter,
			log,
		)
		log.Info("Click payment verifier initialized (base_url=%s)", cfg.Click.BaseURL)
	}

	// Инициализируем use cases
	createBookingUseCase := createBookingUC.NewUseCase(
		bookingRepository,
		placeClient,
		notifier,
		txMgr,
		log,
	)

	// Инициализируем handlers
	createBooking := createBookingHandler.NewHandler(createBookingUseCase, log)
	getBooking := getBookingHandler.NewHandler(bookingSvc, log)
	updateStatus := updateStatusHandler.NewHandler(bookingSvc, log)
	cancelBooking := cancelBookingHandler.NewHandler(bookingSvc, log)
	getUserBookings := getUserBookingsHandler.NewHandler(bookingSvc, log)
	getPlaceBookings := getPlaceBookingsHandler.NewHandler(bookingSvc, log)
	payout := payoutHandler.NewHandler(bookingSvc, log)
	paymeWebhook := paymeWebhookHandler.NewHandler(bookingRepository, paymentRepository, bookingSvc, log)

	// Настраиваем роутер
	r := mux.NewRouter()

	// Добавляем metrics middleware (если метрики включены)
	if cfg.Metrics.Enabled {
		r.Use(middleware.MetricsMiddleware(metricsCollector, cfg.Metrics.ServiceName))
		r.Handle(cfg.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
		log.Info("Prometheus metrics endpoint exposed at %s", cfg.Metrics.Path)
	}

	// ============================================================
	// WEBHOOKS (аутентификация на стороне провайдера)
	// ============================================================
	r.HandleFunc("/webhooks/payme", paymeWebhook.Handle).Methods(http.MethodPost)

	// API prefix
	api := r.PathPrefix("/api/v1").Subrouter()

	// ============================================================
	// PROTECTED ROUTES (требуют X-User-ID header)
	// ============================================================
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth)

	// --- Бронирования ---
	protected.HandleFunc("/bookings", createBooking.Handle).Methods(http.MethodPost)
	protected.HandleFunc("/bookings/{bookingId}", getBooking.Handle).Methods(http.MethodGet)
	protected.HandleFunc("/bookings/{bookingId}/status", updateStatus.Handle).Methods(http.MethodPatch)
	protected.HandleFunc("/bookings/{bookingId}/cancel", cancelBooking.Handle).Methods(http.MethodPatch)

	// --- Платежи ---
	if verifier != nil {
		verifyPayment := verifyPaymentHandler.NewHandler(verifier, log)
		protected.HandleFunc("/bookings/{bookingId}/verify-payment", verifyPayment.Handle).Methods(http.MethodPost)
	}
	protected.HandleFunc("/bookings/{bookingId}/payout", payout.Handle).Methods(http.MethodPost)

	// --- Списки ---
	protected.HandleFunc("/users/{userId}/bookings", getUserBookings.Handle).Methods(http.MethodGet)
	protected.HandleFunc("/places/{placeId}/bookings", getPlaceBookings.Handle).Methods(http.MethodGet)

	// Создаем HTTP сервер
	addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Запускаем фоновую чистку устаревших заявок
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	if reaper != nil {
		interval := time.Duration(cfg.Reaper.IntervalMinutes) * time.Minute
		go reaper.Run(reaperCtx, interval)
	}

	// Graceful shutdown
	go func() {
		log.Info("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start: %v", err)
		}
	}()

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	stopReaper()

	// Останавливаем сбор метрик connection pool
	if cfg.Metrics.Enabled {
		close(stopMetricsCh)
		log.Info("Metrics collection stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server stopped")
}
