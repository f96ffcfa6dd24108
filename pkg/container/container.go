package container

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"food-ordering-backend/internal/config"
	infraCache "food-ordering-backend/internal/infrastructure/cache"
	"food-ordering-backend/internal/infrastructure/database"
	"food-ordering-backend/internal/infrastructure/outbox"
	"food-ordering-backend/internal/shared/events"
	pkgdb "food-ordering-backend/pkg/database"
	"food-ordering-backend/pkg/jwt"
	"food-ordering-backend/pkg/logger"

	// Cart domain
	"food-ordering-backend/internal/domains/cart/catalog"
	cartHandler "food-ordering-backend/internal/domains/cart/handler"
	cartModel "food-ordering-backend/internal/domains/cart/model"
	cartRepo "food-ordering-backend/internal/domains/cart/repository"
	cartService "food-ordering-backend/internal/domains/cart/service"

	// Coupon domain
	couponHandler "food-ordering-backend/internal/domains/coupon/handler"
	couponRepo "food-ordering-backend/internal/domains/coupon/repository"
	couponService "food-ordering-backend/internal/domains/coupon/service"

	// Order domain
	orderHandler "food-ordering-backend/internal/domains/order/handler"
	orderJob "food-ordering-backend/internal/domains/order/job"
	orderRepo "food-ordering-backend/internal/domains/order/repository"
	orderService "food-ordering-backend/internal/domains/order/service"

	// Payment domain
	"food-ordering-backend/internal/domains/payment/gateway"
	"food-ordering-backend/internal/domains/payment/gateway/psp"
	"food-ordering-backend/internal/domains/payment/gateway/sandbox"
	paymentHandler "food-ordering-backend/internal/domains/payment/handler"
	paymentJob "food-ordering-backend/internal/domains/payment/job"
	paymentRepo "food-ordering-backend/internal/domains/payment/repository"
	paymentService "food-ordering-backend/internal/domains/payment/service"

	// Checkout domain
	checkoutHandler "food-ordering-backend/internal/domains/checkout/handler"
	checkoutRepo "food-ordering-backend/internal/domains/checkout/repository"
	checkoutService "food-ordering-backend/internal/domains/checkout/service"

	// Notification domain
	notificationHandler "food-ordering-backend/internal/domains/notification/handler"
	notificationRepo "food-ordering-backend/internal/domains/notification/repository"
	notificationService "food-ordering-backend/internal/domains/notification/service"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container holds the dependency graph shared by the API and the worker
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	Config      *config.Config
	DB          *database.PostgresDB
	Cache       *infraCache.RedisClient // cache.Cache + cache.Locker
	JWTManager  *jwt.Manager
	TxManager   pkgdb.TxManager
	AsynqClient *asynq.Client
	Outbox      outbox.Store // events.Publisher for every domain
	Gateway     gateway.Gateway

	// ========================================
	// REPOSITORY LAYER
	// ========================================
	CartRepo         cartRepo.RepositoryInterface
	CouponRepo       couponRepo.Repository
	OrderRepo        orderRepo.OrderRepository
	PaymentRepo      paymentRepo.PaymentRepository
	InboxRepo        paymentRepo.InboxRepository
	MarkerRepo       paymentRepo.MarkerRepository
	AttemptRepo      checkoutRepo.AttemptRepository
	NotificationRepo notificationRepo.NotificationRepository

	// ========================================
	// SERVICE LAYER
	// ========================================
	CartService         cartService.ServiceInterface
	CouponService       couponService.ServiceInterface
	OrderService        orderService.OrderService
	PaymentService      paymentService.PaymentService
	RefundService       paymentService.RefundService
	Reconciler          *paymentService.Reconciler
	CheckoutService     checkoutService.CheckoutService
	NotificationService notificationService.NotificationService

	// ========================================
	// HANDLER LAYER (HTTP)
	// ========================================
	CartHandler         *cartHandler.Handler
	CouponHandler       *couponHandler.CouponHandler
	OrderHandler        *orderHandler.OrderHandler
	PaymentHandler      *paymentHandler.PaymentHandler
	RefundHandler       *paymentHandler.RefundHandler
	CheckoutHandler     *checkoutHandler.CheckoutHandler
	NotificationHandler *notificationHandler.NotificationHandler
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer builds the graph in dependency order:
// config, infrastructure, repositories, services, handlers.
func NewContainer() (*Container, error) {
	c := &Container{}

	// ========================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	logger.Info("Config loaded", map[string]interface{}{
		"environment": cfg.App.Environment,
		"gateway":     cfg.Gateway.Provider,
		"broker":      cfg.Broker.Kind,
	})

	// ========================================
	// STEP 2: INITIALIZE DATABASE
	// ========================================
	dbConfig, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(dbConfig); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db := database.NewPostgresDB(dbConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	c.DB = db
	c.TxManager = pkgdb.NewTxManager(db.Pool)
	c.Outbox = outbox.NewStore(db.Pool)

	// ========================================
	// STEP 3: INITIALIZE REDIS + ASYNQ
	// ========================================
	c.Cache = infraCache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Password, cfg.Redis.DB)
	if err := c.Cache.Connect(ctx); err != nil {
		// Carts fall back to Postgres and checkout to the attempt claim
		logger.Warn("Redis connection failed, continuing without cache", map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.AsynqClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Host,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	c.JWTManager = jwt.NewManager(cfg.JWT.Secret)
	c.Gateway = newGateway(cfg.Gateway)

	// ========================================
	// STEP 4-6: REPOSITORIES, SERVICES, HANDLERS
	// ========================================
	c.initRepositories()
	c.initServices()
	c.initHandlers()

	logger.Info("Container initialized", nil)
	return c, nil
}

func newGateway(cfg config.GatewayConfig) gateway.Gateway {
	if cfg.Provider == "psp" {
		return psp.NewClient(psp.Config{
			APIURL:         cfg.APIURL,
			SecretKey:      cfg.SecretKey,
			WebhookSecret:  cfg.WebhookSecret,
			SignatureSkew:  cfg.SignatureMaxSkew,
			RequestTimeout: cfg.RequestTimeout,
		})
	}
	return sandbox.NewGateway(cfg.WebhookSecret)
}

func newCatalog(cfg config.CatalogConfig) catalog.Catalog {
	if cfg.Provider == "http" {
		return catalog.NewHTTPCatalog(cfg.BaseURL, cfg.Timeout)
	}
	return catalog.DefaultMenu()
}

// ========================================
// PRIVATE INITIALIZATION METHODS
// ========================================

func (c *Container) initRepositories() {
	pool := c.DB.Pool

	c.CartRepo = cartRepo.NewPostgresRepository(pool, c.TxManager, c.Cache)
	c.CouponRepo = couponRepo.NewPostgresRepository(pool)
	c.OrderRepo = orderRepo.NewPostgresOrderRepository(pool, c.TxManager)
	c.PaymentRepo = paymentRepo.NewPaymentRepository(pool)
	c.InboxRepo = paymentRepo.NewInboxRepository(pool)
	c.MarkerRepo = paymentRepo.NewMarkerRepository(pool)
	c.AttemptRepo = checkoutRepo.NewPostgresAttemptRepository(pool)
	c.NotificationRepo = notificationRepo.NewNotificationRepository(pool)
}

func (c *Container) initServices() {
	cfg := c.Config.Checkout
	var publisher events.Publisher = c.Outbox

	c.CouponService = couponService.NewCouponService(c.CouponRepo)

	c.CartService = cartService.NewCartService(
		c.CartRepo,
		newCatalog(c.Config.Catalog),
		c.CouponService,
		c.TxManager,
		cartModel.Pricing{
			TaxRate:     cfg.TaxRate,
			DeliveryFee: cfg.DeliveryFee,
			Currency:    cfg.Currency,
		},
	)

	c.OrderService = orderService.NewOrderService(
		c.OrderRepo,
		c.CouponService,
		publisher,
		c.TxManager,
		c.Cache,
		orderJob.NewDeadlineScheduler(c.AsynqClient),
		orderService.Config{
			PaymentDeadline: cfg.PaymentDeadline,
			LockTTL:         cfg.OrderLockTTL,
		},
	)

	c.Reconciler = paymentService.NewReconciler(
		c.MarkerRepo,
		c.PaymentRepo,
		c.OrderRepo,
		publisher,
		c.TxManager,
		c.Cache,
		cfg.OrderLockTTL,
	)

	c.PaymentService = paymentService.NewPaymentService(
		c.Gateway,
		c.PaymentRepo,
		c.InboxRepo,
		c.Reconciler,
		c.OrderService,
		paymentJob.NewGatewayEventEnqueuer(c.AsynqClient),
		c.TxManager,
		cfg.GatewayTimeout,
	)

	c.RefundService = paymentService.NewRefundService(
		c.Gateway,
		c.PaymentRepo,
		c.OrderRepo,
		publisher,
		c.TxManager,
		c.Cache,
		paymentService.RefundConfig{
			LockTTL:        cfg.OrderLockTTL,
			GatewayTimeout: cfg.GatewayTimeout,
		},
	)

	c.CheckoutService = checkoutService.NewCheckoutService(
		c.CartService,
		c.CouponService,
		c.OrderService,
		c.PaymentService,
		c.AttemptRepo,
		publisher,
		c.TxManager,
		c.Cache,
		checkoutService.Config{
			LockTTL:    cfg.CartLockTTL,
			StuckAfter: cfg.StuckAttemptAge,
		},
	)

	c.NotificationService = notificationService.NewNotificationService(c.NotificationRepo)
}

func (c *Container) initHandlers() {
	c.CartHandler = cartHandler.NewHandler(c.CartService)
	c.CouponHandler = couponHandler.NewCouponHandler(c.CouponService)
	c.OrderHandler = orderHandler.NewOrderHandler(c.OrderService)
	c.PaymentHandler = paymentHandler.NewPaymentHandler(c.PaymentService, c.Config.Gateway.SignatureHeader)
	c.RefundHandler = paymentHandler.NewRefundHandler(c.RefundService)
	c.CheckoutHandler = checkoutHandler.NewCheckoutHandler(c.CheckoutService)
	c.NotificationHandler = notificationHandler.NewNotificationHandler(c.NotificationService)
}

// Cleanup releases connections on shutdown
func (c *Container) Cleanup() {
	if c.AsynqClient != nil {
		if err := c.AsynqClient.Close(); err != nil {
			logger.Error("Failed to close asynq client", err)
		}
	}

	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			logger.Error("Failed to close Redis", err)
		}
	}

	if c.DB != nil {
		c.DB.Close()
	}

	logger.Info("Container cleanup completed", nil)
}
