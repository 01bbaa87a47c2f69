package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maplecart/orders/internal/payments"
	"github.com/maplecart/orders/internal/platform/config"
	"github.com/maplecart/orders/internal/repositories"
	"github.com/maplecart/orders/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Inventory     services.InventoryService
	Catalog       services.CatalogService
	Loyalty       services.LoyaltyService
	Notifications services.NotificationService
	Audit         services.AuditLogService
	System        services.SystemService
}

// Infrastructure carries collaborators that live outside the repository registry:
// message publishers, the payment gateway, build metadata, and the shared
// structured logger. Absent members simply disable the features they power.
type Infrastructure struct {
	OrderEvents   services.OrderEventPublisher
	LowStock      services.LowStockPublisher
	Notifications services.NotificationPublisher
	Payments      *payments.Manager
	Build         services.BuildInfo
	Logger        services.Logger
	Clock         func() time.Time
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := infra.Logger

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      clock,
			Logger:     logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	if inventoryRepo := reg.Inventory(); inventoryRepo != nil {
		inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
			Inventory:        inventoryRepo,
			Alerts:           infra.LowStock,
			DefaultThreshold: cfg.Orders.LowStockThreshold,
			Clock:            clock,
			Logger:           logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build inventory service: %w", err)
		}
		svc.Inventory = inventorySvc
	}

	if productsRepo := reg.Products(); productsRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Products: productsRepo,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	if loyaltyRepo := reg.Loyalty(); loyaltyRepo != nil {
		loyaltySvc, err := services.NewLoyaltyService(services.LoyaltyServiceDeps{
			Loyalty: loyaltyRepo,
			Clock:   clock,
			Logger:  logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build loyalty service: %w", err)
		}
		svc.Loyalty = loyaltySvc
	}

	if infra.Notifications != nil {
		notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
			Publisher:        infra.Notifications,
			DefaultLocale:    cfg.Notifications.DefaultLocale,
			SupportedLocales: cfg.Notifications.SupportedLocales,
			Clock:            clock,
			Logger:           logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification service: %w", err)
		}
		svc.Notifications = notificationSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            infra.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil && reg.Products() != nil && reg.Counters() != nil && svc.Inventory != nil {
		publisher := services.NewStatusChangePublisher(logger, statusChangeHandlers(svc, infra, clock)...)
		deps := services.OrderServiceDeps{
			Orders:          ordersRepo,
			Products:        reg.Products(),
			PaymentRecords:  reg.Payments(),
			Counters:        reg.Counters(),
			Inventory:       svc.Inventory,
			Publisher:       publisher,
			Invoker:         services.NewCommandInvoker(cfg.Orders.UndoHistoryDepth, logger),
			MaxLineQuantity: cfg.Orders.MaxLineQuantity,
			Clock:           clock,
			Logger:          logger,
		}
		if infra.Payments != nil {
			deps.Payments = infra.Payments
		}
		orderSvc, err := services.NewOrderService(deps)
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	return svc, nil
}

// statusChangeHandlers assembles the fan-out reactions in their dispatch order:
// event stream first, then inventory release, notification, audit trail, loyalty.
func statusChangeHandlers(svc Services, infra Infrastructure, clock func() time.Time) []services.StatusChangeHandler {
	handlers := make([]services.StatusChangeHandler, 0, 5)
	if infra.OrderEvents != nil {
		handlers = append(handlers, services.NewOrderEventHandler(infra.OrderEvents, clock, nil))
	}
	if svc.Inventory != nil {
		handlers = append(handlers, services.NewInventoryReleaseHandler(svc.Inventory))
	}
	if svc.Notifications != nil {
		handlers = append(handlers, services.NewNotificationHandler(svc.Notifications))
	}
	if svc.Audit != nil {
		handlers = append(handlers, services.NewAuditTrailHandler(svc.Audit))
	}
	if svc.Loyalty != nil {
		handlers = append(handlers, services.NewLoyaltyHandler(svc.Loyalty))
	}
	return handlers
}
