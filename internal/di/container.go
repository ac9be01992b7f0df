package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sellery/api/internal/platform/config"
	"github.com/sellery/api/internal/repositories"
	"github.com/sellery/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Products  services.ProductService
	Carts     services.CartService
	Pricing   services.PricingService
	Orders    services.OrderService
	Downloads services.DownloadService
	Analytics services.AnalyticsService
	Checkout  services.CheckoutService
	Sellers   services.SellerService
	System    services.SystemService
}

// Deps carries infrastructure that lives outside the repository registry:
// signed URL generation, object storage, the payment provider fan-out, and
// the order event topic. Any nil entry disables the services that need it.
type Deps struct {
	Registry repositories.Registry
	Signer   services.DownloadURLSigner
	Objects  services.ProductObjectStore
	Payments services.CheckoutPaymentProvider
	Events   services.OrderEventPublisher
	Build    services.BuildInfo
	Logger   *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
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

func buildServices(_ context.Context, cfg config.Config, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	productSvc, err := services.NewProductService(services.ProductServiceDeps{
		Products: reg.Products(),
		Signer:   deps.Signer,
		Objects:  deps.Objects,
		Bucket:   cfg.Storage.FilesBucket,
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("products")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product service: %w", err)
	}
	svc.Products = productSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	pricingSvc, err := services.NewPricingService(services.PricingServiceDeps{
		Products: reg.Products(),
		Logger:   eventLogger(logger.Named("pricing")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing service: %w", err)
	}
	svc.Pricing = pricingSvc

	// The analytics ledger is optional: the order pipeline records sales on a
	// best-effort basis and seller reporting endpoints answer 503 without it.
	if cfg.Features.EnableSellerAnalytics {
		analyticsSvc, err := services.NewAnalyticsService(services.AnalyticsServiceDeps{
			Ledger:         reg.SalesLedger(),
			FeeBasisPoints: cfg.Commerce.PlatformFeeBasisPoints,
			Clock:          time.Now,
			Logger:         eventLogger(logger.Named("analytics")),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build analytics service: %w", err)
		}
		svc.Analytics = analyticsSvc
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Lines:      reg.OrderLines(),
		Analytics:  svc.Analytics,
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     deps.Events,
		Logger:     eventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	downloadSvc, err := services.NewDownloadService(services.DownloadServiceDeps{
		Lines:           reg.OrderLines(),
		Orders:          reg.Orders(),
		Signer:          deps.Signer,
		Bucket:          cfg.Storage.FilesBucket,
		DefaultLifetime: cfg.Commerce.DownloadLifetime,
		Clock:           time.Now,
		Logger:          eventLogger(logger.Named("downloads")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build download service: %w", err)
	}
	svc.Downloads = downloadSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:      svc.Carts,
		Pricing:    svc.Pricing,
		Orders:     svc.Orders,
		Payments:   deps.Payments,
		SuccessURL: cfg.Commerce.CheckoutSuccessURL,
		CancelURL:  cfg.Commerce.CheckoutCancelURL,
		Clock:      time.Now,
		Logger:     eventLogger(logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	sellerSvc, err := services.NewSellerService(services.SellerServiceDeps{
		Lines:  reg.OrderLines(),
		Logger: eventLogger(logger.Named("seller")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build seller service: %w", err)
	}
	svc.Sellers = sellerSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build:            deps.Build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

// eventLogger adapts a zap logger to the event callback the services expect.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
