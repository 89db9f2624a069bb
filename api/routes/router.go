package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stocklinehq/stockline-backend/api/controllers"
	"github.com/stocklinehq/stockline-backend/api/middleware"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/internal/containers"
	"github.com/stocklinehq/stockline-backend/internal/idempotency"
	"github.com/stocklinehq/stockline-backend/internal/inventory"
	"github.com/stocklinehq/stockline-backend/internal/materials"
	"github.com/stocklinehq/stockline-backend/internal/orders"
	"github.com/stocklinehq/stockline-backend/internal/topology"
	"github.com/stocklinehq/stockline-backend/internal/users"
	"github.com/stocklinehq/stockline-backend/pkg/config"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/logger"
	"github.com/stocklinehq/stockline-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Cfg    *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis *redis.Client

	IdempotencyStore *idempotency.Store
	OpLogReader      *auditlog.Reader

	Users      users.Service
	Materials  materials.Service
	Topology   topology.Service
	Inventory  inventory.Service
	Orders     orders.Service
	Containers containers.Service
}

// NewRouter assembles the chi router with the full middleware chain.
func NewRouter(p RouterParams) http.Handler {
	cfg := p.Cfg
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Trace(logg),
		middleware.CORS(),
		middleware.Logging(logg),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginAccountLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/login", controllers.Login(p.Users, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Users, logg))
		r.Use(middleware.Idempotency(p.IdempotencyStore, logg))

		r.Get("/auth/me", controllers.Me(p.Users, logg))

		r.Route("/materials", func(r chi.Router) {
			r.With(perm("materials.write", logg)).Post("/", controllers.MaterialCreate(p.Materials, logg))
			r.With(perm("materials.read", logg)).Get("/", controllers.MaterialList(p.Materials, logg))
			r.With(perm("materials.read", logg)).Get("/{id}", controllers.MaterialGet(p.Materials, logg))
			r.With(perm("materials.write", logg)).Patch("/{id}", controllers.MaterialUpdate(p.Materials, logg))
			r.With(perm("materials.delete", logg)).Delete("/{id}", controllers.MaterialDeactivate(p.Materials, logg))
		})

		r.Route("/factories", func(r chi.Router) {
			r.With(perm("areas.write", logg)).Post("/", controllers.FactoryCreate(p.Topology, logg))
			r.With(perm("areas.read", logg)).Get("/", controllers.FactoryList(p.Topology, logg))
			r.With(perm("areas.write", logg)).Patch("/{id}", controllers.FactoryUpdate(p.Topology, logg))
			r.With(perm("areas.write", logg)).Delete("/{id}", controllers.FactoryDelete(p.Topology, logg))
		})
		r.Route("/warehouses", func(r chi.Router) {
			r.With(perm("areas.write", logg)).Post("/", controllers.WarehouseCreate(p.Topology, logg))
			r.With(perm("areas.read", logg)).Get("/", controllers.WarehouseList(p.Topology, logg))
			r.With(perm("areas.write", logg)).Patch("/{id}", controllers.WarehouseUpdate(p.Topology, logg))
			r.With(perm("areas.write", logg)).Delete("/{id}", controllers.WarehouseDelete(p.Topology, logg))
		})
		r.Route("/areas", func(r chi.Router) {
			r.With(perm("areas.write", logg)).Post("/", controllers.AreaCreate(p.Topology, logg))
			r.With(perm("areas.read", logg)).Get("/", controllers.AreaList(p.Topology, logg))
			r.With(perm("areas.write", logg)).Patch("/{id}", controllers.AreaUpdate(p.Topology, logg))
			r.With(perm("areas.write", logg)).Delete("/{id}", controllers.AreaDelete(p.Topology, logg))
		})
		r.Route("/locations", func(r chi.Router) {
			r.With(perm("locations.write", logg)).Post("/", controllers.LocationCreate(p.Topology, logg))
			r.With(perm("locations.read", logg)).Get("/", controllers.LocationList(p.Topology, logg))
			r.With(perm("locations.read", logg)).Get("/{id}", controllers.LocationGet(p.Topology, logg))
			r.With(perm("locations.write", logg)).Patch("/{id}", controllers.LocationUpdate(p.Topology, logg))
			r.With(perm("locations.write", logg)).Delete("/{id}", controllers.LocationDelete(p.Topology, logg))
			r.With(perm("inventory.read", logg)).Get("/{id}/inventory", controllers.InventoryByLocation(p.Inventory, logg))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.With(perm("inventory.adjust", logg)).Post("/adjust", controllers.InventoryAdjust(p.Inventory, logg))
			r.With(perm("inventory.read", logg)).Get("/materials/{id}", controllers.InventoryByMaterial(p.Inventory, logg))
		})
		r.With(perm("stock_moves.read", logg)).Get("/stock-moves", controllers.StockMoveList(p.Inventory, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(perm("orders.write", logg)).Post("/", controllers.OrderCreate(p.Orders, logg))
			r.With(perm("orders.read", logg)).Get("/", controllers.OrderList(p.Orders, logg))
			r.With(perm("orders.read", logg)).Get("/{id}", controllers.OrderGet(p.Orders, logg))
			r.With(perm("inbound.receive", logg)).Post("/{id}/receive", controllers.OrderReceive(p.Orders, logg))
			r.With(perm("outbound.reserve", logg)).Post("/{id}/reserve", controllers.OrderReserve(p.Orders, logg))
			r.With(perm("outbound.pick", logg)).Post("/{id}/pick", controllers.OrderPick(p.Orders, logg))
			r.With(perm("outbound.pack", logg)).Post("/{id}/pack", controllers.OrderPack(p.Orders, logg))
			r.With(perm("outbound.ship", logg)).Post("/{id}/ship", controllers.OrderShip(p.Orders, logg))
		})

		r.Route("/containers", func(r chi.Router) {
			r.With(perm("containers.write", logg)).Post("/", controllers.ContainerCreate(p.Containers, logg))
			r.With(perm("containers.read", logg)).Get("/", controllers.ContainerList(p.Containers, logg))
			r.With(perm("containers.read", logg)).Get("/{id}", controllers.ContainerGet(p.Containers, logg))
			r.With(perm("containers.write", logg)).Delete("/{id}", controllers.ContainerDelete(p.Containers, logg))
			r.With(perm("containers.write", logg)).Post("/{id}/bind", controllers.ContainerBind(p.Containers, logg))
			r.With(perm("containers.write", logg)).Post("/{id}/unbind", controllers.ContainerUnbind(p.Containers, logg))
			r.With(perm("container_moves.write", logg)).Post("/{id}/move", controllers.ContainerMove(p.Containers, logg))
			r.With(perm("containers.read", logg)).Get("/{id}/stock", controllers.ContainerStock(p.Containers, logg))
			r.With(perm("inventory.adjust", logg)).Post("/{id}/stock/adjust", controllers.ContainerStockAdjust(p.Containers, logg))
			r.With(perm("container_moves.read", logg)).Get("/{id}/moves", controllers.ContainerMoves(p.Containers, logg))
		})

		r.Route("/users", func(r chi.Router) {
			r.With(perm("users.write", logg)).Post("/", controllers.UserCreate(p.Users, logg))
			r.With(perm("users.read", logg)).Get("/", controllers.UserList(p.Users, logg))
			r.With(perm("users.write", logg)).Patch("/{id}/active", controllers.UserSetActive(p.Users, logg))
			r.With(perm("users.write", logg)).Post("/{id}/roles", controllers.UserAssignRole(p.Users, logg))
			r.With(perm("users.write", logg)).Delete("/{id}/roles", controllers.UserRevokeRole(p.Users, logg))
		})
		r.Route("/roles", func(r chi.Router) {
			r.With(perm("roles.read", logg)).Get("/", controllers.RoleList(p.Users, logg))
			r.With(perm("roles.read", logg)).Get("/{name}/permissions", controllers.RolePermissions(p.Users, logg))
		})
		r.With(perm("roles.read", logg)).Get("/permissions", controllers.PermissionList(p.Users, logg))

		r.With(perm("system.setup", logg)).Get("/operation-logs", controllers.OperationLogList(p.OpLogReader, logg))
	})

	return r
}

func perm(code string, logg *logger.Logger) func(http.Handler) http.Handler {
	return middleware.RequirePermission(code, logg)
}
