package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/nexsplit/nexsplit/docs"
	"github.com/nexsplit/nexsplit/internal/config"
	"github.com/nexsplit/nexsplit/internal/database"
	"github.com/nexsplit/nexsplit/internal/debt"
	"github.com/nexsplit/nexsplit/internal/expense"
	"github.com/nexsplit/nexsplit/internal/nex"
	"github.com/nexsplit/nexsplit/internal/settlement"
	"github.com/nexsplit/nexsplit/pkg/logger"
	mw "github.com/nexsplit/nexsplit/pkg/middleware"
)

// @title           NexSplit API
// @version         1.0
// @description     Expense splitting and debt settlement service.
// @BasePath        /api/v1
func main() {
	// Load .env file; running from the environment alone is fine.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.GetLogger()
	defer logger.Close()

	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalw("failed to run migrations", "error", err)
	}
	log.Info("database ready")

	// Shared read-side repositories
	nexRepo := nex.NewRepository(db)
	debtRepo := debt.NewRepository(db)

	// Expense feature
	expenseRepo := expense.NewRepository(db)
	expenseService := expense.NewService(db, expenseRepo, debtRepo, nexRepo, log)
	expenseHandler := expense.NewHandler(expenseService)

	// Settlement feature
	settlementRepo := settlement.NewRepository(db)
	settlementService := settlement.NewService(db, settlementRepo, debtRepo, nexRepo, log)
	settlementHandler := settlement.NewHandler(settlementService)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(mw.UserMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger/*", httpSwagger.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/expenses", expenseHandler.Routes())
		r.Route("/nex", func(r chi.Router) {
			r.Get("/{nexId}/expenses", expenseHandler.ListByNex)
			r.Mount("/", settlementHandler.Routes())
		})
	})

	log.Infow("server starting", "port", cfg.Port, "environment", cfg.Environment)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalw("server failed", "error", err)
	}
}
