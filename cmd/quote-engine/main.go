package main

import (
	"fmt"
	"os"

	"github.com/sunfin/quote-engine/internal/auth"
	"github.com/sunfin/quote-engine/internal/config"
	"github.com/sunfin/quote-engine/internal/contractor"
	"github.com/sunfin/quote-engine/internal/db"
	"github.com/sunfin/quote-engine/internal/excel"
	httphandler "github.com/sunfin/quote-engine/internal/http"
	"github.com/sunfin/quote-engine/internal/http/middleware"
	"github.com/sunfin/quote-engine/internal/logger"
	"github.com/sunfin/quote-engine/internal/pdf"
	"github.com/sunfin/quote-engine/internal/repository"
	"github.com/sunfin/quote-engine/internal/scheduler"
	"github.com/sunfin/quote-engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	requestRepo := repository.NewRequestRepository(database)
	quotationRepo := repository.NewQuotationRepository(database)
	penaltyRepo := repository.NewPenaltyRepository(database)
	walletRepo := repository.NewWalletRepository(database)

	var directory service.ContractorDirectory
	if cfg.Contractors.BaseURL != "" {
		directory = contractor.NewClient(cfg.Contractors.BaseURL)
	}

	penaltyService, err := service.NewPenaltyService(penaltyRepo, walletRepo, quotationRepo, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init penalty service")
	}
	requestService := service.NewRequestService(requestRepo, directory, penaltyService, cfg)
	quotationService, err := service.NewQuotationService(quotationRepo, requestRepo, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init quotation service")
	}
	slaService := service.NewSLAService(penaltyRepo, penaltyService, log)

	passScheduler := scheduler.New(slaService, cfg.Scheduler.Interval, log)
	if err := passScheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer passScheduler.Stop()

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(
		requestService,
		quotationService,
		penaltyService,
		passScheduler,
		pdf.NewGenerator(),
		excel.NewGenerator(),
		log,
	)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting quote engine")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
