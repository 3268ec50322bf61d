package main

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpapi "streamspace/internal/api/http"
	"streamspace/internal/config"
	"streamspace/internal/repository"
	"streamspace/internal/repository/model"
	"streamspace/internal/service"
	"streamspace/lib/logger/slogpretty"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	var (
		roomRepo repository.RoomRepository
		userRepo repository.UserRepository
	)

	if cfg.Database.DSN != "" {
		db, err := connectDatabase(cfg.Database)
		if err != nil {
			log.Error("failed to connect database", slog.Any("error", err))
			os.Exit(1)
		}
		roomRepo = repository.NewPostgresRoomRepository(db)
		userRepo = repository.NewPostgresUserRepository(db)
	} else {
		log.Warn("no database dsn configured, using in-memory store")
		roomRepo = repository.NewInMemoryRoomRepository()
		userRepo = repository.NewInMemoryUserRepository()
	}

	registry := service.NewConnectionRegistry(log)
	roster := service.NewRoster(cfg.Room.Capacity)
	relay := service.NewSignalRelay(registry, roster, log)
	messages := service.NewMessageLog(cfg.Room.HistoryLimit)

	roomService := service.NewRoomService(roomRepo, userRepo, roster, registry, relay, messages, log)
	userService := service.NewUserService(userRepo, log)

	roomController := httpapi.NewRoomController(roomService, cfg.WebRTC.STUNServers, log)
	userController := httpapi.NewUserController(userService)

	router := httpapi.SetupRouter(roomController, userController)

	log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
	if err := router.Run(cfg.HTTP.Address); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(&model.Room{}, &model.Member{}, &model.User{})

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
