package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anoa.com/casethreads/internal/config"
	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/internal/middleware"
	userRepo "anoa.com/casethreads/internal/modules/user/repository"
	"anoa.com/casethreads/internal/server"
	"anoa.com/casethreads/pkg/database"
	"anoa.com/casethreads/pkg/logger"
	"anoa.com/casethreads/pkg/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "casethreads",
		Short:         "Case comment threads, mentions and notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger.Init(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
			database.SetQueryTimeout(cfg.DBQueryTimeout)
			return nil
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket streams and the notification dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect(cfg)
			if err != nil {
				return err
			}
			return migrate(db)
		},
	}

	var printToken bool
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Seed roles, plus an admin user outside production",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect(cfg)
			if err != nil {
				return err
			}
			if err := migrate(db); err != nil {
				return err
			}
			if err := seedRoles(db); err != nil {
				return fmt.Errorf("failed to seed roles: %w", err)
			}
			if cfg.IsProduction() {
				return nil
			}
			return seedAdminUser(cmd.Context(), cfg, db, printToken)
		},
	}
	seed.Flags().BoolVar(&printToken, "print-token", false, "print a 24h token for the seeded admin")

	root.AddCommand(serve, migrateCmd, seed)
	// Bare invocation serves.
	root.RunE = serve.RunE
	return root
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("main")

	db, err := connect(cfg)
	if err != nil {
		return err
	}
	if err := migrate(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err := seedRoles(db); err != nil {
		return fmt.Errorf("failed to seed roles: %w", err)
	}

	blob, err := storage.NewCloudinaryStorage(storage.CloudinaryConfig{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cloudinary storage: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("connected to redis")
	}

	srv, err := server.NewServer(cfg, server.Deps{DB: db, Redis: redisClient, Blob: blob})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func connect(cfg *config.Config) (*gorm.DB, error) {
	return database.Connect(database.Options{
		Host:     cfg.DBHost,
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Name:     cfg.DBName,
		Port:     cfg.DBPort,
		Debug:    cfg.LogLevel == "debug",
	})
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(entity.Models()...)
}

func seedRoles(db *gorm.DB) error {
	defaultRoles := []entity.Role{
		{Name: entity.RoleAdmin, Description: "Administrator"},
		{Name: entity.RoleKoordinator, Description: "Koordinator"},
		{Name: entity.RoleTechnician, Description: "Tekniker"},
		{Name: "customer", Description: "Kund"},
	}

	for _, role := range defaultRoles {
		var count int64
		if err := db.Model(&entity.Role{}).
			Where("name = ?", role.Name).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			if err := db.Create(&role).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

func seedAdminUser(ctx context.Context, cfg *config.Config, db *gorm.DB, printToken bool) error {
	log := logger.WithComponent("seed")
	users := userRepo.NewUserRepository(db)

	var admin entity.User
	err := db.WithContext(ctx).Where("email = ?", "admin@casethreads.local").First(&admin).Error
	switch {
	case err == nil:
		log.Info("admin user already exists, skipping seed")
	case errors.Is(err, gorm.ErrRecordNotFound):
		role, err := users.FindRoleByName(ctx, entity.RoleAdmin)
		if err != nil {
			return err
		}
		admin = entity.User{
			Username: "admin",
			Email:    "admin@casethreads.local",
			RoleID:   &role.ID,
			IsActive: true,
		}
		if err := users.Create(ctx, &admin, &entity.Profile{FullName: "Administrator"}); err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}
		log.Info("admin user created", "id", admin.ID)
	default:
		return err
	}

	if !printToken {
		return nil
	}
	token, err := middleware.IssueToken(cfg.JWTSecret, admin.ID, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
