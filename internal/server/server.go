package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"anoa.com/casethreads/internal/config"
	"anoa.com/casethreads/internal/middleware"
	"anoa.com/casethreads/internal/realtime"
	"anoa.com/casethreads/internal/realtime/ws"
	"anoa.com/casethreads/pkg/authz"
	"anoa.com/casethreads/pkg/logger"
	"anoa.com/casethreads/pkg/storage"

	attachmentHttp "anoa.com/casethreads/internal/modules/attachment/delivery/http"
	attachmentRepo "anoa.com/casethreads/internal/modules/attachment/repository"
	attachmentService "anoa.com/casethreads/internal/modules/attachment/service"

	commentHttp "anoa.com/casethreads/internal/modules/comment/delivery/http"
	commentRepo "anoa.com/casethreads/internal/modules/comment/repository"
	commentService "anoa.com/casethreads/internal/modules/comment/service"

	notiHttp "anoa.com/casethreads/internal/modules/notification/delivery/http"
	notifRepo "anoa.com/casethreads/internal/modules/notification/repository"
	notifService "anoa.com/casethreads/internal/modules/notification/service"

	receiptHttp "anoa.com/casethreads/internal/modules/receipt/delivery/http"
	receiptRepo "anoa.com/casethreads/internal/modules/receipt/repository"
	receiptService "anoa.com/casethreads/internal/modules/receipt/service"

	ticketHttp "anoa.com/casethreads/internal/modules/ticket/delivery/http"
	ticketService "anoa.com/casethreads/internal/modules/ticket/service"

	userRepo "anoa.com/casethreads/internal/modules/user/repository"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the external resources the server runs on. Redis and Enforcer are optional:
// without redis realtime stays in-process and dispatch recovery is off, without an
// enforcer one backed by DB is created.
type Deps struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Blob     storage.BlobStore
	Enforcer *authz.Enforcer
}

type Server struct {
	engine *gin.Engine
	cfg    *config.Config
	logger *slog.Logger

	worker        *notifService.DispatchWorker
	attachmentSvc attachmentService.AttachmentService
	receiptSvc    receiptService.ReceiptService
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	log := logger.WithComponent("server")

	enforcer := deps.Enforcer
	if enforcer == nil {
		var err error
		enforcer, err = authz.NewEnforcer(deps.DB)
		if err != nil {
			return nil, err
		}
	}

	var broker realtime.Broker
	if deps.Redis != nil {
		broker = realtime.NewRedisBroker(deps.Redis, logger.WithComponent("realtime"))
	} else {
		log.Warn("redis not configured, realtime events stay in this process")
		broker = realtime.NewMemoryBroker()
	}

	users := userRepo.NewUserRepository(deps.DB)
	comments := commentRepo.NewCommentRepository(deps.DB)
	notifications := notifRepo.NewNotificationRepository(deps.DB)
	receipts := receiptRepo.NewReceiptRepository(deps.DB)

	attachmentSvc := attachmentService.NewAttachmentService(attachmentRepo.NewAttachmentRepository(deps.DB), deps.Blob, logger.WithComponent("attachment"))
	attachmentHandler := attachmentHttp.NewAttachmentHandler(attachmentSvc)

	// Notification Module
	dispatcher := notifService.NewDispatcher(comments, users, notifications, broker, logger.WithComponent("dispatch"))
	worker := notifService.NewDispatchWorker(dispatcher, deps.Redis, cfg.DispatchWorkers, logger.WithComponent("dispatch"))
	notificationHandler := notiHttp.NewNotificationHandler(notifService.NewNotificationService(notifications))

	commentSvc := commentService.NewCommentService(comments, users, worker, enforcer, broker, deps.Blob, logger.WithComponent("comment"))
	commentHandler := commentHttp.NewCommentHandler(commentSvc)

	receiptSvc := receiptService.NewReceiptService(receipts, comments, deps.Redis, logger.WithComponent("receipt"))
	receiptHandler := receiptHttp.NewReceiptHandler(receiptSvc)

	ticketHandler := ticketHttp.NewTicketHandler(ticketService.NewTicketService(comments, receipts, users))

	wsHandler := ws.NewHandler(broker, logger.WithComponent("ws"), originChecker(cfg.AllowedOrigins))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	setupCORS(router, cfg.AllowedOrigins)

	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/api/ws/notifications", "/healthz"},
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authMiddleware := middleware.NewAuthMiddleware(users, cfg.JWTSecret)

	api := router.Group("/api")
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth(), authMiddleware.RequireStaff())
	{
		// Case comment routes
		protected.GET("/cases/:case_type/:case_id/comments", commentHandler.ListComments)
		protected.POST("/cases/:case_type/:case_id/comments", commentHandler.CreateComment)
		protected.GET("/cases/:case_type/:case_id/tickets", ticketHandler.ListCaseTickets)

		protected.PUT("/comments/:id", commentHandler.UpdateComment)
		protected.DELETE("/comments/:id", commentHandler.DeleteComment)
		protected.PUT("/comments/:id/status", commentHandler.SetStatus)
		protected.POST("/comments/:id/attachments", commentHandler.AddAttachments)
		protected.POST("/comments/read", receiptHandler.MarkRead)
		protected.GET("/comments/:id/receipts", receiptHandler.GetReceipts)

		protected.GET("/tickets", ticketHandler.ListMyTickets)

		// Notification routes
		protected.GET("/notifications", notificationHandler.GetNotifications)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/:id/read", notificationHandler.MarkAsRead)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)

		protected.POST("/upload", attachmentHandler.UploadAttachment)

		// Websockets
		protected.GET("/ws/cases/:case_id", wsHandler.CaseStream)
		protected.GET("/ws/notifications", wsHandler.NotificationStream)
	}

	return &Server{
		engine:        router,
		cfg:           cfg,
		logger:        log,
		worker:        worker,
		attachmentSvc: attachmentSvc,
		receiptSvc:    receiptSvc,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// StartBackground starts the dispatch worker, its recovery loop and the orphan
// attachment cleanup. All of them stop when ctx ends; the returned channel
// closes once the worker has drained.
func (s *Server) StartBackground(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.worker.Run(ctx)
	}()

	if n, err := s.worker.RecoverPending(ctx); err != nil {
		s.logger.Error("initial dispatch recovery failed", "error", err)
	} else if n > 0 {
		s.logger.Info("re-queued pending dispatches", "count", n)
	}
	s.worker.StartRecoveryLoop(ctx, s.cfg.DispatchRecoveryInterval)

	go s.cleanupLoop(ctx)
	return done
}

func (s *Server) cleanupLoop(ctx context.Context) {
	if s.cfg.OrphanCleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.OrphanCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Info("running orphan attachment cleanup")
			if err := s.attachmentSvc.CleanupOrphanAttachments(ctx); err != nil {
				s.logger.Error("orphan attachment cleanup failed", "error", err)
			}
		}
	}
}

// Run serves HTTP until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	workerDone := s.StartBackground(bgCtx)

	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", "error", err)
	}

	s.receiptSvc.Wait()
	stopBackground()
	<-workerDone

	s.logger.Info("server stopped")
	return runErr
}

func originChecker(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}

func setupCORS(router *gin.Engine, origins []string) {
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
