package server

import (
	"log/slog"

	"movetracker/internal/auth"
	"movetracker/internal/config"
	"movetracker/internal/db"
	"movetracker/internal/platform/metrics"
	"movetracker/internal/roster"
	"movetracker/internal/stream"
	"movetracker/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      db.TxQuerier
	Redis   *redis.Client
	Stream  *stream.Hub
	Mirror  *stream.MQTTMirror
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

func NewServer(cfg config.Config, database db.TxQuerier, redisClient *redis.Client, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	m := metrics.New()
	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      database,
		Redis:   redisClient,
		Stream:  stream.NewHub(redisClient, log, m),
		Metrics: m,
		Log:     log,
	}

	if cfg.MQTTBroker != "" {
		mirror, err := stream.DialMQTT(cfg.MQTTBroker, "movetracker-"+uuid.NewString(), cfg.MQTTTopicPrefix, log, m)
		if err != nil {
			log.Error("mqtt mirror disabled", "error", err)
		} else {
			s.Mirror = mirror
		}
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(s.Metrics.Handler(func() {
		s.Metrics.SetStreamClients(s.Stream.ClientCount())
	})))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	publishers := tracking.Publishers{s.Stream}
	if s.Mirror != nil {
		publishers = append(publishers, s.Mirror)
	}
	tracking.RegisterRoutes(s.App.Group("/tracking"), tracking.NewService(s.DB, publishers, s.Log, s.Metrics), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, stream.DefaultKeepalive)

	if s.Cfg.AdminToken != "" {
		roster.RegisterRoutes(s.App.Group("/roster"), roster.NewService(s.DB, auth.NewIssuer(s.Cfg.JWTSecret)), auth.AdminMiddleware(s.Cfg.AdminToken))
	}
}
