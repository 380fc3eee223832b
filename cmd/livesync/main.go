package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/database"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/handlers"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/notify"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/service"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/session"
	"github.com/anuragpargaonkar/Bid-Application-sub000/internal/transport"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/config"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
	"github.com/google/uuid"
)

func main() {
	if err := config.Load(); err != nil {
		fmt.Printf("Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	log := slog.With("component", "main")
	log.Info("starting livesync", "feed", cfg.FeedMode, "api", cfg.APIBaseURL)

	api := transport.NewAPI(transport.APIConfig{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.APITimeout,
	})

	feed, err := buildFeed(cfg, api)
	if err != nil {
		log.Error("invalid feed configuration", "error", err)
		os.Exit(1)
	}
	var fallback transport.Feed
	if feed.Name() != transport.FeedPolling {
		fallback = transport.NewPollingFeed(api, cfg.PollInterval)
	}

	engineCfg := service.Config{
		API:        api,
		Feed:       feed,
		Fallback:   fallback,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}

	log.Info("connecting to Redis session store", "addr", cfg.RedisAddr)
	store, err := session.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionPrefix)
	if err != nil {
		log.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	engineCfg.Session = store

	if cfg.PostgresURL != "" {
		log.Info("connecting to PostgreSQL")
		db, err := database.NewPostgresClient(cfg.PostgresURL)
		if err != nil {
			log.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.InitSchema(ctx)
		cancel()
		if err != nil {
			log.Error("failed to initialize schema", "error", err)
			os.Exit(1)
		}
		engineCfg.Archive = db
	}

	var publisher *notify.Publisher
	if cfg.NotifyNatsURL != "" {
		log.Info("connecting to NATS for bid notifications", "url", cfg.NotifyNatsURL)
		publisher, err = notify.NewPublisher(cfg.NotifyNatsURL, cfg.NotifyDurable)
		if err != nil {
			log.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		engineCfg.Notifier = publisher
	}

	engine := service.New(engineCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	if publisher != nil && engineCfg.Archive != nil {
		// bids placed from the user's other sessions land in the same history
		archive := engineCfg.Archive
		err := publisher.SubscribeBids(ctx, func(event models.BidEvent) {
			dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if _, err := archive.InsertBid(dbCtx, &event); err != nil {
				log.Warn("failed to persist bid event", "event", event.EventID, "error", err)
			}
		})
		if err != nil {
			log.Warn("bid history sync disabled", "error", err)
		}
	}

	if cfg.AutoConnect {
		if err := engine.ConnectWebSocket(ctx, ""); err != nil {
			// the reconnect policy keeps trying; screens read the status
			log.Warn("initial connect failed", "error", err)
		}
	}

	router := handlers.NewHandler(engine).SetupRoutes()
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("local API listening", "addr", cfg.ServerAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	engine.Stop()

	log.Info("stopped gracefully")
}

// Config holds application configuration
type Config struct {
	ServerAddr    string
	LogLevel      string
	APIBaseURL    string
	APITimeout    time.Duration
	FeedMode      string // polling, nats, redis, websocket or pubnub
	PollInterval  time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	AutoConnect   bool
	NatsURL       string
	WebSocketURL  string
	PubNubSubKey  string
	PubNubChannel string
	PubNubUserID  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionPrefix string
	PostgresURL   string
	NotifyNatsURL string
	NotifyDurable bool
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	return &Config{
		ServerAddr:    config.GetEnv("SERVER_ADDR", "127.0.0.1:8088"),
		LogLevel:      config.GetEnv("LOG_LEVEL", "info"),
		APIBaseURL:    config.GetEnv("API_BASE_URL", "http://localhost:8080"),
		APITimeout:    config.GetEnvDuration("API_TIMEOUT", 10*time.Second),
		FeedMode:      strings.ToLower(config.GetEnv("FEED_MODE", transport.FeedPolling)),
		PollInterval:  config.GetEnvDuration("POLL_INTERVAL", 5*time.Second),
		MaxRetries:    config.GetEnvInt("RECONNECT_MAX_RETRIES", 3),
		RetryDelay:    config.GetEnvDuration("RECONNECT_DELAY", 3*time.Second),
		AutoConnect:   config.GetEnvBool("AUTO_CONNECT", true),
		NatsURL:       config.GetEnv("NATS_URL", "nats://localhost:4222"),
		WebSocketURL:  config.GetEnv("WS_URL", "ws://localhost:8081/ws"),
		PubNubSubKey:  config.GetEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubChannel: config.GetEnv("PUBNUB_CHANNEL", "auction-live"),
		PubNubUserID:  config.GetEnv("PUBNUB_USER_ID", ""),
		RedisAddr:     config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       config.GetEnvInt("REDIS_DB", 0),
		SessionPrefix: config.GetEnv("SESSION_PREFIX", "livesync"),
		PostgresURL:   config.GetEnv("POSTGRES_URL", ""),
		NotifyNatsURL: config.GetEnv("NOTIFY_NATS_URL", ""),
		NotifyDurable: config.GetEnvBool("NOTIFY_DURABLE", false),
	}
}

func buildFeed(cfg *Config, api *transport.API) (transport.Feed, error) {
	switch cfg.FeedMode {
	case transport.FeedPolling:
		return transport.NewPollingFeed(api, cfg.PollInterval), nil
	case transport.FeedNATS:
		return transport.NewNATSFeed(cfg.NatsURL), nil
	case transport.FeedRedis:
		return transport.NewRedisFeed(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	case transport.FeedWebSocket:
		return transport.NewWebSocketFeed(cfg.WebSocketURL), nil
	case transport.FeedPubNub:
		if cfg.PubNubSubKey == "" {
			return nil, fmt.Errorf("PUBNUB_SUBSCRIBE_KEY is required for the pubnub feed")
		}
		userID := cfg.PubNubUserID
		if userID == "" {
			userID = "livesync-" + uuid.NewString()
		}
		return transport.NewPubNubFeed(transport.PubNubConfig{
			SubscribeKey: cfg.PubNubSubKey,
			UserID:       userID,
			Channel:      cfg.PubNubChannel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown FEED_MODE %q", cfg.FeedMode)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
