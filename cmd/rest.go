package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/wafilter/wafilter/config"
	domainEvents "github.com/wafilter/wafilter/domains/events"
	"github.com/wafilter/wafilter/engine"
	"github.com/wafilter/wafilter/infrastructure/notify"
	"github.com/wafilter/wafilter/infrastructure/storage"
	"github.com/wafilter/wafilter/infrastructure/webhook"
	"github.com/wafilter/wafilter/infrastructure/whatsapp"
	"github.com/wafilter/wafilter/pkg/ipfilter"
	"github.com/wafilter/wafilter/pkg/msgworker"
	"github.com/wafilter/wafilter/ui/rest"
	"github.com/wafilter/wafilter/ui/rest/middleware"
	"github.com/wafilter/wafilter/ui/websocket"
	"github.com/wafilter/wafilter/usecase"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Start the filtering gateway and its HTTP API",
	Run:   restServer,
}

// Subsystems stopApp tears down in order once the HTTP server is gone.
var (
	configStore  *storage.ConfigStore
	statsStore   *storage.StatsStore
	messageStore *storage.MessageStore
	waAdapter    *whatsapp.Adapter

	eventCh    chan domainEvents.Envelope
	routerDone chan struct{}
	stopLoops  context.CancelFunc
)

func init() {
	restCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	// Override basic auth if flag is provided
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		config.AppBasicAuthCredential = strings.Split(baFlag, ",")
	}

	if len(config.AppBasicAuthCredential) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Nothing should be public; please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}
	account := make(map[string]string)
	for _, basicAuth := range config.AppBasicAuthCredential {
		ba := strings.Split(basicAuth, ":")
		if len(ba) != 2 {
			logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
		}
		account[ba[0]] = ba[1]
	}

	allowlist, err := ipfilter.Parse(config.AppIPAllowlist)
	if err != nil {
		logrus.Fatalln("APP_IP_ALLOWLIST is not valid: ", err.Error())
	}

	ctx := context.Background()

	// Durable state
	configStore = storage.NewConfigStore(filepath.Join(config.PathStorages, "contacts.json"))
	if err := configStore.Load(); err != nil {
		logrus.Fatalln("Failed to load routing config: ", err.Error())
	}
	statsStore = storage.NewStatsStore(filepath.Join(config.PathStorages, "stats.json"), config.RecentEventsLimit)
	if err := statsStore.Load(); err != nil {
		logrus.Fatalln("Failed to load stats: ", err.Error())
	}
	messageStore = storage.NewMessageStore(filepath.Join(config.PathStorages, "messages.json"), config.MessagesPerSource, config.MessagesTotalLimit)
	if err := messageStore.Load(); err != nil {
		logrus.Fatalln("Failed to load message history: ", err.Error())
	}
	mediaStore := storage.NewMediaStore(
		filepath.Join(config.PathStorages, "media"),
		filepath.Join(config.PathStorages, "media_index.json"),
		config.MediaMaxBytes, config.MediaMaxFiles,
	)
	if err := mediaStore.Load(); err != nil {
		logrus.Fatalln("Failed to load media index: ", err.Error())
	}

	// A gateway with no client and nowhere to deliver would only shrug at
	// every event; refuse to start like that.
	if !config.WhatsappClientEnabled {
		if defaultURL, _ := configStore.DefaultWebhook(); defaultURL == "" && len(configStore.TypeRoutes()) == 0 {
			logrus.Fatalln("WHATSAPP_CLIENT_ENABLED=false and no webhook destination configured; set WEBHOOK_URL or add a type route first.")
		}
	}

	// Delivery and alerting
	notifier := notify.NewNotifier(config.AlertWebhookURL, config.SlackWebhookURL, config.AppInstanceName, statsStore)
	dispatcher := webhook.NewDispatcher(configStore, config.AppInstanceName)
	hub := websocket.NewPublisher()

	// Engine
	tracker := engine.NewConnectionTracker(statsStore, notifier, hub)
	mentions := engine.NewMentionDetector(config.MentionKeywords, messageStore)

	eventCh = make(chan domainEvents.Envelope, 512)
	loopCtx, cancel := context.WithCancel(ctx)
	stopLoops = cancel

	if config.WhatsappClientEnabled {
		pool := msgworker.NewPool(config.MessageWorkerPoolSize, config.MessageWorkerQueueSize)
		pool.Start(loopCtx)

		waAdapter, err = whatsapp.New(ctx, whatsapp.Deps{
			Out:      eventCh,
			Pool:     pool,
			Media:    mediaStore,
			Messages: messageStore,
			Self:     tracker,
			Alerts:   notifier,
		})
		if err != nil {
			logrus.Fatalln("Failed to init whatsapp client: ", err.Error())
		}
	} else {
		logrus.Info("[APP] whatsapp client disabled, running in ingress-only mode")
	}

	var lids engine.LIDResolver
	if waAdapter != nil {
		lids = waAdapter
	}
	messageHandler := engine.NewMessageHandler(engine.MessageHandlerDeps{
		Config:    configStore,
		Stats:     statsStore,
		Messages:  messageStore,
		Forwarder: dispatcher,
		Notifier:  notifier,
		Mentions:  mentions,
		LIDs:      lids,
		Self:      tracker,
		Publisher: hub,
	})
	router := engine.NewRouter(messageHandler, tracker, statsStore, hub)

	routerDone = make(chan struct{})
	go func() {
		router.Run(eventCh)
		close(routerDone)
	}()

	go statsStore.RunAutosave(loopCtx, 5*time.Minute)
	go messageStore.RunFlush(loopCtx, time.Minute)

	if waAdapter != nil {
		if err := waAdapter.Start(ctx); err != nil {
			// Reconnect logic owns recovery from here; the gateway still
			// serves its API and ingress meanwhile.
			logrus.Errorf("[APP] whatsapp connect failed: %v", err)
		}
	}

	// Usecases over the shared state
	routingUsecase := usecase.NewRoutingService(configStore)
	statsUsecase := usecase.NewStatsService(statsStore)
	historyUsecase := usecase.NewHistoryService(messageStore, mediaStore)

	var clientControl usecase.ClientControl
	var messageSender usecase.MessageSender
	if waAdapter != nil {
		clientControl = waAdapter
		messageSender = waAdapter
	}
	connectionUsecase := usecase.NewConnectionService(tracker, clientControl)
	sendUsecase := usecase.NewSendService(messageSender)

	app := fiber.New(fiber.Config{
		AppName:               "wafilter " + config.AppVersion,
		DisableStartupMessage: false,
		Network:               "tcp",
		BodyLimit:             50 * 1024 * 1024,
	})

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(helmet.New())
	app.Use(middleware.IPAllowlist(allowlist))
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))
	if config.AppDebug {
		app.Use(logger.New())
	}

	// Public surface: liveness probe and the event ingress. Upstream
	// bridges authenticate by address, not by credentials.
	publicGroup := app.Group(config.AppBasePath)
	rest.InitRestHealth(publicGroup)
	rest.InitRestFilter(publicGroup, router, configStore)

	// Create API group
	apiGroup := app.Group(config.AppBasePath + "/api")

	// Apply BasicAuth ONLY to the API group
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: account,
		Next: func(c *fiber.Ctx) bool {
			// Allow CORS preflight without credentials.
			return c.Method() == fiber.MethodOptions
		},
	}))

	rest.InitRestRouting(apiGroup, routingUsecase)
	rest.InitRestWebhook(apiGroup, routingUsecase, dispatcher)
	rest.InitRestStats(apiGroup, statsUsecase)
	rest.InitRestHistory(apiGroup, historyUsecase)
	rest.InitRestConnection(apiGroup, connectionUsecase)
	rest.InitRestSend(apiGroup, sendUsecase)

	// Websocket
	websocket.RegisterRoutes(apiGroup)
	go websocket.RunHub()

	// 404 Handler ONLY for API group
	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	// Boot marker lands in the recent ring before the first real event.
	startupPayload, _ := json.Marshal(map[string]string{
		"version":  config.AppVersion,
		"instance": config.AppInstanceName,
	})
	router.Route(ctx, domainEvents.Envelope{
		Kind:     domainEvents.ApplicationStartup,
		Data:     startupPayload,
		Origin:   domainEvents.OriginIngress,
		Received: time.Now().UTC(),
	})
	notifier.Send(ctx, notify.StartupAlert(config.AppVersion))

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + config.AppPort); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}

	stopApp()
}

// stopApp drains and persists everything once the HTTP server is down:
// close the adapter (which closes the envelope channel), let the router
// finish the queue, stop the periodic loops, then write all stores.
func stopApp() {
	logrus.Info("[APP] Stopping application...")

	if waAdapter != nil {
		waAdapter.Close()
	} else if eventCh != nil {
		close(eventCh)
	}
	if routerDone != nil {
		<-routerDone
	}
	if stopLoops != nil {
		stopLoops()
	}

	if err := configStore.Save(); err != nil {
		logrus.Errorf("[APP] final config save failed: %v", err)
	}
	if err := statsStore.Save(); err != nil {
		logrus.Errorf("[APP] final stats save failed: %v", err)
	}
	if err := messageStore.Save(); err != nil {
		logrus.Errorf("[APP] final message flush failed: %v", err)
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
