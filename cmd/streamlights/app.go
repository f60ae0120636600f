package main

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/nerrad567/stream-lights-core/internal/api"
	"github.com/nerrad567/stream-lights-core/internal/audit"
	"github.com/nerrad567/stream-lights-core/internal/bridges/hue"
	"github.com/nerrad567/stream-lights-core/internal/color"
	"github.com/nerrad567/stream-lights-core/internal/dispatch"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/config"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/database"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/logging"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/stream-lights-core/internal/settings"
	"github.com/nerrad567/stream-lights-core/internal/status"
	"github.com/nerrad567/stream-lights-core/internal/twitch/eventsub"
	"github.com/nerrad567/stream-lights-core/internal/twitch/helix"
	"github.com/nerrad567/stream-lights-core/internal/twitch/irc"
	"github.com/nerrad567/stream-lights-core/migrations"
)

const registrationHTTPTimeout = 10 * time.Second

// app holds the running components. close releases them in reverse order
// of creation.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	tracker *status.Tracker

	db     *database.DB
	mqtt   *mqtt.Client
	influx *influxdb.Client
	health *status.HealthReporter

	tokens     oauth2.TokenSource
	dispatcher *dispatch.Dispatcher
	subs       *helix.SubscriptionManager
	ircSource  *irc.Source

	session atomic.Pointer[eventsub.Session]
	closers []func()
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// start opens storage and optional sinks, registers with the bridge, and
// builds the dispatcher. The EventSub session is opened by serve.
func start(ctx context.Context, cfg *config.Config, log *logging.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, tracker: status.NewTracker(version, nil)}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if err := a.openDatabase(ctx); err != nil {
		return nil, err
	}
	store := settings.NewSQLiteStore(a.db.DB)
	commands := audit.NewSQLiteRepository(a.db.DB)

	if err := a.connectMQTT(); err != nil {
		return nil, err
	}
	if err := a.connectInflux(); err != nil {
		return nil, err
	}
	if err := a.startAPI(ctx, commands); err != nil {
		return nil, err
	}
	a.startHealth(ctx)

	reg, err := a.registerBridge(ctx, store)
	if err != nil {
		return nil, err
	}

	hueClient, err := hue.NewClient(hue.ClientOptions{
		Registration:   reg,
		InsecureTLS:    cfg.Hue.InsecureTLS,
		RateLimit:      cfg.Hue.RateLimit,
		RateBurst:      cfg.Hue.RateBurst,
		CommandTimeout: time.Duration(cfg.Hue.CommandTimeout) * time.Second,
		MaxFailures:    cfg.Hue.Breaker.MaxFailures,
		OpenTimeout:    time.Duration(cfg.Hue.Breaker.OpenTimeout) * time.Second,
		Logger:         log.Component("hue"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating hue client: %w", err)
	}
	a.tracker.SetBreaker(func() string { return hueClient.BreakerState().String() })

	devices, err := hue.LoadDeviceNameMap(ctx, hueClient, log.Component("hue"))
	if err != nil {
		return nil, fmt.Errorf("loading bridge lights: %w", err)
	}
	a.tracker.SetDeviceCount(devices.Len())
	for lamp, name := range cfg.Lamps.Devices {
		if _, ok := devices.Lookup(name); !ok {
			log.Warn("lamp device not found on bridge", "lamp", lamp, "device", name)
		}
	}

	palette := color.DefaultPalette()
	if cfg.Colors.File != "" {
		if palette, err = color.LoadFile(cfg.Colors.File, palette); err != nil {
			return nil, fmt.Errorf("loading colors: %w", err)
		}
		log.Info("color palette loaded", "file", cfg.Colors.File, "colors", palette.Len())
	}

	chat, err := a.connectHelix(ctx, store)
	if err != nil {
		return nil, err
	}

	sinks := []dispatch.ActionSink{dispatch.NewAuditSink(commands)}
	if a.mqtt != nil {
		sinks = append(sinks, dispatch.NewMQTTSink(a.mqtt, byte(cfg.MQTT.QoS)))
	}
	if a.influx != nil {
		sinks = append(sinks, dispatch.NewInfluxSink(a.influx))
	}

	a.dispatcher, err = dispatch.New(dispatch.Options{
		Resolver: color.NewResolver(palette),
		Gateway:  hueClient,
		Devices:  devices,
		Replier:  chat,
		Rewards:  cfg.Rewards,
		Lamps:    cfg.Lamps,
		Prefix:   cfg.Chat.Prefix,
		Sinks:    sinks,
		Logger:   log.Component("dispatch"),

		CommandTimeout: time.Duration(cfg.Hue.CommandTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	if a.mqtt != nil {
		if err := a.mqtt.SubscribeCommands(func(lamp, text string) error {
			return a.dispatcher.HandleRemoteCommand(ctx, lamp, text)
		}); err != nil {
			return nil, fmt.Errorf("subscribing to MQTT commands: %w", err)
		}
	}

	if err := a.setupIRC(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openDatabase(ctx context.Context) error {
	db, err := database.Open(a.cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	a.onClose(func() {
		a.log.Info("closing database")
		if err := db.Close(); err != nil {
			a.log.Error("error closing database", "error", err)
		}
	})

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	a.log.Info("database ready", "path", db.Path())
	return nil
}

func (a *app) connectMQTT() error {
	if !a.cfg.MQTT.Enabled {
		a.log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.mqtt = client
	a.onClose(func() {
		a.log.Info("disconnecting from MQTT")
		if err := client.Close(); err != nil {
			a.log.Error("error closing MQTT", "error", err)
		}
	})

	client.SetLogger(a.log.Component("mqtt"))
	client.SetOnConnect(func() { a.log.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { a.log.Warn("MQTT disconnected", "error", err) })
	a.tracker.SetMQTT(client)

	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
		"client_id", a.cfg.MQTT.Broker.ClientID,
	)
	return nil
}

func (a *app) connectInflux() error {
	if !a.cfg.InfluxDB.Enabled {
		a.log.Info("InfluxDB disabled")
		return nil
	}

	client, err := influxdb.Connect(a.cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	a.influx = client
	a.onClose(func() {
		a.log.Info("closing InfluxDB connection")
		if err := client.Close(); err != nil {
			a.log.Error("error closing InfluxDB", "error", err)
		}
	})
	client.SetOnError(func(err error) {
		a.log.Error("InfluxDB write error", "error", err)
	})

	a.log.Info("InfluxDB connected",
		"url", a.cfg.InfluxDB.URL,
		"org", a.cfg.InfluxDB.Org,
		"bucket", a.cfg.InfluxDB.Bucket,
	)
	return nil
}

func (a *app) startAPI(ctx context.Context, commands audit.Repository) error {
	if !a.cfg.API.Enabled {
		return nil
	}

	checks := map[string]api.HealthChecker{"database": a.db}
	if a.mqtt != nil {
		checks["mqtt"] = a.mqtt
	}
	if a.influx != nil {
		checks["influxdb"] = a.influx
	}

	srv, err := api.New(api.Deps{
		Config:   a.cfg.API,
		Logger:   a.log.Component("api"),
		Tracker:  a.tracker,
		Commands: commands,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	a.onClose(func() {
		if err := srv.Close(); err != nil {
			a.log.Error("error closing API server", "error", err)
		}
	})
	return nil
}

func (a *app) startHealth(ctx context.Context) {
	if a.mqtt == nil {
		return
	}
	a.health = status.NewHealthReporter(status.HealthReporterConfig{
		Tracker:   a.tracker,
		Publisher: a.mqtt,
		Topic:     mqtt.Topics{}.SystemHealth(),
	})
	a.health.SetLogger(a.log.Component("health"))
	a.health.Start(ctx)
	a.onClose(a.health.Stop)
}

// registerBridge runs the registration poller and waits for its completion
// signal. A credential from config or the settings store completes it
// immediately.
func (a *app) registerBridge(ctx context.Context, store settings.Store) (hue.AppRegistration, error) {
	rc := a.cfg.Registration
	poller, err := hue.NewRegistrationPoller(hue.PollerOptions{
		Registrar: hue.NewLinkButtonRegistrar(
			&http.Client{Timeout: registrationHTTPTimeout},
			a.cfg.Hue.AppName,
			a.cfg.Hue.DeviceName,
		),
		BridgeAddress: a.cfg.Hue.BridgeIP,
		Known: hue.AppRegistration{
			AppKey:        a.cfg.Hue.AppKey,
			ClientKey:     a.cfg.Hue.ClientKey,
			BridgeAddress: a.cfg.Hue.BridgeIP,
		},
		Store:            store,
		Interval:         time.Duration(rc.Interval) * time.Second,
		MaxInterval:      time.Duration(rc.MaxInterval) * time.Second,
		MaxDuration:      time.Duration(rc.MaxDuration) * time.Second,
		Backoff:          rc.Backoff,
		RetryUnreachable: rc.RetryUnreachable,
		Logger:           a.log.Component("registration"),
	})
	if err != nil {
		return hue.AppRegistration{}, fmt.Errorf("creating registration poller: %w", err)
	}

	a.tracker.SetRegistration(hue.StatePolling)
	go poller.Run(ctx) //nolint:errcheck // outcome is read from Result

	select {
	case <-poller.Done():
	case <-ctx.Done():
		<-poller.Done()
	}
	a.tracker.SetRegistration(poller.State())

	reg, err := poller.Result()
	if err != nil {
		return hue.AppRegistration{}, fmt.Errorf("registering with bridge: %w", err)
	}
	return reg, nil
}

func (a *app) connectHelix(ctx context.Context, store settings.Store) (*helix.ChatSender, error) {
	tc := a.cfg.Twitch
	logger := a.log.Component("helix")

	tokens, err := helix.NewTokenSource(ctx, tc, store, logger)
	if err != nil {
		return nil, fmt.Errorf("creating token source: %w", err)
	}
	a.tokens = tokens

	client, err := helix.NewClient(ctx, helix.ClientOptions{
		ClientID:    tc.ClientID,
		TokenSource: tokens,
		BaseURL:     tc.HelixURL,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating helix client: %w", err)
	}

	a.subs, err = helix.NewSubscriptionManager(client, helix.SubscriptionManagerOptions{
		BroadcasterID: tc.BroadcasterID,
		UserID:        tc.BotUserID,
		Chat:          tc.SubscribeChat,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating subscription manager: %w", err)
	}

	chat, err := helix.NewChatSender(client, tc.BroadcasterID, tc.BotUserID)
	if err != nil {
		return nil, fmt.Errorf("creating chat sender: %w", err)
	}
	return chat, nil
}

// setupIRC creates the optional IRC source. It is skipped when chat
// already arrives through EventSub, so commands are not executed twice.
func (a *app) setupIRC() error {
	ic := a.cfg.Twitch.IRC
	if !ic.Enabled {
		return nil
	}
	if a.cfg.Twitch.SubscribeChat {
		a.log.Warn("IRC source disabled: twitch.subscribe_chat already delivers chat commands")
		return nil
	}

	src, err := irc.New(irc.Options{
		Username:    ic.Username,
		Channel:     ic.Channel,
		Prefix:      a.cfg.Chat.Prefix,
		TokenSource: a.tokens,
		Handler:     a.dispatcher,
		Logger:      a.log.Component("irc"),
	})
	if err != nil {
		return fmt.Errorf("creating IRC source: %w", err)
	}
	a.ircSource = src
	return nil
}

// serve opens the EventSub session and runs it, together with the IRC
// source when enabled, until one of them ends.
func (a *app) serve(ctx context.Context) error {
	session, err := eventsub.Connect(ctx, a.cfg.Twitch.EventSubURL,
		eventsub.Credentials{ClientID: a.cfg.Twitch.ClientID, TokenSource: a.tokens},
		eventsub.Options{
			Handler:                a.dispatcher,
			Subscriber:             a.subs,
			ResubscribeOnReconnect: a.cfg.Twitch.ResubscribeOnReconnect,
			KeepaliveGrace:         time.Duration(a.cfg.Session.KeepaliveGrace) * time.Second,
			MaxMessageSize:         a.cfg.Session.MaxMessageSize,
			DedupSize:              a.cfg.Session.DedupSize,
			OnStateChange:          a.onSessionState,
			Logger:                 a.log.Component("eventsub"),
		},
	)
	if err != nil {
		return fmt.Errorf("connecting to EventSub: %w", err)
	}
	a.session.Store(session)
	a.onClose(func() {
		if err := session.Close(); err != nil {
			a.log.Warn("error closing EventSub session", "error", err)
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		if err := session.Run(runCtx); err != nil {
			errCh <- fmt.Errorf("eventsub session: %w", err)
			return
		}
		a.log.Info("EventSub session closed by remote")
		errCh <- nil
	}()
	running := 1
	if a.ircSource != nil {
		running++
		go func() {
			errCh <- a.ircSource.Run(runCtx)
		}()
	}

	// The first source to finish stops the other.
	err = <-errCh
	cancel()
	for running--; running > 0; running-- {
		<-errCh
	}
	return err
}

// onSessionState mirrors every session transition to the tracker, MQTT and
// InfluxDB.
func (a *app) onSessionState(st eventsub.State) {
	var sessionID string
	if s := a.session.Load(); s != nil {
		sessionID = s.SessionID()
	}
	a.tracker.SetSession(st, sessionID)

	if a.mqtt != nil {
		if err := a.mqtt.PublishSessionState(st.String(), sessionID); err != nil {
			a.log.Warn("failed to publish session state", "state", st.String(), "error", err)
		}
	}
	if a.influx != nil {
		a.influx.WriteSessionState(st.String(), time.Now())
	}
}
