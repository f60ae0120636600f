package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/stream-lights-core/internal/color"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/config"
	"github.com/nerrad567/stream-lights-core/internal/metrics"
	"github.com/nerrad567/stream-lights-core/internal/twitch/eventsub"
	"github.com/nerrad567/stream-lights-core/internal/twitch/helix"
)

const (
	defaultCommandTimeout = 5 * time.Second

	maxBrightness = 100

	// unknownLamp is reported to sinks in place of a lamp that is not
	// configured, so viewer text never becomes a topic or tag value.
	unknownLamp = "unknown"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Gateway executes light commands by bridge device id.
type Gateway interface {
	TurnOn(ctx context.Context, id string) error
	TurnOff(ctx context.Context, id string) error
	SetColor(ctx context.Context, id, hex string) error
	SetBrightness(ctx context.Context, id string, percent float64) error
}

// Devices resolves a bridge device name to its id.
type Devices interface {
	Lookup(name string) (string, bool)
}

// ChatReplier posts a message to the channel's chat.
type ChatReplier interface {
	SendChatMessage(ctx context.Context, message string) error
}

// Options configures a Dispatcher.
type Options struct {
	// Resolver validates color input. Required.
	Resolver *color.Resolver

	// Gateway executes commands. Required.
	Gateway Gateway

	// Devices maps device names to bridge ids. Required.
	Devices Devices

	// Replier sends the corrective message for invalid colors. Optional.
	Replier ChatReplier

	// Rewards binds reward titles to lamp actions.
	Rewards []config.RewardConfig

	// Lamps maps logical lamps to device names.
	Lamps config.LampsConfig

	// Prefix is required in front of chat keywords when set.
	Prefix string

	// Sinks receive every executed or rejected action.
	Sinks []ActionSink

	// CommandTimeout bounds each device call and chat reply. Default: 5s.
	CommandTimeout time.Duration

	Clock  clockwork.Clock
	Logger Logger
}

// Dispatcher turns notifications into light commands.
//
// Every entry point funnels into one execution lock, so only one action is
// applied to the bridge at a time. HandleNotification runs on the session's
// receive goroutine and keeps EventSub actions in arrival order; MQTT and
// IRC commands queue on the same lock.
type Dispatcher struct {
	execMu sync.Mutex

	resolver *color.Resolver
	gateway  Gateway
	devices  Devices
	replier  ChatReplier
	rewards  map[string]config.RewardConfig
	lamps    map[string]string
	lamp     string
	prefix   string
	sinks    []ActionSink
	timeout  time.Duration
	clock    clockwork.Clock
	logger   Logger
}

// New creates a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Resolver == nil {
		return nil, errors.New("dispatch: color resolver is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("dispatch: gateway is required")
	}
	if opts.Devices == nil {
		return nil, errors.New("dispatch: device map is required")
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	rewards := make(map[string]config.RewardConfig, len(opts.Rewards))
	for _, r := range opts.Rewards {
		rewards[normalizeTitle(r.Title)] = r
	}
	lamps := make(map[string]string, len(opts.Lamps.Devices))
	for lamp, device := range opts.Lamps.Devices {
		lamps[strings.ToLower(lamp)] = device
	}

	return &Dispatcher{
		resolver: opts.Resolver,
		gateway:  opts.Gateway,
		devices:  opts.Devices,
		replier:  opts.Replier,
		rewards:  rewards,
		lamps:    lamps,
		lamp:     strings.ToLower(opts.Lamps.Default),
		prefix:   opts.Prefix,
		sinks:    opts.Sinks,
		timeout:  opts.CommandTimeout,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}, nil
}

// HandleNotification routes an EventSub notification by subscription type.
func (d *Dispatcher) HandleNotification(ctx context.Context, n eventsub.Notification) {
	switch n.SubscriptionType {
	case helix.TypeRewardRedemption:
		var p redemptionPayload
		if err := json.Unmarshal(n.Event, &p); err != nil {
			d.logWarn("dropping malformed redemption", "message_id", n.MessageID, "error", err)
			return
		}
		d.HandleRedemption(ctx, p.event())

	case helix.TypeChatMessage:
		var p chatPayload
		if err := json.Unmarshal(n.Event, &p); err != nil {
			d.logWarn("dropping malformed chat message", "message_id", n.MessageID, "error", err)
			return
		}
		cmd, ok := ParseCommand(p.Message.Text, d.prefix)
		if !ok {
			return
		}
		cmd.User = p.ChatterUserName
		d.HandleCommand(ctx, SourceChat, cmd)

	default:
		d.logWarn("unhandled subscription type", "type", n.SubscriptionType, "message_id", n.MessageID)
	}
}

// HandleRedemption executes the action bound to the reward title.
// Unknown titles are logged and dropped.
func (d *Dispatcher) HandleRedemption(ctx context.Context, ev RedemptionEvent) {
	reward, ok := d.rewards[normalizeTitle(ev.RewardTitle)]
	if !ok {
		d.logInfo("ignoring unrecognised reward", "title", ev.RewardTitle, "user", ev.UserName)
		return
	}

	d.execute(ctx, request{
		source: SourceReward,
		user:   ev.UserName,
		action: reward.Action,
		lamp:   reward.Lamp,
		value:  ev.Input,
	})
}

// HandleCommand executes a parsed chat command:
//
//	color <name|hex> [lamp]
//	power on|off [lamp]
//	brightness <0-100> [lamp]
//
// Unknown keywords and missing arguments are logged and dropped.
func (d *Dispatcher) HandleCommand(ctx context.Context, source string, cmd ChatCommand) {
	switch cmd.Keyword {
	case config.ActionColor, config.ActionPower, config.ActionBrightness:
	default:
		d.logDebug("ignoring unknown command", "keyword", cmd.Keyword, "source", source)
		return
	}
	if len(cmd.Args) == 0 {
		d.logInfo("ignoring command without argument", "keyword", cmd.Keyword, "source", source, "user", cmd.User)
		return
	}

	lamp := d.lamp
	if len(cmd.Args) > 1 {
		lamp = cmd.Args[1]
	}

	d.execute(ctx, request{
		source: source,
		user:   cmd.User,
		action: cmd.Keyword,
		lamp:   lamp,
		value:  cmd.Args[0],
	})
}

type request struct {
	source string
	user   string
	action string
	lamp   string
	value  string
}

func (d *Dispatcher) execute(ctx context.Context, req request) {
	d.execMu.Lock()
	defer d.execMu.Unlock()

	start := d.clock.Now()
	act := Action{
		CorrelationID: uuid.NewString(),
		Source:        req.source,
		User:          req.user,
		Action:        req.action,
		Lamp:          strings.ToLower(strings.TrimSpace(req.lamp)),
		Value:         strings.TrimSpace(req.value),
		At:            start,
	}

	err := d.apply(ctx, &act)
	act.Latency = d.clock.Since(start)
	if _, ok := d.lamps[act.Lamp]; !ok {
		act.Lamp = unknownLamp
	}

	switch {
	case err == nil:
		act.Outcome = OutcomeExecuted
		d.logInfo("audience action executed",
			"correlation_id", act.CorrelationID,
			"source", act.Source,
			"user", act.User,
			"action", act.Action,
			"lamp", act.Lamp,
			"value", act.Value,
		)
	case isRejection(err):
		act.Outcome = OutcomeRejected
		act.Error = err.Error()
		d.logInfo("audience action rejected",
			"correlation_id", act.CorrelationID,
			"source", act.Source,
			"user", act.User,
			"action", act.Action,
			"error", err,
		)
	default:
		act.Outcome = OutcomeFailed
		act.Error = err.Error()
		d.logError("audience action failed",
			"correlation_id", act.CorrelationID,
			"source", act.Source,
			"action", act.Action,
			"lamp", act.Lamp,
			"error", err,
		)
	}

	metrics.AudienceActions.WithLabelValues(act.Source, act.Action, act.Outcome).Inc()
	d.report(ctx, act)
}

func (d *Dispatcher) apply(ctx context.Context, act *Action) error {
	switch act.Action {
	case config.ActionColor:
		res := d.resolver.Resolve(act.Value)
		if !res.Valid {
			d.replyInvalidColor(ctx, act, res.Token)
			return fmt.Errorf("%w: %q", ErrInvalidColor, res.Token)
		}
		id, err := d.deviceID(act)
		if err != nil {
			return err
		}
		hex := strings.ToUpper(res.Hex)
		act.Value = hex
		return d.device(ctx, func(ctx context.Context) error {
			return d.gateway.SetColor(ctx, id, hex)
		})

	case config.ActionPower:
		on, err := parsePower(act.Value)
		if err != nil {
			return err
		}
		id, err := d.deviceID(act)
		if err != nil {
			return err
		}
		return d.device(ctx, func(ctx context.Context) error {
			if on {
				return d.gateway.TurnOn(ctx, id)
			}
			return d.gateway.TurnOff(ctx, id)
		})

	case config.ActionBrightness:
		percent, err := parseBrightness(act.Value)
		if err != nil {
			return err
		}
		id, err := d.deviceID(act)
		if err != nil {
			return err
		}
		return d.device(ctx, func(ctx context.Context) error {
			return d.gateway.SetBrightness(ctx, id, float64(percent))
		})

	default:
		return fmt.Errorf("%w: action %q", ErrInvalidArgument, act.Action)
	}
}

// deviceID resolves act.Lamp to a bridge id and records it on act.
func (d *Dispatcher) deviceID(act *Action) (string, error) {
	name, ok := d.lamps[act.Lamp]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLamp, act.Lamp)
	}
	id, ok := d.devices.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	act.DeviceID = id
	return id, nil
}

// device runs fn with a context that survives cancellation of ctx, so a
// command already sent to the bridge is not abandoned during shutdown.
func (d *Dispatcher) device(ctx context.Context, fn func(ctx context.Context) error) error {
	cmdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	return fn(cmdCtx)
}

// InvalidColorMessage is the corrective chat reply for an unknown color.
func InvalidColorMessage(user, token string) string {
	return fmt.Sprintf(`@%s "%s" is not a color I know. Try a name like red or a hex code like FF0000.`, user, token)
}

func (d *Dispatcher) replyInvalidColor(ctx context.Context, act *Action, token string) {
	if d.replier == nil || act.User == "" {
		return
	}
	err := d.device(ctx, func(ctx context.Context) error {
		return d.replier.SendChatMessage(ctx, InvalidColorMessage(act.User, token))
	})
	if err != nil {
		metrics.ChatReplies.WithLabelValues("failed").Inc()
		d.logWarn("corrective chat reply failed", "correlation_id", act.CorrelationID, "error", err)
		return
	}
	metrics.ChatReplies.WithLabelValues("sent").Inc()
}

func (d *Dispatcher) report(ctx context.Context, act Action) {
	if len(d.sinks) == 0 {
		return
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	for _, sink := range d.sinks {
		if err := sink.RecordAction(sinkCtx, act); err != nil {
			d.logWarn("action sink failed", "correlation_id", act.CorrelationID, "error", err)
		}
	}
}

func parsePower(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("%w: power %q (want on or off)", ErrInvalidArgument, v)
	}
}

func parseBrightness(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
	if err != nil || n < 0 || n > maxBrightness {
		return 0, fmt.Errorf("%w: brightness %q (want 0-100)", ErrInvalidArgument, v)
	}
	return n, nil
}

func (d *Dispatcher) logDebug(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logInfo(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logWarn(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logError(msg string, keysAndValues ...any) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
