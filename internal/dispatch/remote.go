package dispatch

import (
	"context"
	"fmt"
)

// HandleRemoteCommand executes a command received for lamp over MQTT.
// text uses the chat syntax without the prefix, e.g. "color red" or
// "power off". The lamp from the topic overrides any lamp in text.
//
// It returns an error only when text is not a command, so the MQTT client
// logs it; execution outcomes are reported to the sinks as usual.
func (d *Dispatcher) HandleRemoteCommand(ctx context.Context, lamp, text string) error {
	cmd, ok := ParseCommand(text, "")
	if !ok {
		return fmt.Errorf("%w: empty command for lamp %q", ErrInvalidArgument, lamp)
	}
	if len(cmd.Args) == 0 {
		return fmt.Errorf("%w: %s needs an argument", ErrInvalidArgument, cmd.Keyword)
	}

	cmd.Args = []string{cmd.Args[0], lamp}
	d.HandleCommand(ctx, SourceMQTT, cmd)
	return nil
}
