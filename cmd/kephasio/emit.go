package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/kephasio"
	"github.com/luciancaetano/kephasio/internal/config"
)

func emitCmd(flags *globalFlags) *cobra.Command {
	var (
		waitAck bool
		raw     bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "emit NAME [ARG...]",
		Short: "Send one event",
		Long: `Connect, send one event and disconnect.

Arguments that parse as JSON are sent as JSON values, anything else
as a string. With --raw the single argument is sent verbatim as a
pre-framed packet.

Examples:
  kephasio emit greet '"bob"' 42
  kephasio emit -e /chat message hello --ack
  kephasio emit --raw '3:::hello'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if raw {
				return runRaw(ctx, cfg, args[0])
			}
			return runEmit(ctx, cfg, args[0], parseArgs(args[1:]), waitAck)
		},
	}

	cmd.Flags().BoolVarP(&waitAck, "ack", "a", false, "Request an acknowledgment and wait for it")
	cmd.Flags().BoolVar(&raw, "raw", false, "Send the argument verbatim as a pre-framed packet")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Overall timeout")

	return cmd
}

func runEmit(ctx context.Context, cfg *config.Config, name string, args []any, waitAck bool) error {
	s, err := connect(ctx, cfg, kephasio.MessageListener{})
	if err != nil {
		return err
	}
	defer s.Close()

	if !waitAck {
		return s.client.Emit(cfg.Server.Endpoint, name, args...)
	}

	acked := make(chan struct{}, 1)
	start := time.Now()
	if err := s.client.EmitWithAck(cfg.Server.Endpoint, name, func() { acked <- struct{}{} }, args...); err != nil {
		return err
	}

	select {
	case <-acked:
		fmt.Printf("acknowledged after %v\n", time.Since(start).Round(time.Millisecond))
		return nil
	case <-s.closed:
		return fmt.Errorf("connection closed before %q was acknowledged", name)
	case <-ctx.Done():
		return fmt.Errorf("waiting for ack of %q: %w", name, ctx.Err())
	}
}

func runRaw(ctx context.Context, cfg *config.Config, packet string) error {
	s, err := connect(ctx, cfg, kephasio.MessageListener{})
	if err != nil {
		return err
	}
	defer s.Close()

	return s.client.Send(packet)
}

// parseArgs keeps arguments that are valid JSON as raw JSON values.
func parseArgs(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if json.Valid([]byte(a)) {
			out[i] = json.RawMessage(a)
		} else {
			out[i] = a
		}
	}
	return out
}
