package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/kephasio"
	"github.com/luciancaetano/kephasio/internal/config"
)

func listenCmd(flags *globalFlags) *cobra.Command {
	var ackReply string

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print incoming packets until interrupted",
		Long: `Connect to a socket.io 0.9 server and print every message, JSON
message, event and error it sends.

Packets that request an acknowledgment are answered with --ack-reply
when it is set.

Examples:
  kephasio listen --url ws://localhost:8080
  kephasio listen -e /chat --ack-reply ok`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runListen(ctx, cfg, ackReply)
		},
	}

	cmd.Flags().StringVar(&ackReply, "ack-reply", "", "Reply sent to packets that request an acknowledgment")

	return cmd
}

func runListen(ctx context.Context, cfg *config.Config, ackReply string) error {
	reply := func(ack kephasio.Responder) {
		if ack != nil && ackReply != "" {
			ack.Respond(ackReply)
		}
	}

	s, err := connect(ctx, cfg, kephasio.MessageListener{
		OnMessage: func(endpoint, data string, ack kephasio.Responder) {
			fmt.Printf("message %s %s\n", endpointName(endpoint), data)
			reply(ack)
		},
		OnJSON: func(endpoint string, data json.RawMessage, ack kephasio.Responder) {
			fmt.Printf("json    %s %s\n", endpointName(endpoint), data)
			reply(ack)
		},
		OnEvent: func(endpoint, name string, args []json.RawMessage, ack kephasio.Responder) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = string(a)
			}
			fmt.Printf("event   %s %s [%s]\n", endpointName(endpoint), name, strings.Join(parts, ", "))
			reply(ack)
		},
		OnError: func(endpoint, reason, advice string) {
			fmt.Printf("error   %s %s %s\n", endpointName(endpoint), reason, advice)
		},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	s.logger.Info("listening", "sid", s.client.SessionID())

	select {
	case <-ctx.Done():
	case <-s.closed:
		s.logger.Info("server closed the connection")
	}
	return nil
}

func endpointName(endpoint string) string {
	if endpoint == "" {
		return "/"
	}
	return endpoint
}
