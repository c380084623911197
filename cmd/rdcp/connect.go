package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avaropoint/rdcp/internal/client"
	"github.com/avaropoint/rdcp/internal/protocol"
	"github.com/avaropoint/rdcp/internal/session"
	"github.com/avaropoint/rdcp/internal/version"
)

func connectCmd() *cobra.Command {
	var (
		port        int
		username    string
		password    string
		clientName  string
		reconnect   bool
		maxAttempts int
	)

	cmd := &cobra.Command{
		Use:   "connect <host>",
		Short: "Connect to a host and view its screen",
		Long: `Connect to an rdcp server, authenticate, and stream its screen.

Without a display this command runs headless and logs frame
geometry as frames arrive, which is useful for smoke-testing a
host.

Examples:
  rdcp connect 192.168.1.20 --username admin --password secret
  rdcp connect host.example --port 6000 --reconnect`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(args[0], port, username, password, clientName, reconnect, maxAttempts)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", protocol.DefaultPort, "Server TCP port")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username to authenticate as")
	cmd.Flags().StringVar(&password, "password", "", "Password to authenticate with")
	cmd.Flags().StringVar(&clientName, "name", "", "Client name sent in the handshake")
	cmd.Flags().BoolVar(&reconnect, "reconnect", false, "Reconnect after timeouts and dropped connections")
	cmd.Flags().IntVar(&maxAttempts, "max-reconnect-attempts", client.DefaultMaxAttempts, "Consecutive failed attempts before giving up")
	cmd.MarkFlagRequired("username") //nolint:errcheck
	cmd.MarkFlagRequired("password") //nolint:errcheck

	return cmd
}

func runConnect(host string, port int, username, password, clientName string, reconnect bool, maxAttempts int) error {
	log.Printf("rdcp client v%s (built %s)", version.Version, version.BuildTime)

	if clientName == "" {
		clientName, _ = os.Hostname()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := &client.LogRenderer{}
	sup := client.New(client.Config{
		Session: session.ClientConfig{
			Host:       host,
			Port:       port,
			Username:   username,
			Password:   password,
			ClientName: clientName,
			OnStreaming: func() {
				log.Printf("streaming from %s:%d", host, port)
			},
		},
		AutoReconnect: reconnect,
		MaxAttempts:   maxAttempts,
		OnSession: func(sess *session.ClientSession) {
			go client.RenderLoop(ctx, sess, renderer, 0)
		},
	})

	err := sup.Run(ctx)
	if err != nil {
		return err
	}
	log.Println("disconnected")
	return nil
}
