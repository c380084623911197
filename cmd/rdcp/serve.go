package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avaropoint/rdcp/internal/protocol"
	"github.com/avaropoint/rdcp/internal/server"
	"github.com/avaropoint/rdcp/internal/session"
	"github.com/avaropoint/rdcp/internal/stats"
	"github.com/avaropoint/rdcp/internal/store"
	"github.com/avaropoint/rdcp/internal/version"
)

func serveCmd() *cobra.Command {
	var (
		host        string
		port        int
		username    string
		password    string
		dbPath      string
		maxClients  int
		fps         int
		quality     int
		width       int
		height      int
		serverName  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the local screen for remote viewers",
		Long: `Listen for viewer connections, stream the screen as JPEG frames,
and inject received mouse and keyboard events.

Credentials come either from a SQLite database (--db) or from a
single --username/--password pair held in memory.

Examples:
  rdcp serve --username admin --password secret
  rdcp serve --db rdcp.db --port 6000 --max-clients 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(serveOptions{
				host: host, port: port,
				username: username, password: password, dbPath: dbPath,
				maxClients: maxClients, fps: fps, quality: quality,
				width: width, height: height,
				serverName: serverName, metricsAddr: metricsAddr,
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Address to bind (default all interfaces)")
	cmd.Flags().IntVarP(&port, "port", "p", protocol.DefaultPort, "TCP port to listen on")
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username for in-memory credentials")
	cmd.Flags().StringVar(&password, "password", "", "Password for in-memory credentials")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database for credentials and history")
	cmd.Flags().IntVar(&maxClients, "max-clients", server.DefaultMaxClients, "Maximum concurrent viewers")
	cmd.Flags().IntVar(&fps, "capture-fps", server.DefaultCaptureFPS, "Capture frame rate")
	cmd.Flags().IntVar(&quality, "capture-quality", 0, "JPEG quality 1-100 (default 85)")
	cmd.Flags().IntVar(&width, "width", server.DefaultWidth, "Capture width in pixels")
	cmd.Flags().IntVar(&height, "height", server.DefaultHeight, "Capture height in pixels")
	cmd.Flags().StringVar(&serverName, "name", "", "Server name sent in the handshake")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9100)")

	return cmd
}

type serveOptions struct {
	host, username, password, dbPath, serverName, metricsAddr string
	port, maxClients, fps, quality, width, height             int
}

func runServe(opts serveOptions) error {
	log.Printf("rdcp server v%s (built %s)", version.Version, version.BuildTime)

	st := stats.New()
	var creds session.CredentialSource
	var history store.Store

	if opts.dbPath != "" {
		db, err := store.NewSQLiteStore(opts.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		if opts.username != "" {
			if err := db.UpsertCredential(context.Background(), opts.username, opts.password); err != nil {
				return err
			}
			log.Printf("stored credentials for %q in %s", opts.username, opts.dbPath)
		}
		creds = db
		history = db
	} else {
		if opts.username == "" || opts.password == "" {
			return errors.New("either --db or both --username and --password are required")
		}
		creds = store.StaticCredentials{Username: opts.username, Password: opts.password}
	}

	if opts.serverName == "" {
		opts.serverName, _ = os.Hostname()
	}

	sup := server.New(server.Config{
		Host:          opts.host,
		Port:          opts.port,
		MaxClients:    opts.maxClients,
		Credentials:   creds,
		History:       history,
		CaptureFPS:    opts.fps,
		CaptureWidth:  opts.width,
		CaptureHeight: opts.height,
		Quality:       opts.quality,
		ServerName:    opts.serverName,
		Stats:         st,
	})

	if opts.metricsAddr != "" {
		go func() {
			log.Printf("metrics on http://%s/metrics", opts.metricsAddr)
			if err := server.ServeMetrics(opts.metricsAddr, st); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	if err := sup.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")
	return sup.Close()
}
