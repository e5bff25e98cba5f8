package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tzrikka/xdg"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/vnuge/fbm/internal/logctx"
	"github.com/vnuge/fbm/pkg/fbm"
	"github.com/vnuge/fbm/pkg/server"
	"github.com/vnuge/fbm/pkg/transport"
)

const (
	configDirName  = "fbmserver"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "fbmserver",
		Usage:   "Fixed Buffer Messaging protocol engine: WebSocket server",
		Version: bi.Main.Version,
		Flags:   flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			initLog(cmd.Bool("dev") || cmd.Bool("pretty-log"))
			return run(ctx, cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	fs := []cli.Flag{
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "simple setup, but unsafe for production",
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
	return append(fs, server.Flags(configFile())...)
}

// configFile returns the path to the app's configuration file, creating
// an empty one if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create config file")
	}
	return altsrc.StringSourcer(path)
}

// initLog sets up the global zerolog logger, either as pretty console
// output (development) or structured JSON (production).
func initLog(devMode bool) {
	if devMode {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
}

// run starts the HTTP server that upgrades incoming connections to FBM
// sessions, and blocks until it exits.
func run(ctx context.Context, cmd *cli.Command) error {
	params := server.ParamsFromCommand(cmd)

	http.HandleFunc("GET /fbm", func(w http.ResponseWriter, r *http.Request) {
		handleUpgrade(r.Context(), w, r, params)
	})

	addr := net.JoinHostPort("", strconv.Itoa(cmd.Int("fbm-port")))
	httpServer := &http.Server{Addr: addr}

	log.Info().Str("addr", addr).Msg("FBM server listening")
	return httpServer.ListenAndServe()
}

// handleUpgrade upgrades one incoming HTTP request to a WebSocket
// connection and runs its FBM session to completion. Each session gets
// its own echoHandler dispatch: a minimal demonstration handler that
// reverses the request payload back as the response body.
func handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request, params server.Params) {
	channel, negotiated, err := transport.Accept(w, r)
	if err != nil {
		log.Warn().Err(err).Msg("FBM upgrade failed")
		return
	}

	sessionParams := params
	sessionParams.ReceiveBufferSize = negotiated.ReceiveBufferSize
	sessionParams.MaxHeaderBufferSize = negotiated.MaxHeaderBufferSize
	sessionParams.MaxMessageSize = negotiated.MaxMessageSize

	session := server.NewSession(channel, sessionParams)
	sessionCtx := logctx.WithLogger(ctx, log.With().Str("session_id", session.ID()).Logger())

	if err := session.Listen(sessionCtx, echoHandler, nil); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID()).Msg("FBM session ended with an error")
	}
}

func echoHandler(_ context.Context, lc *server.ListenerContext) {
	_ = lc.WriteResponseMessageId()
	payload := lc.Request().Payload()
	reversed := make([]byte, len(payload))
	for i, b := range payload {
		reversed[len(payload)-1-i] = b
	}
	_ = lc.WriteResponseBody(fbm.ContentTypeBinary, reversed)
}
