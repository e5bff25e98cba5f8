package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tzrikka/xdg"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/vnuge/fbm/pkg/fbm"
	"github.com/vnuge/fbm/pkg/fbmclient"
)

const (
	configDirName  = "fbmclient"
	configFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "fbmclient",
		Usage:   "Fixed Buffer Messaging protocol engine: WebSocket client",
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
		&cli.StringFlag{
			Name:  "message",
			Usage: "text payload to send as one request",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_CLIENT_MESSAGE"),
			),
		},
	}
	return append(fs, fbmclient.Flags(configFile())...)
}

func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, configDirName, configFileName)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create config file")
	}
	return altsrc.StringSourcer(path)
}

func initLog(devMode bool) {
	if devMode {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
}

// run connects to the configured server, sends one request carrying the
// "message" argument as its payload, prints the response payload, and
// disconnects.
func run(ctx context.Context, cmd *cli.Command) error {
	url := cmd.String("fbm-url")
	if url == "" {
		return fmt.Errorf("missing --fbm-url")
	}
	params := fbmclient.ParamsFromCommand(cmd)

	client, err := fbmclient.Connect(ctx, url, params, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect()

	req, err := client.RentRequest()
	if err != nil {
		return fmt.Errorf("rent request: %w", err)
	}
	defer client.ReturnRequest(req)

	if err := req.WriteBody(fbm.ContentTypeText, []byte(cmd.String("message"))); err != nil {
		return fmt.Errorf("write request body: %w", err)
	}

	resp, err := client.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}

	fmt.Println(string(resp.Payload()))
	return nil
}
