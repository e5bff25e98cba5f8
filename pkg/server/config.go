package server

import (
	"errors"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// Default values for the flags defined here. The receive-buffer,
// header-buffer and max-message sizes a session actually uses come from
// the client's negotiation parameters at upgrade time.
const (
	DefaultPort                = 14490
	DefaultReceiveBufferSize   = 64 << 10
	DefaultResponseBufferSize  = 64 << 10
	DefaultMaxHeaderBufferSize = 8 << 10
	DefaultMaxMessageSize      = 16 << 20
	DefaultContextPoolQuota    = 64
)

// Flags defines CLI flags to configure a Server Listener Engine. These
// flags can also be set using environment variables and the application's
// configuration file.
func Flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "fbm-port",
			Usage: "local port number for the FBM WebSocket listener",
			Value: DefaultPort,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_SERVER_PORT"),
				toml.TOML("fbm_server.port", configFilePath),
			),
			Validator: validatePort,
		},
		&cli.IntFlag{
			Name:  "fbm-receive-buffer-size",
			Usage: "per-message receive buffer size, in bytes",
			Value: DefaultReceiveBufferSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_SERVER_RECEIVE_BUFFER_SIZE"),
				toml.TOML("fbm_server.receive_buffer_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-response-buffer-size",
			Usage: "per-listener-context response accumulator size, in bytes",
			Value: DefaultResponseBufferSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_SERVER_RESPONSE_BUFFER_SIZE"),
				toml.TOML("fbm_server.response_buffer_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-max-header-buffer-size",
			Usage: "maximum decoded header bytes per message",
			Value: DefaultMaxHeaderBufferSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_SERVER_MAX_HEADER_BUFFER_SIZE"),
				toml.TOML("fbm_server.max_header_buffer_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-max-message-size",
			Usage: "maximum accepted logical message size, in bytes",
			Value: DefaultMaxMessageSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_SERVER_MAX_MESSAGE_SIZE"),
				toml.TOML("fbm_server.max_message_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-context-pool-quota",
			Usage: "cached listener contexts kept per session between dispatches",
			Value: DefaultContextPoolQuota,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_SERVER_CONTEXT_POOL_QUOTA"),
				toml.TOML("fbm_server.context_pool_quota", configFilePath),
			),
		},
	}
}

// ParamsFromCommand builds Params from the flags Flags defines.
func ParamsFromCommand(cmd *cli.Command) Params {
	return Params{
		ReceiveBufferSize:   cmd.Int("fbm-receive-buffer-size"),
		ResponseBufferSize:  cmd.Int("fbm-response-buffer-size"),
		MaxHeaderBufferSize: cmd.Int("fbm-max-header-buffer-size"),
		MaxMessageSize:      cmd.Int("fbm-max-message-size"),
		ContextPoolQuota:    cmd.Int("fbm-context-pool-quota"),
	}
}

func validatePort(p int) error {
	if p < 0 || p > 65535 {
		return errors.New("out of range [0-65535]")
	}
	return nil
}
