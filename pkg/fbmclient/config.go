package fbmclient

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// Default buffer sizes, used both as flag defaults here and, absent any
// CLI-configured override, as the negotiation parameters Connect
// advertises to the server.
const (
	DefaultReceiveBufferSize   = 64 << 10
	DefaultRequestBufferSize   = 64 << 10
	DefaultMaxHeaderBufferSize = 8 << 10
	DefaultMaxMessageSize      = 16 << 20
	DefaultRequestPoolQuota    = 64
)

// Flags defines CLI flags to configure a Client Engine connection. These
// flags can also be set using environment variables and the application's
// configuration file.
func Flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "fbm-url",
			Usage: "FBM WebSocket server URL, e.g. ws://localhost:14490",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_CLIENT_URL"),
				toml.TOML("fbm_client.url", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-receive-buffer-size",
			Usage: "per-message receive buffer size, in bytes",
			Value: DefaultReceiveBufferSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_CLIENT_RECEIVE_BUFFER_SIZE"),
				toml.TOML("fbm_client.receive_buffer_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-request-buffer-size",
			Usage: "per-request accumulator size, in bytes",
			Value: DefaultRequestBufferSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_CLIENT_REQUEST_BUFFER_SIZE"),
				toml.TOML("fbm_client.request_buffer_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-max-header-buffer-size",
			Usage: "maximum decoded header bytes per message",
			Value: DefaultMaxHeaderBufferSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_CLIENT_MAX_HEADER_BUFFER_SIZE"),
				toml.TOML("fbm_client.max_header_buffer_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-max-message-size",
			Usage: "maximum accepted logical message size, in bytes",
			Value: DefaultMaxMessageSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_CLIENT_MAX_MESSAGE_SIZE"),
				toml.TOML("fbm_client.max_message_size", configFilePath),
			),
		},
		&cli.IntFlag{
			Name:  "fbm-request-pool-quota",
			Usage: "cached requests kept between sends",
			Value: DefaultRequestPoolQuota,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FBM_CLIENT_REQUEST_POOL_QUOTA"),
				toml.TOML("fbm_client.request_pool_quota", configFilePath),
			),
		},
	}
}

// ParamsFromCommand builds Params from the flags Flags defines.
func ParamsFromCommand(cmd *cli.Command) Params {
	return Params{
		ReceiveBufferSize:   cmd.Int("fbm-receive-buffer-size"),
		RequestBufferSize:   cmd.Int("fbm-request-buffer-size"),
		MaxHeaderBufferSize: cmd.Int("fbm-max-header-buffer-size"),
		MaxMessageSize:      cmd.Int("fbm-max-message-size"),
		RequestPoolQuota:    cmd.Int("fbm-request-pool-quota"),
	}
}
