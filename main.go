package main

import (
	"fmt"
	"log"
	"os"

	"github.com/awnumar/memguard"
	cli "github.com/urfave/cli/v2"
)

const (
	exampleProxy     = "robomitm proxy -k <local_key> -a 192.168.8.1"
	exampleKeepAlive = "robomitm keepalive -l :8053"
	exampleServe     = "ROBOROCK_LOCAL_KEY=<local_key> robomitm -a 192.168.8.1"
)

// main dispatches between the transparent proxy, the keep-alive emulator,
// and the default mode running both side by side.
func main() {
	memguard.CatchInterrupt()
	app := &cli.App{
		Name:  "robomitm",
		Usage: "Transparent MITM proxy and cloud keep-alive emulator for Roborock vacuums (runs both by default)",
		Flags: append(proxyFlags(), keepAliveListenFlag()),
		Commands: []*cli.Command{
			{
				Name:   "proxy",
				Usage:  "Run only the transparent protocol-rewriting proxy",
				Flags:  proxyFlags(),
				Action: runProxyCommand,
			},
			{
				Name:  "keepalive",
				Usage: "Run only the cloud heartbeat emulator",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Value: defaultKeepAliveListen, Usage: "listen address for both UDP and TCP"},
					logFileFlag(),
				},
				Action: runKeepAliveCommand,
			},
		},
		Action: runServeCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// exitWithExample formats an error message with an example and exits.
func exitWithExample(message, example string) error {
	return cli.Exit(fmt.Sprintf("%s\nExample: %s", message, example), 1)
}

// proxyFlags returns a fresh flag slice so the proxy subcommand and the
// default action do not share flag state.
func proxyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "key", Aliases: []string{"k"}, EnvVars: []string{"ROBOROCK_LOCAL_KEY"}, Usage: "per-device local key (prompted for when omitted on a terminal)"},
		&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Value: defaultProxyListen, Usage: "listen address for redirected device traffic"},
		&cli.StringFlag{Name: "advertise", Aliases: []string{"a"}, EnvVars: []string{"PROXY_IP"}, Usage: "externally reachable address placed into forged relay replies"},
		&cli.IntFlag{Name: "turn-port", Value: defaultTurnPort, Usage: "TURN port placed into forged relay replies"},
		&cli.StringFlag{Name: "turn-user", Value: defaultTurnUser, Usage: "TURN username placed into forged relay replies"},
		&cli.StringFlag{Name: "turn-pwd", Value: defaultTurnPwd, Usage: "TURN password placed into forged relay replies"},
		&cli.StringFlag{Name: "rules-config", Aliases: []string{"C"}, Usage: "path to a JSON file listing interception rules (reloaded on SIGUSR1)"},
		logFileFlag(),
	}
}

func keepAliveListenFlag() cli.Flag {
	return &cli.StringFlag{Name: "keepalive-listen", Value: defaultKeepAliveListen, Usage: "keep-alive listen address for both UDP and TCP"}
}

func logFileFlag() cli.Flag {
	return &cli.StringFlag{Name: "log-file", EnvVars: []string{"LOG_FILE"}, Usage: "mirror log output to this file"}
}
