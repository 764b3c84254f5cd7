package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var Version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "signal-desk"
	app.Usage = "Trading signals desk bot for Discord and Telegram"
	app.Version = Version

	app.Commands = []cli.Command{
		runCMD,
		initDBCMD,
		debugDBCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:   "run",
		Usage:  "run the bot",
		Action: runAction,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "platform",
				Usage: "override BOT_PLATFORM (discord|telegram)",
			},
			cli.BoolFlag{
				Name:  "register-commands",
				Usage: "overwrite Discord slash commands on start",
			},
		},
		Description: `Start the chat bot and the HTTP health server`,
	}
	initDBCMD = cli.Command{
		Name:        "initdb",
		Usage:       "create database tables",
		Action:      initDBAction,
		Flags:       []cli.Flag{},
		Description: `Run migrations and report the number of stored operations`,
	}
	debugDBCMD = cli.Command{
		Name:   "debugdb",
		Usage:  "print database contents",
		Action: debugDBAction,
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "limit",
				Value: 10,
				Usage: "operations to print",
			},
			cli.StringFlag{
				Name:  "operation",
				Usage: "print the audit trail of one operation",
			},
		},
		Description: `Print database stats, recent operations and audit records`,
	}
)
