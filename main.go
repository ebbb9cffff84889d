package main

import (
	"os"

	"github.com/wanzhenyu888/xv6c/config"

	log "github.com/Sirupsen/logrus"
	"github.com/urfave/cli"
)

const usage = `xv6c is a small teaching kernel with containers running on the host.
			Boot it with xv6c boot and type commands into its shell.`

// 启动时加载的配置，Before里赋值
var conf *config.Config

func main() {
	app := cli.NewApp()
	app.Name = "xv6c"
	app.Usage = usage

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "yaml config file",
		},
	}
	app.Commands = []cli.Command{
		bootCommand,
		createCommand,
		listCommand,
		logCommand,
	}

	app.Before = func(context *cli.Context) error {
		cfg, err := config.Load(context.GlobalString("config"))
		if err != nil {
			return err
		}
		if err := setupLogging(cfg.Log); err != nil {
			return err
		}
		conf = cfg
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
