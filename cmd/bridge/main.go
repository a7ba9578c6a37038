package main

import (
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cloudkucooland/jeedombridge"
	"github.com/cloudkucooland/jeedombridge/accessory"
	"github.com/cloudkucooland/jeedombridge/config"
	"github.com/cloudkucooland/jeedombridge/platform"

	"github.com/brutella/hc/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	var dir, file string
	var debug bool

	app := cli.App{
		Name:  "jeedombridge",
		Usage: "expose Jeedom commands as HomeKit switches",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "dir",
				Value:       "config",
				Usage:       "configuration directory",
				Destination: &dir,
			},
			&cli.StringFlag{
				Name:        "config",
				Value:       "server.json",
				Usage:       "configuration file (.json or .yaml)",
				Destination: &file,
			},
			&cli.BoolFlag{
				Name:        "debug",
				Usage:       "verbose logging",
				Destination: &debug,
			},
		},
		Action: func(c *cli.Context) error {
			logger := logrus.New()
			if debug {
				log.Debug.Enable()
				logger.SetLevel(logrus.DebugLevel)
			}

			conf, err := config.Load(filepath.Join(dir, file))
			if err != nil {
				return err
			}
			config.Set(conf)

			// spin up platforms
			jeedombridge.BootstrapPlatforms(conf, logger)

			// switches from server.json, then one file per switch
			for _, raw := range conf.Switches {
				if err := jeedombridge.AddAccessory(raw); err != nil {
					log.Info.Print(err)
				}
			}
			raws, err := accessory.LoadDir(conf.AccessoryDir())
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Info.Print(err)
			}
			for _, raw := range raws {
				if err := jeedombridge.AddAccessory(raw); err != nil {
					log.Info.Print(err)
				}
			}

			// HC can only be started once all accessories are known
			if err := jeedombridge.StartHC(conf); err != nil {
				platform.ShutdownAllPlatforms()
				return err
			}

			// run all the background processes
			platform.Background()

			// wait for signal to shut down
			sigch := make(chan os.Signal, 3)
			signal.Notify(sigch, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGHUP, os.Interrupt)

			// loop until signal sent
			sig := <-sigch

			log.Info.Printf("shutdown requested by signal: %s", sig)
			platform.ShutdownAllPlatforms()
			return nil
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Info.Panic(err)
	}
}
