package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/stressdash/clients"
	"github.com/maastricht-university/stressdash/config"
)

var (
	// Global flags
	configPath string

	conf *config.Root
	env  = config.NewViper()
	log  = logrus.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:   "stressdash",
	Short: "StressDetect dashboard for multimodal stress analysis",
	Long: `stressdash serves the StressDetect web dashboard and forwards face images,
voice recordings and EEG/GSR series to the multimodal analysis service.

Configuration is read from config/<CONFIG_ENV>/config.yaml (or --config),
then overridden by STRESSDASH_* environment variables and flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		c.Overlay(env)
		if err := c.Validate(); err != nil {
			return err
		}

		lvl, err := logrus.ParseLevel(c.Dashboard.LogLvl)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		log.SetLevel(lvl)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

		conf = c
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to config.yaml")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("analysis-url", "", "analysis service base URL")
	_ = env.BindPFlag("dashboard.log_level", pf.Lookup("log-level"))
	pf.String("capture-source", "", "still image or directory served as the webcam")
	_ = env.BindPFlag("services.analysis.url", pf.Lookup("analysis-url"))
	_ = env.BindPFlag("capture.source", pf.Lookup("capture-source"))

	rootCmd.AddCommand(serveCmd, analyzeCmd, healthCmd)
}

func newClient() *clients.HTTP {
	return clients.NewHTTP(config.DurSeconds(conf.Services.Analysis.Timeout))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
