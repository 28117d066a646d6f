package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"TopicNewsletter/internal/app"
	"TopicNewsletter/internal/config"
	"TopicNewsletter/internal/logging"
)

const envPrefix = "NEWSLETTER"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCMD().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "newsletter",
		Short:         "Research sub-topics and assemble a topic newsletter",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (YAML)")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(runCMD(v), scheduleCMD(v), serveCMD(v), migrateCMD(v))
	return root
}

func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return config.Config{}, err
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func newApplication(cmd *cobra.Command, v *viper.Viper) (*app.Application, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, logging.New(cfg.Logging.Level))
}
