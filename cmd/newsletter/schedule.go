package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func scheduleCMD(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron expression",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			application, err := newApplication(cmd, v)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, application.Close()) }()
			return application.Schedule(cmd.Context())
		},
	}
}
