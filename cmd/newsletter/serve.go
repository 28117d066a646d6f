package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveCMD(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP run API",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			application, err := newApplication(cmd, v)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, application.Close()) }()
			return application.Serve(cmd.Context())
		},
	}
}
