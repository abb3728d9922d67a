package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatstream/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatstream server",
	Long:  `Start the chatstream HTTP server and begin accepting chat requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap("")
		if err != nil {
			return err
		}
		defer a.log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(a.cfg.Server, a.dispatcher, a.routes, a.log)
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Server port")
	serveCmd.Flags().StringP("host", "H", "0.0.0.0", "Server host")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}
