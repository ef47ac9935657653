package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kjk/regionstore/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the image over HTTP",
	Long: `Serve the image over HTTP.

  GET    /api/records            list records and space usage
  GET    /api/record?name=       content of a record
  PUT    /api/record?name=       add a record, &replace=1 to replace
  DELETE /api/record?name=       erase a record
  GET    /metrics                prometheus metrics

Changes are flushed to the image after every write and erase.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, st, err := openStore()
		if err != nil {
			return err
		}
		cfg := server.Config{
			ReadOnly:    viper.GetBool("read-only"),
			AfterChange: f.Flush,
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.ListenAndServe(ctx, viper.GetString("addr"), server.New(st, cfg))
	},
}

func init() {
	serveCmd.Flags().String("addr", "localhost:9340", wrapString("address to listen on"))
	serveCmd.Flags().Bool("read-only", false, wrapString("reject writes and erases"))
}
