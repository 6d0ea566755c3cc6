package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ChizhovVadim/tfplus/internal/dashboard"
	"github.com/spf13/cobra"
)

func serveCommand(a *app) *cobra.Command {
	var addr, logs string
	var cmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the logs folder to the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s = dashboard.NewServer(logs, a.logger)
			var errc = make(chan error, 1)
			go func() {
				errc <- s.Start(addr)
			}()
			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Shutdown(ctx); err != nil {
				return err
			}
			if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&logs, "logs", "../logs", "logs root, one folder per run")
	return cmd
}
