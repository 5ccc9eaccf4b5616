// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lirios/ostree-upload/pkg/serve"
	"github.com/lirios/ostree-upload/pkg/serve/httpserver"
	"github.com/lirios/ostree-upload/pkg/version"
)

func newServeCommand() *cobra.Command {
	var configFile string
	var expandEnv bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the receiver HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = os.Getenv("OSTREE_RECEIVE_CONFIG")
			}
			sc := serve.DefaultServerConfig()
			if configFile != "" {
				var err error
				if sc, err = serve.NewServerConfig(configFile, expandEnv); err != nil {
					return err
				}
			}
			srv, err := httpserver.NewServer(sc)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			serveErr := make(chan error, 1)
			go func() {
				serveErr <- srv.ListenAndServe()
			}()
			select {
			case err := <-serveErr:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			logrus.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "configuration file, defaults to $OSTREE_RECEIVE_CONFIG")
	cmd.Flags().BoolVar(&expandEnv, "expand-env", false, "expand ${ENV} references in the configuration file")
	return cmd
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens",
	}
	var secret string
	var operation string
	var expires time.Duration
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Mint a signed bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("OSTREE_RECEIVE_SECRET")
			}
			if secret == "" {
				return errors.New("no secret given, use --secret or $OSTREE_RECEIVE_SECRET")
			}
			op := httpserver.Operation(operation)
			if op != httpserver.OperationPull && op != httpserver.OperationPush {
				return fmt.Errorf("unknown operation %q, want pull or push", operation)
			}
			var expiresAt time.Time
			if expires > 0 {
				expiresAt = time.Now().Add(expires)
			}
			token, err := httpserver.GenerateJWT(secret, op, expiresAt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	newCmd.Flags().StringVarP(&secret, "secret", "s", "", "signing secret, defaults to $OSTREE_RECEIVE_SECRET")
	newCmd.Flags().StringVarP(&operation, "operation", "o", string(httpserver.OperationPush), "scope granted by the token: pull or push")
	newCmd.Flags().DurationVarP(&expires, "expires", "e", 0, "token lifetime, 0 means no expiry")
	cmd.AddCommand(newCmd)
	return cmd
}

func newCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:           "ostree-receive",
		Short:         "Receive OSTree commits pushed over HTTP",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.AddCommand(newServeCommand(), newTokenCommand())
	return cmd
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ostree-receive: %v\n", err)
		os.Exit(1)
	}
}
