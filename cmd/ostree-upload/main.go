// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lirios/ostree-upload/pkg/push"
	"github.com/lirios/ostree-upload/pkg/version"
)

func newCommand() *cobra.Command {
	opts := &push.Options{}
	var verbose bool
	cmd := &cobra.Command{
		Use:           "ostree-upload",
		Short:         "Push OSTree commits to a receiver over HTTP",
		Version:       version.GetVersion(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
			if opts.Token == "" {
				opts.Token = os.Getenv("OSTREE_UPLOAD_TOKEN")
			}
			return push.Run(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.RepoPath, "repo", "r", "", "path to the local OSTree repository")
	flags.StringVarP(&opts.URL, "url", "u", "http://127.0.0.1:8080", "receiver endpoint")
	flags.StringArrayVar(&opts.Refs, "ref", nil, "branch to push, repeatable; defaults to every local ref")
	flags.StringVarP(&opts.Token, "token", "t", "", "bearer token, defaults to $OSTREE_UPLOAD_TOKEN")
	flags.BoolVarP(&opts.Quiet, "quiet", "q", false, "disable the progress bar")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ostree-upload: %v\n", err)
		os.Exit(1)
	}
}
