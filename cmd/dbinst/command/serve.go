// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/momeni/dbinst/pkg/adapter/restful/gin/metrics"
	"github.com/momeni/dbinst/pkg/adapter/restful/gin/routes"
	"github.com/momeni/dbinst/pkg/core/log"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	listen string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST agent",
	Long: `Start the REST agent which exposes the status, upgrade, and
revert actions of local instances under /api/dbinst/v1 and the agent
metrics under /metrics. Upgrades are never interactive when they are
asked through the agent. At most one action runs for each instance at
any time and concurrent requests are rejected.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

// shutdownTimeout bounds the wait for running requests when the agent
// is asked to stop.
const shutdownTimeout = 30 * time.Second

func serve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	uc, err := loadedConfig.NewUpgradeUseCase()
	if err != nil {
		return fmt.Errorf("creating upgrade use case: %w", err)
	}
	e := loadedConfig.NewEngine()
	routes.Register(e, uc, metrics.New())
	addr := loadedConfig.Agent.Listen
	if serveFlags.listen != "" {
		addr = serveFlags.listen
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "REST agent is listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("running REST agent: %w", err)
	case <-ctx.Done():
	}
	log.Info(ctx, "stopping REST agent")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutting down REST agent: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("running REST agent: %w", err)
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(
		&serveFlags.listen, "listen", "l", "",
		"listen address, overriding agent.listen setting",
	)
	rootCmd.AddCommand(serveCmd)
}
