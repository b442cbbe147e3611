package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	router "github.com/dkeye/voicehost/internal/adapters/http"
	relay "github.com/dkeye/voicehost/internal/adapters/signal"
	"github.com/dkeye/voicehost/internal/app/orch"
	"github.com/dkeye/voicehost/internal/config"
	"github.com/dkeye/voicehost/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newHostCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Open a room and print its share link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHost(cmd.Context(), cfg)
		},
	}
}

func runHost(ctx context.Context, cfg *config.Config) error {
	factory, err := engineFactory(ctx, cfg)
	if err != nil {
		return err
	}
	ch := relay.NewChannel(channelOptions(cfg))
	logEvents(ch)
	host := orch.NewHost(ctx, ch, factory, mediaSource(ctx, cfg))

	ch.Subscribe(core.EventOpened, func(core.Event) {
		if err := host.CreateRoom(); err != nil {
			log.Error().Err(err).Str("module", "cli").Msg("create room")
		}
	})
	ch.Subscribe(core.EventChannelCreated, func(ev core.Event) {
		fmt.Printf("Room %s is open. Share this link:\n  %s\n", ev.Room, cfg.RoomLink(ev.Room))
	})

	var srv *http.Server
	if cfg.StatusAddr != "" {
		srv = &http.Server{
			Addr:    cfg.StatusAddr,
			Handler: router.SetupRouter(cfg, host, factory.Relays()),
		}
		go func() {
			log.Info().Str("addr", cfg.StatusAddr).Msg("status API started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status API error")
			}
		}()
	}

	if err := ch.Connect(ctx, cfg.RelayURL); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case <-ch.Done():
		runErr = fmt.Errorf("%w: relay connection closed", core.ErrTransport)
	}

	host.Close()
	ch.Close()
	ch.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("status API forced to shutdown")
		}
	}
	log.Info().Msg("host exited")
	return runErr
}
