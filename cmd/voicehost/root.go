package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dkeye/voicehost/internal/adapters/rtc"
	relay "github.com/dkeye/voicehost/internal/adapters/signal"
	"github.com/dkeye/voicehost/internal/config"
	"github.com/dkeye/voicehost/internal/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:   "voicehost",
		Short: "Host or join a voice room relayed through one host",
		Long: `voicehost opens a voice room that participants join with a share link.
Every participant connects only to the host, which forwards each
participant's audio to everyone else.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg = *loaded
			return setupLogging(cfg.Log)
		},
	}
	config.BindFlags(root.PersistentFlags())

	root.AddCommand(newHostCmd(&cfg), newJoinCmd(&cfg))
	return root
}

func setupLogging(lc config.LogConfig) error {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	if lc.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}

func channelOptions(cfg *config.Config) relay.Options {
	return relay.Options{
		WriteWait:  cfg.WriteWait,
		PongWait:   cfg.PongWait,
		ReadLimit:  cfg.ReadLimit,
		SendBuffer: cfg.SendBuffer,
		Dial:       relay.WebsocketDialer,
	}
}

func engineFactory(ctx context.Context, cfg *config.Config) (*rtc.Factory, error) {
	return rtc.NewFactory(ctx, rtc.Options{
		ICEServers: cfg.ICEServers(),
		PortMin:    cfg.PortMin,
		PortMax:    cfg.PortMax,
		AudioSlots: cfg.AudioSlots,
	})
}

func mediaSource(ctx context.Context, cfg *config.Config) core.MediaSource {
	if cfg.AudioFile == "" {
		return rtc.NoCapture{}
	}
	return rtc.NewOggSource(ctx, cfg.AudioFile)
}

// logEvents reports channel lifecycle and room changes.
func logEvents(ch *relay.Channel) {
	logger := log.With().Str("module", "cli").Logger()
	ch.Subscribe(core.EventOpened, func(core.Event) {
		logger.Info().Msg("relay connected")
	})
	ch.Subscribe(core.EventError, func(ev core.Event) {
		logger.Error().Err(ev.Err).Msg("relay error")
	})
	ch.Subscribe(core.EventNewPeer, func(ev core.Event) {
		logger.Info().Str("peer", string(ev.Peer)).Msg("peer joined")
	})
	ch.Subscribe(core.EventPeerDisconnected, func(ev core.Event) {
		logger.Info().Str("peer", string(ev.Peer)).Str("reason", ev.Reason).Msg("peer left")
	})
}
