package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/voicehost/internal/adapters/rtc"
	relay "github.com/dkeye/voicehost/internal/adapters/signal"
	"github.com/dkeye/voicehost/internal/app/orch"
	"github.com/dkeye/voicehost/internal/config"
	"github.com/dkeye/voicehost/internal/core"
	"github.com/dkeye/voicehost/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newJoinCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "join <room-id|link>",
		Short: "Join a room",
		Long: `Join a room by id or by the link the host shared.

Examples:
  voicehost join 3f2c9a
  voicehost join http://localhost:3000/channel/3f2c9a`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := config.ParseRoomInput(args[0])
			if err != nil {
				return err
			}
			return runJoin(cmd.Context(), cfg, room)
		},
	}
}

// fatalSignal ends one session when the connection to the host is lost.
type fatalSignal struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	reason string
}

func (f *fatalSignal) NotifyFatal(reason string) {
	f.mu.Lock()
	if f.reason == "" {
		f.reason = reason
	}
	f.mu.Unlock()
	f.cancel()
}

func (f *fatalSignal) Reason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reason
}

// runJoin keeps the participant in the room, rejoining after a lost
// connection until the reconnect budget is spent.
func runJoin(ctx context.Context, cfg *config.Config, room domain.RoomID) error {
	factory, err := engineFactory(ctx, cfg)
	if err != nil {
		return err
	}
	media := mediaSource(ctx, cfg)
	limiter := relay.NewReconnectLimiter(cfg.Reconnects+1, time.Minute)

	var reason string
	for {
		if !limiter.Allow(room) {
			return fmt.Errorf("left room %s: %s", room, reason)
		}
		reason = joinOnce(ctx, cfg, room, factory, media)
		if ctx.Err() != nil {
			log.Info().Msg("left room")
			return nil
		}
		log.Warn().Str("module", "cli").Str("room", string(room)).Str("reason", reason).Msg("rejoining")
	}
}

// joinOnce runs one session and returns why it ended.
func joinOnce(ctx context.Context, cfg *config.Config, room domain.RoomID, factory *rtc.Factory, media core.MediaSource) string {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	fatal := &fatalSignal{cancel: cancel}

	ch := relay.NewChannel(channelOptions(cfg))
	logEvents(ch)
	ch.Subscribe(core.EventRosterUpdated, func(ev core.Event) {
		ids := make([]string, len(ev.Peers))
		for i, id := range ev.Peers {
			ids[i] = string(id)
		}
		fmt.Printf("In room %s: %s\n", ev.Room, strings.Join(ids, ", "))
	})

	part := orch.NewParticipant(sessionCtx, ch, room, factory, media, fatal)
	if err := part.Register(); err != nil {
		return err.Error()
	}
	if err := ch.Connect(sessionCtx, cfg.RelayURL); err != nil {
		return err.Error()
	}

	reason := ""
	select {
	case <-sessionCtx.Done():
		reason = fatal.Reason()
	case <-ch.Done():
		reason = "relay connection closed"
	}

	part.Close()
	ch.Close()
	ch.Wait()
	return reason
}
