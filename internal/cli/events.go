package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/pvrun/internal/infrastructure/mqtt"
)

func newEventsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Follow lifecycle events published by every launcher",
		Long: `Events subscribes to <topic_prefix>/+/events on the configured broker and
prints one line per event until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.followEvents(ctx)
		},
	}
}

func (a *app) followEvents(ctx context.Context) error {
	cfg := a.cfg.MQTT
	// A distinct client ID so a running launcher is not disconnected.
	cfg.Broker.ClientID = fmt.Sprintf("%s-events-%s", cfg.Broker.ClientID, uuid.NewString()[:8])

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return err
	}
	defer client.Close() //nolint:errcheck // Subscriber only
	client.SetLogger(a.log)

	var mu sync.Mutex
	topic := client.Topics().AllEvents()
	err = client.Subscribe(topic, byte(cfg.QoS), func(topic string, payload []byte) error {
		var compact bytes.Buffer
		if err := json.Compact(&compact, payload); err != nil {
			return fmt.Errorf("malformed event on %s: %w", topic, err)
		}
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintf(a.stdout, "%s %s\n", topic, compact.Bytes())
		return err
	})
	if err != nil {
		return err
	}
	a.log.Info("following events", "topic", topic)

	<-ctx.Done()
	return nil
}
