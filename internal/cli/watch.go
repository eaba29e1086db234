package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sr-857/astraguard-client/internal/api"
	"github.com/sr-857/astraguard-client/internal/events"
	"github.com/sr-857/astraguard-client/internal/notify"
)

func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch backend health and scheduler state",
		Long: `Polls the AstraGuard backend health endpoint and streams scheduler
events (queueing, dispatch, backoff, health transitions) until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			bus := events.NewEventBus(0)
			defer bus.Close()

			client, cfg, err := newClient(api.WithEventBus(bus))
			if err != nil {
				return err
			}
			defer client.Destroy()

			center := notify.NewCenter(notify.Options{
				Logger:  logger,
				Bus:     bus,
				Desktop: cfg.Notifications.Enabled,
			})

			eventCh := bus.SubscribeAll()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			fmt.Printf("Watching %s (Ctrl-C to stop)\n", cfg.BaseURL)
			for {
				select {
				case <-rootContext.Done():
					return nil
				case ev, ok := <-eventCh:
					if !ok {
						return nil
					}
					printEvent(ev, center)
				case <-ticker.C:
					snap := client.SystemHealth()
					eff := client.EffectiveLimits()
					fmt.Printf("[%s] status=%s cpu=%.1f%% mem=%.1f%% anomaly=%.2f | rpm=%d conc=%d queued=%d active=%d\n",
						time.Now().Format("15:04:05"),
						snap.Status, snap.CPUUsage, snap.MemoryUsage, snap.AnomalyScore,
						eff.RequestsPerMinute, eff.ConcurrentRequests,
						client.QueueLength(), client.ActiveRequests())
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Status line interval")
	return cmd
}

func printEvent(ev events.Event, center *notify.Center) {
	ts := ev.Timestamp().Format("15:04:05")
	switch e := ev.(type) {
	case *events.RequestEvent:
		if e.Err != nil {
			fmt.Printf("[%s] %s %s %s failed: %v\n", ts, e.EventType, e.Method, e.Endpoint, e.Err)
			return
		}
		fmt.Printf("[%s] %s %s %s (priority=%d queued=%d active=%d)\n",
			ts, e.EventType, e.Method, e.Endpoint, e.Priority, e.Queued, e.Active)
	case *events.HealthEvent:
		center.Push(fmt.Sprintf("Backend health changed: %s -> %s", e.OldStatus, e.NewStatus), notify.SeverityWarning)
		fmt.Printf("[%s] health %s -> %s (cpu=%.1f mem=%.1f anomaly=%.2f)\n",
			ts, e.OldStatus, e.NewStatus, e.CPUUsage, e.Memory, e.Anomaly)
	case *events.BackoffEvent:
		center.Push(fmt.Sprintf("Server rate limited, backing off %s", e.RetryAfter), notify.SeverityWarning)
		fmt.Printf("[%s] backoff armed: quiet until %s\n", ts, e.Until.Format("15:04:05"))
	case *events.NotificationEvent:
		fmt.Printf("[%s] [%s] %s\n", ts, e.Severity, e.Message)
	}
}
