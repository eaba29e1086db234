package cli

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sr-857/astraguard-client/internal/api"
	"github.com/sr-857/astraguard-client/internal/retry"
)

func newFloodCmd() *cobra.Command {
	var (
		count    int
		workers  int
		endpoint string
		priority int
		doRetry  bool
	)

	cmd := &cobra.Command{
		Use:   "flood",
		Short: "Send a burst of requests through admission control",
		Long: `Fires a burst of GET requests at one endpoint and reports how the
scheduler classified each outcome. Useful for observing queueing, local
rate limiting, and server backoff behavior against a live or mock backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := newClient()
			if err != nil {
				return err
			}
			defer client.Destroy()

			fmt.Printf("Flooding %s%s with %d requests (%d workers)\n",
				cfg.BaseURL, endpoint, count, workers)

			bar := progressbar.NewOptions(count,
				progressbar.OptionSetDescription("requests"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)

			var (
				succeeded   atomic.Int64
				rateLimited atomic.Int64
				backedOff   atomic.Int64
				failed      atomic.Int64
			)

			jobs := make(chan int)
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range jobs {
						_, err := retry.Do(rootContext, func(ctx context.Context) (*api.Response, error) {
							return client.Get(ctx, endpoint, api.WithPriority(priority))
						}, retry.Options{
							RetryOnRateLimit: doRetry,
							Logger:           logger,
						})
						switch {
						case err == nil:
							succeeded.Add(1)
						case api.IsServerBackoff(err):
							backedOff.Add(1)
						case api.IsRateLimited(err):
							rateLimited.Add(1)
						default:
							failed.Add(1)
						}
						bar.Add(1)
					}
				}()
			}

			for i := 0; i < count; i++ {
				select {
				case <-rootContext.Done():
					i = count
				case jobs <- i:
				}
			}
			close(jobs)
			wg.Wait()
			bar.Finish()

			fmt.Printf("\nResults:\n")
			fmt.Printf("  succeeded:       %d\n", succeeded.Load())
			fmt.Printf("  rate limited:    %d\n", rateLimited.Load())
			fmt.Printf("  server backoff:  %d\n", backedOff.Load())
			fmt.Printf("  other failures:  %d\n", failed.Load())
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 50, "Total requests to send")
	cmd.Flags().IntVarP(&workers, "workers", "w", 10, "Concurrent submitters")
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "/api/v1/status", "Endpoint to hit")
	cmd.Flags().IntVarP(&priority, "priority", "p", 1, "Request priority (higher drains first)")
	cmd.Flags().BoolVar(&doRetry, "retry", false, "Retry rate-limited requests with exponential delay")
	return cmd
}
