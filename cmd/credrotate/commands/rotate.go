package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/credrotate/internal/metrics"
	"github.com/systmms/credrotate/pkg/rotation"
	"github.com/systmms/credrotate/pkg/storage"
)

// NewRotateCommand creates the 'rotate' command: a full demo rotation of
// one credential against the in-memory store.
func NewRotateCommand(rc *Context) *cobra.Command {
	var (
		emergency   bool
		twoPhase    bool
		reason      string
		triggeredBy string
		incidentID  string
		strategy    string
		grace       time.Duration
		metricsPort int
	)

	cmd := &cobra.Command{
		Use:   "rotate <credential-id>",
		Short: "Rotate a credential through the full transaction",
		Long: `Run one complete rotation: mint a new version, validate it, promote it,
and start the old version's grace period.

Examples:
  # Routine rotation with a 24h grace period
  credrotate rotate prod/db/password

  # Emergency rotation after a leak: the old version dies immediately
  credrotate rotate prod/db/password --emergency \
      --reason "password in CI logs" --triggered-by oncall --incident INC-42

  # Track two-phase-commit phases alongside the state machine
  credrotate rotate prod/db/password --two-phase`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			credentialID := args[0]
			ctx := cmd.Context()

			store := storage.NewMemoryProvider()
			store.Seed(credentialID, []byte("demo-secret"), map[string]string{"source": "cli"})

			sink := rotation.NewMemorySink(100)
			var fanout rotation.Sink = sink
			if metricsPort > 0 {
				metrics.Init()
				srv := metrics.NewServer(metrics.ServerConfig{
					Enabled:      true,
					Port:         metricsPort,
					Path:         "/metrics",
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 10 * time.Second,
				})
				if err := srv.Start(); err != nil {
					return err
				}
				defer func() { _ = srv.Stop(ctx) }()
				fanout = rotation.MultiSink{sink, rotation.NewMetricsSink()}
			}

			config := rotation.DefaultManagerConfig()
			if grace > 0 {
				config.GracePeriod = grace
			}
			mgr := rotation.NewManager(store, demoPlugin{}, config, fanout, rc.Logger)

			opts := rotation.Options{Enable2PC: twoPhase}
			if strategy != "" {
				opts.RollbackStrategy = rotation.RollbackStrategy(strategy)
			}
			if emergency || reason != "" {
				opts.Manual = &rotation.ManualRotation{
					Reason:      reason,
					TriggeredBy: triggeredBy,
					Emergency:   emergency,
					IncidentID:  incidentID,
				}
			}

			tx, err := mgr.Rotate(ctx, credentialID, opts)
			if err != nil {
				return err
			}

			fmt.Printf("Transaction %s: %s\n", tx.ID, tx.State)
			fmt.Printf("  %s: v%d -> v%d in %v\n", credentialID, tx.OldVersion, *tx.NewVersion, tx.Duration().Round(time.Millisecond))
			if tx.GracePeriodEnd != nil {
				fmt.Printf("  old version usable until %s\n", tx.GracePeriodEnd.Format(time.RFC3339))
			}
			fmt.Println("\nAudit trail:")
			for _, ev := range sink.Events() {
				if ev.Detail != "" {
					fmt.Printf("  %s %s (%s)\n", ev.Timestamp.Format(time.RFC3339), ev.Event, ev.Detail)
				} else if ev.Event == "transition" {
					fmt.Printf("  %s %s %s -> %s\n", ev.Timestamp.Format(time.RFC3339), ev.Event, ev.From, ev.To)
				} else {
					fmt.Printf("  %s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Event)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&emergency, "emergency", false, "Skip the grace period (credential compromised)")
	cmd.Flags().BoolVar(&twoPhase, "two-phase", false, "Track two-phase-commit phases")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the rotation was triggered manually")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "Who triggered the rotation")
	cmd.Flags().StringVar(&incidentID, "incident", "", "Incident id driving an emergency rotation")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Rollback strategy: automatic, manual, or none")
	cmd.Flags().DurationVar(&grace, "grace", 0, "Grace period for the old version (default 24h)")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port during the run")

	return cmd
}
