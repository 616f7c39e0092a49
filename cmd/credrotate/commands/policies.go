package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/credrotate/internal/policy"
)

// NewPoliciesCommand creates the 'policies' command: validate and list the
// rotation policy file.
func NewPoliciesCommand(rc *Context) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Validate and list rotation policies",
		Long: `Parse the policy file, validate every policy, and print a summary.

Examples:
  credrotate policies
  credrotate --policies /etc/credrotate/policies.yaml policies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := policy.LoadPath(rc.PolicyFile)
			if err != nil {
				return err
			}

			ids := make([]string, 0, len(file.Credentials))
			for id := range file.Credentials {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			fmt.Printf("%d credential(s) in %s\n\n", len(ids), rc.PolicyFile)
			for _, id := range ids {
				fmt.Printf("  %-30s %s\n", id, describePolicy(file.Credentials[id]))
			}
			return nil
		},
	}
}

func describePolicy(p policy.Policy) string {
	switch p.Type {
	case policy.TypePeriodic:
		desc := fmt.Sprintf("periodic every %v", p.Periodic.Interval)
		if p.Periodic.EnableJitter {
			desc += " (jittered)"
		}
		return desc
	case policy.TypeBeforeExpiry:
		return fmt.Sprintf("before expiry at %.0f%% of lifetime, floor %v",
			p.BeforeExpiry.ThresholdPercentage*100, p.BeforeExpiry.MinimumTimeBeforeExpiry)
	case policy.TypeScheduled:
		return fmt.Sprintf("scheduled once at %s", p.Scheduled.ScheduledAt.Format(time.RFC3339))
	case policy.TypeCron:
		return fmt.Sprintf("cron %q", p.Cron.Expression)
	case policy.TypeManual:
		return "manual only"
	default:
		return string(p.Type)
	}
}
