package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/credrotate/internal/policy"
	"github.com/systmms/credrotate/internal/scheduler"
)

// NewScheduleCommand creates the 'schedule' command: preview when each
// credential in the policy file would next rotate.
func NewScheduleCommand(rc *Context) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Preview the next rotation instant for every credential",
		Args:  cobra.NoArgs,
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

			now := time.Now()
			for _, id := range ids {
				next, err := nextRotation(id, file.Credentials[id], rc, now)
				if err != nil {
					return fmt.Errorf("credential %q: %w", id, err)
				}
				fmt.Printf("  %-30s %s\n", id, next)
			}
			return nil
		},
	}
}

func nextRotation(id string, p policy.Policy, rc *Context, now time.Time) (string, error) {
	switch p.Type {
	case policy.TypePeriodic:
		s := scheduler.NewPeriodic(id, *p.Periodic, nil, rc.Logger)
		return s.CalculateNextRotationTime().Format(time.RFC3339), nil
	case policy.TypeBeforeExpiry:
		return "driven by credential expiry (run the expiry monitor)", nil
	case policy.TypeScheduled:
		if !p.Scheduled.ScheduledAt.After(now) {
			return "past due", nil
		}
		return p.Scheduled.ScheduledAt.Format(time.RFC3339), nil
	case policy.TypeCron:
		next, err := p.NextCron(now)
		if err != nil {
			return "", err
		}
		return next.Format(time.RFC3339), nil
	case policy.TypeManual:
		return "manual only", nil
	default:
		return string(p.Type), nil
	}
}
