package commands

import (
	"log/slog"
	"time"

	"itsdu-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(plansCmd)
	rootCmd.AddCommand(elementsCmd)
}

var plansCmd = &cobra.Command{
	Use:   "plans <course-id>",
	Short: "Lists the planner topics of a course.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup := createService()
		defer cleanup()

		entries, err := svc.GetCoursePlans(cmd.Context(), args[0])
		if err != nil {
			serviceutil.Fatal("failed to fetch course plans", err)
		}

		for _, entry := range entries {
			attrs := []any{
				"topic_id", entry.TopicID,
				"title", entry.Title,
			}
			if entry.PlansCount >= 0 {
				attrs = append(attrs, "plans", entry.PlansCount)
			}
			if entry.Dates.From != nil && entry.Dates.To != nil {
				attrs = append(attrs,
					"from", entry.Dates.From.Format(time.DateOnly),
					"to", entry.Dates.To.Format(time.DateOnly),
				)
			}
			slog.Info("topic", attrs...)
		}
	},
}

var elementsCmd = &cobra.Command{
	Use:   "elements <course-id> <topic-id>",
	Short: "Lists the plans and attached elements of a planner topic.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		svc, cleanup := createService()
		defer cleanup()

		rows, err := svc.GetCoursePlanElements(cmd.Context(), args[0], args[1])
		if err != nil {
			serviceutil.Fatal("failed to fetch plan elements", err)
		}

		for _, row := range rows {
			slog.Info("plan", "title", row.Title, "description", row.Description)
			for _, res := range row.Resources {
				slog.Info("  element",
					"element_id", res.ElementID,
					"title", res.Title,
					"link", res.Link,
				)
			}
		}
	},
}
