package insight

import (
	"context"
	"fmt"

	"github.com/PulseLoom/PulseLoom/internal/activity"
)

// SweepMonthly synthesizes the given month for every employee with activity
// in it. Per-employee failures are logged and skipped; the sweep keeps
// going so one bad record cannot starve the rest of the roster.
func (p *Pipeline) SweepMonthly(ctx context.Context, monthKey string) (int, error) {
	from, to, err := activity.MonthRange(monthKey)
	if err != nil {
		return 0, err
	}
	emails, err := p.store.ActiveEmployeeEmails(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list active employees: %w", err)
	}

	succeeded := 0
	for _, email := range emails {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		if _, err := p.SynthesizeMonthly(ctx, email, monthKey); err != nil {
			p.logger.Warn("monthly sweep synthesis failed",
				"employee", email, "month", monthKey, "error", err)
			continue
		}
		succeeded++
	}
	p.logger.Info("monthly sweep finished",
		"month", monthKey, "employees", len(emails), "succeeded", succeeded)
	return succeeded, nil
}

// SweepQuarterly synthesizes the given quarter for every employee with
// activity in it.
func (p *Pipeline) SweepQuarterly(ctx context.Context, quarter string) (int, error) {
	from, to, err := activity.QuarterRange(quarter)
	if err != nil {
		return 0, err
	}
	emails, err := p.store.ActiveEmployeeEmails(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list active employees: %w", err)
	}

	succeeded := 0
	for _, email := range emails {
		if ctx.Err() != nil {
			return succeeded, ctx.Err()
		}
		if _, err := p.SynthesizeQuarterly(ctx, email, quarter); err != nil {
			p.logger.Warn("quarterly sweep synthesis failed",
				"employee", email, "quarter", quarter, "error", err)
			continue
		}
		succeeded++
	}
	p.logger.Info("quarterly sweep finished",
		"quarter", quarter, "employees", len(emails), "succeeded", succeeded)
	return succeeded, nil
}
