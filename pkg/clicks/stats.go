package clicks

import (
	"context"
	"sort"
	"time"

	"github.com/servineo/billing/pkg/wallet"
)

const dayLayout = "2006-01-02"

// ClickStats aggregates click count, projected cost at the configured
// fee, and a per-day histogram over a trailing window of whole days.
func (service *Service) ClickStats(ctx context.Context, professionalID wallet.ProfessionalID, days int) (Stats, error) {
	if days <= 0 {
		days = DefaultStatsWindowDays
	}
	since := service.nowFn() - int64(days)*secondsPerDay

	times, err := service.store.ListClickTimes(ctx, professionalID.String(), since)
	if err != nil {
		return Stats{}, err
	}

	buckets := make(map[string]int64)
	for _, clickedAt := range times {
		day := time.Unix(clickedAt, 0).UTC().Format(dayLayout)
		buckets[day]++
	}
	histogram := make([]DayCount, 0, len(buckets))
	for day, count := range buckets {
		histogram = append(histogram, DayCount{Day: day, Clicks: count})
	}
	sort.Slice(histogram, func(i, j int) bool { return histogram[i].Day < histogram[j].Day })

	total := int64(len(times))
	return Stats{
		TotalClicks:    total,
		TotalCostCents: wallet.AmountCents(total) * service.policy.ClickFeeCents,
		ClicksByDay:    histogram,
	}, nil
}
