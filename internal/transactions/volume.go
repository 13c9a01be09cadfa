package transactions

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
)

// Interval is the bucket width of a volume report.
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// VolumePoint is the settled money in one bucket.
type VolumePoint struct {
	Period   string          `json:"period"`
	Incoming decimal.Decimal `json:"incoming"`
	Outgoing decimal.Decimal `json:"outgoing"`
}

// Volume buckets paid invoices and completed payouts between from and to.
// Weekly buckets are keyed by the Monday that starts the ISO week.
func (s *Service) Volume(ctx context.Context, from, to time.Time, interval Interval) ([]VolumePoint, error) {
	if to.Before(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date must not be before start date")
	}
	incoming, outgoing, err := s.settled(ctx, from, to)
	if err != nil {
		return nil, err
	}

	buckets := map[string]*VolumePoint{}
	bucket := func(t time.Time) *VolumePoint {
		key := periodKey(t, interval)
		point, ok := buckets[key]
		if !ok {
			point = &VolumePoint{Period: key, Incoming: decimal.Zero, Outgoing: decimal.Zero}
			buckets[key] = point
		}
		return point
	}
	for _, row := range incoming {
		p := bucket(row.Date)
		p.Incoming = p.Incoming.Add(row.Amount)
	}
	for _, row := range outgoing {
		p := bucket(row.Date)
		p.Outgoing = p.Outgoing.Add(row.Amount)
	}

	points := make([]VolumePoint, 0, len(buckets))
	for _, p := range buckets {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points, nil
}

// MethodBreakdown totals completed payouts between from and to by method.
func (s *Service) MethodBreakdown(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error) {
	_, outgoing, err := s.settled(ctx, from, to)
	if err != nil {
		return nil, err
	}
	totals := map[string]decimal.Decimal{}
	for _, row := range outgoing {
		totals[row.Method] = totals[row.Method].Add(row.Amount)
	}
	return totals, nil
}

func (s *Service) settled(ctx context.Context, from, to time.Time) ([]DatedAmount, []DatedAmount, error) {
	incoming, err := s.repo.InvoicePayments(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice payments")
	}
	outgoing, err := s.repo.PayoutCompletions(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payout completions")
	}
	return incoming, outgoing, nil
}

func periodKey(t time.Time, interval Interval) string {
	t = t.UTC()
	switch interval {
	case IntervalDaily:
		return t.Format("2006-01-02")
	case IntervalWeekly:
		offset := (int(t.Weekday()) + 6) % 7
		monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
		return monday.Format("2006-01-02")
	default:
		return t.Format("2006-01")
	}
}

// ParseInterval maps a query value onto an Interval, defaulting to monthly.
func ParseInterval(value string) (Interval, error) {
	switch Interval(value) {
	case "":
		return IntervalMonthly, nil
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return Interval(value), nil
	}
	return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown interval %q", value)
}
