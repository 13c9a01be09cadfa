// Package reports runs the recurring ledger exports defined as scheduled
// reports.
package reports

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/earnings-ledger/internal/audit"
	"github.com/angelmondragon/earnings-ledger/internal/commissions"
	"github.com/angelmondragon/earnings-ledger/internal/exports"
	"github.com/angelmondragon/earnings-ledger/internal/invoices"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	"github.com/angelmondragon/earnings-ledger/internal/payouts"
	"github.com/angelmondragon/earnings-ledger/internal/schedule"
	"github.com/angelmondragon/earnings-ledger/internal/transactions"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	dbtypes "github.com/angelmondragon/earnings-ledger/pkg/db/types"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

const (
	resourceType        = "scheduled_report"
	defaultBatchSize    = 50
	defaultLookbackDays = 30
	defaultRowLimit     = 10000
)

// CommissionSource, InvoiceSource, PayoutSource and FeedSource are the read
// paths a report can export.
type CommissionSource interface {
	ListForExport(ctx context.Context, filter commissions.Filter, limit int) ([]models.Commission, error)
}

type InvoiceSource interface {
	ListForExport(ctx context.Context, filter invoices.Filter, limit int) ([]models.Invoice, error)
}

type PayoutSource interface {
	ListForExport(ctx context.Context, filter payouts.Filter, limit int) ([]models.Payout, error)
}

type FeedSource interface {
	Entries(ctx context.Context, filter transactions.Filter) ([]transactions.Entry, error)
}

// Archive stores rendered report files. *gcs.Client satisfies it.
type Archive interface {
	ObjectName(name string) string
	Upload(ctx context.Context, object, contentType string, data []byte) error
}

// Parameters narrow what a report exports. Days is the lookback window ending
// at the run time.
type Parameters struct {
	Days       int      `json:"days,omitempty"`
	ResellerID string   `json:"reseller_id,omitempty"`
	Status     string   `json:"status,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// CreateInput defines a new scheduled report.
type CreateInput struct {
	Name       string
	ReportType enums.ReportType
	Format     enums.ExportFormat
	Schedule   string
	Recipients []string
	Parameters Parameters
}

// RunResult counts the reports handled by one RunDue pass.
type RunResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Service owns scheduled report definitions and executes the due ones.
type Service struct {
	repo         Repository
	commissions  CommissionSource
	invoices     InvoiceSource
	payouts      PayoutSource
	feed         FeedSource
	archive      Archive
	audit        audit.Sink
	logg         *logger.Logger
	now          ledger.Clock
	batchSize    int
	lookbackDays int
	rowLimit     int
}

// ServiceParams groups the dependencies of the report service. Archive is
// optional; without it rendered files are only logged.
type ServiceParams struct {
	Repo         Repository
	Commissions  CommissionSource
	Invoices     InvoiceSource
	Payouts      PayoutSource
	Feed         FeedSource
	Archive      Archive
	Audit        audit.Sink
	Logger       *logger.Logger
	Clock        ledger.Clock
	BatchSize    int
	LookbackDays int
	RowLimit     int
}

// NewService wires the report service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("report repository required")
	}
	if params.Commissions == nil || params.Invoices == nil || params.Payouts == nil || params.Feed == nil {
		return nil, fmt.Errorf("report sources required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	svc := &Service{
		repo:         params.Repo,
		commissions:  params.Commissions,
		invoices:     params.Invoices,
		payouts:      params.Payouts,
		feed:         params.Feed,
		archive:      params.Archive,
		audit:        params.Audit,
		logg:         params.Logger,
		now:          params.Clock,
		batchSize:    params.BatchSize,
		lookbackDays: params.LookbackDays,
		rowLimit:     params.RowLimit,
	}
	if svc.audit == nil {
		svc.audit = audit.Discard
	}
	if svc.now == nil {
		svc.now = ledger.UTCNow
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.lookbackDays <= 0 {
		svc.lookbackDays = defaultLookbackDays
	}
	if svc.rowLimit <= 0 {
		svc.rowLimit = defaultRowLimit
	}
	return svc, nil
}

// Create stores a report definition with its first run time.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.ScheduledReport, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = string(input.ReportType) + " report"
	}
	if !input.ReportType.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown report type %q", input.ReportType)
	}
	if input.Format == "" {
		input.Format = enums.ExportFormatCSV
	}
	if !input.Format.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown export format %q", input.Format)
	}
	if input.Parameters.Days < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "days must not be negative")
	}
	if input.Parameters.ResellerID != "" {
		if _, err := uuid.Parse(input.Parameters.ResellerID); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reseller_id must be a uuid")
		}
	}
	schedExpr := strings.TrimSpace(input.Schedule)
	if !schedule.Valid(schedExpr) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "schedule must have five fields: minute hour day month weekday")
	}
	next, ok := schedule.NextRun(schedExpr, s.now())
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "schedule never fires")
	}

	recipients := input.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	recipientsJSON, err := dbtypes.MarshalJSONValue(recipients)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode recipients")
	}
	paramsJSON, err := dbtypes.MarshalJSONValue(input.Parameters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode parameters")
	}

	report := &models.ScheduledReport{
		Name:       name,
		ReportType: input.ReportType,
		Format:     input.Format,
		Schedule:   schedExpr,
		Recipients: recipientsJSON,
		Parameters: paramsJSON,
		IsActive:   true,
		NextRunAt:  &next,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create scheduled report")
	}
	return report, nil
}

// SetActive pauses or resumes a report. Resuming schedules the next run from now.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.ScheduledReport, error) {
	report, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "scheduled report not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load scheduled report")
	}
	if active && !report.IsActive {
		next, ok := schedule.NextRun(report.Schedule, s.now())
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "schedule never fires")
		}
		report.NextRunAt = &next
	}
	report.IsActive = active
	if err := s.repo.Save(ctx, report); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save scheduled report")
	}
	return report, nil
}

// List returns report definitions, newest first.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]models.ScheduledReport, error) {
	rows, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list scheduled reports")
	}
	return rows, nil
}

// RunDue renders every due report and moves its schedule forward. A report
// whose schedule has no further run is deactivated. Failures of one report do
// not stop the others; they are returned combined.
func (s *Service) RunDue(ctx context.Context) (RunResult, error) {
	now := s.now()
	due, err := s.repo.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return RunResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list due reports")
	}

	var (
		result RunResult
		errs   error
	)
	for i := range due {
		report := &due[i]
		if err := s.run(ctx, report, now); err != nil {
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("report %s: %w", report.ID, err))
			continue
		}
		result.Processed++
	}
	return result, errs
}

func (s *Service) run(ctx context.Context, report *models.ScheduledReport, now time.Time) error {
	ctx = s.logg.WithField(s.logg.WithEntity(ctx, "scheduled_report", report.ID.String()), "report_type", report.ReportType)

	file, object, renderErr := s.render(ctx, report, now)

	report.LastRunAt = &now
	if next, ok := schedule.NextRun(report.Schedule, now); ok {
		report.NextRunAt = &next
	} else {
		report.NextRunAt = nil
		report.IsActive = false
		s.logg.Warn(ctx, "report schedule has no further run; deactivated")
	}
	if err := s.repo.Save(ctx, report); err != nil {
		return multierr.Append(renderErr, fmt.Errorf("save schedule: %w", err))
	}

	details := map[string]any{
		"report_type": report.ReportType,
		"format":      report.Format,
		"schedule":    report.Schedule,
		"active":      report.IsActive,
	}
	if report.NextRunAt != nil {
		details["next_run_at"] = report.NextRunAt.UTC().Format(time.RFC3339)
	}
	if file != nil {
		details["records"] = file.Records
		details["filename"] = file.Filename
	}
	if object != "" {
		details["object"] = object
	}
	if renderErr != nil {
		details["error"] = renderErr.Error()
	}
	s.audit.Record(ctx, audit.Entry{
		Action:          enums.AuditReportScheduleRun,
		ResourceType:    resourceType,
		ResourceIDs:     []string{report.ID.String()},
		ResourceDisplay: report.Name,
		Details:         details,
	})
	return renderErr
}

// render builds and stores the export. It returns the file even when the
// upload fails so the run can still be audited.
func (s *Service) render(ctx context.Context, report *models.ScheduledReport, now time.Time) (*exports.File, string, error) {
	var params Parameters
	if err := report.Parameters.Decode(&params); err != nil {
		return nil, "", fmt.Errorf("decode parameters: %w", err)
	}
	table, err := s.Table(ctx, report.ReportType, params, now)
	if err != nil {
		return nil, "", err
	}
	file, err := exports.Write(report.Format, table.Select(params.Fields), now)
	if err != nil {
		return nil, "", err
	}

	if s.archive == nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"filename": file.Filename, "records": file.Records}), "scheduled report rendered")
		return file, "", nil
	}
	object := s.archive.ObjectName(path.Join(report.ID.String(), file.Filename))
	if err := s.archive.Upload(ctx, object, file.ContentType, file.Data); err != nil {
		return file, "", fmt.Errorf("archive upload: %w", err)
	}
	return file, object, nil
}

// Table loads the rows a report of kind exports for the lookback window
// ending at now.
func (s *Service) Table(ctx context.Context, kind enums.ReportType, params Parameters, now time.Time) (exports.Table, error) {
	days := params.Days
	if days <= 0 {
		days = s.lookbackDays
	}
	to := now.UTC()
	from := ledger.StartOfDay(to.AddDate(0, 0, -days))

	var resellerID *uuid.UUID
	if params.ResellerID != "" {
		id, err := uuid.Parse(params.ResellerID)
		if err != nil {
			return exports.Table{}, pkgerrors.New(pkgerrors.CodeValidation, "reseller_id must be a uuid")
		}
		resellerID = &id
	}

	switch kind {
	case enums.ReportTypeCommissions:
		filter := commissions.Filter{ResellerID: resellerID, From: &from, To: &to}
		if params.Status != "" {
			filter.Statuses = []enums.CommissionStatus{enums.CommissionStatus(params.Status)}
		}
		rows, err := s.commissions.ListForExport(ctx, filter, s.rowLimit)
		if err != nil {
			return exports.Table{}, err
		}
		return exports.Commissions(rows), nil
	case enums.ReportTypeInvoices:
		filter := invoices.Filter{ResellerID: resellerID, IssuedFrom: &from, IssuedTo: &to}
		if params.Status != "" {
			filter.Statuses = []enums.InvoiceStatus{enums.InvoiceStatus(params.Status)}
		}
		rows, err := s.invoices.ListForExport(ctx, filter, s.rowLimit)
		if err != nil {
			return exports.Table{}, err
		}
		return exports.Invoices(rows), nil
	case enums.ReportTypePayouts:
		filter := payouts.Filter{ResellerID: resellerID, From: &from, To: &to}
		if params.Status != "" {
			filter.Statuses = []enums.PayoutStatus{enums.PayoutStatus(params.Status)}
		}
		rows, err := s.payouts.ListForExport(ctx, filter, s.rowLimit)
		if err != nil {
			return exports.Table{}, err
		}
		return exports.Payouts(rows), nil
	case enums.ReportTypeTransactions:
		entries, err := s.feed.Entries(ctx, transactions.Filter{From: &from, To: &to, Status: params.Status})
		if err != nil {
			return exports.Table{}, err
		}
		return transactions.Table(entries), nil
	}
	return exports.Table{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown report type %q", kind)
}
