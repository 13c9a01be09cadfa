// Package reports exposes scheduled report definitions and ad hoc report
// downloads.
package reports

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/earnings-ledger/api/controllers"
	"github.com/angelmondragon/earnings-ledger/api/responses"
	"github.com/angelmondragon/earnings-ledger/api/validators"
	"github.com/angelmondragon/earnings-ledger/internal/exports"
	"github.com/angelmondragon/earnings-ledger/internal/ledger"
	internalreports "github.com/angelmondragon/earnings-ledger/internal/reports"
	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

// Service is the scheduled report surface the admin API drives.
type Service interface {
	Create(ctx context.Context, input internalreports.CreateInput) (*models.ScheduledReport, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.ScheduledReport, error)
	List(ctx context.Context, activeOnly bool) ([]models.ScheduledReport, error)
	RunDue(ctx context.Context) (internalreports.RunResult, error)
	Table(ctx context.Context, kind enums.ReportType, params internalreports.Parameters, now time.Time) (exports.Table, error)
}

// Report is the API representation of a scheduled report definition.
type Report struct {
	ID         string                     `json:"id"`
	Name       string                     `json:"name"`
	ReportType string                     `json:"report_type"`
	Format     string                     `json:"format"`
	Schedule   string                     `json:"schedule"`
	Recipients []string                   `json:"recipients"`
	Parameters internalreports.Parameters `json:"parameters"`
	IsActive   bool                       `json:"is_active"`
	LastRunAt  *time.Time                 `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time                 `json:"next_run_at,omitempty"`
	CreatedAt  time.Time                  `json:"created_at"`
}

func toReport(m *models.ScheduledReport) (Report, error) {
	out := Report{
		ID:         m.ID.String(),
		Name:       m.Name,
		ReportType: string(m.ReportType),
		Format:     string(m.Format),
		Schedule:   m.Schedule,
		Recipients: []string{},
		IsActive:   m.IsActive,
		LastRunAt:  m.LastRunAt,
		NextRunAt:  m.NextRunAt,
		CreatedAt:  m.CreatedAt,
	}
	if err := m.Recipients.Decode(&out.Recipients); err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode report recipients")
	}
	if err := m.Parameters.Decode(&out.Parameters); err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode report parameters")
	}
	return out, nil
}

type createRequest struct {
	Name       string                     `json:"name" validate:"max=255"`
	ReportType string                     `json:"report_type" validate:"required"`
	Format     string                     `json:"format"`
	Schedule   string                     `json:"schedule" validate:"required"`
	Recipients []string                   `json:"recipients" validate:"dive,email"`
	Parameters internalreports.Parameters `json:"parameters"`
}

// List returns report definitions; ?active=true limits to active ones.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.List(r.Context(), r.URL.Query().Get("active") == "true")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]Report, 0, len(rows))
		for i := range rows {
			report, err := toReport(&rows[i])
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			out = append(out, report)
		}
		responses.WriteSuccess(w, out)
	}
}

// Create stores a new scheduled report definition.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := parseReportType(req.ReportType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var format enums.ExportFormat
		if req.Format != "" {
			if format, err = enums.ParseExportFormat(strings.ToLower(req.Format)); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid format"))
				return
			}
		}
		report, err := svc.Create(r.Context(), internalreports.CreateInput{
			Name:       req.Name,
			ReportType: kind,
			Format:     format,
			Schedule:   req.Schedule,
			Recipients: req.Recipients,
			Parameters: req.Parameters,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body, err := toReport(report)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, body)
	}
}

// Pause deactivates a report.
func Pause(svc Service, logg *logger.Logger) http.HandlerFunc {
	return setActive(svc, logg, false)
}

// Resume reactivates a report and schedules its next run from now.
func Resume(svc Service, logg *logger.Logger) http.HandlerFunc {
	return setActive(svc, logg, true)
}

func setActive(svc Service, logg *logger.Logger, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseURLUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.SetActive(r.Context(), id, active)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body, err := toReport(report)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, body)
	}
}

// RunDue executes every due report now, the same pass the cron worker makes.
// Per-report failures are reported in the counts, not as an error response.
func RunDue(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.RunDue(r.Context())
		if err != nil && result.Processed == 0 && result.Failed == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil {
			logg.Warn(logg.WithField(r.Context(), "failed", result.Failed), "some scheduled reports failed: "+err.Error())
		}
		responses.WriteSuccess(w, result)
	}
}

// Download renders one report type on demand with the same parameters a
// scheduled report accepts (?days, reseller_id, status, fields, format).
func Download(svc Service, clock ledger.Clock, logg *logger.Logger) http.HandlerFunc {
	if clock == nil {
		clock = ledger.UTCNow
	}
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := parseReportType(chi.URLParam(r, "type"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		days, err := validators.ParseQueryInt(r, "days", 0, 0, 3660)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := internalreports.Parameters{
			Days:       days,
			ResellerID: strings.TrimSpace(r.URL.Query().Get("reseller_id")),
			Status:     strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))),
		}
		now := clock()
		table, err := svc.Table(r.Context(), kind, params, now)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		controllers.WriteExport(w, r, logg, table, now)
	}
}

func parseReportType(raw string) (enums.ReportType, error) {
	kind, err := enums.ParseReportType(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid report_type")
	}
	return kind, nil
}
