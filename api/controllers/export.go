package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/earnings-ledger/api/responses"
	"github.com/angelmondragon/earnings-ledger/api/validators"
	"github.com/angelmondragon/earnings-ledger/internal/exports"
	"github.com/angelmondragon/earnings-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

// ExportFormat reads ?format=, defaulting to csv.
func ExportFormat(r *http.Request) (enums.ExportFormat, error) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if raw == "" {
		return enums.ExportFormatCSV, nil
	}
	format, err := enums.ParseExportFormat(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid export format")
	}
	return format, nil
}

// WriteExport renders table in the requested format, keeping only the columns
// named by ?fields= when present.
func WriteExport(w http.ResponseWriter, r *http.Request, logg *logger.Logger, table exports.Table, now time.Time) {
	format, err := ExportFormat(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	file, err := exports.Write(format, table.Select(validators.ParseQueryList(r, "fields")), now)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if logg != nil {
		ctx := logg.WithFields(r.Context(), map[string]any{
			"export":  table.Name,
			"format":  string(format),
			"records": file.Records,
		})
		logg.Info(ctx, "export.rendered")
	}
	responses.WriteFile(w, file.ContentType, file.Filename, file.Records, file.Data)
}

// ParseUUIDs parses a list of ids from a request body.
func ParseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(strings.TrimSpace(value))
		if err != nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid id %q", value)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UUIDString renders an optional id.
func UUIDString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
