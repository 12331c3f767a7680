// Package export renders the complaints a user may see as a JSON or CSV
// download.
package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/complaints"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/pagination"
)

// MaxRows caps a single export.
const MaxRows = 10000

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Columns is the CSV header row
var Columns = []string{
	"id", "title", "category", "priority", "status",
	"university_id", "department_id", "complainant_id", "complainant_name", "is_anonymous",
	"assigned_user_ids", "due_date", "is_overdue", "resolved_at", "satisfaction_rating",
	"created_at", "updated_at",
}

// Collect pages through the complaints actor may list, applying the same
// visibility and filters as the list endpoint. truncated reports that more
// than MaxRows matched.
func Collect(ctx context.Context, svc *complaints.Service, actor *models.User, filter complaints.ListFilter, now time.Time) (rows []complaints.ComplaintResponse, truncated bool, err error) {
	rows = []complaints.ComplaintResponse{}
	for page := 1; ; page++ {
		params, _ := pagination.New(page, pagination.MaxSize)
		result, err := svc.List(ctx, actor, filter, params)
		if err != nil {
			return nil, false, err
		}
		for i := range result.Items {
			if len(rows) == MaxRows {
				return rows, true, nil
			}
			rows = append(rows, complaints.ToResponse(actor, &result.Items[i], now))
		}
		if page >= result.Pages {
			return rows, false, nil
		}
	}
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []complaints.ComplaintResponse) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(r complaints.ComplaintResponse) []string {
	assigned := make([]string, len(r.AssignedUserIDs))
	for i, id := range r.AssignedUserIDs {
		assigned[i] = strconv.FormatUint(uint64(id), 10)
	}
	rating := ""
	if r.SatisfactionRating != nil {
		rating = strconv.Itoa(*r.SatisfactionRating)
	}
	return []string{
		strconv.FormatUint(uint64(r.ID), 10),
		r.Title,
		r.Category,
		r.Priority,
		r.Status,
		strconv.FormatUint(uint64(r.UniversityID), 10),
		optional(r.DepartmentID),
		optional(r.ComplainantID),
		r.ComplainantName,
		strconv.FormatBool(r.IsAnonymous),
		strings.Join(assigned, " "),
		r.DueDate,
		strconv.FormatBool(r.IsOverdue),
		r.ResolvedAt,
		rating,
		r.CreatedAt,
		r.UpdatedAt,
	}
}

func optional(id *uint) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*id), 10)
}
