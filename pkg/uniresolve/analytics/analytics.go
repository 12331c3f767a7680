// Package analytics computes read-only statistics over a university's
// complaints.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

const (
	DefaultMonths = 6
	MaxMonths     = 24

	monthFormat = "2006-01"
)

// Filter narrows the dashboard. Zero values mean no restriction.
type Filter struct {
	DepartmentID *uint
	From         *time.Time
	To           *time.Time
}

// Dashboard is the headline view of a tenant's complaints
type Dashboard struct {
	TotalComplaints       int64            `json:"total_complaints"`
	PendingComplaints     int64            `json:"pending_complaints"`
	ResolvedComplaints    int64            `json:"resolved_complaints"`
	OverdueComplaints     int64            `json:"overdue_complaints"`
	AverageResolutionTime float64          `json:"average_resolution_time"`
	SatisfactionScore     float64          `json:"satisfaction_score"`
	ComplaintsByCategory  map[string]int64 `json:"complaints_by_category"`
	ComplaintsByStatus    map[string]int64 `json:"complaints_by_status"`
	MonthlyTrends         []MonthlyTrend   `json:"monthly_trends"`
}

// MonthlyTrend is one calendar month of the trend window
type MonthlyTrend struct {
	Month              string  `json:"month"`
	TotalComplaints    int64   `json:"total_complaints"`
	ResolvedComplaints int64   `json:"resolved_complaints"`
	ResolutionRate     float64 `json:"resolution_rate"`
}

// DepartmentStats is the performance of one department
type DepartmentStats struct {
	DepartmentID        uint    `json:"department_id"`
	Department          string  `json:"department"`
	Code                string  `json:"code"`
	TotalComplaints     int64   `json:"total_complaints"`
	ResolvedComplaints  int64   `json:"resolved_complaints"`
	ResolutionRate      float64 `json:"resolution_rate"`
	AverageSatisfaction float64 `json:"average_satisfaction"`
}

// SystemStats counts platform-wide totals, or one university's when scoped.
type SystemStats struct {
	Universities       int64 `json:"universities"`
	ActiveUniversities int64 `json:"active_universities"`
	Users              int64 `json:"users"`
	ActiveUsers        int64 `json:"active_users"`
	Complaints         int64 `json:"complaints"`
	ActiveComplaints   int64 `json:"active_complaints"`
}

// Service runs the aggregation queries
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) scoped(ctx context.Context, universityID uint, f Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Complaint{}).Where("university_id = ?", universityID)
	if f.DepartmentID != nil {
		q = q.Where("department_id = ?", *f.DepartmentID)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	return q
}

type bucket struct {
	Name  string
	Count int64
}

// Dashboard aggregates a university's complaints. The breakdown maps hold
// every category and status, zero when absent.
func (s *Service) Dashboard(ctx context.Context, universityID uint, f Filter) (*Dashboard, error) {
	now := s.now()
	d := &Dashboard{
		ComplaintsByCategory: make(map[string]int64),
		ComplaintsByStatus:   make(map[string]int64),
	}
	for _, c := range models.AllCategories() {
		d.ComplaintsByCategory[string(c)] = 0
	}
	for _, st := range models.AllStatuses() {
		d.ComplaintsByStatus[string(st)] = 0
	}

	var byStatus []bucket
	if err := s.scoped(ctx, universityID, f).
		Select("status AS name, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	for _, b := range byStatus {
		d.ComplaintsByStatus[b.Name] = b.Count
		d.TotalComplaints += b.Count
		st := models.ComplaintStatus(b.Name)
		if st.IsPending() {
			d.PendingComplaints += b.Count
		}
		if st == models.StatusResolved {
			d.ResolvedComplaints += b.Count
		}
	}

	var byCategory []bucket
	if err := s.scoped(ctx, universityID, f).
		Select("category AS name, COUNT(*) AS count").
		Group("category").
		Scan(&byCategory).Error; err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	for _, b := range byCategory {
		d.ComplaintsByCategory[b.Name] = b.Count
	}

	if err := s.scoped(ctx, universityID, f).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Where("status NOT IN ?", []models.ComplaintStatus{models.StatusResolved, models.StatusClosed}).
		Count(&d.OverdueComplaints).Error; err != nil {
		return nil, fmt.Errorf("count overdue: %w", err)
	}

	// Durations are summed in Go so the query stays portable between SQLite
	// and PostgreSQL.
	var resolved []struct {
		CreatedAt  time.Time
		ResolvedAt time.Time
	}
	if err := s.scoped(ctx, universityID, f).
		Select("created_at, resolved_at").
		Where("resolved_at IS NOT NULL").
		Scan(&resolved).Error; err != nil {
		return nil, fmt.Errorf("load resolution times: %w", err)
	}
	if len(resolved) > 0 {
		var hours float64
		for _, r := range resolved {
			hours += r.ResolvedAt.Sub(r.CreatedAt).Hours()
		}
		d.AverageResolutionTime = round2(hours / float64(len(resolved)))
	}

	var satisfaction sql.NullFloat64
	if err := s.scoped(ctx, universityID, f).
		Select("AVG(satisfaction_rating)").
		Where("satisfaction_rating IS NOT NULL").
		Scan(&satisfaction).Error; err != nil {
		return nil, fmt.Errorf("average satisfaction: %w", err)
	}
	if satisfaction.Valid {
		d.SatisfactionScore = round2(satisfaction.Float64)
	}

	trends, err := s.MonthlyTrends(ctx, universityID, DefaultMonths)
	if err != nil {
		return nil, err
	}
	d.MonthlyTrends = trends
	return d, nil
}

// MonthlyTrends buckets complaints by creation month over the trailing window
// ending with the current month. Every month of the window is present.
func (s *Service) MonthlyTrends(ctx context.Context, universityID uint, months int) ([]MonthlyTrend, error) {
	if months == 0 {
		months = DefaultMonths
	}
	if months < 1 || months > MaxMonths {
		return nil, apperr.Invalid("months", fmt.Sprintf("must be between 1 and %d", MaxMonths))
	}

	now := s.now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(months - 1), 0)

	trends := make([]MonthlyTrend, months)
	index := make(map[string]int, months)
	for i := range trends {
		key := start.AddDate(0, i, 0).Format(monthFormat)
		trends[i].Month = key
		index[key] = i
	}

	var rows []struct {
		CreatedAt time.Time
		Status    models.ComplaintStatus
	}
	if err := s.db.WithContext(ctx).Model(&models.Complaint{}).
		Select("created_at, status").
		Where("university_id = ? AND created_at >= ?", universityID, start).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("load trend rows: %w", err)
	}

	for _, r := range rows {
		i, ok := index[r.CreatedAt.In(now.Location()).Format(monthFormat)]
		if !ok {
			continue
		}
		trends[i].TotalComplaints++
		if r.Status == models.StatusResolved {
			trends[i].ResolvedComplaints++
		}
	}
	for i := range trends {
		trends[i].ResolutionRate = rate(trends[i].ResolvedComplaints, trends[i].TotalComplaints)
	}
	return trends, nil
}

// DepartmentPerformance reports every department of the university,
// including those without complaints.
func (s *Service) DepartmentPerformance(ctx context.Context, universityID uint) ([]DepartmentStats, error) {
	var rows []struct {
		ID              uint
		Name            string
		Code            string
		Total           int64
		Resolved        int64
		AvgSatisfaction *float64
	}
	err := s.db.WithContext(ctx).Model(&models.Department{}).
		Select(`departments.id, departments.name, departments.code,
			COUNT(complaints.id) AS total,
			COALESCE(SUM(CASE WHEN complaints.status = ? THEN 1 ELSE 0 END), 0) AS resolved,
			AVG(complaints.satisfaction_rating) AS avg_satisfaction`, models.StatusResolved).
		Joins("LEFT JOIN complaints ON complaints.department_id = departments.id AND complaints.deleted_at IS NULL").
		Where("departments.university_id = ?", universityID).
		Group("departments.id, departments.name, departments.code").
		Order("departments.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("department performance: %w", err)
	}

	out := make([]DepartmentStats, len(rows))
	for i, r := range rows {
		out[i] = DepartmentStats{
			DepartmentID:       r.ID,
			Department:         r.Name,
			Code:               r.Code,
			TotalComplaints:    r.Total,
			ResolvedComplaints: r.Resolved,
			ResolutionRate:     rate(r.Resolved, r.Total),
		}
		if r.AvgSatisfaction != nil {
			out[i].AverageSatisfaction = round2(*r.AvgSatisfaction)
		}
	}
	return out, nil
}

// SystemStats counts universities, users and complaints. A non-nil
// universityID limits the counts to that tenant.
func (s *Service) SystemStats(ctx context.Context, universityID *uint) (*SystemStats, error) {
	db := s.db.WithContext(ctx)
	scope := func(q *gorm.DB, column string) *gorm.DB {
		if universityID != nil {
			return q.Where(column+" = ?", *universityID)
		}
		return q
	}

	var st SystemStats
	counts := []struct {
		q    *gorm.DB
		dest *int64
	}{
		{scope(db.Model(&models.University{}), "id"), &st.Universities},
		{scope(db.Model(&models.University{}), "id").Where("is_active = ?", true), &st.ActiveUniversities},
		{scope(db.Model(&models.User{}), "university_id"), &st.Users},
		{scope(db.Model(&models.User{}), "university_id").Where("is_active = ?", true), &st.ActiveUsers},
		{scope(db.Model(&models.Complaint{}), "university_id"), &st.Complaints},
		{scope(db.Model(&models.Complaint{}), "university_id").
			Where("status NOT IN ?", []models.ComplaintStatus{models.StatusResolved, models.StatusClosed}), &st.ActiveComplaints},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("system stats: %w", err)
		}
	}
	return &st, nil
}

// rate is resolved/total as a percentage, 0 when total is 0.
func rate(resolved, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(resolved) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
