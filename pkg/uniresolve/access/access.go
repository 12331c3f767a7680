// Package access holds every role and tenant rule in one place. All
// functions are pure: they look only at their arguments.
package access

import (
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// IsStaffTier reports whether role handles complaints for its tenant.
func IsStaffTier(role models.Role) bool {
	return role == models.RoleStaff || role == models.RoleAdmin || role == models.RoleSuperAdmin
}

// IsAdminTier reports whether role manages users and tenant settings.
func IsAdminTier(role models.Role) bool {
	return role == models.RoleAdmin || role == models.RoleSuperAdmin
}

// CanAccess decides whether actor may view complaint. Rules are evaluated in
// order and the first match wins. complaint.Assignments must be loaded.
func CanAccess(actor *models.User, complaint *models.Complaint) bool {
	if actor == nil || complaint == nil {
		return false
	}
	if actor.Role == models.RoleSuperAdmin {
		return true
	}
	if actor.UniversityID != complaint.UniversityID {
		return false
	}
	if actor.ID == complaint.ComplainantID {
		return true
	}
	if complaint.IsAssigned(actor.ID) {
		return true
	}
	return actor.Role == models.RoleStaff || actor.Role == models.RoleAdmin
}

// CanMutate decides whether actor may change complaint. Students lose write
// access once the complaint is resolved or closed.
func CanMutate(actor *models.User, complaint *models.Complaint) bool {
	if !CanAccess(actor, complaint) {
		return false
	}
	if actor.Role == models.RoleStudent && complaint.Status.IsTerminal() {
		return false
	}
	return true
}

// CanViewInternal reports whether actor may read internal messages. It is
// applied after CanAccess.
func CanViewInternal(actor *models.User) bool {
	return actor != nil && IsStaffTier(actor.Role)
}

// CanPostInternal reports whether actor may write internal messages.
func CanPostInternal(actor *models.User) bool {
	return CanViewInternal(actor)
}

// CanAssign reports whether actor may replace the assignee set.
func CanAssign(actor *models.User, complaint *models.Complaint) bool {
	return actor != nil && IsStaffTier(actor.Role) && CanAccess(actor, complaint)
}

// CanChangeStatus reports whether actor may move complaint to next. Students
// may only close their own complaints; everything else is staff work.
func CanChangeStatus(actor *models.User, complaint *models.Complaint, next models.ComplaintStatus) bool {
	if !CanMutate(actor, complaint) {
		return false
	}
	if IsStaffTier(actor.Role) {
		return true
	}
	return actor.ID == complaint.ComplainantID && next == models.StatusClosed
}

// CanRate reports whether actor may leave a satisfaction rating. Only the
// complainant may rate, and only once the complaint is resolved or closed.
func CanRate(actor *models.User, complaint *models.Complaint) bool {
	if actor == nil || complaint == nil {
		return false
	}
	return actor.ID == complaint.ComplainantID && complaint.Status.IsTerminal()
}

// CanSeeIdentity reports whether actor may see who filed complaint.
// Anonymous complaints hide the complainant from everyone but the
// complainant and staff-tier users.
func CanSeeIdentity(actor *models.User, complaint *models.Complaint) bool {
	if !complaint.IsAnonymous {
		return true
	}
	return actor != nil && (actor.ID == complaint.ComplainantID || IsStaffTier(actor.Role))
}

// CanManageTenant reports whether actor administers universityID.
func CanManageTenant(actor *models.User, universityID uint) bool {
	if actor == nil {
		return false
	}
	if actor.Role == models.RoleSuperAdmin {
		return true
	}
	return actor.Role == models.RoleAdmin && actor.UniversityID == universityID
}

// CanViewTenant reports whether actor may read tenant-wide data such as
// analytics for universityID.
func CanViewTenant(actor *models.User, universityID uint) bool {
	if actor == nil {
		return false
	}
	if actor.Role == models.RoleSuperAdmin {
		return true
	}
	return IsStaffTier(actor.Role) && actor.UniversityID == universityID
}

// CanChangeRole decides whether actor may set target's role to next. Nobody
// changes their own role, and only a super admin grants or revokes
// super_admin.
func CanChangeRole(actor, target *models.User, next models.Role) bool {
	if actor == nil || target == nil || !next.Valid() {
		return false
	}
	if actor.ID == target.ID {
		return false
	}
	if !CanManageTenant(actor, target.UniversityID) {
		return false
	}
	if actor.Role != models.RoleSuperAdmin &&
		(next == models.RoleSuperAdmin || target.Role == models.RoleSuperAdmin) {
		return false
	}
	return true
}

// FilterMessages drops internal messages for actors who may not see them.
func FilterMessages(actor *models.User, messages []models.Message) []models.Message {
	if CanViewInternal(actor) {
		return messages
	}
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if !m.IsInternal {
			out = append(out, m)
		}
	}
	return out
}
