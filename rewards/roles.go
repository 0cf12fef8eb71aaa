package rewards

import "avolve-rewards/models"

// NextRecommendedRole picks the role the user should act in next: the one with
// the fewest points. Roles missing from points count as zero; ties go to the
// earlier role in models.Roles.
func NextRecommendedRole(points []models.RolePoints) models.RoleType {
	byRole := make(map[models.RoleType]int64, len(models.Roles))
	for _, p := range points {
		byRole[p.RoleType] += p.Points
	}

	best := models.Roles[0]
	for _, role := range models.Roles[1:] {
		if byRole[role] < byRole[best] {
			best = role
		}
	}
	return best
}
