package domain

// MergeProfiles folds a source profile (usually an anonymous session) into a
// target profile: score components are summed component-wise, the attendance
// flag and sticky flag are OR-ed, and the tier is recomputed over the merged
// total without ever dropping below the target's current tier. When either
// side is sticky the target's tier is preserved as-is.
func MergeProfiles(target, source LeadProfile) LeadProfile {
	merged := target
	merged.Breakdown = target.Breakdown.Clone()

	for name, value := range source.Breakdown.Components {
		merged.Breakdown.Components[name] += value
	}
	merged.Breakdown.AttendanceMinutes += source.Breakdown.AttendanceMinutes
	merged.Breakdown.recomputeTotal()

	merged.HasAttendedWebinar = target.HasAttendedWebinar || source.HasAttendedWebinar
	merged.Sticky = target.Sticky || source.Sticky

	if !merged.Sticky {
		merged.Tier = MaxTier(target.Tier, TierFromScore(merged.Breakdown.Total, merged.HasAttendedWebinar))
	}

	if source.CreatedAt.Before(merged.CreatedAt) {
		merged.CreatedAt = source.CreatedAt
	}
	if source.LastInteraction.After(merged.LastInteraction) {
		merged.LastInteraction = source.LastInteraction
	}

	if merged.Name == "" {
		merged.Name = source.Name
	}
	if merged.Phone == "" {
		merged.Phone = source.Phone
	}
	if merged.Source == "" {
		merged.Source = source.Source
	}
	for k, v := range source.Metadata {
		if merged.Metadata == nil {
			merged.Metadata = map[string]any{}
		}
		if _, exists := merged.Metadata[k]; !exists {
			merged.Metadata[k] = v
		}
	}

	return merged
}
