package store

import (
	"sort"
	"time"
)

// SelectForDeletion applies the retention policy to infos. Runs older than
// olderThanDays are selected, and beyond that only the newest keepLast runs
// survive. A zero value disables the corresponding rule.
func SelectForDeletion(infos []RunInfo, keepLast int, olderThanDays int) []RunInfo {
	return selectForDeletion(infos, keepLast, olderThanDays, time.Now())
}

func selectForDeletion(infos []RunInfo, keepLast, olderThanDays int, now time.Time) []RunInfo {
	var toDelete []RunInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]RunInfo, len(infos))
		copy(sorted, infos)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.RunID] {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	return toDelete
}
