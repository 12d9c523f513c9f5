package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
)

// MergeStrategy recomputes canonical fields from all source rows of an
// entity. Source rows are read most recently updated first, so "first
// non-empty" scans favor fresh data. Merge failures never abort the
// surrounding create/update flow: callers get ErrMergeFailed and move on.
//
// Rules:
//   - name: majority vote, ties broken by scan order
//   - description: longest non-empty
//   - coordinates: most recently updated source
//   - optional scalars: first non-empty, most-recent-first
type MergeStrategy struct {
	orgs      OrganizationRepository
	locations LocationRepository
	services  ServiceRepository
	log       *logrus.Entry
}

func NewMergeStrategy(orgs OrganizationRepository, locations LocationRepository, svcs ServiceRepository, log *logrus.Entry) *MergeStrategy {
	return &MergeStrategy{
		orgs:      orgs,
		locations: locations,
		services:  svcs,
		log:       log.WithField("component", "MergeStrategy"),
	}
}

func (m *MergeStrategy) MergeOrganization(ctx context.Context, id uuid.UUID) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		sources, err := m.orgs.GetSources(txCtx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		if len(sources) == 0 {
			return fmt.Errorf("%w: organization %s has no source rows", ErrMergeFailed, id)
		}

		current, err := m.orgs.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}

		merged := *current
		names := make([]string, 0, len(sources))
		descriptions := make([]string, 0, len(sources))
		for _, s := range sources {
			names = append(names, s.Name)
			descriptions = append(descriptions, s.Description)
		}
		if name := majorityVote(names); name != "" {
			merged.Name = name
		}
		if desc := longestNonEmpty(descriptions); desc != "" {
			merged.Description = desc
		}
		// Optional scalars are recomputed from sources alone: first
		// non-empty wins, most-recent-first.
		merged.Website, merged.Email = "", ""
		merged.LegalStatus, merged.TaxStatus, merged.TaxID, merged.URI = "", "", "", ""
		merged.YearIncorporated = nil
		for _, s := range sources {
			merged.Website = firstNonEmpty(merged.Website, s.Website)
			merged.Email = firstNonEmpty(merged.Email, s.Email)
			merged.LegalStatus = firstNonEmpty(merged.LegalStatus, s.LegalStatus)
			merged.TaxStatus = firstNonEmpty(merged.TaxStatus, s.TaxStatus)
			merged.TaxID = firstNonEmpty(merged.TaxID, s.TaxID)
			merged.URI = firstNonEmpty(merged.URI, s.URI)
			if merged.YearIncorporated == nil && s.YearIncorporated != nil {
				merged.YearIncorporated = s.YearIncorporated
			}
		}

		if err := m.orgs.UpdateCanonical(txCtx, merged); err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		return nil
	})
}

func (m *MergeStrategy) MergeLocation(ctx context.Context, id uuid.UUID) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		sources, err := m.locations.GetSources(txCtx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		if len(sources) == 0 {
			return fmt.Errorf("%w: location %s has no source rows", ErrMergeFailed, id)
		}

		current, err := m.locations.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}

		merged := *current
		names := make([]string, 0, len(sources))
		descriptions := make([]string, 0, len(sources))
		for _, s := range sources {
			names = append(names, s.Name)
			descriptions = append(descriptions, s.Description)
		}
		if name := majorityVote(names); name != "" {
			merged.Name = name
		}
		if desc := longestNonEmpty(descriptions); desc != "" {
			merged.Description = desc
		}
		// Sources are most-recent-first: coordinates come from the latest.
		merged.Latitude = sources[0].Latitude
		merged.Longitude = sources[0].Longitude

		if err := m.locations.UpdateCanonical(txCtx, merged); err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		return nil
	})
}

// MergeService recomputes everything except the name: the service name is
// the uniqueness key, so voting it could collide with a sibling service.
func (m *MergeStrategy) MergeService(ctx context.Context, id uuid.UUID) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		sources, err := m.services.GetSources(txCtx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		if len(sources) == 0 {
			return fmt.Errorf("%w: service %s has no source rows", ErrMergeFailed, id)
		}

		current, err := m.services.GetByID(txCtx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}

		merged := *current
		descriptions := make([]string, 0, len(sources))
		for _, s := range sources {
			descriptions = append(descriptions, s.Description)
		}
		if desc := longestNonEmpty(descriptions); desc != "" {
			merged.Description = desc
		}
		merged.Status = ""
		merged.ConfidenceScore = nil
		for _, s := range sources {
			merged.Status = firstNonEmpty(merged.Status, s.Status)
			if merged.ConfidenceScore == nil && s.ConfidenceScore != nil {
				merged.ConfidenceScore = s.ConfidenceScore
			}
		}
		if merged.Status == "" {
			merged.Status = current.Status
		}

		if err := m.services.UpdateCanonical(txCtx, merged); err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		return nil
	})
}

// majorityVote picks the most frequent non-empty value. Ties go to the value
// seen first in scan order.
func majorityVote(values []string) string {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		if v != "" {
			counts[v]++
		}
	}

	// Second pass in input order so an equal count never displaces an
	// earlier-seen value.
	best := ""
	bestCount := 0
	seen := make(map[string]bool, len(counts))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

func longestNonEmpty(values []string) string {
	best := ""
	for _, v := range values {
		if len(v) > len(best) {
			best = v
		}
	}
	return best
}

func firstNonEmpty(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}
