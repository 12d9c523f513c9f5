package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/composables"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/eventbus"
	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/pkg/retry"
)

// OrganizationCreator owns the organization family: atomic find-or-create
// keyed by normalized name, source-record upsert, and version/merge
// bookkeeping.
type OrganizationCreator struct {
	repo     OrganizationRepository
	attrs    AttributeRepository
	versions *VersionTracker
	merge    *MergeStrategy
	upserts  *upsertRunner
	bus      eventbus.EventBus
	log      *logrus.Entry
}

func NewOrganizationCreator(
	repo OrganizationRepository,
	attrs AttributeRepository,
	versions *VersionTracker,
	merge *MergeStrategy,
	violations ViolationRepository,
	bus eventbus.EventBus,
	policy retry.Policy,
	log *logrus.Entry,
) *OrganizationCreator {
	entry := log.WithField("component", "OrganizationCreator")
	return &OrganizationCreator{
		repo:     repo,
		attrs:    attrs,
		versions: versions,
		merge:    merge,
		upserts:  newUpsertRunner(policy, violations, entry),
		bus:      bus,
		log:      entry,
	}
}

// Process finds or creates the canonical organization for the input and
// returns its id plus whether this call created it. The source row for
// (organization, scraper) is upserted either way.
func (c *OrganizationCreator) Process(ctx context.Context, in domain.OrganizationInput, meta domain.Metadata) (uuid.UUID, bool, error) {
	org := domain.Organization{
		Name:             strings.TrimSpace(in.Name),
		NormalizedName:   NormalizeName(in.Name),
		Description:      in.Description,
		Website:          in.Website,
		Email:            in.Email,
		YearIncorporated: in.YearIncorporated,
		LegalStatus:      in.LegalStatus,
		TaxStatus:        in.TaxStatus,
		TaxID:            in.TaxID,
		URI:              in.URI,
	}
	scraperID := meta.ScraperID()

	var id uuid.UUID
	var isNew bool
	conflictData := map[string]any{
		"name":            org.Name,
		"normalized_name": org.NormalizedName,
		"scraper_id":      scraperID,
	}
	err := c.upserts.run(ctx, "organization", conflictData, func(opCtx context.Context) error {
		return composables.InTx(opCtx, func(txCtx context.Context) error {
			var err error
			id, isNew, err = c.repo.Upsert(txCtx, org)
			return err
		})
	})
	if err != nil {
		return uuid.Nil, false, err
	}

	// The source row is written whether the canonical row was found or
	// created: it is the input to every later merge.
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		return c.repo.UpsertSource(txCtx, domain.OrganizationSource{
			OrganizationID:   id,
			ScraperID:        scraperID,
			Name:             org.Name,
			Description:      org.Description,
			Website:          org.Website,
			Email:            org.Email,
			YearIncorporated: org.YearIncorporated,
			LegalStatus:      org.LegalStatus,
			TaxStatus:        org.TaxStatus,
			TaxID:            org.TaxID,
			URI:              org.URI,
		})
	})
	if err != nil {
		return uuid.Nil, false, err
	}

	if isNew {
		getMetrics().entitiesTotal.WithLabelValues(domain.RecordTypeOrganization, "created").Inc()
		if _, err := c.versions.CreateVersion(ctx, id, domain.RecordTypeOrganization, organizationSnapshot(id, org), meta); err != nil {
			return uuid.Nil, false, err
		}
		c.bus.Publish(domain.OrganizationCreatedEvent{ID: id, Name: org.Name, ScraperID: scraperID})
	} else {
		getMetrics().entitiesTotal.WithLabelValues(domain.RecordTypeOrganization, "matched").Inc()
		if err := c.merge.MergeOrganization(ctx, id); err != nil {
			getMetrics().mergeFailures.WithLabelValues(domain.RecordTypeOrganization).Inc()
			c.log.WithError(err).WithField("organization_id", id).Warn("merge skipped")
		}
	}

	return id, isNew, nil
}

// AttachPhones records the organization's phone numbers.
func (c *OrganizationCreator) AttachPhones(ctx context.Context, organizationID uuid.UUID, phones []domain.PhoneInput) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		for _, p := range phones {
			if strings.TrimSpace(p.Number) == "" {
				continue
			}
			phone := domain.Phone{Number: p.Number, Extension: p.Extension, Type: p.Type, OrganizationID: &organizationID}
			if _, err := c.attrs.InsertPhone(txCtx, phone); err != nil {
				return err
			}
		}
		return nil
	})
}

func organizationSnapshot(id uuid.UUID, org domain.Organization) map[string]any {
	snap := map[string]any{
		"id":              id.String(),
		"name":            org.Name,
		"normalized_name": org.NormalizedName,
		"description":     org.Description,
		"website":         org.Website,
		"email":           org.Email,
		"legal_status":    org.LegalStatus,
		"tax_status":      org.TaxStatus,
		"tax_id":          org.TaxID,
		"uri":             org.URI,
	}
	if org.YearIncorporated != nil {
		snap["year_incorporated"] = *org.YearIncorporated
	}
	return snap
}
