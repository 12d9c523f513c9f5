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

// LocationCreator deduplicates locations by coordinate proximity. The
// find-or-create runs under a per-bucket advisory lock so two workers
// processing the same coordinates serialize instead of creating duplicates.
type LocationCreator struct {
	repo      LocationRepository
	attrs     AttributeRepository
	versions  *VersionTracker
	merge     *MergeStrategy
	upserts   *upsertRunner
	bus       eventbus.EventBus
	tolerance float64
	log       *logrus.Entry
}

func NewLocationCreator(
	repo LocationRepository,
	attrs AttributeRepository,
	versions *VersionTracker,
	merge *MergeStrategy,
	violations ViolationRepository,
	bus eventbus.EventBus,
	policy retry.Policy,
	tolerance float64,
	log *logrus.Entry,
) *LocationCreator {
	entry := log.WithField("component", "LocationCreator")
	return &LocationCreator{
		repo:      repo,
		attrs:     attrs,
		versions:  versions,
		merge:     merge,
		upserts:   newUpsertRunner(policy, violations, entry),
		bus:       bus,
		tolerance: tolerance,
		log:       entry,
	}
}

// FindMatchingLocation looks for an existing canonical location within the
// configured tolerance box around (lat, lon). It takes the bucket advisory
// lock first so the answer stays true for the rest of the transaction.
func (c *LocationCreator) FindMatchingLocation(ctx context.Context, lat, lon float64) (*domain.Location, error) {
	var match *domain.Location
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		if err := c.repo.LockCoordinateBucket(txCtx, lat, lon); err != nil {
			return err
		}
		var err error
		match, err = c.repo.FindWithinTolerance(txCtx, lat, lon, c.tolerance)
		return err
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

// Process finds or creates the canonical location for the input. The
// lock-check-act sequence runs in one transaction per attempt; the advisory
// lock is transaction scoped, so commit or rollback always releases it.
func (c *LocationCreator) Process(ctx context.Context, in domain.LocationInput, organizationID *uuid.UUID, meta domain.Metadata) (uuid.UUID, bool, error) {
	lat, lon := *in.Latitude, *in.Longitude
	scraperID := meta.ScraperID()

	var id uuid.UUID
	var isNew bool
	conflictData := map[string]any{
		"latitude":   lat,
		"longitude":  lon,
		"scraper_id": scraperID,
	}
	err := c.upserts.run(ctx, "location", conflictData, func(opCtx context.Context) error {
		return composables.InTx(opCtx, func(txCtx context.Context) error {
			if err := c.repo.LockCoordinateBucket(txCtx, lat, lon); err != nil {
				return err
			}
			match, err := c.repo.FindWithinTolerance(txCtx, lat, lon, c.tolerance)
			if err != nil {
				return err
			}
			if match != nil {
				id, isNew = match.ID, false
				if organizationID != nil && match.OrganizationID == nil {
					return c.repo.UpdateOrganizationID(txCtx, match.ID, *organizationID)
				}
				return nil
			}
			id, err = c.repo.Insert(txCtx, domain.Location{
				Name:           strings.TrimSpace(in.Name),
				Description:    in.Description,
				Latitude:       lat,
				Longitude:      lon,
				OrganizationID: organizationID,
				IsCanonical:    true,
			})
			isNew = err == nil
			return err
		})
	})
	if err != nil {
		return uuid.Nil, false, err
	}

	err = composables.InTx(ctx, func(txCtx context.Context) error {
		return c.repo.UpsertSource(txCtx, domain.LocationSource{
			LocationID:     id,
			ScraperID:      scraperID,
			Name:           strings.TrimSpace(in.Name),
			Description:    in.Description,
			Latitude:       lat,
			Longitude:      lon,
			OrganizationID: organizationID,
		})
	})
	if err != nil {
		return uuid.Nil, false, err
	}

	if isNew {
		getMetrics().entitiesTotal.WithLabelValues(domain.RecordTypeLocation, "created").Inc()
		snap := map[string]any{
			"id":          id.String(),
			"name":        strings.TrimSpace(in.Name),
			"description": in.Description,
			"latitude":    lat,
			"longitude":   lon,
		}
		if organizationID != nil {
			snap["organization_id"] = organizationID.String()
		}
		if _, err := c.versions.CreateVersion(ctx, id, domain.RecordTypeLocation, snap, meta); err != nil {
			return uuid.Nil, false, err
		}
		c.bus.Publish(domain.LocationCreatedEvent{ID: id, Latitude: lat, Longitude: lon, ScraperID: scraperID})
	} else {
		getMetrics().entitiesTotal.WithLabelValues(domain.RecordTypeLocation, "matched").Inc()
		if err := c.merge.MergeLocation(ctx, id); err != nil {
			getMetrics().mergeFailures.WithLabelValues(domain.RecordTypeLocation).Inc()
			c.log.WithError(err).WithField("location_id", id).Warn("merge skipped")
		}
		c.bus.Publish(domain.LocationMatchedEvent{ID: id, ScraperID: scraperID})
	}

	return id, isNew, nil
}

// CreateAddress records an address row and backfills the location's name
// from the city when the location has none. Addresses are append only.
func (c *LocationCreator) CreateAddress(ctx context.Context, locationID uuid.UUID, in domain.AddressInput) (uuid.UUID, error) {
	var id uuid.UUID
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		var err error
		id, err = c.repo.InsertAddress(txCtx, domain.Address{
			LocationID:    locationID,
			Address1:      in.Address1,
			Address2:      in.Address2,
			City:          in.City,
			StateProvince: in.StateProvince,
			PostalCode:    in.PostalCode,
			Country:       in.Country,
			AddressType:   addressTypeOrDefault(in.AddressType),
		})
		if err != nil {
			return err
		}
		return c.BackfillNameFromCity(txCtx, locationID, in.City)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// BackfillNameFromCity names an unnamed location after its city. An existing
// name, even one set by another scraper, is never overwritten here. It must
// run inside the caller's transaction.
func (c *LocationCreator) BackfillNameFromCity(ctx context.Context, locationID uuid.UUID, city string) error {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil
	}
	loc, err := c.repo.GetByID(ctx, locationID)
	if err != nil {
		return err
	}
	if loc == nil || strings.TrimSpace(loc.Name) != "" {
		return nil
	}
	return c.repo.UpdateName(ctx, locationID, "Location in "+city)
}

// CreateAccessibility records accessibility details for a location.
func (c *LocationCreator) CreateAccessibility(ctx context.Context, locationID uuid.UUID, in domain.AccessibilityInput) (uuid.UUID, error) {
	var id uuid.UUID
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		var err error
		id, err = c.repo.InsertAccessibility(txCtx, domain.Accessibility{
			LocationID:  locationID,
			Description: in.Description,
			Details:     in.Details,
			URL:         in.URL,
		})
		return err
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// AttachPhones records the location's phone numbers.
func (c *LocationCreator) AttachPhones(ctx context.Context, locationID uuid.UUID, phones []domain.PhoneInput) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		for _, p := range phones {
			if strings.TrimSpace(p.Number) == "" {
				continue
			}
			phone := domain.Phone{Number: p.Number, Extension: p.Extension, Type: p.Type, LocationID: &locationID}
			if _, err := c.attrs.InsertPhone(txCtx, phone); err != nil {
				return err
			}
		}
		return nil
	})
}

func addressTypeOrDefault(t string) string {
	if strings.TrimSpace(t) == "" {
		return "physical"
	}
	return t
}
