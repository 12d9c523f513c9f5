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

// ServiceCreator owns the service family: atomic find-or-create keyed by
// (name, organization), source-record upsert, service-at-location links, and
// attribute attachment.
type ServiceCreator struct {
	repo     ServiceRepository
	attrs    AttributeRepository
	versions *VersionTracker
	merge    *MergeStrategy
	upserts  *upsertRunner
	bus      eventbus.EventBus
	log      *logrus.Entry
}

func NewServiceCreator(
	repo ServiceRepository,
	attrs AttributeRepository,
	versions *VersionTracker,
	merge *MergeStrategy,
	violations ViolationRepository,
	bus eventbus.EventBus,
	policy retry.Policy,
	log *logrus.Entry,
) *ServiceCreator {
	entry := log.WithField("component", "ServiceCreator")
	return &ServiceCreator{
		repo:     repo,
		attrs:    attrs,
		versions: versions,
		merge:    merge,
		upserts:  newUpsertRunner(policy, violations, entry),
		bus:      bus,
		log:      entry,
	}
}

// Process finds or creates the canonical service for the input under the
// given organization.
func (c *ServiceCreator) Process(ctx context.Context, in domain.ServiceInput, organizationID uuid.UUID, meta domain.Metadata) (uuid.UUID, bool, error) {
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = "active"
	}
	svc := domain.Service{
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		OrganizationID: organizationID,
		Status:         status,
	}
	scraperID := meta.ScraperID()

	var id uuid.UUID
	var isNew bool
	conflictData := map[string]any{
		"name":            svc.Name,
		"organization_id": organizationID.String(),
		"scraper_id":      scraperID,
	}
	err := c.upserts.run(ctx, "service", conflictData, func(opCtx context.Context) error {
		return composables.InTx(opCtx, func(txCtx context.Context) error {
			var err error
			id, isNew, err = c.repo.Upsert(txCtx, svc)
			return err
		})
	})
	if err != nil {
		return uuid.Nil, false, err
	}

	err = composables.InTx(ctx, func(txCtx context.Context) error {
		return c.repo.UpsertSource(txCtx, domain.ServiceSource{
			ServiceID:      id,
			ScraperID:      scraperID,
			Name:           svc.Name,
			Description:    svc.Description,
			OrganizationID: organizationID,
			Status:         svc.Status,
		})
	})
	if err != nil {
		return uuid.Nil, false, err
	}

	if isNew {
		getMetrics().entitiesTotal.WithLabelValues(domain.RecordTypeService, "created").Inc()
		snap := map[string]any{
			"id":              id.String(),
			"name":            svc.Name,
			"description":     svc.Description,
			"organization_id": organizationID.String(),
			"status":          svc.Status,
		}
		if _, err := c.versions.CreateVersion(ctx, id, domain.RecordTypeService, snap, meta); err != nil {
			return uuid.Nil, false, err
		}
		c.bus.Publish(domain.ServiceCreatedEvent{ID: id, Name: svc.Name, OrganizationID: organizationID, ScraperID: scraperID})
	} else {
		getMetrics().entitiesTotal.WithLabelValues(domain.RecordTypeService, "matched").Inc()
		if err := c.merge.MergeService(ctx, id); err != nil {
			getMetrics().mergeFailures.WithLabelValues(domain.RecordTypeService).Inc()
			c.log.WithError(err).WithField("service_id", id).Warn("merge skipped")
		}
	}

	return id, isNew, nil
}

// EnsureLink idempotently links the service to a location and returns the
// link id.
func (c *ServiceCreator) EnsureLink(ctx context.Context, serviceID, locationID uuid.UUID, description string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	var created bool
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		var err error
		id, created, err = c.repo.EnsureServiceAtLocation(txCtx, serviceID, locationID, description)
		return err
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, created, nil
}

// AttachPhones records the service's phone numbers.
func (c *ServiceCreator) AttachPhones(ctx context.Context, serviceID uuid.UUID, phones []domain.PhoneInput) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		for _, p := range phones {
			if strings.TrimSpace(p.Number) == "" {
				continue
			}
			phone := domain.Phone{Number: p.Number, Extension: p.Extension, Type: p.Type, ServiceID: &serviceID}
			if _, err := c.attrs.InsertPhone(txCtx, phone); err != nil {
				return err
			}
		}
		return nil
	})
}

// AttachLanguages records the languages the service is offered in.
func (c *ServiceCreator) AttachLanguages(ctx context.Context, serviceID uuid.UUID, languages []domain.LanguageInput) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		for _, l := range languages {
			if l.Name == "" && l.Code == "" {
				continue
			}
			lang := domain.Language{Name: l.Name, Code: l.Code, ServiceID: &serviceID}
			if _, err := c.attrs.InsertLanguage(txCtx, lang); err != nil {
				return err
			}
		}
		return nil
	})
}

// AttachLinkSchedules attaches the union of service-level and location-level
// schedules to a service-at-location link, deduplicated by
// (freq, wkst, opens_at, closes_at) against both the batch and rows already
// present.
func (c *ServiceCreator) AttachLinkSchedules(ctx context.Context, linkID uuid.UUID, schedules []domain.ScheduleInput) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		seen, err := c.attrs.ListLinkScheduleKeys(txCtx, linkID)
		if err != nil {
			return err
		}
		for _, in := range schedules {
			s := domain.Schedule{
				Freq:                in.Freq,
				Wkst:                in.Wkst,
				OpensAt:             in.OpensAt,
				ClosesAt:            in.ClosesAt,
				Byday:               in.Byday,
				Description:         in.Description,
				ServiceAtLocationID: &linkID,
			}
			key := s.DedupKey()
			if seen[key] || key == "|||" {
				continue
			}
			seen[key] = true
			if _, err := c.attrs.InsertSchedule(txCtx, s); err != nil {
				return err
			}
		}
		return nil
	})
}
