package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
)

// JobProcessor orchestrates one reconciliation job: payload normalization,
// then organization, locations, services, links, and attributes, in that
// order. Each step commits in its own transaction; a re-run after a partial
// failure is safe because every step is idempotent.
type JobProcessor struct {
	orgs      *OrganizationCreator
	locations *LocationCreator
	services  *ServiceCreator
	log       *logrus.Entry
}

func NewJobProcessor(
	orgs *OrganizationCreator,
	locations *LocationCreator,
	services *ServiceCreator,
	log *logrus.Entry,
) *JobProcessor {
	return &JobProcessor{
		orgs:      orgs,
		locations: locations,
		services:  services,
		log:       log.WithField("component", "JobProcessor"),
	}
}

// Process reconciles the job's result text into canonical records and
// returns which ids were touched.
func (p *JobProcessor) Process(ctx context.Context, job domain.JobResult) (*domain.Summary, error) {
	started := time.Now()
	scraperID := job.Metadata.ScraperID()
	log := p.log.WithFields(logrus.Fields{
		"job_id":     job.JobID,
		"scraper_id": scraperID,
	})

	summary, err := p.process(ctx, job, scraperID, log)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	getMetrics().jobsTotal.WithLabelValues(status).Inc()
	getMetrics().processLatency.WithLabelValues(status).Observe(time.Since(started).Seconds())
	return summary, err
}

func (p *JobProcessor) process(ctx context.Context, job domain.JobResult, scraperID string, log *logrus.Entry) (*domain.Summary, error) {
	if strings.TrimSpace(job.Text) == "" {
		return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "parse", Err: ErrMalformedPayload}
	}
	payload, err := NormalizePayload(job.Text, log)
	if err != nil {
		return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "parse", Err: err}
	}
	EnsureDescriptions(payload, log)

	summary := &domain.Summary{
		Status:      "success",
		ScraperID:   scraperID,
		LocationIDs: map[string]uuid.UUID{},
		ServiceIDs:  map[string]uuid.UUID{},
	}

	// At most one organization per job; the first entry wins.
	var orgID *uuid.UUID
	var orgInput *domain.OrganizationInput
	if len(payload.Organization) > 0 {
		orgInput = &payload.Organization[0]
		if len(payload.Organization) > 1 {
			log.WithField("count", len(payload.Organization)).Warn("multiple organizations in payload, processing first only")
		}
		id, orgIsNew, err := p.orgs.Process(ctx, *orgInput, job.Metadata)
		if err != nil {
			return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "organization", Err: err}
		}
		orgID = &id
		summary.OrganizationID = &id

		if orgIsNew {
			if err := p.orgs.AttachPhones(ctx, id, orgInput.Phones); err != nil {
				return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "organization phones", Err: err}
			}
		}
	}

	locationInputs := payload.Location
	if orgInput != nil {
		locationInputs = append(locationInputs, orgInput.Locations...)
	}
	linkDescription := ""
	if orgInput != nil {
		linkDescription = orgInput.Description
	}

	locationIDs := make([]uuid.UUID, 0, len(locationInputs))
	locationSchedules := map[uuid.UUID][]domain.ScheduleInput{}
	for _, in := range locationInputs {
		if !in.HasCoordinates() {
			log.WithField("location", in.Name).Warn("location has no coordinates, skipping")
			continue
		}
		id, _, err := p.locations.Process(ctx, in, orgID, job.Metadata)
		if err != nil {
			return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "location", Err: err}
		}
		locationIDs = append(locationIDs, id)
		summary.LocationIDs[locationKey(in)] = id
		locationSchedules[id] = append(locationSchedules[id], in.Schedules...)

		for _, a := range in.Addresses {
			if _, err := p.locations.CreateAddress(ctx, id, a); err != nil {
				return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "address", Err: err}
			}
		}
		for _, acc := range in.Accessibility {
			if _, err := p.locations.CreateAccessibility(ctx, id, acc); err != nil {
				return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "accessibility", Err: err}
			}
		}
		if err := p.locations.AttachPhones(ctx, id, in.Phones); err != nil {
			return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "location phones", Err: err}
		}
	}

	serviceInputs := payload.Service
	if orgInput != nil {
		serviceInputs = append(serviceInputs, orgInput.Services...)
	}
	if orgID == nil && len(serviceInputs) > 0 {
		log.WithField("count", len(serviceInputs)).Warn("services present without organization, skipping")
		serviceInputs = nil
	}

	for _, in := range serviceInputs {
		if strings.TrimSpace(in.Name) == "" {
			log.Warn("service has no name, skipping")
			continue
		}
		id, isNew, err := p.services.Process(ctx, in, *orgID, job.Metadata)
		if err != nil {
			return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "service", Err: err}
		}
		summary.ServiceIDs[in.Name] = id

		if isNew {
			if err := p.services.AttachPhones(ctx, id, in.Phones); err != nil {
				return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "service phones", Err: err}
			}
			if err := p.services.AttachLanguages(ctx, id, in.Languages); err != nil {
				return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "service languages", Err: err}
			}
		}

		// Every (service, location) pair co-occurring in the job gets a
		// link carrying the union of both sides' schedules.
		for _, locID := range locationIDs {
			linkID, _, err := p.services.EnsureLink(ctx, id, locID, linkDescription)
			if err != nil {
				return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "service_at_location", Err: err}
			}
			schedules := append(append([]domain.ScheduleInput{}, in.Schedules...), locationSchedules[locID]...)
			if err := p.services.AttachLinkSchedules(ctx, linkID, schedules); err != nil {
				return nil, &ProcessingError{ScraperID: scraperID, JobID: job.JobID, Op: "schedules", Err: err}
			}
		}
	}

	log.WithFields(logrus.Fields{
		"locations": len(summary.LocationIDs),
		"services":  len(summary.ServiceIDs),
	}).Info("job reconciled")
	return summary, nil
}

func locationKey(in domain.LocationInput) string {
	if strings.TrimSpace(in.Name) != "" {
		return in.Name
	}
	return fmt.Sprintf("%.4f,%.4f", *in.Latitude, *in.Longitude)
}
