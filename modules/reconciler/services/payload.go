package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tailscale/hujson"

	"github.com/For-The-Greater-Good/pantry-pirate-radio-sub003/modules/reconciler/domain"
)

// NormalizePayload turns raw job text into the canonical payload shape.
// The pipeline stops at the first stage that succeeds: strict JSON, lenient
// JSON (trailing commas, comments), bare-organization wrap, list flatten.
func NormalizePayload(text string, log *logrus.Entry) (*domain.Payload, error) {
	text = stripCodeFence(text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty result text", ErrMalformedPayload)
	}

	raw := []byte(text)
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		standardized, hErr := hujson.Standardize(raw)
		if hErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if err := json.Unmarshal(standardized, &value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		log.Debug("payload accepted by lenient parse")
	}

	payload, err := shapePayload(value, log)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// shapePayload maps the decoded JSON value onto the canonical
// {organization, service, location} shape.
func shapePayload(value any, log *logrus.Entry) (*domain.Payload, error) {
	switch v := value.(type) {
	case []any:
		// A list of payloads is treated as one logical job: only the
		// first element is processed.
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty top-level array", ErrMalformedPayload)
		}
		if len(v) > 1 {
			log.WithField("elements", len(v)).Warn("payload is a list, processing first element only")
		}
		return shapePayload(v[0], log)
	case map[string]any:
		if _, ok := v["organization"]; ok {
			return decodePayload(v)
		}
		if _, ok := v["name"]; ok {
			return decodePayload(wrapBareOrganization(v))
		}
		return nil, fmt.Errorf("%w: object has neither organization nor name", ErrMalformedPayload)
	default:
		return nil, fmt.Errorf("%w: top-level value is %T", ErrMalformedPayload, value)
	}
}

// wrapBareOrganization lifts a single organization object into the canonical
// envelope, hoisting its nested services and locations to the top level.
func wrapBareOrganization(obj map[string]any) map[string]any {
	services, _ := obj["services"].([]any)
	locations, _ := obj["locations"].([]any)
	delete(obj, "services")
	delete(obj, "locations")
	return map[string]any{
		"organization": []any{obj},
		"service":      services,
		"location":     locations,
	}
}

func decodePayload(obj map[string]any) (*domain.Payload, error) {
	// Some scrapers emit organization as a single object instead of an
	// array; normalize before decoding into the typed payload.
	if org, ok := obj["organization"].(map[string]any); ok {
		obj["organization"] = []any{org}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var p domain.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(p.Organization) == 0 {
		return nil, fmt.Errorf("%w: payload has no organization", ErrMalformedPayload)
	}
	// A nameless organization would key on the empty normalized name and
	// falsely merge with every other nameless report.
	if strings.TrimSpace(p.Organization[0].Name) == "" {
		return nil, fmt.Errorf("%w: organization has no name", ErrMalformedPayload)
	}
	return &p, nil
}

// stripCodeFence removes a surrounding Markdown code fence, with or without
// a language tag, from LLM-produced text.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || isFenceTag(first) {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	return strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// EnsureDescriptions fills empty descriptions with deterministic fallbacks
// so NOT NULL description columns are never written empty. Substitutions are
// logged as warnings.
func EnsureDescriptions(p *domain.Payload, log *logrus.Entry) {
	for i := range p.Organization {
		org := &p.Organization[i]
		if strings.TrimSpace(org.Description) == "" {
			org.Description = "Food service organization: " + org.Name
			log.WithField("organization", org.Name).Warn("missing description, synthesized fallback")
		}
		for j := range org.Services {
			ensureServiceDescription(&org.Services[j], log)
		}
		for j := range org.Locations {
			ensureLocationDescription(&org.Locations[j], log)
		}
	}
	for i := range p.Service {
		ensureServiceDescription(&p.Service[i], log)
	}
	for i := range p.Location {
		ensureLocationDescription(&p.Location[i], log)
	}
}

func ensureServiceDescription(s *domain.ServiceInput, log *logrus.Entry) {
	if strings.TrimSpace(s.Description) == "" {
		s.Description = "Food service: " + s.Name
		log.WithField("service", s.Name).Warn("missing description, synthesized fallback")
	}
}

func ensureLocationDescription(l *domain.LocationInput, log *logrus.Entry) {
	if strings.TrimSpace(l.Description) == "" {
		name := l.Name
		if strings.TrimSpace(name) == "" {
			name = "unnamed location"
		}
		l.Description = "Service location: " + name
		log.WithField("location", l.Name).Warn("missing description, synthesized fallback")
	}
}
