package services

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func TestNormalizePayload_StrictJSON(t *testing.T) {
	text := `{"organization":[{"name":"Hope Pantry","description":"Weekly food pantry"}],"service":[],"location":[]}`

	p, err := NormalizePayload(text, testLog())
	require.NoError(t, err)
	require.Len(t, p.Organization, 1)
	assert.Equal(t, "Hope Pantry", p.Organization[0].Name)
	assert.Equal(t, "Weekly food pantry", p.Organization[0].Description)
}

func TestNormalizePayload_MarkdownFence(t *testing.T) {
	text := "```json\n{\"organization\":[{\"name\":\"Fenced Org\"}]}\n```"

	p, err := NormalizePayload(text, testLog())
	require.NoError(t, err)
	require.Len(t, p.Organization, 1)
	assert.Equal(t, "Fenced Org", p.Organization[0].Name)
}

func TestNormalizePayload_LenientJSON(t *testing.T) {
	// Trailing comma and a comment; strict parse fails, hujson accepts.
	text := `{
		// produced upstream
		"organization": [{"name": "Lenient Org",}],
	}`

	p, err := NormalizePayload(text, testLog())
	require.NoError(t, err)
	require.Len(t, p.Organization, 1)
	assert.Equal(t, "Lenient Org", p.Organization[0].Name)
}

func TestNormalizePayload_BareOrganizationWrap(t *testing.T) {
	text := `{
		"name": "Bare Org",
		"description": "desc",
		"services": [{"name": "Pantry", "description": "bags"}],
		"locations": [{"name": "Main", "latitude": 40.7, "longitude": -74.0}]
	}`

	p, err := NormalizePayload(text, testLog())
	require.NoError(t, err)
	require.Len(t, p.Organization, 1)
	assert.Equal(t, "Bare Org", p.Organization[0].Name)
	require.Len(t, p.Service, 1)
	assert.Equal(t, "Pantry", p.Service[0].Name)
	require.Len(t, p.Location, 1)
	require.True(t, p.Location[0].HasCoordinates())
	assert.InDelta(t, 40.7, *p.Location[0].Latitude, 1e-9)
}

func TestNormalizePayload_ListFlattensToFirstElement(t *testing.T) {
	text := `[
		{"organization":[{"name":"First"}]},
		{"organization":[{"name":"Second"}]}
	]`

	p, err := NormalizePayload(text, testLog())
	require.NoError(t, err)
	require.Len(t, p.Organization, 1)
	assert.Equal(t, "First", p.Organization[0].Name)
}

func TestNormalizePayload_OrganizationAsObject(t *testing.T) {
	text := `{"organization": {"name": "Object Org"}}`

	p, err := NormalizePayload(text, testLog())
	require.NoError(t, err)
	require.Len(t, p.Organization, 1)
	assert.Equal(t, "Object Org", p.Organization[0].Name)
}

func TestNormalizePayload_Malformed(t *testing.T) {
	for name, text := range map[string]string{
		"not json":                "not json",
		"empty":                   "",
		"whitespace":              "   \n\t ",
		"empty array":             "[]",
		"number":                  "42",
		"unknown object":          `{"foo": "bar"}`,
		"no organization":         `{"service": [{"name": "orphan"}]}`,
		"nameless organization":   `{"organization": [{"description": "x"}]}`,
		"blank organization name": `{"organization": [{"name": "   ", "description": "x"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NormalizePayload(text, testLog())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPayload), "expected MalformedPayload, got %v", err)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stripCodeFence(tc.in))
		})
	}
}

func TestEnsureDescriptions(t *testing.T) {
	text := `{
		"organization": [{"name": "No Desc Org", "services": [{"name": "Inner"}]}],
		"service": [{"name": "Top Service"}],
		"location": [{"name": "Top Location"}, {}]
	}`
	p, err := NormalizePayload(text, testLog())
	require.NoError(t, err)

	EnsureDescriptions(p, testLog())

	assert.Equal(t, "Food service organization: No Desc Org", p.Organization[0].Description)
	assert.Equal(t, "Food service: Inner", p.Organization[0].Services[0].Description)
	assert.Equal(t, "Food service: Top Service", p.Service[0].Description)
	assert.Equal(t, "Service location: Top Location", p.Location[0].Description)
	assert.Equal(t, "Service location: unnamed location", p.Location[1].Description)
}

func TestEnsureDescriptions_KeepsExisting(t *testing.T) {
	text := `{"organization": [{"name": "Org", "description": "already set"}]}`
	p, err := NormalizePayload(text, testLog())
	require.NoError(t, err)

	EnsureDescriptions(p, testLog())
	assert.Equal(t, "already set", p.Organization[0].Description)
}
