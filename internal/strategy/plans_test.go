package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-cli/internal/model"
)

func TestParsePlans_OverridesAndDefaults(t *testing.T) {
	ps, err := ParsePlans([]byte(`
strategies:
  business:
    primary: [business_registry]
    fallback: [google_places, corporate_database]
`))
	require.NoError(t, err)

	assert.Equal(t, []string{BusinessRegistry}, ps.Business.Primary)
	assert.Equal(t, []string{GooglePlaces, CorporateDatabase}, ps.Business.Fallback)
	assert.Equal(t, DefaultPlans().Individual, ps.Individual)
}

func TestParsePlans_Empty(t *testing.T) {
	ps, err := ParsePlans(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlans(), ps)
}

func TestParsePlans_Duplicate(t *testing.T) {
	_, err := ParsePlans([]byte(`
strategies:
  individual:
    primary: [google_search]
    fallback: [google_search]
`))
	assert.ErrorContains(t, err, `"google_search" twice`)
}

func TestParsePlans_BadYAML(t *testing.T) {
	_, err := ParsePlans([]byte("strategies: [unclosed"))
	assert.ErrorContains(t, err, "strategy: parse plans")
}

func TestLoadPlans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategies:
  individual:
    primary: [people_search]
`), 0o644))

	ps, err := LoadPlans(path)
	require.NoError(t, err)
	assert.Equal(t, []string{PeopleSearch}, ps.Individual.Primary)
	assert.NotContains(t, ps.Individual.Fallback, PeopleSearch)
	assert.Equal(t, DefaultPlans().Business, ps.Business)

	_, err = LoadPlans(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPlanSet_Names(t *testing.T) {
	names := DefaultPlans().Names()
	assert.Len(t, names, 8)
	assert.Equal(t, BusinessRegistry, names[0])
}

func TestPlannerUsesLoadedPlans(t *testing.T) {
	ps, err := ParsePlans([]byte("strategies:\n  business:\n    primary: [corporate_database]\n"))
	require.NoError(t, err)

	policy := DefaultPolicy()
	policy.Business = ps.Business
	st := NewPlanner(policy).Plan(model.Classification{Type: model.EntityBusiness}, model.Record{State: "OK"})

	assert.Equal(t, []string{CorporateDatabase}, st.Primary)
	assert.Equal(t, []string{LinkedInCompany}, ps.Business.Fallback)
}

func TestParsePlans_FilledPhaseSkipsWrittenSources(t *testing.T) {
	def := DefaultPlans()
	moved := def.Business.Primary[0]

	ps, err := ParsePlans([]byte("strategies:\n  business:\n    fallback: [" + moved + "]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{moved}, ps.Business.Fallback)
	assert.NotContains(t, ps.Business.Primary, moved)
	assert.Equal(t, def.Business.Primary[1:], ps.Business.Primary)
}

func TestParsePlans_EmptyName(t *testing.T) {
	_, err := ParsePlans([]byte(`
strategies:
  business:
    primary: [""]
`))
	assert.ErrorContains(t, err, "business plan has an empty source name")
}
