package admin

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrgView(t *testing.T) {
	org := &domain.Organization{ID: "o1", Name: "Acme", CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}

	bare, err := json.Marshal(newOrgView(org, nil))
	require.NoError(t, err)
	assert.NotContains(t, string(bare), "usage")

	v := newOrgView(org, &domain.OrgUsage{Documents: 3, Chunks: 12, ActiveKeys: 2, Queries: 8, Refusals: 2})
	require.NotNil(t, v.Usage)
	assert.Equal(t, 3, v.Usage.Documents)
	assert.InDelta(t, 0.25, v.Usage.RefusalRate, 1e-9)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"refusal_rate":0.25`)
	assert.NotContains(t, string(out), "last_ingest_at")
}

func TestKeyViews(t *testing.T) {
	revokedAt := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	keys := []*domain.APIKey{
		{ID: "k1", Name: "bot", Clearance: domain.ClassificationPublic},
		{ID: "k2", Name: "sync", Clearance: domain.ClassificationRestricted, CanIngest: true, RevokedAt: &revokedAt},
	}

	all := keyViews(keys, false)
	require.Len(t, all, 2)
	assert.Equal(t, "read up to public", all[0].access())
	assert.Equal(t, []string{"public"}, all[0].Visible)
	assert.Equal(t, "read/write up to restricted, revoked 2026-04-02 09:30:00", all[1].access())

	active := keyViews(keys, true)
	require.Len(t, active, 1)
	assert.Equal(t, "k1", active[0].ID)

	out, err := json.Marshal(active[0])
	require.NoError(t, err)
	assert.NotContains(t, string(out), "token")
}
