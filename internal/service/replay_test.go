package service

import (
	"context"
	"testing"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDocs(t *testing.T, f *fixture, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.ingest.Ingest(context.Background(), textInput(id, "Replay source for "+id+"."))
		require.NoError(t, err)
	}
}

func TestReplay_UnforcedLeavesVersionsAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDocs(t, f, "d1", "d2")

	run, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.ReplayStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Scanned)
	assert.Equal(t, 0, run.Changed)
	assert.Equal(t, 2, run.Unchanged)
	assert.Equal(t, 0, run.Errored)
	assert.NotNil(t, run.FinishedAt)

	assert.Equal(t, int64(1), f.store.docs["d1"].Version)
	events := f.store.eventsFor("d1")
	require.Len(t, events, 2)
	last := events[1]
	assert.Equal(t, domain.TriggerReplay, last.Trigger)
	assert.Equal(t, run.ID, last.ReplayRunID)
	assert.False(t, last.Changed)
	assert.Equal(t, int64(1), last.DocVersion)

	stored := f.store.runs[run.ID]
	assert.Equal(t, domain.ReplayStatusCompleted, stored.Status)
}

func TestReplay_ForceBumpsVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDocs(t, f, "d1")
	before := f.store.docs["d1"]

	run, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1", DocID: "d1", Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Changed)

	after := f.store.docs["d1"]
	assert.Equal(t, int64(2), after.Version)
	assert.Equal(t, before.ContentSHA256, after.ContentSHA256)

	events := f.store.eventsFor("d1")
	require.Len(t, events, 2)
	assert.Equal(t, domain.TriggerReplayForce, events[1].Trigger)
	assert.Equal(t, before.ContentSHA256, events[1].PrevContentSHA256)
}

func TestReplay_MissingSourceCountsAsErrored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDocs(t, f, "d1", "d2")
	f.store.mu.Lock()
	delete(f.store.sources, "d2")
	f.store.mu.Unlock()

	run, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReplayStatusCompleted, run.Status)
	assert.Equal(t, 2, run.Scanned)
	assert.Equal(t, 1, run.Unchanged)
	assert.Equal(t, 1, run.Errored)
	assert.Len(t, f.store.eventsFor("d2"), 1)
}

func TestReplay_ForeignDocumentIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDocs(t, f, "d1")

	_, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-2", DocID: "d1"})
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.Empty(t, f.store.runs)
}

func TestReplay_RequiresOrg(t *testing.T) {
	f := newFixture(t)
	_, err := f.replay.Replay(context.Background(), ReplayInput{})
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
}

func TestReplay_AsyncRunIsClaimedByWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDocs(t, f, "d1", "d2", "d3")
	enqueued := 0
	f.replay.OnEnqueue(func() { enqueued++ })

	run, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1", Force: true, Async: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ReplayStatusPending, run.Status)
	assert.Equal(t, 1, enqueued)
	assert.Equal(t, int64(1), f.store.docs["d1"].Version)

	worked, err := f.replay.ExecuteNext(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	done, err := f.replay.Get(ctx, "org-1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReplayStatusCompleted, done.Status)
	assert.Equal(t, 3, done.Changed)
	for _, id := range []string{"d1", "d2", "d3"} {
		assert.Equal(t, int64(2), f.store.docs[id].Version)
	}

	worked, err = f.replay.ExecuteNext(ctx)
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestReplay_RunIDReexecution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDocs(t, f, "d1", "d2")

	pending, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1", DocID: "d1", Async: true})
	require.NoError(t, err)

	// A pending run executes in place.
	executed, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1", RunID: pending.ID})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, executed.ID)
	assert.Equal(t, domain.ReplayStatusCompleted, executed.Status)
	assert.Equal(t, 1, executed.Scanned)

	// A finished run starts a new run over the same document.
	again, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1", RunID: pending.ID, Force: true})
	require.NoError(t, err)
	assert.NotEqual(t, pending.ID, again.ID)
	assert.Equal(t, "d1", again.DocID)
	assert.Equal(t, 1, again.Changed)
	assert.Equal(t, int64(2), f.store.docs["d1"].Version)
	assert.Equal(t, int64(1), f.store.docs["d2"].Version)
}

func TestReplay_GetHidesOtherOrgs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDocs(t, f, "d1")
	run, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1", Async: true})
	require.NoError(t, err)

	_, err = f.replay.Get(ctx, "org-2", run.ID)
	assert.ErrorIs(t, err, domain.ErrReplayRunNotFound)
	_, err = f.replay.Get(ctx, "org-1", "missing")
	assert.ErrorIs(t, err, domain.ErrReplayRunNotFound)
}

func TestReplay_ReproducesOriginalChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedDocs(t, f, "d1")
	before := append([]domain.Chunk(nil), f.store.chunks["d1"]...)

	_, err := f.replay.Replay(ctx, ReplayInput{OrgID: "org-1", DocID: "d1", Force: true})
	require.NoError(t, err)
	after := f.store.chunks["d1"]
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Text, after[i].Text)
	}
}
