package matching

import (
	"context"
	"mpc_match/internal/config"
	"mpc_match/internal/model"
	"mpc_match/internal/protocol/mpc/transcript"
	"mpc_match/internal/repository/memory"
	"mpc_match/internal/service/registry"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeShares struct {
	sets map[string]model.ShareSet
}

func (f *fakeShares) Fetch(_ context.Context, userID string) (model.ShareSet, error) {
	set, ok := f.sets[userID]
	if !ok {
		return model.ShareSet{}, model.ErrShareNotFound
	}
	return set, nil
}

type stubRunner struct {
	decide func(a, b string) (bool, error)
	delay  time.Duration

	mu        sync.Mutex
	pairs     [][2]string
	active    int
	maxActive int
}

func (s *stubRunner) RunSession(_ context.Context, merged *model.MergedShareSet) (bool, error) {
	s.mu.Lock()
	s.pairs = append(s.pairs, [2]string{merged.UserA, merged.UserB})
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()

	if s.decide == nil {
		return true, nil
	}
	return s.decide(merged.UserA, merged.UserB)
}

func (s *stubRunner) evaluated() [][2]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]string(nil), s.pairs...)
}

type recordingNotifier struct {
	mu      sync.Mutex
	matches []*model.Match
}

func (n *recordingNotifier) MatchRecorded(_ context.Context, m *model.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.matches = append(n.matches, m)
}

type fixture struct {
	reg     *registry.Registry
	matches *memory.MatchRepo
	shares  *fakeShares
	runner  *stubRunner
	sched   *Scheduler
}

func newFixture(t *testing.T, cfg config.MatchingConfig, users ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	matches := memory.NewMatchRepo()
	f := &fixture{
		reg:     registry.NewRegistry(memory.NewUserRepo(), matches, 30),
		matches: matches,
		shares:  &fakeShares{sets: map[string]model.ShareSet{}},
		runner:  &stubRunner{},
	}
	for _, id := range users {
		_, err := f.reg.CreateUser(ctx, id, "handle-"+id, "hash-"+id)
		require.NoError(t, err)
		f.shares.sets[id] = model.ShareSet{[]byte(id + "0"), []byte(id + "1"), []byte(id + "2")}
	}
	f.sched = NewScheduler(&cfg, f.reg, f.shares, transcript.New(), f.runner)
	return f
}

func defaultMatching() config.MatchingConfig {
	return config.MatchingConfig{Workers: 5, FailurePolicy: config.FailurePolicyMark}
}

func (f *fixture) checked(t *testing.T, id string) []string {
	t.Helper()
	u, err := f.reg.GetUser(context.Background(), id)
	require.NoError(t, err)
	out := append([]string(nil), u.Checked...)
	sort.Strings(out)
	return out
}

func onlyPair(x, y string) func(a, b string) (bool, error) {
	return func(a, b string) (bool, error) {
		return (a == x && b == y) || (a == y && b == x), nil
	}
}

func TestRunMatchesScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultMatching(), "A", "B", "C")
	f.runner.decide = onlyPair("A", "B")

	res, err := f.sched.RunMatches(ctx, "A")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"B", "C"}, res.Candidates)
	assert.Equal(t, []string{"B"}, res.Verified)
	assert.Empty(t, res.Failed)

	assert.Equal(t, []string{"A", "B", "C"}, f.checked(t, "A"))
	assert.Equal(t, []string{"A", "B"}, f.checked(t, "B"))
	assert.Equal(t, []string{"A", "C"}, f.checked(t, "C"))

	all := f.matches.All()
	require.Len(t, all, 1)
	low, high := model.PairKey(all[0].UserA, all[0].UserB)
	assert.Equal(t, [2]string{"A", "B"}, [2]string{low, high})

	handles, err := f.reg.MatchesFor(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"handle-B"}, handles)
}

func TestRunMatchesTwiceIsEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultMatching(), "A", "B", "C")
	f.runner.decide = onlyPair("A", "B")

	_, err := f.sched.RunMatches(ctx, "A")
	require.NoError(t, err)
	before := map[string][]string{"A": f.checked(t, "A"), "B": f.checked(t, "B"), "C": f.checked(t, "C")}
	sessions := len(f.runner.evaluated())

	res, err := f.sched.RunMatches(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.Verified)
	assert.Len(t, f.runner.evaluated(), sessions)
	assert.Len(t, f.matches.All(), 1)
	for id, want := range before {
		assert.Equal(t, want, f.checked(t, id))
	}
}

func TestRunMatchesNeverEvaluatesSelf(t *testing.T) {
	f := newFixture(t, defaultMatching(), "A", "B", "C", "D")

	for _, id := range []string{"A", "B", "C", "D"} {
		_, err := f.sched.RunMatches(context.Background(), id)
		require.NoError(t, err)
	}

	for _, p := range f.runner.evaluated() {
		assert.NotEqual(t, p[0], p[1])
	}
}

func TestMutualVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultMatching(), "A", "B", "C")
	f.runner.decide = func(a, b string) (bool, error) { return false, nil }

	_, err := f.sched.RunMatches(ctx, "A")
	require.NoError(t, err)

	res, err := f.sched.RunMatches(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, res.Candidates)

	res, err = f.sched.RunMatches(ctx, "C")
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Empty(t, f.matches.All())
}

func TestPartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultMatching(), "A", "B", "C", "D", "E")
	// E has no shares on disk
	delete(f.shares.sets, "E")
	f.runner.decide = func(a, b string) (bool, error) {
		switch b {
		case "B":
			return false, model.ErrHandshakeTimeout
		case "C":
			return false, nil
		}
		return true, nil
	}

	res, err := f.sched.RunMatches(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "D", "E"}, res.Candidates)
	assert.Equal(t, []string{"D"}, res.Verified)
	require.Len(t, res.Failed, 2)
	assert.ErrorIs(t, res.Failed["B"], model.ErrNetwork)
	assert.ErrorIs(t, res.Failed["E"], model.ErrShareNotFound)

	for _, id := range []string{"B", "C", "D", "E"} {
		assert.Contains(t, f.checked(t, id), "A")
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, f.checked(t, "A"))
	assert.Len(t, f.matches.All(), 1)
}

func TestRetryPolicyLeavesFailedCandidatesOpen(t *testing.T) {
	ctx := context.Background()
	cfg := defaultMatching()
	cfg.FailurePolicy = config.FailurePolicyRetry
	f := newFixture(t, cfg, "A", "B", "C", "D")

	f.runner.decide = func(a, b string) (bool, error) {
		switch b {
		case "B":
			return false, model.ErrHandshakeTimeout
		case "C":
			return false, nil
		}
		return true, nil
	}

	res, err := f.sched.RunMatches(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, res.Verified)

	assert.Equal(t, []string{"A", "C", "D"}, f.checked(t, "A"))
	assert.Equal(t, []string{"B"}, f.checked(t, "B"))
	// a clean rejection is final under both policies
	assert.Equal(t, []string{"A", "C"}, f.checked(t, "C"))

	f.runner.decide = nil
	res, err = f.sched.RunMatches(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, res.Candidates)
	assert.Equal(t, []string{"B"}, res.Verified)
	assert.Len(t, f.matches.All(), 2)
}

func TestRunMatchesUnknownUser(t *testing.T) {
	f := newFixture(t, defaultMatching(), "A")

	res, err := f.sched.RunMatches(context.Background(), "nobody")
	require.ErrorIs(t, err, model.ErrUserNotFound)
	assert.Nil(t, res)
}

func TestBoundedConcurrency(t *testing.T) {
	cfg := defaultMatching()
	cfg.Workers = 2
	f := newFixture(t, cfg, "A", "B", "C", "D", "E", "F", "G")
	f.runner.delay = 20 * time.Millisecond

	res, err := f.sched.RunMatches(context.Background(), "A")
	require.NoError(t, err)
	assert.Len(t, res.Verified, 6)
	assert.LessOrEqual(t, f.runner.maxActive, 2)
}

func TestNotifierSeesRecordedMatches(t *testing.T) {
	f := newFixture(t, defaultMatching(), "A", "B", "C")
	f.runner.decide = onlyPair("A", "C")
	n := &recordingNotifier{}
	f.sched.SetNotifier(n)

	_, err := f.sched.RunMatches(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, n.matches, 1)
	assert.Equal(t, "A", n.matches[0].UserA)
	assert.Equal(t, "C", n.matches[0].UserB)
}

func TestConcurrentRunsSameUser(t *testing.T) {
	f := newFixture(t, defaultMatching(), "A", "B", "C", "D")
	f.runner.delay = 10 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sched.RunMatches(context.Background(), "A")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[string]int{}
	for _, p := range f.runner.evaluated() {
		seen[p[1]]++
	}
	assert.Equal(t, map[string]int{"B": 1, "C": 1, "D": 1}, seen)
}

func TestConcurrentRunsRecordEachPairOnce(t *testing.T) {
	f := newFixture(t, defaultMatching(), "A", "B", "C")
	f.runner.delay = 10 * time.Millisecond

	var wg sync.WaitGroup
	for _, id := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sched.RunMatches(context.Background(), id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	pairs := map[[2]string]int{}
	for _, m := range f.matches.All() {
		low, high := model.PairKey(m.UserA, m.UserB)
		pairs[[2]string{low, high}]++
	}
	assert.Equal(t, map[[2]string]int{{"A", "B"}: 1, {"A", "C"}: 1, {"B", "C"}: 1}, pairs)

	for _, id := range []string{"A", "B", "C"} {
		assert.Equal(t, []string{"A", "B", "C"}, f.checked(t, id))
	}
}
