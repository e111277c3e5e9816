package pagestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type getterFunc func(ctx context.Context, url string, params map[string]any) (any, error)

func (f getterFunc) Get(ctx context.Context, url string, params map[string]any) (any, error) {
	return f(ctx, url, params)
}

func TestSetDataReplaceAndMerge(t *testing.T) {
	s := New("/orders", nil)

	s.SetData("detail", map[string]any{"a": 1, "b": 2}, Replace)
	s.SetData("detail", map[string]any{"b": 3, "c": 4}, Merge)

	v, _ := s.Data("detail")
	got := v.(map[string]any)
	if got["a"] != 1 || got["b"] != 3 || got["c"] != 4 {
		t.Errorf("unexpected merged bucket: %#v", got)
	}

	s.SetData("detail", map[string]any{"z": 1}, Replace)
	v, _ = s.Data("detail")
	if len(v.(map[string]any)) != 1 {
		t.Errorf("replace should overwrite, got %#v", v)
	}

	s.SetData("list", []any{1, 2}, Replace)
	s.SetData("list", map[string]any{"k": "v"}, Merge)
	v, _ = s.Data("list")
	if m, ok := v.(map[string]any); !ok || m["k"] != "v" || len(m) != 1 {
		t.Errorf("merge onto non-map should yield spread of patch, got %#v", v)
	}
}

func TestSetDatasSeedsBuckets(t *testing.T) {
	s := New("/p", nil)
	s.SetDatas(map[string]any{"rows": []any{}, "summary": map[string]any{}})

	snap := s.Snapshot()
	if rows, ok := snap["rows"].([]any); !ok || len(rows) != 0 {
		t.Errorf("expected empty list bucket, got %#v", snap["rows"])
	}
	if sum, ok := snap["summary"].(map[string]any); !ok || len(sum) != 0 {
		t.Errorf("expected empty object bucket, got %#v", snap["summary"])
	}

	snap["rows"] = "mutated"
	if v, _ := s.Data("rows"); v == "mutated" {
		t.Error("snapshot must not alias store state")
	}
}

func TestSetEffectsStrictlyIncreasing(t *testing.T) {
	s := New("/p", nil)

	first := s.SetEffects([]string{"a", "b"})
	a1 := s.Effect("a")
	second := s.SetEffects([]string{"a", "b"})
	a2 := s.Effect("a")

	if a1 != first || a2 != second {
		t.Errorf("stamps not recorded: %d/%d %d/%d", a1, first, a2, second)
	}
	if a2 <= a1 {
		t.Errorf("expected later stamp > earlier, got %d then %d", a1, a2)
	}
	if s.Effect("b") != a2 {
		t.Errorf("all ids of one call share a stamp")
	}
	if s.Effect("never") != 0 {
		t.Errorf("unmarked id should report 0")
	}
}

func TestViewState(t *testing.T) {
	s := New("/p", nil)
	s.SetViewState("filters", map[string]any{"q": "x"})
	if got := s.ViewState("filters").(map[string]any); got["q"] != "x" {
		t.Errorf("unexpected view state: %#v", got)
	}
	s.SetViewState("filters", nil)
	if s.ViewState("filters") != nil {
		t.Error("expected view state replaced by nil")
	}
}

func TestFetchDataSuccess(t *testing.T) {
	var gotURL string
	var gotParams map[string]any
	s := New("/p", getterFunc(func(_ context.Context, url string, params map[string]any) (any, error) {
		gotURL, gotParams = url, params
		return map[string]any{"content": []any{"x"}}, nil
	}))

	if err := s.FetchData(context.Background(), "rows", "/api/rows", map[string]any{"page": 1}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotURL != "/api/rows" || gotParams["page"] != 1 {
		t.Errorf("unexpected request %q %#v", gotURL, gotParams)
	}
	v, _ := s.Data("rows")
	if _, ok := v.(map[string]any)["content"]; !ok {
		t.Errorf("payload not stored verbatim: %#v", v)
	}
}

func TestFetchDataFailureLeavesBucket(t *testing.T) {
	boom := errors.New("boom")
	s := New("/p", getterFunc(func(context.Context, string, map[string]any) (any, error) {
		return nil, boom
	}))
	s.SetData("rows", []any{}, Replace)

	err := s.FetchData(context.Background(), "rows", "/api/rows", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	v, _ := s.Data("rows")
	if rows, ok := v.([]any); !ok || len(rows) != 0 {
		t.Errorf("bucket should be untouched, got %#v", v)
	}
}

func TestFetchDataSelect(t *testing.T) {
	s := New("/p", getterFunc(func(context.Context, string, map[string]any) (any, error) {
		return map[string]any{"content": []any{map[string]any{"name": "A"}}, "totalElements": 1.0}, nil
	}))

	if err := s.FetchData(context.Background(), "rows", "/api", nil, WithSelect(".content")); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	v, _ := s.Data("rows")
	rows, ok := v.([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("expected selected content, got %#v", v)
	}

	if err := s.FetchData(context.Background(), "rows", "/api", nil, WithSelect(".[")); err == nil {
		t.Error("expected jq parse error")
	}
}

// fetchRace starts a slow fetch then a fast fetch for the same bucket and
// lets the slow one complete last.
func fetchRace(t *testing.T, s *PageStore, release chan struct{}, opts ...FetchOption) (slowErr, fastErr error) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowErr = s.FetchData(context.Background(), "rows", "slow", nil, opts...)
	}()
	// wait until the slow request is in flight
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.RLock()
		g := s.gen["rows"]
		s.mu.RUnlock()
		if g == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("slow fetch never started")
		}
		time.Sleep(time.Millisecond)
	}
	fastErr = s.FetchData(context.Background(), "rows", "fast", nil, opts...)
	close(release)
	wg.Wait()
	return slowErr, fastErr
}

func racingGetter(release chan struct{}) Getter {
	return getterFunc(func(_ context.Context, url string, _ map[string]any) (any, error) {
		if url == "slow" {
			<-release
		}
		return url, nil
	})
}

func TestFetchDataFencesStaleCompletion(t *testing.T) {
	release := make(chan struct{})
	s := New("/p", racingGetter(release))

	slowErr, fastErr := fetchRace(t, s, release)
	if fastErr != nil {
		t.Fatalf("fast fetch: %v", fastErr)
	}
	if !errors.Is(slowErr, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded for stale fetch, got %v", slowErr)
	}
	if v, _ := s.Data("rows"); v != "fast" {
		t.Errorf("expected newest payload kept, got %#v", v)
	}
}

func TestFetchDataLastWriteWins(t *testing.T) {
	release := make(chan struct{})
	s := New("/p", racingGetter(release), WithLastWriteWins())

	slowErr, fastErr := fetchRace(t, s, release)
	if slowErr != nil || fastErr != nil {
		t.Fatalf("unexpected errors: %v %v", slowErr, fastErr)
	}
	if v, _ := s.Data("rows"); v != "slow" {
		t.Errorf("expected last completion to win, got %#v", v)
	}
}

func TestFetchDataTransformIsFenced(t *testing.T) {
	release := make(chan struct{})
	s := New("/p", nil)
	transform := func(payload any) (any, map[string]any) {
		return "rows:" + payload.(string), map[string]any{"rows#total": payload}
	}

	slowErr, fastErr := fetchRace(t, s, release, WithGetter(racingGetter(release)), WithTransform(transform))
	if fastErr != nil {
		t.Fatalf("fast fetch: %v", fastErr)
	}
	if !errors.Is(slowErr, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded for stale fetch, got %v", slowErr)
	}
	if v, _ := s.Data("rows"); v != "rows:fast" {
		t.Errorf("expected transformed newest payload, got %#v", v)
	}
	if v := s.ViewState("rows#total"); v != "fast" {
		t.Errorf("stale fetch must not write view state, got %#v", v)
	}
}

func TestClear(t *testing.T) {
	s := New("/p", nil)
	s.SetData("a", 1, Replace)
	s.SetViewState("v", 1)
	s.SetEffects([]string{"a"})
	s.Clear()

	if len(s.Snapshot()) != 0 || s.ViewState("v") != nil || len(s.Effects()) != 0 {
		t.Error("expected store to be empty after Clear")
	}
	if s.Path() != "/p" {
		t.Errorf("path should survive Clear")
	}
}

func TestFetchWithoutGetter(t *testing.T) {
	s := New("/p", nil)
	if err := s.FetchData(context.Background(), "a", "/x", nil); err == nil {
		t.Error("expected error without getter")
	}
}
