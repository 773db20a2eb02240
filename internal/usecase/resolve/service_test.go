package resolve

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/index"
	"github.com/veltra/findex/internal/repository/catalog"
)

type fakeVectorizer struct {
	vectors domain.SpaceVectors
}

func (f *fakeVectorizer) Vectorize(_ context.Context, _ domain.Query) domain.SpaceVectors {
	return f.vectors
}

func bothSpaces() *fakeVectorizer {
	return &fakeVectorizer{vectors: domain.SpaceVectors{
		domain.SpaceText:  {0.1},
		domain.SpaceImage: {0.2},
	}}
}

// scriptedRetriever returns hits keyed by the rendered filter string of each
// request, recording every pass for stage-order assertions.
type scriptedRetriever struct {
	byFilter map[string]map[domain.Space][]index.Hit
	requests []*catalog.Request
}

func (f *scriptedRetriever) Retrieve(ctx context.Context, req *catalog.Request) (map[domain.Space][]index.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, req)
	return f.byFilter[req.Filter.Render()], nil
}

type fakeSessions struct {
	excluded   []string
	excludeErr error
	appendErr  error
	appended   [][]domain.Product
}

func (f *fakeSessions) ExcludedKeys(_ context.Context, _ string) ([]string, error) {
	return f.excluded, f.excludeErr
}

func (f *fakeSessions) Append(_ context.Context, _ string, items []domain.Product) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, items)
	return nil
}

func newService(v Vectorizer, r Retriever, s SessionStore, hooks Hooks) *Service {
	return New(v, r, s, Config{TopK: 3, MinScore: 0.5, RelaxOrder: []string{"price", "color"}}, hooks, zap.NewNop())
}

func textHits(hits ...index.Hit) map[domain.Space][]index.Hit {
	return map[domain.Space][]index.Hit{domain.SpaceText: hits}
}

// Scenario: color and price both requested, nothing satisfies both; the
// color-only stage finds the over-budget blue item and the narrative says so.
func TestResolve_PriceRelaxed(t *testing.T) {
	blue := index.Hit{Product: domain.Product{Handle: "blue-1500", Color: "BLUE", Price: 1500}, Score: 0.9}
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{
		`color = "BLUE"`: textHits(blue),
	}}
	sessions := &fakeSessions{}
	svc := newService(bothSpaces(), retriever, sessions, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "blue", ptr(500), "u1", 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if result.Stage != StageRelaxed1 {
		t.Errorf("stage = %s, want %s", result.Stage, StageRelaxed1)
	}
	if result.Narrative != "price relaxed" {
		t.Errorf("narrative = %q", result.Narrative)
	}
	if len(result.Results) != 1 || result.Results[0].Handle != "blue-1500" {
		t.Errorf("results = %+v", result.Results)
	}
	if len(retriever.requests) != 2 {
		t.Errorf("expected stages 1 and 2 attempted, got %d passes", len(retriever.requests))
	}
	if len(sessions.appended) != 1 {
		t.Errorf("shown items not persisted: %d appends", len(sessions.appended))
	}
}

// Scenario: no constraints requested; the first stage terminates and the
// narrative reports all filters satisfied.
func TestResolve_UnconstrainedFullStage(t *testing.T) {
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{
		"": textHits(index.Hit{Product: domain.Product{Handle: "a"}, Score: 0.9}),
	}}
	svc := newService(bothSpaces(), retriever, &fakeSessions{}, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "", nil, "u1", 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if result.Stage != StageFull {
		t.Errorf("stage = %s, want %s", result.Stage, StageFull)
	}
	if result.Narrative != "all filters satisfied" {
		t.Errorf("narrative = %q", result.Narrative)
	}
	if len(retriever.requests) != 1 {
		t.Errorf("expected a single pass, got %d", len(retriever.requests))
	}
}

// Scenario: the previously shown top item is excluded on every stage and
// the next-best candidate comes back instead.
func TestResolve_ExclusionIsSticky(t *testing.T) {
	next := index.Hit{Product: domain.Product{Handle: "next-best"}, Score: 0.8}
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{
		`handle NOT IN ["top-pick"]`: textHits(next),
	}}
	sessions := &fakeSessions{excluded: []string{"top-pick"}}
	svc := newService(bothSpaces(), retriever, sessions, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "", nil, "u1", 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, c := range result.Results {
		if c.Handle == "top-pick" {
			t.Fatal("excluded handle returned to the shopper")
		}
	}
	if len(result.Results) != 1 || result.Results[0].Handle != "next-best" {
		t.Errorf("results = %+v", result.Results)
	}
	for _, req := range retriever.requests {
		if req.Filter.Render() != `handle NOT IN ["top-pick"]` {
			t.Errorf("pass lost the exclusion clause: %q", req.Filter.Render())
		}
	}
}

// Scenario: nothing searchable in the query; retrieval is skipped entirely.
func TestResolve_NoSignal(t *testing.T) {
	retriever := &scriptedRetriever{}
	svc := newService(bothSpaces(), retriever, &fakeSessions{}, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("", "", "blue", nil, "u1", 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if result.Stage != StageNoSignal {
		t.Errorf("stage = %s, want %s", result.Stage, StageNoSignal)
	}
	if result.Narrative != "no query signal" {
		t.Errorf("narrative = %q", result.Narrative)
	}
	if len(retriever.requests) != 0 {
		t.Errorf("retrieval attempted despite empty query: %d passes", len(retriever.requests))
	}
}

// Scenario: every provider failed to produce a vector; retrieval is skipped
// and the engine answers honestly instead of erroring.
func TestResolve_NoVectors(t *testing.T) {
	retriever := &scriptedRetriever{}
	svc := newService(&fakeVectorizer{}, retriever, &fakeSessions{}, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "", nil, "u1", 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if result.Stage != StageEmpty {
		t.Errorf("stage = %s, want %s", result.Stage, StageEmpty)
	}
	if len(retriever.requests) != 0 {
		t.Errorf("retrieval attempted with no vectors: %d passes", len(retriever.requests))
	}
}

func TestResolve_AllStagesEmpty(t *testing.T) {
	retriever := &scriptedRetriever{}
	sessions := &fakeSessions{}
	svc := newService(bothSpaces(), retriever, sessions, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "blue", ptr(500), "u1", 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if result.Stage != StageEmpty {
		t.Errorf("stage = %s, want %s", result.Stage, StageEmpty)
	}
	if result.Narrative != "no products found" {
		t.Errorf("narrative = %q", result.Narrative)
	}
	if len(retriever.requests) != 4 {
		t.Errorf("expected all 4 stages attempted, got %d", len(retriever.requests))
	}
	if len(sessions.appended) != 0 {
		t.Errorf("empty resolution must not write to the session store")
	}
}

func TestResolve_TruncatesToLimit(t *testing.T) {
	many := textHits(
		index.Hit{Product: domain.Product{Handle: "a"}, Score: 0.9},
		index.Hit{Product: domain.Product{Handle: "b"}, Score: 0.8},
		index.Hit{Product: domain.Product{Handle: "c"}, Score: 0.7},
		index.Hit{Product: domain.Product{Handle: "d"}, Score: 0.6},
	)
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{"": many}}
	svc := newService(bothSpaces(), retriever, &fakeSessions{}, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "", nil, "u1", 2))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(result.Results) != 2 {
		t.Errorf("results = %d, want capped at 2", len(result.Results))
	}
	if len(result.Context) != 2 {
		t.Errorf("lean context = %d entries, want 2", len(result.Context))
	}
	if result.Results[0].Handle != "a" || result.Results[1].Handle != "b" {
		t.Errorf("truncation must keep the top-ranked entries: %+v", result.Results)
	}
}

// A request without an explicit limit is capped at the configured TopK, not
// the package default.
func TestResolve_NoLimitUsesConfiguredTopK(t *testing.T) {
	many := textHits(
		index.Hit{Product: domain.Product{Handle: "a"}, Score: 0.9},
		index.Hit{Product: domain.Product{Handle: "b"}, Score: 0.8},
		index.Hit{Product: domain.Product{Handle: "c"}, Score: 0.7},
		index.Hit{Product: domain.Product{Handle: "d"}, Score: 0.6},
		index.Hit{Product: domain.Product{Handle: "e"}, Score: 0.5},
		index.Hit{Product: domain.Product{Handle: "f"}, Score: 0.4},
	)
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{"": many}}
	svc := New(bothSpaces(), retriever, nil, Config{TopK: 5}, Hooks{}, zap.NewNop())

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "", nil, "u1", 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(result.Results) != 5 {
		t.Errorf("results = %d, want configured cap of 5", len(result.Results))
	}
	if len(retriever.requests) != 1 || retriever.requests[0].Limit != 5 {
		t.Errorf("retrieval limit = %+v, want 5", retriever.requests)
	}
}

func TestResolve_ExclusionReadFailureFailsSafe(t *testing.T) {
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{
		"": textHits(index.Hit{Product: domain.Product{Handle: "a"}, Score: 0.9}),
	}}
	sessions := &fakeSessions{excludeErr: errors.New("store down")}
	svc := newService(bothSpaces(), retriever, sessions, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "", nil, "u1", 0))
	if err != nil {
		t.Fatalf("exclusion read failure must not block search: %v", err)
	}
	if len(result.Results) != 1 {
		t.Errorf("results = %+v", result.Results)
	}
}

func TestResolve_AppendFailureDoesNotFailResolution(t *testing.T) {
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{
		"": textHits(index.Hit{Product: domain.Product{Handle: "a"}, Score: 0.9}),
	}}
	sessions := &fakeSessions{appendErr: errors.New("store down")}
	svc := newService(bothSpaces(), retriever, sessions, Hooks{})

	result, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "", nil, "u1", 0))
	if err != nil {
		t.Fatalf("persist failure must not fail the resolution: %v", err)
	}
	if len(result.Results) != 1 {
		t.Errorf("results = %+v", result.Results)
	}
}

func TestResolve_AnonymousSkipsSessionStore(t *testing.T) {
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{
		"": textHits(index.Hit{Product: domain.Product{Handle: "a"}, Score: 0.9}),
	}}
	sessions := &fakeSessions{}
	svc := newService(bothSpaces(), retriever, sessions, Hooks{})

	if _, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "", nil, "", 0)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(sessions.appended) != 0 {
		t.Errorf("anonymous resolution must not touch the session store")
	}
}

func TestResolve_CancelledContextPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retriever := &scriptedRetriever{}
	sessions := &fakeSessions{}
	svc := newService(bothSpaces(), retriever, sessions, Hooks{})

	_, err := svc.Resolve(ctx, domain.NewQuery("dress", "", "", nil, "u1", 0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sessions.appended) != 0 {
		t.Errorf("cancelled resolution must not write to the session store")
	}
}

func TestResolve_HooksFireInOrder(t *testing.T) {
	retriever := &scriptedRetriever{byFilter: map[string]map[domain.Space][]index.Hit{
		`color = "BLUE"`: textHits(index.Hit{Product: domain.Product{Handle: "a"}, Score: 0.9}),
	}}

	var stages []Stage
	var terminal Stage
	hooks := Hooks{
		OnStageStart: func(_ context.Context, stage Stage) { stages = append(stages, stage) },
		OnResolved:   func(_ context.Context, r *Result) { terminal = r.Stage },
	}
	svc := newService(bothSpaces(), retriever, &fakeSessions{}, hooks)

	_, err := svc.Resolve(context.Background(), domain.NewQuery("dress", "", "blue", ptr(500), "u1", 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if len(stages) != 2 || stages[0] != StageFull || stages[1] != StageRelaxed1 {
		t.Errorf("stage starts = %v, want [full relaxed_1]", stages)
	}
	if terminal != StageRelaxed1 {
		t.Errorf("terminal hook saw stage %s, want %s", terminal, StageRelaxed1)
	}
}
