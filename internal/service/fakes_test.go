package service

import (
	"context"
	"sync"
	"sync/atomic"

	"healthguide-go/internal/model"
	"healthguide-go/pkg/triage"
)

// fakeBackend 同时实现 SessionBackend、ExchangeBackend 与 ProviderBackend。
type fakeBackend struct {
	mu sync.Mutex

	sessionFn  func(ctx context.Context) (string, error)
	exchangeFn func(ctx context.Context, req triage.ExchangeRequest) (*triage.ExchangeResponse, error)
	lookupFn   func(ctx context.Context, loc model.Location) ([]model.Provider, error)

	sessionCalls  atomic.Int32
	exchangeCalls atomic.Int32
	lookupCalls   atomic.Int32

	requests  []triage.ExchangeRequest
	locations []model.Location
}

func (f *fakeBackend) CreateSession(ctx context.Context) (string, error) {
	f.sessionCalls.Add(1)
	if f.sessionFn == nil {
		return "sess-1", nil
	}
	return f.sessionFn(ctx)
}

func (f *fakeBackend) Exchange(ctx context.Context, req triage.ExchangeRequest) (*triage.ExchangeResponse, error) {
	f.exchangeCalls.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.exchangeFn == nil {
		return &triage.ExchangeResponse{Message: "Tell me more..."}, nil
	}
	return f.exchangeFn(ctx, req)
}

func (f *fakeBackend) LookupProviders(ctx context.Context, loc model.Location) ([]model.Provider, error) {
	f.lookupCalls.Add(1)
	f.mu.Lock()
	f.locations = append(f.locations, loc)
	f.mu.Unlock()
	if f.lookupFn == nil {
		return []model.Provider{}, nil
	}
	return f.lookupFn(ctx, loc)
}

func (f *fakeBackend) lastRequest() triage.ExchangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

func floatPtr(v float64) *float64 { return &v }

func redFlagResult() *model.TriageResult {
	return &model.TriageResult{
		TriageLevel:          model.TriageEmergency,
		Summary:              "Red flag symptom detected: chest pain",
		RecommendedNextSteps: []string{},
		Escalate:             true,
		RedFlagDetected:      true,
		RedFlagSymptom:       strPtr("chest pain"),
	}
}

func selfCareResult() *model.TriageResult {
	return &model.TriageResult{
		TriageLevel:          model.TriageSelfCare,
		Summary:              "Mild fever, manage at home",
		RecommendedNextSteps: []string{"Rest", "Hydrate"},
	}
}
