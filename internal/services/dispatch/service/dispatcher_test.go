package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"backcheck/internal/core/compliance"
	"backcheck/internal/core/infotype"
	"backcheck/internal/core/subject"
	"backcheck/internal/modkit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	"backcheck/internal/services/dispatch/domain"
	routerdom "backcheck/internal/services/router/domain"
)

type fakeRouter struct {
	mu      sync.Mutex
	seen    []routerdom.RoutedRequest
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRouter) Route(_ context.Context, req routerdom.RoutedRequest) routerdom.RoutedResult {
	f.mu.Lock()
	f.seen = append(f.seen, req)
	f.mu.Unlock()
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	return routerdom.RoutedResult{CheckType: req.CheckType, Success: true, Data: map[string]any{"ok": true}}
}

func (f *fakeRouter) RouteBatch(ctx context.Context, reqs []routerdom.RoutedRequest) []routerdom.RoutedResult {
	out := make([]routerdom.RoutedResult, len(reqs))
	for i, req := range reqs {
		out[i] = f.Route(ctx, req)
	}
	return out
}

func (f *fakeRouter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *fakeRouter) checks() []compliance.CheckType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]compliance.CheckType, len(f.seen))
	for i, r := range f.seen {
		out[i] = r.CheckType
	}
	return out
}

func newTestDispatcher(t *testing.T, rpm int, router routerdom.RouterPort) *Dispatcher {
	t.Helper()
	deps := modkit.Deps{Log: *logger.Named("dispatch-test")}
	return New(deps, Config{RPM: rpm, Metrics: NewMetrics(prometheus.NewRegistry())}, domain.Ports{Router: router})
}

func submission(t infotype.Type, phase infotype.Phase, check compliance.CheckType) domain.Submission {
	return domain.Submission{
		Request: routerdom.RoutedRequest{
			CheckType: check,
			Subject:   subject.Subject{FullName: "Jane Doe"},
			TenantID:  "tenant-a",
		},
		InfoType: t,
		Phase:    phase,
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPriorityForModifiers(t *testing.T) {
	cases := []struct {
		phase     infotype.Phase
		modifiers []string
		want      int
	}{
		{infotype.PhaseFoundation, nil, 5},
		{infotype.PhaseReconciliation, nil, 4},
		{infotype.PhaseRecords, nil, 3},
		{infotype.PhaseIntelligence, nil, 2},
		{infotype.PhaseNetwork, nil, 2},
		{infotype.PhaseFoundation, []string{"+urgent"}, 4},
		{infotype.PhaseFoundation, []string{"+urgent", "+gap"}, 3},
		{infotype.PhaseRecords, []string{"-bulk"}, 4},
		{infotype.PhaseNetwork, []string{"+a", "+b", "+c"}, 1},
		{infotype.Phase("UNKNOWN"), nil, 3},
	}
	for _, tc := range cases {
		if got := priorityFor(tc.phase, tc.modifiers); got != tc.want {
			t.Fatalf("priorityFor(%s, %v) = %d, want %d", tc.phase, tc.modifiers, got, tc.want)
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	d := newTestDispatcher(t, 600, &fakeRouter{})
	ctx := context.Background()

	err := d.Submit(ctx, domain.Submission{Request: routerdom.RoutedRequest{CheckType: compliance.CheckIdentity}})
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("missing info type: err = %v", err)
	}
	err = d.Submit(ctx, domain.Submission{InfoType: infotype.Identity})
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("missing request: err = %v", err)
	}
}

func TestDispatchOrderFollowsPriority(t *testing.T) {
	f := &fakeRouter{}
	d := newTestDispatcher(t, 9, f) // burst gate of 1 serializes handoffs
	ctx := testCtx(t)

	subs := []domain.Submission{
		submission(infotype.Identity, infotype.PhaseFoundation, compliance.CheckIdentity),
		submission(infotype.AdverseMedia, infotype.PhaseIntelligence, compliance.CheckAdverseMedia),
		submission(infotype.NetworkD2, infotype.PhaseNetwork, compliance.CheckNetworkAnalysis),
		submission(infotype.Criminal, infotype.PhaseRecords, compliance.CheckCriminalNational),
	}
	for _, sub := range subs {
		if err := d.Submit(ctx, sub); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	d.Start()
	defer d.Stop()

	out, err := d.DispatchAll(ctx)
	if err != nil {
		t.Fatalf("dispatch all: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d results, want 4", len(out))
	}

	want := []compliance.CheckType{
		compliance.CheckAdverseMedia,     // intelligence, priority 2, submitted first of the ties
		compliance.CheckNetworkAnalysis,  // network, priority 2
		compliance.CheckCriminalNational, // records, priority 3
		compliance.CheckIdentity,         // foundation, priority 5
	}
	got := f.checks()
	if len(got) != len(want) {
		t.Fatalf("router saw %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("router saw %v, want %v", got, want)
		}
	}
}

func TestDispatchForTypeDrainsBuffer(t *testing.T) {
	f := &fakeRouter{}
	d := newTestDispatcher(t, 6000, f)
	ctx := testCtx(t)

	d.Start()
	defer d.Stop()

	for range 3 {
		if err := d.Submit(ctx, submission(infotype.Employment, infotype.PhaseFoundation, compliance.CheckEmployment)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	out, err := d.DispatchForType(ctx, infotype.Employment)
	if err != nil {
		t.Fatalf("dispatch for type: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}
	for _, res := range out {
		if !res.Success || res.CheckType != compliance.CheckEmployment {
			t.Fatalf("result = %+v", res)
		}
	}

	again, err := d.DispatchForType(ctx, infotype.Employment)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("buffer not drained, got %d results", len(again))
	}
}

func TestDispatchAllIsolatesTypes(t *testing.T) {
	f := &fakeRouter{}
	d := newTestDispatcher(t, 6000, f)
	ctx := testCtx(t)

	d.Start()
	defer d.Stop()

	if err := d.Submit(ctx, submission(infotype.Identity, infotype.PhaseFoundation, compliance.CheckIdentity)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := d.Submit(ctx, submission(infotype.Criminal, infotype.PhaseRecords, compliance.CheckCriminalNational)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, err := d.DispatchAll(ctx)
	if err != nil {
		t.Fatalf("dispatch all: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d results, want 2", len(out))
	}

	empty, err := d.DispatchAll(ctx)
	if err != nil {
		t.Fatalf("second dispatch all: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("buffers not drained, got %d results", len(empty))
	}
}

func TestStopCompletesInFlightAndKeepsQueue(t *testing.T) {
	block := make(chan struct{})
	f := &fakeRouter{block: block, started: make(chan struct{}, 1)}
	d := newTestDispatcher(t, 9, f)
	ctx := testCtx(t)

	// same phase, so FIFO decides: criminal first, civil second
	if err := d.Submit(ctx, submission(infotype.Criminal, infotype.PhaseRecords, compliance.CheckCriminalNational)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := d.Submit(ctx, submission(infotype.Civil, infotype.PhaseRecords, compliance.CheckCivilCourt)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	d.Start()
	<-f.started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("stop returned while a dispatch was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return after in-flight completed")
	}

	if got := f.count(); got != 1 {
		t.Fatalf("router saw %d calls, want 1", got)
	}

	// the second item is still pending, so a drain must block
	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := d.DispatchForType(short, infotype.Civil); err == nil {
		t.Fatalf("drain of a stopped queue returned early")
	}

	// restart picks the queued item back up
	d.Start()
	defer d.Stop()
	out, err := d.DispatchForType(ctx, infotype.Civil)
	if err != nil {
		t.Fatalf("dispatch for type: %v", err)
	}
	if len(out) != 1 || !out[0].Success {
		t.Fatalf("results after restart = %+v", out)
	}
	if got := f.count(); got != 2 {
		t.Fatalf("router saw %d calls, want 2", got)
	}
}

func TestGlobalBudgetExhaustedPastDeadline(t *testing.T) {
	f := &fakeRouter{}
	d := newTestDispatcher(t, 6, f) // capacity 6, refill one token per 10s
	ctx := testCtx(t)

	d.Start()
	defer d.Stop()

	for range 6 {
		if err := d.Submit(ctx, submission(infotype.Financial, infotype.PhaseRecords, compliance.CheckCreditReport)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if out, err := d.DispatchAll(ctx); err != nil || len(out) != 6 {
		t.Fatalf("warmup drain: out=%d err=%v", len(out), err)
	}

	sub := submission(infotype.Licenses, infotype.PhaseRecords, compliance.CheckLicense)
	sub.Request.Deadline = time.Now().Add(100 * time.Millisecond)
	if err := d.Submit(ctx, sub); err != nil {
		t.Fatalf("submit: %v", err)
	}

	out, err := d.DispatchForType(ctx, infotype.Licenses)
	if err != nil {
		t.Fatalf("dispatch for type: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d results, want 1", len(out))
	}
	res := out[0]
	if res.Success || res.Failure == nil || res.Failure.Reason != routerdom.FailAllRateLimited {
		t.Fatalf("result = %+v", res)
	}
	if res.Failure.RetryAfter <= 0 {
		t.Fatalf("retry-after not surfaced: %+v", res.Failure)
	}
	if got := f.count(); got != 6 {
		t.Fatalf("router saw %d calls, want 6", got)
	}
}
