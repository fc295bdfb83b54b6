package syncer

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/remote"
)

const (
	testDelay = 20 * time.Millisecond
	waitFor   = 2 * time.Second
	tick      = 5 * time.Millisecond
)

// fakeRemote records calls. While hold is set, every call blocks until
// release is called once for it.
type fakeRemote struct {
	mu      sync.Mutex
	syncs   []remote.SyncKeywordsRequest
	saves   []remote.SaveDraftRequest
	fail    error
	hold    bool
	release chan struct{}
	nextID  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{release: make(chan struct{})}
}

func (f *fakeRemote) setHold(hold bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = hold
}

func (f *fakeRemote) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeRemote) wait() error {
	f.mu.Lock()
	hold, fail := f.hold, f.fail
	f.mu.Unlock()
	if hold {
		<-f.release
	}
	return fail
}

func (f *fakeRemote) SyncKeywords(_ context.Context, req remote.SyncKeywordsRequest) (*remote.SyncKeywordsResult, error) {
	f.mu.Lock()
	f.syncs = append(f.syncs, req)
	f.mu.Unlock()
	if err := f.wait(); err != nil {
		return nil, err
	}
	res := &remote.SyncKeywordsResult{}
	assign := func(in []keyword.Record) []keyword.Record {
		out := make([]keyword.Record, len(in))
		for i, r := range in {
			if r.RemoteID == "" {
				r.RemoteID = "rid-" + r.Word
			}
			out[i] = r
		}
		return out
	}
	res.Positive = assign(req.Positive)
	res.Negative = assign(req.Negative)
	return res, nil
}

func (f *fakeRemote) SaveDraft(_ context.Context, req remote.SaveDraftRequest) (*remote.SaveDraftResult, error) {
	f.mu.Lock()
	f.saves = append(f.saves, req)
	f.mu.Unlock()
	if err := f.wait(); err != nil {
		return nil, err
	}
	id := req.DraftID
	if id == "" {
		f.mu.Lock()
		f.nextID++
		id = fmt.Sprintf("draft-%d", f.nextID)
		f.mu.Unlock()
	}
	return &remote.SaveDraftResult{DraftID: id, Status: "draft"}, nil
}

func (f *fakeRemote) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.syncs)
}

func (f *fakeRemote) lastSync() remote.SyncKeywordsRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs[len(f.syncs)-1]
}

func (f *fakeRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeRemote) lastSave() remote.SaveDraftRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

func (f *fakeRemote) saveAt(i int) remote.SaveDraftRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[i]
}

func newStore() *draft.Store {
	return draft.NewStore(draft.Limits{KeywordCapacity: 5, TagCapacity: 3, WordMaxChars: 40, TagMaxChars: 24})
}

type noticeLog struct {
	mu   sync.Mutex
	errs []error
}

func (n *noticeLog) add(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *noticeLog) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errs)
}

func (n *noticeLog) last() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.errs[len(n.errs)-1]
}

// --- Channel A ---

func TestKeywordSync_InactiveWithoutToken(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: testDelay})
	defer k.Close()

	_, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react"})
	require.NoError(t, err)

	require.Never(t, func() bool { return f.syncCount() > 0 }, 5*testDelay, tick)
	require.False(t, k.Dirty())
}

func TestKeywordSync_PushesFullSnapshot(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: testDelay})
	defer k.Close()

	s.SetWorkspaceToken("ws-1")
	_, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react"})
	require.NoError(t, err)
	_, err = s.Add(draft.AddInput{Polarity: keyword.Negative, Word: "jquery", Weight: ptr(2)})
	require.NoError(t, err)
	require.True(t, k.Dirty())

	require.Eventually(t, func() bool { return f.syncCount() == 1 && !k.InFlight() }, waitFor, tick)
	req := f.lastSync()
	require.Equal(t, "ws-1", req.WorkspaceToken)
	require.Equal(t, "react", req.Positive[0].Word)
	require.Equal(t, 2, req.Negative[0].Weight)

	require.Eventually(t, func() bool { return !k.Dirty() }, waitFor, tick)

	// Remote ids come back as identity changes only.
	require.Eventually(t, func() bool {
		st := s.Snapshot()
		return st.Positive[0].RemoteID != nil && *st.Positive[0].RemoteID == "rid-react"
	}, waitFor, tick)
	require.Never(t, func() bool { return f.syncCount() > 1 }, 5*testDelay, tick)
}

func TestKeywordSync_IdempotentWhenSignatureUnchanged(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: testDelay})
	defer k.Close()

	s.SetWorkspaceToken("ws-1")
	tok, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react", Weight: ptr(3)})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.syncCount() == 1 && !k.Dirty() }, waitFor, tick)

	// Change and change back inside one debounce window.
	s.UpdateWeight(tok.ID, 4)
	s.UpdateWeight(tok.ID, 3)
	require.True(t, k.Dirty())

	require.Eventually(t, func() bool { return !k.Dirty() }, waitFor, tick)
	require.Equal(t, 1, f.syncCount())
}

func TestKeywordSync_CoalescesEditsWhileInFlight(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: testDelay})
	defer k.Close()

	s.SetWorkspaceToken("ws-1")
	tok, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react", Weight: ptr(1)})
	require.NoError(t, err)

	f.setHold(true)
	s.UpdateWeight(tok.ID, 2)
	require.Eventually(t, func() bool { return f.syncCount() == 1 && k.InFlight() }, waitFor, tick)

	// Two rapid weight changes while the first push is held.
	s.UpdateWeight(tok.ID, 3)
	time.Sleep(3 * testDelay)
	s.UpdateWeight(tok.ID, 4)
	time.Sleep(3 * testDelay)
	require.Equal(t, 1, f.syncCount(), "no second push while one is in flight")

	f.setHold(false)
	f.release <- struct{}{}

	require.Eventually(t, func() bool { return f.syncCount() == 2 && !k.InFlight() }, waitFor, tick)
	require.Equal(t, 4, f.lastSync().Positive[0].Weight)
	require.Never(t, func() bool { return f.syncCount() > 2 }, 5*testDelay, tick)
	require.False(t, k.Dirty())
}

func TestKeywordSync_FailureKeepsDirtyAndRetriesOnNextEdit(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	notices := &noticeLog{}
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: testDelay, OnError: notices.add})
	defer k.Close()

	s.SetWorkspaceToken("ws-1")
	f.setFail(stderrors.New("boom"))
	tok, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return notices.count() == 1 }, waitFor, tick)
	require.True(t, errors.Is(notices.last(), errors.ErrSyncFailure))
	require.True(t, k.Dirty())
	require.Never(t, func() bool { return f.syncCount() > 1 }, 5*testDelay, tick)

	f.setFail(nil)
	s.UpdateWeight(tok.ID, 2)
	require.Eventually(t, func() bool { return f.syncCount() == 2 && !k.Dirty() }, waitFor, tick)
}

func TestKeywordSync_TokenClearedCancelsTimer(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: 5 * testDelay})
	defer k.Close()

	s.SetWorkspaceToken("ws-1")
	_, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react"})
	require.NoError(t, err)
	s.SetWorkspaceToken("")

	require.Never(t, func() bool { return f.syncCount() > 0 }, 10*testDelay, tick)
	require.False(t, k.Dirty())
}

func TestKeywordSync_NewTokenStartsFromCurrentCollections(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: testDelay})
	defer k.Close()

	_, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react"})
	require.NoError(t, err)
	s.SetWorkspaceToken("ws-1")

	require.Never(t, func() bool { return f.syncCount() > 0 }, 5*testDelay, tick)
}

func TestKeywordSync_CloseDropsPendingPush(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: 5 * testDelay})

	s.SetWorkspaceToken("ws-1")
	_, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react"})
	require.NoError(t, err)
	k.Close()

	require.Never(t, func() bool { return f.syncCount() > 0 }, 10*testDelay, tick)
}

// --- Channel B ---

func TestAutosave_RequiresTopicAndBody(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: testDelay})
	defer a.Close()

	s.SetTopic("X")
	_, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react"})
	require.NoError(t, err)

	require.Never(t, func() bool { return f.saveCount() > 0 }, 5*testDelay, tick)
	require.True(t, a.Dirty())
}

func TestAutosave_BodyClearedCancelsScheduledSave(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: 5 * testDelay})
	defer a.Close()

	s.SetTopic("X")
	s.SetBody("Y")
	s.SetBody("   ")

	require.Never(t, func() bool { return f.saveCount() > 0 }, 10*testDelay, tick)
}

func TestAutosave_LatestEditWins(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: 3 * testDelay})
	defer a.Close()

	s.SetTopic("X")
	s.SetBody("Y")
	s.SetBody("Z")

	require.Eventually(t, func() bool { return f.saveCount() == 1 && !a.Saving() }, waitFor, tick)
	require.Equal(t, "Z", f.lastSave().Draft.Body)
	require.False(t, a.Dirty())

	require.Eventually(t, func() bool { return s.Snapshot().DraftID == "draft-1" }, waitFor, tick)
	require.Never(t, func() bool { return f.saveCount() > 1 }, 5*testDelay, tick)
}

func TestAutosave_BaselineIsDispatchSignature(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: 10 * testDelay})
	defer a.Close()

	f.setHold(true)
	s.SetTopic("X")
	s.SetBody("Y")
	require.Eventually(t, func() bool { return f.saveCount() == 1 && a.Saving() }, waitFor, tick)

	// Edit mid-flight, then let the save finish before the new timer fires.
	s.SetBody("Y2")
	f.setHold(false)
	f.release <- struct{}{}

	require.Eventually(t, func() bool { return !a.Saving() }, waitFor, tick)
	require.True(t, a.Dirty(), "mid-flight edit must not be marked saved")
	require.Equal(t, "Y", f.saveAt(0).Draft.Body)

	require.Eventually(t, func() bool { return f.saveCount() == 2 && !a.Saving() }, waitFor, tick)
	require.Equal(t, "Y2", f.lastSave().Draft.Body)
	require.Equal(t, "draft-1", f.lastSave().DraftID)
	require.False(t, a.Dirty())
}

func TestAutosave_PendingReplayRunsOnCompletion(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: testDelay})
	defer a.Close()

	f.setHold(true)
	s.SetTopic("X")
	s.SetBody("Y")
	require.Eventually(t, func() bool { return f.saveCount() == 1 && a.Saving() }, waitFor, tick)

	s.SetBody("Z1")
	time.Sleep(3 * testDelay) // timer fires during the flight
	s.SetBody("Z2")
	time.Sleep(3 * testDelay)
	require.Equal(t, 1, f.saveCount(), "a flight is never doubled up")

	f.setHold(false)
	f.release <- struct{}{}

	require.Eventually(t, func() bool { return f.saveCount() == 2 && !a.Saving() }, waitFor, tick)
	require.Equal(t, "Z2", f.lastSave().Draft.Body)
	require.Never(t, func() bool { return f.saveCount() > 2 }, 5*testDelay, tick)
	require.False(t, a.Dirty())
}

func TestAutosave_FailureNotifies(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	notices := &noticeLog{}
	a := NewAutosave(s, f, AutosaveOptions{Delay: testDelay, OnError: notices.add})
	defer a.Close()

	f.setFail(stderrors.New("503"))
	s.SetTopic("X")
	s.SetBody("Y")

	require.Eventually(t, func() bool { return notices.count() == 1 }, waitFor, tick)
	require.True(t, errors.Is(notices.last(), errors.ErrSyncFailure))
	require.True(t, a.Dirty())
	require.Never(t, func() bool { return f.saveCount() > 1 }, 5*testDelay, tick)
}

func TestAutosave_PendingReplayRunsAfterFailure(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	notices := &noticeLog{}
	a := NewAutosave(s, f, AutosaveOptions{Delay: testDelay, OnError: notices.add})
	defer a.Close()

	f.setHold(true)
	f.setFail(stderrors.New("503"))
	s.SetTopic("X")
	s.SetBody("Y")
	require.Eventually(t, func() bool { return f.saveCount() == 1 && a.Saving() }, waitFor, tick)

	// Edit and revert during the flight: the content matches the failing request.
	s.SetBody("Z")
	time.Sleep(3 * testDelay)
	s.SetBody("Y")
	time.Sleep(3 * testDelay)
	require.Equal(t, 1, f.saveCount())

	f.setFail(nil)
	f.setHold(false)
	f.release <- struct{}{}

	require.Eventually(t, func() bool { return f.saveCount() == 2 && !a.Saving() }, waitFor, tick)
	require.Equal(t, "Y", f.lastSave().Draft.Body)
	require.False(t, a.Dirty())
	require.Equal(t, 1, notices.count())
	require.Never(t, func() bool { return f.saveCount() > 2 }, 5*testDelay, tick)
}

func TestSave_ManualBypassesDebounce(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: time.Hour})
	defer a.Close()

	s.SetTopic("X")
	s.SetBody("Y")

	res, err := a.Save(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "draft-1", res.DraftID)
	require.Equal(t, 1, f.saveCount())
	require.False(t, a.Dirty())
	require.False(t, f.lastSave().Publish)
}

func TestSave_PublishValidationMakesNoCall(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: time.Hour})
	defer a.Close()

	s.SetTopic("X")
	s.SetBody("Y")
	s.SetInstructions("I")
	s.SetModel("M")
	require.NoError(t, s.AddTag("docs"))
	_, err := s.Add(draft.AddInput{Polarity: keyword.Negative, Word: "jargon"})
	require.NoError(t, err)

	_, err = a.Save(context.Background(), true)
	require.True(t, errors.Is(err, errors.ErrValidationFailed))
	fields := errors.Fields(err)
	require.Len(t, fields, 1)
	require.Equal(t, "positive", fields[0].Field)
	require.Equal(t, 0, f.saveCount())

	_, err = s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "clear"})
	require.NoError(t, err)
	res, err := a.Save(context.Background(), true)
	require.NoError(t, err)
	require.NotEmpty(t, res.DraftID)
	require.True(t, f.lastSave().Publish)
}

func TestSave_WaitsForInFlightAutosave(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: testDelay})
	defer a.Close()

	f.setHold(true)
	s.SetTopic("X")
	s.SetBody("Y")
	require.Eventually(t, func() bool { return f.saveCount() == 1 && a.Saving() }, waitFor, tick)
	s.SetBody("Z")

	type result struct {
		res *remote.SaveDraftResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := a.Save(context.Background(), false)
		done <- result{res, err}
	}()

	require.Never(t, func() bool { return f.saveCount() > 1 }, 3*testDelay, tick)
	f.setHold(false)
	f.release <- struct{}{}

	r := <-done
	require.NoError(t, r.err)
	require.Equal(t, "draft-1", r.res.DraftID, "manual save reuses the id of the autosave it waited for")
	require.Eventually(t, func() bool { return !a.Saving() && !a.Dirty() }, waitFor, tick)
	require.Equal(t, "Z", f.lastSave().Draft.Body)
}

func TestSave_ContextCancelledWhileWaiting(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: testDelay})
	defer a.Close()

	f.setHold(true)
	s.SetTopic("X")
	s.SetBody("Y")
	require.Eventually(t, func() bool { return a.Saving() }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), 2*testDelay)
	defer cancel()
	_, err := a.Save(ctx, false)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f.setHold(false)
	f.release <- struct{}{}
}

func TestAutosave_RebaseDropsPendingWork(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	a := NewAutosave(s, f, AutosaveOptions{Delay: 5 * testDelay})
	defer a.Close()

	s.Load(draft.State{DraftID: "stored", Topic: "X", Body: "Y"})
	a.Rebase()
	require.False(t, a.Dirty())
	require.Never(t, func() bool { return f.saveCount() > 0 }, 10*testDelay, tick)

	s.SetBody("Y2")
	require.Eventually(t, func() bool { return f.saveCount() == 1 }, waitFor, tick)
	require.Equal(t, "stored", f.lastSave().DraftID)
}

func TestChannelsAreIndependent(t *testing.T) {
	s := newStore()
	f := newFakeRemote()
	k := NewKeywordSync(s, f, KeywordSyncOptions{Delay: testDelay})
	defer k.Close()
	a := NewAutosave(s, f, AutosaveOptions{Delay: 3 * testDelay})
	defer a.Close()

	s.SetWorkspaceToken("ws-1")
	s.SetTopic("X")
	s.SetBody("Y")
	_, err := s.Add(draft.AddInput{Polarity: keyword.Positive, Word: "react"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.syncCount() == 1 && f.saveCount() == 1 && !k.Dirty() && !a.Dirty()
	}, waitFor, tick)

	// A field edit only concerns Channel B.
	s.SetBody("Y2")
	require.Eventually(t, func() bool { return f.saveCount() == 2 }, waitFor, tick)
	require.Equal(t, 1, f.syncCount())
}

func ptr(i int) *int {
	return &i
}
