package workbench

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/remote"
	"github.com/hpungsan/promptbench/internal/reorder"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	quiet   = 150 * time.Millisecond
)

// fakeService answers every call from canned fields and records what it saw.
type fakeService struct {
	mu sync.Mutex

	interpret *remote.InterpretResult
	augment   []keyword.Record
	augmentWS string // token handed out when an augment arrives without one
	createErr error
	removeErr error
	preview   string

	creates []remote.CreateKeywordRequest
	removes []remote.RemoveKeywordRequest
	syncs   []remote.SyncKeywordsRequest
	saves   []remote.SaveDraftRequest
}

func (f *fakeService) Interpret(_ context.Context, req remote.InterpretRequest) (*remote.InterpretResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.interpret == nil {
		return nil, errors.NewInvalidRequest("assistant not configured (set OPENAI_API_KEY)")
	}
	res := *f.interpret
	if req.WorkspaceToken != "" {
		res.WorkspaceToken = req.WorkspaceToken
	}
	return &res, nil
}

func (f *fakeService) Augment(_ context.Context, req remote.AugmentRequest) (*remote.AugmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := req.Positive
	if req.Polarity == keyword.Negative {
		existing = req.Negative
	}
	token := req.WorkspaceToken
	if token == "" {
		token = f.augmentWS
	}
	return &remote.AugmentResult{
		WorkspaceToken: token,
		Polarity:       req.Polarity,
		Keywords:       append(append([]keyword.Record{}, existing...), f.augment...),
	}, nil
}

func (f *fakeService) CreateKeyword(_ context.Context, req remote.CreateKeywordRequest) (*keyword.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &keyword.Record{RemoteID: "rid-" + req.Word, Word: req.Word, Weight: req.Weight}, nil
}

func (f *fakeService) RemoveKeyword(_ context.Context, req remote.RemoveKeywordRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removes = append(f.removes, req)
	return f.removeErr
}

func (f *fakeService) GeneratePreview(_ context.Context, req remote.PreviewRequest) (*remote.PreviewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &remote.PreviewResult{Text: f.preview, HTML: "<h1>" + req.Draft.Topic + "</h1>"}, nil
}

func (f *fakeService) SaveDraft(_ context.Context, req remote.SaveDraftRequest) (*remote.SaveDraftResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, req)
	id := req.DraftID
	if id == "" {
		id = fmt.Sprintf("draft-%d", len(f.saves))
	}
	res := &remote.SaveDraftResult{DraftID: id, Status: "draft"}
	if req.Publish {
		res.Status = "published"
		res.TaskID = "task-1"
	}
	return res, nil
}

func (f *fakeService) SyncKeywords(_ context.Context, req remote.SyncKeywordsRequest) (*remote.SyncKeywordsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, req)
	return &remote.SyncKeywordsResult{Positive: req.Positive, Negative: req.Negative}, nil
}

func (f *fakeService) count(what string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch what {
	case "create":
		return len(f.creates)
	case "remove":
		return len(f.removes)
	case "sync":
		return len(f.syncs)
	case "save":
		return len(f.saves)
	}
	return 0
}

func (f *fakeService) save(i int) remote.SaveDraftRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 {
		i = len(f.saves) + i
	}
	return f.saves[i]
}

type notices struct {
	mu  sync.Mutex
	all []Notice
}

func (n *notices) add(x Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, x)
}

func (n *notices) list() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.all...)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.KeywordCapacity = 3
	cfg.TagCapacity = 2
	cfg.KeywordSyncDelayMS = 20
	cfg.AutosaveDelayMS = 60
	cfg.MinGenerateVisibleMS = 30
	return cfg
}

func newTestWorkbench(t *testing.T) (*Workbench, *fakeService, *notices) {
	t.Helper()
	svc := &fakeService{}
	n := &notices{}
	w := New(testConfig(), svc, Options{Notify: n.add})
	t.Cleanup(w.Close)
	return w, svc, n
}

func add(t *testing.T, w *Workbench, p keyword.Polarity, word string) keyword.Token {
	t.Helper()
	tok, err := w.AddKeyword(context.Background(), AddKeywordInput{Polarity: p, Word: word})
	require.NoError(t, err)
	return tok
}

func words(tokens []keyword.Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.StoredWord())
	}
	return out
}

func records(ws ...string) []keyword.Record {
	out := make([]keyword.Record, 0, len(ws))
	for i, w := range ws {
		out = append(out, keyword.Record{Word: w, Weight: 5 - i, Source: keyword.SourceModel})
	}
	return out
}

func TestAddKeyword_LocalOnlyWithoutWorkspace(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)

	tok := add(t, w, keyword.Positive, "react")
	require.Equal(t, keyword.SourceManual, tok.Source)
	require.Equal(t, 0, svc.count("create"))
	require.Equal(t, []string{"react"}, words(w.Snapshot().Positive))
}

func TestAddKeyword_CreatesRemotelyWithWorkspace(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	w.Store().SetWorkspaceToken("ws-1")

	tok := add(t, w, keyword.Negative, "jquery")
	require.Equal(t, 1, svc.count("create"))
	require.NotNil(t, tok.RemoteID)
	require.Equal(t, "rid-jquery", *tok.RemoteID)

	got, ok := w.Store().Find(tok.ID)
	require.True(t, ok)
	require.Equal(t, "rid-jquery", *got.RemoteID)
}

func TestAddKeyword_RemoteLimitRollsBack(t *testing.T) {
	w, svc, n := newTestWorkbench(t)
	w.Store().SetWorkspaceToken("ws-1")
	add(t, w, keyword.Positive, "react")

	svc.createErr = errors.NewRemoteLimit("positive", errors.ReasonDuplicate, "already in workspace")
	_, err := w.AddKeyword(context.Background(), AddKeywordInput{Polarity: keyword.Positive, Word: "hooks"})
	require.True(t, errors.Is(err, errors.ErrRemoteLimit))
	require.Equal(t, []string{"react"}, words(w.Snapshot().Positive))

	// Same text as the local duplicate check.
	svc.createErr = nil
	_, err = w.AddKeyword(context.Background(), AddKeywordInput{Polarity: keyword.Positive, Word: "REACT"})
	require.True(t, errors.Is(err, errors.ErrDuplicateKeyword))

	got := n.list()
	require.Len(t, got, 2)
	require.Equal(t, got[1].Message, got[0].Message)
	require.Equal(t, "this keyword is already in the positive list", got[0].Message)
	require.Equal(t, LevelWarn, got[0].Level)
	require.Equal(t, errors.ErrRemoteLimit, got[0].Code)
}

func TestAddKeyword_RemoteFailureKeepsKeyword(t *testing.T) {
	w, svc, n := newTestWorkbench(t)
	w.Store().SetWorkspaceToken("ws-1")
	svc.createErr = stderrors.New("connection reset")

	tok := add(t, w, keyword.Positive, "react")
	require.Nil(t, tok.RemoteID)
	require.Equal(t, []string{"react"}, words(w.Snapshot().Positive))
	require.Len(t, n.list(), 1)
	require.Equal(t, errors.ErrSyncFailure, n.list()[0].Code)
}

func TestAddKeyword_CapacityNotice(t *testing.T) {
	w, svc, n := newTestWorkbench(t)
	for _, word := range []string{"a", "b", "c"} {
		add(t, w, keyword.Positive, word)
	}

	_, err := w.AddKeyword(context.Background(), AddKeywordInput{Polarity: keyword.Positive, Word: "d"})
	require.True(t, errors.Is(err, errors.ErrCapacityExceeded))
	require.Equal(t, "the positive list is full", n.list()[0].Message)
	require.Equal(t, 0, svc.count("create"))
}

func TestRemoveKeyword_RefusesLastPositive(t *testing.T) {
	w, _, n := newTestWorkbench(t)
	tok := add(t, w, keyword.Positive, "react")

	err := w.RemoveKeyword(context.Background(), tok.ID)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Len(t, w.Snapshot().Positive, 1)
	require.Len(t, n.list(), 1)

	neg := add(t, w, keyword.Negative, "jargon")
	require.NoError(t, w.RemoveKeyword(context.Background(), neg.ID))
	require.Empty(t, w.Snapshot().Negative)
}

func TestRemoveKeyword_RemovesRemotely(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	w.Store().SetWorkspaceToken("ws-1")
	add(t, w, keyword.Positive, "react")
	tok := add(t, w, keyword.Positive, "hooks")

	require.NoError(t, w.RemoveKeyword(context.Background(), tok.ID))
	require.Equal(t, []string{"react"}, words(w.Snapshot().Positive))
	require.Equal(t, 1, svc.count("remove"))
	require.Equal(t, "hooks", svc.removes[0].Word)
	require.Equal(t, keyword.Positive, svc.removes[0].Polarity)

	// Unknown ids are a no-op.
	require.NoError(t, w.RemoveKeyword(context.Background(), "missing"))
	require.Equal(t, 1, svc.count("remove"))
}

func TestInterpret_EstablishesWorkspace(t *testing.T) {
	w, svc, n := newTestWorkbench(t)
	svc.interpret = &remote.InterpretResult{
		WorkspaceToken: "ws-1",
		Topic:          "React hooks",
		Positive:       records("react", "hooks", "state", "effects"),
		Negative:       records("class components"),
	}

	require.NoError(t, w.Interpret(context.Background(), "teach me react hooks"))

	st := w.Snapshot()
	require.Equal(t, "ws-1", st.WorkspaceToken)
	require.Equal(t, "React hooks", st.Topic)
	require.Equal(t, []string{"react", "hooks", "state"}, words(st.Positive))
	require.Equal(t, []string{"class components"}, words(st.Negative))
	require.Equal(t, keyword.SourceModel, st.Positive[0].Source)

	got := n.list()
	require.Len(t, got, 1, "one overflow notice")
	require.Equal(t, LevelInfo, got[0].Level)

	// The workspace already holds what was applied.
	require.Never(t, func() bool { return svc.count("sync") > 0 }, quiet, tick)
	require.False(t, w.Status().KeywordsDirty)
}

func TestInterpret_ExistingWorkspaceIsNotPushedAgain(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	svc.interpret = &remote.InterpretResult{WorkspaceToken: "ws-1", Topic: "A", Positive: records("a")}
	require.NoError(t, w.Interpret(context.Background(), "a"))

	svc.interpret = &remote.InterpretResult{WorkspaceToken: "ws-other", Topic: "B", Positive: records("b", "c")}
	require.NoError(t, w.Interpret(context.Background(), "b"))

	st := w.Snapshot()
	require.Equal(t, "ws-1", st.WorkspaceToken)
	require.Equal(t, []string{"b", "c"}, words(st.Positive))
	require.Never(t, func() bool { return svc.count("sync") > 0 }, quiet, tick)

	// A later edit is pushed as usual.
	w.UpdateWeight(st.Positive[0].ID, 1)
	require.Eventually(t, func() bool { return svc.count("sync") == 1 }, waitFor, tick)
}

func TestInterpret_FailureNotifies(t *testing.T) {
	w, _, n := newTestWorkbench(t)

	err := w.Interpret(context.Background(), "anything")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Equal(t, "assistant not configured (set OPENAI_API_KEY)", n.list()[0].Message)
	require.Empty(t, w.Snapshot().WorkspaceToken)
}

func TestAugment_ReplacesOnePolarityWithOneNotice(t *testing.T) {
	w, svc, n := newTestWorkbench(t)
	w.SetTopic("React")
	react := add(t, w, keyword.Positive, "react")
	add(t, w, keyword.Negative, "jquery")
	svc.augment = records("hooks", "React", "state", "effects")

	require.NoError(t, w.Augment(context.Background(), keyword.Positive))

	st := w.Snapshot()
	require.Equal(t, []string{"react", "hooks", "state"}, words(st.Positive))
	require.Equal(t, react.ID, st.Positive[0].ID)
	require.Equal(t, []string{"jquery"}, words(st.Negative))
	require.Len(t, n.list(), 1)
	require.Contains(t, n.list()[0].Message, "3 keywords")
}

func TestAugment_InvalidPolarity(t *testing.T) {
	w, _, _ := newTestWorkbench(t)
	err := w.Augment(context.Background(), keyword.Polarity("neutral"))
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestAugment_WorkspaceIsNotPushedAgain(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	svc.interpret = &remote.InterpretResult{WorkspaceToken: "ws-1", Topic: "A", Positive: records("a")}
	require.NoError(t, w.Interpret(context.Background(), "a"))
	svc.augment = records("b")

	require.NoError(t, w.Augment(context.Background(), keyword.Negative))
	require.Equal(t, []string{"b"}, words(w.Snapshot().Negative))
	require.Never(t, func() bool { return svc.count("sync") > 0 }, quiet, tick)
}

func TestAugment_EstablishesWorkspace(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	w.SetTopic("React")
	add(t, w, keyword.Positive, "react")
	svc.augmentWS = "ws-new"
	svc.augment = records("hooks")

	require.NoError(t, w.Augment(context.Background(), keyword.Positive))

	st := w.Snapshot()
	require.Equal(t, "ws-new", st.WorkspaceToken)
	require.Equal(t, []string{"react", "hooks"}, words(st.Positive))

	// The new workspace already holds what was applied.
	require.Never(t, func() bool { return svc.count("sync") > 0 }, quiet, tick)
	require.False(t, w.Status().KeywordsDirty)

	w.UpdateWeight(st.Positive[1].ID, 2)
	require.Eventually(t, func() bool { return svc.count("sync") == 1 }, waitFor, tick)
	svc.mu.Lock()
	require.Equal(t, "ws-new", svc.syncs[0].WorkspaceToken)
	svc.mu.Unlock()
}

func TestAugment_KeepsDragTarget(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	a := add(t, w, keyword.Positive, "a")
	add(t, w, keyword.Positive, "b")
	svc.augment = records("c")

	require.True(t, w.DragStart(a.ID))
	require.NoError(t, w.Augment(context.Background(), keyword.Positive))
	require.NoError(t, w.DragEnd(a.ID, reorder.ContainerTarget(keyword.Positive)))

	require.Equal(t, []string{"b", "c", "a"}, words(w.Snapshot().Positive))
}

func TestDragEnd_FullCollectionNotifies(t *testing.T) {
	w, _, n := newTestWorkbench(t)
	for _, word := range []string{"a", "b", "c"} {
		add(t, w, keyword.Positive, word)
	}
	x := add(t, w, keyword.Negative, "x")

	require.True(t, w.DragStart(x.ID))
	_, ok := w.DragOver(x.ID, reorder.ContainerTarget(keyword.Positive))
	require.True(t, ok)
	err := w.DragEnd(x.ID, reorder.ContainerTarget(keyword.Positive))
	require.True(t, errors.Is(err, errors.ErrCapacityExceeded))
	require.Equal(t, "the positive list is full", n.list()[0].Message)
	require.Equal(t, []string{"x"}, words(w.Snapshot().Negative))
}

func TestDragEnd_ReordersWithinCollection(t *testing.T) {
	w, _, _ := newTestWorkbench(t)
	a := add(t, w, keyword.Positive, "a")
	add(t, w, keyword.Positive, "b")
	c := add(t, w, keyword.Positive, "c")

	require.True(t, w.DragStart(c.ID))
	require.NoError(t, w.DragEnd(c.ID, reorder.TokenTarget(a.ID)))
	require.Equal(t, []string{"c", "a", "b"}, words(w.Snapshot().Positive))

	w.DragStart(a.ID)
	w.DragCancel()
	require.Equal(t, []string{"c", "a", "b"}, words(w.Snapshot().Positive))
}

func TestSortByWeight(t *testing.T) {
	w, _, _ := newTestWorkbench(t)
	a := add(t, w, keyword.Positive, "a")
	add(t, w, keyword.Positive, "b")
	require.True(t, w.UpdateWeight(a.ID, 1))

	w.SortByWeight(keyword.Positive)
	require.Equal(t, []string{"b", "a"}, words(w.Snapshot().Positive))
}

func TestTags(t *testing.T) {
	w, _, n := newTestWorkbench(t)

	w.SetTags([]string{"go", "GO", "sync", "extra"})
	require.Equal(t, []string{"go", "sync"}, w.Snapshot().Tags)
	require.Len(t, n.list(), 1)

	require.True(t, w.RemoveTag("Sync"))
	require.NoError(t, w.AddTag("docs"))
	err := w.AddTag("more")
	require.True(t, errors.Is(err, errors.ErrCapacityExceeded))
	require.Len(t, n.list(), 2)
}

func TestSaveDraft_RecordsDraftID(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	w.SetTopic("X")
	w.SetBody("Y")

	res, err := w.SaveDraft(context.Background())
	require.NoError(t, err)
	require.Equal(t, "draft-1", res.DraftID)
	require.Equal(t, "draft-1", w.Snapshot().DraftID)
	require.False(t, w.Status().Dirty)
	require.Never(t, func() bool { return svc.count("save") > 1 }, quiet, tick)
}

func TestPublish_ValidationFailureMakesNoCall(t *testing.T) {
	w, svc, n := newTestWorkbench(t)
	w.SetTopic("X")

	_, err := w.Publish(context.Background())
	require.True(t, errors.Is(err, errors.ErrValidationFailed))
	require.Len(t, errors.Fields(err), 6)
	require.Equal(t, 0, svc.count("save"))
	require.Equal(t, errors.ErrValidationFailed, n.list()[0].Code)
}

func TestPublish(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	w.SetTopic("X")
	w.SetBody("Y")
	w.SetInstructions("I")
	w.SetModel("M")
	w.SetTags([]string{"docs"})
	add(t, w, keyword.Positive, "clear")
	add(t, w, keyword.Negative, "jargon")

	res, err := w.Publish(context.Background())
	require.NoError(t, err)
	require.Equal(t, "published", res.Status)
	require.Equal(t, "task-1", res.TaskID)
	require.True(t, svc.save(-1).Publish)
}

func TestAutosave_RunsInBackground(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	w.SetTopic("X")
	w.SetBody("Y")

	require.Eventually(t, func() bool { return svc.count("save") == 1 && !w.Status().Saving }, waitFor, tick)
	require.Eventually(t, func() bool { return !w.Status().Dirty }, waitFor, tick)
}

func TestGenerate(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	svc.preview = "generated"
	w.SetTopic("React")

	start := time.Now()
	res, err := w.Generate(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Equal(t, "generated", res.Text)
	require.Equal(t, "<h1>React</h1>", res.HTML)
	require.False(t, w.Status().Generating)
}

func TestLoadVersion_CountsAsSaved(t *testing.T) {
	w, svc, n := newTestWorkbench(t)

	w.LoadVersion(draft.State{
		DraftID: "stored",
		Topic:   "X",
		Body:    "Y",
		Tags:    []string{"a", "b", "c"},
	})
	require.Equal(t, []string{"a", "b"}, w.Snapshot().Tags)
	require.Len(t, n.list(), 1)
	require.False(t, w.Status().Dirty)
	require.Never(t, func() bool { return svc.count("save") > 0 }, quiet, tick)

	w.SetBody("Y2")
	require.Eventually(t, func() bool { return svc.count("save") == 1 }, waitFor, tick)
	require.Equal(t, "stored", svc.save(0).DraftID)
}

func TestCancel_ResetsAndDropsPendingWork(t *testing.T) {
	w, svc, _ := newTestWorkbench(t)
	w.Store().SetWorkspaceToken("ws-1")
	w.SetTopic("X")
	w.SetBody("Y")
	add(t, w, keyword.Positive, "react")

	w.Cancel()
	st := w.Snapshot()
	require.Empty(t, st.Topic)
	require.Empty(t, st.WorkspaceToken)
	require.Empty(t, st.Positive)
	require.Equal(t, Status{}, w.Status())
	require.Never(t, func() bool { return svc.count("save")+svc.count("sync") > 0 }, quiet, tick)
}

func TestClose_StopsChannels(t *testing.T) {
	svc := &fakeService{}
	w := New(testConfig(), svc, Options{})
	w.Store().SetWorkspaceToken("ws-1")
	w.SetTopic("X")
	w.SetBody("Y")
	w.Close()
	w.Close()

	require.Never(t, func() bool { return svc.count("save")+svc.count("sync") > 0 }, quiet, tick)
	_, err := w.Generate(context.Background())
	require.True(t, errors.Is(err, errors.ErrSuperseded))
}
