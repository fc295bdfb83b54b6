package main

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hpungsan/promptbench/internal/config"
	"github.com/hpungsan/promptbench/internal/draft"
	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
	"github.com/hpungsan/promptbench/internal/logger"
	"github.com/hpungsan/promptbench/internal/remote"
	"github.com/hpungsan/promptbench/internal/reorder"
	"github.com/hpungsan/promptbench/internal/workbench"
)

// replayEvent is one step of a replay script. Keywords are addressed by
// polarity and word since local ids are not known in advance.
type replayEvent struct {
	Op       string   `json:"op"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
	Polarity string   `json:"polarity,omitempty"`
	Word     string   `json:"word,omitempty"`
	Weight   *int     `json:"weight,omitempty"`
	To       string   `json:"to,omitempty"`     // move: destination polarity (default: same)
	Before   string   `json:"before,omitempty"` // move: word in the destination to drop on
	Text     string   `json:"text,omitempty"`
	MS       int      `json:"ms,omitempty"`
}

// replayStep reports what one event did.
type replayStep struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// replayOutput is the final draft, status and everything shown along the way.
type replayOutput struct {
	State   draft.State        `json:"state"`
	Status  workbench.Status   `json:"status"`
	Notices []workbench.Notice `json:"notices"`
	Steps   []replayStep       `json:"steps"`
}

func parseScript(text string) ([]replayEvent, error) {
	var events []replayEvent
	if err := json.Unmarshal([]byte(text), &events); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid event script: %v", err))
	}
	if len(events) == 0 {
		return nil, errors.NewInvalidRequest("event script is empty")
	}
	return events, nil
}

// defaultSettle leaves room for one autosave and one keyword sync after the last event.
func defaultSettle(cfg *config.Config) time.Duration {
	return cfg.AutosaveDelay() + cfg.KeywordSyncDelay() + 2*time.Second
}

// runReplay applies events to a fresh workbench in order, waits up to settle
// for background saves and syncs, and returns the final state. Failing
// events are recorded and do not stop the script.
func runReplay(ctx context.Context, svc remote.Service, cfg *config.Config, log *logger.Logger, events []replayEvent, settle time.Duration) *replayOutput {
	var mu sync.Mutex
	notices := []workbench.Notice{}

	w := workbench.New(cfg, svc, workbench.Options{
		Logger: log,
		Notify: func(n workbench.Notice) {
			mu.Lock()
			notices = append(notices, n)
			mu.Unlock()
		},
	})
	defer w.Close()

	steps := make([]replayStep, 0, len(events))
	for i, ev := range events {
		step := replayStep{Index: i, Op: ev.Op}
		result, err := applyEvent(ctx, w, ev)
		if err != nil {
			step.Error = err.Error()
		} else {
			step.Result = result
		}
		steps = append(steps, step)
	}

	waitIdle(ctx, w, settle)

	out := &replayOutput{
		State:  w.Snapshot(),
		Status: w.Status(),
		Steps:  steps,
	}
	mu.Lock()
	out.Notices = slices.Clone(notices)
	mu.Unlock()
	return out
}

// waitIdle polls until nothing is dirty or running, or until timeout.
// A draft that cannot autosave stays dirty, so timing out is not an error.
func waitIdle(ctx context.Context, w *workbench.Workbench, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		s := w.Status()
		if !s.Dirty && !s.Saving && !s.Syncing && !s.Generating {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

func applyEvent(ctx context.Context, w *workbench.Workbench, ev replayEvent) (any, error) {
	switch ev.Op {
	case "set_topic":
		w.SetTopic(ev.Value)
	case "set_body":
		w.SetBody(ev.Value)
	case "set_instructions":
		w.SetInstructions(ev.Value)
	case "set_model":
		w.SetModel(ev.Value)
	case "set_tags":
		w.SetTags(ev.Values)
	case "add_tag":
		return nil, w.AddTag(ev.Value)
	case "remove_tag":
		return w.RemoveTag(ev.Value), nil
	case "add_keyword":
		p, err := polarity(ev.Polarity)
		if err != nil {
			return nil, err
		}
		tok, err := w.AddKeyword(ctx, workbench.AddKeywordInput{Polarity: p, Word: ev.Word, Weight: ev.Weight})
		if err != nil {
			return nil, err
		}
		return tok, nil
	case "remove_keyword":
		tok, err := findKeyword(w.Snapshot(), ev.Polarity, ev.Word)
		if err != nil {
			return nil, err
		}
		return nil, w.RemoveKeyword(ctx, tok.ID)
	case "set_weight":
		tok, err := findKeyword(w.Snapshot(), ev.Polarity, ev.Word)
		if err != nil {
			return nil, err
		}
		if ev.Weight == nil {
			return nil, errors.NewInvalidRequest("weight is required")
		}
		return w.UpdateWeight(tok.ID, *ev.Weight), nil
	case "sort":
		p, err := polarity(ev.Polarity)
		if err != nil {
			return nil, err
		}
		w.SortByWeight(p)
	case "move":
		return moveKeyword(w, ev)
	case "interpret":
		return nil, w.Interpret(ctx, ev.Text)
	case "augment":
		p, err := polarity(ev.Polarity)
		if err != nil {
			return nil, err
		}
		return nil, w.Augment(ctx, p)
	case "generate":
		res, err := w.Generate(ctx)
		if err != nil {
			return nil, err
		}
		return res, nil
	case "save":
		res, err := w.SaveDraft(ctx)
		if err != nil {
			return nil, err
		}
		return res, nil
	case "publish":
		res, err := w.Publish(ctx)
		if err != nil {
			return nil, err
		}
		return res, nil
	case "wait":
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(ev.MS) * time.Millisecond):
		}
	case "cancel":
		w.Cancel()
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown op %q", ev.Op))
	}
	return nil, nil
}

// moveKeyword drags a keyword through the full start/over/end lifecycle.
func moveKeyword(w *workbench.Workbench, ev replayEvent) (any, error) {
	st := w.Snapshot()
	tok, err := findKeyword(st, ev.Polarity, ev.Word)
	if err != nil {
		return nil, err
	}
	dest := tok.Polarity
	if ev.To != "" {
		if dest, err = polarity(ev.To); err != nil {
			return nil, err
		}
	}
	target := reorder.ContainerTarget(dest)
	if ev.Before != "" {
		before, err := findKeyword(st, string(dest), ev.Before)
		if err != nil {
			return nil, err
		}
		target = reorder.TokenTarget(before.ID)
	}

	if !w.DragStart(tok.ID) {
		return nil, errors.NewNotFound("keyword", ev.Word)
	}
	preview, ok := w.DragOver(tok.ID, target)
	if !ok {
		w.DragCancel()
		return nil, errors.NewInvalidRequest("no drop position for " + ev.Word)
	}
	if err := w.DragEnd(tok.ID, target); err != nil {
		return nil, err
	}
	return preview, nil
}

func polarity(s string) (keyword.Polarity, error) {
	p, ok := keyword.ParsePolarity(s)
	if !ok {
		return "", errors.NewInvalidRequest("polarity must be one of: positive, negative")
	}
	return p, nil
}

func findKeyword(st draft.State, pol, word string) (keyword.Token, error) {
	p, err := polarity(pol)
	if err != nil {
		return keyword.Token{}, err
	}
	key := keyword.Normalize(word)
	for _, t := range st.Collection(p) {
		if keyword.Normalize(t.StoredWord()) == key || keyword.Normalize(t.Word) == key {
			return t, nil
		}
	}
	return keyword.Token{}, errors.NewNotFound("keyword", word)
}
