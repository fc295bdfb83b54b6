package draft

import (
	"slices"
	"strings"
	"sync"

	"github.com/hpungsan/promptbench/internal/errors"
	"github.com/hpungsan/promptbench/internal/keyword"
)

// ChangeKind is a bit set describing what a mutation touched.
type ChangeKind int

const (
	ChangeKeywords ChangeKind = 1 << iota // either collection
	ChangeFields                          // topic, body, instructions, model, tags
	ChangeIdentity                        // draft id, workspace token, remote ids
)

// Change is delivered to listeners after every committed mutation.
type Change struct {
	Kind    ChangeKind
	Version uint64
}

// Has reports whether c touched any of k.
func (c Change) Has(k ChangeKind) bool {
	return c.Kind&k != 0
}

// Listener observes committed mutations. Listeners run synchronously in
// mutation order and must not mutate the store.
type Listener func(Change)

type subscription struct {
	id int
	fn Listener
}

// Store is the single owner of the draft being edited.
// Every mutation is atomic: it completes, including signature
// recomputation, before the next one starts.
type Store struct {
	limits Limits

	notifyMu sync.Mutex // serializes mutate+deliver so listeners see mutation order

	mu          sync.RWMutex
	state       State
	version     uint64
	sigKeywords string
	sigDraft    string
	subs        []subscription
	nextSubID   int
}

// NewStore creates an empty store.
func NewStore(limits Limits) *Store {
	s := &Store{limits: limits}
	s.recompute(ChangeKeywords | ChangeFields)
	return s
}

// Limits returns the store's limits.
func (s *Store) Limits() Limits {
	return s.limits
}

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool { return sub.id == id })
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Version increments once per committed mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Signature returns the cached signature for scope.
func (s *Store) Signature(scope Scope) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if scope == ScopeKeywords {
		return s.sigKeywords
	}
	return s.sigDraft
}

// KeywordSnapshot returns the keyword signature together with the collections
// and workspace token it was computed from.
func (s *Store) KeywordSnapshot() (sig string, positive, negative []keyword.Token, workspaceToken string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sigKeywords, cloneTokens(s.state.Positive), cloneTokens(s.state.Negative), s.state.WorkspaceToken
}

// DraftSnapshot returns the full-draft signature together with the state it was computed from.
func (s *Store) DraftSnapshot() (string, State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sigDraft, s.state.Clone()
}

// Find returns the token with the given local ID.
func (s *Store) Find(id string) (keyword.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, i, ok := s.state.Locate(id)
	if !ok {
		return keyword.Token{}, false
	}
	return cloneTokens(s.state.Collection(p)[i : i+1])[0], true
}

// mutate runs fn under the write lock. fn must leave st untouched when it
// returns an error, and returns 0 when nothing changed.
func (s *Store) mutate(fn func(st *State) (ChangeKind, error)) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	kind, err := fn(&s.state)
	if err != nil || kind == 0 {
		s.mu.Unlock()
		return err
	}
	s.version++
	s.recompute(kind)
	change := Change{Kind: kind, Version: s.version}
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(change)
	}
	return nil
}

// recompute refreshes the cached signatures touched by kind. Caller holds mu.
func (s *Store) recompute(kind ChangeKind) {
	if kind&ChangeKeywords != 0 {
		s.sigKeywords = KeywordsSignature(s.state)
	}
	if kind&(ChangeKeywords|ChangeFields) != 0 {
		s.sigDraft = FullDraftSignature(s.state)
	}
}

func setCollection(st *State, p keyword.Polarity, tokens []keyword.Token) {
	if p == keyword.Negative {
		st.Negative = tokens
	} else {
		st.Positive = tokens
	}
}

// AddInput contains parameters for Add.
type AddInput struct {
	Polarity keyword.Polarity
	Word     string
	Weight   *int // default: keyword.DefaultWeight
	Source   keyword.Source
}

// Add appends a keyword to its polarity collection.
// Fails with DUPLICATE_KEYWORD or CAPACITY_EXCEEDED before touching state.
func (s *Store) Add(in AddInput) (keyword.Token, error) {
	if !in.Polarity.Valid() {
		return keyword.Token{}, errors.NewInvalidRequest("polarity must be one of: positive, negative")
	}
	weight := keyword.DefaultWeight
	if in.Weight != nil {
		weight = *in.Weight
	}
	tok := keyword.New(in.Polarity, in.Word, weight, in.Source, s.limits.WordMaxChars)
	if tok.StoredWord() == "" {
		return keyword.Token{}, errors.NewInvalidRequest("keyword must not be empty")
	}

	err := s.mutate(func(st *State) (ChangeKind, error) {
		list := st.Collection(in.Polarity)
		key := tok.DedupeKey()
		for _, t := range list {
			if t.DedupeKey() == key {
				return 0, errors.NewDuplicateKeyword(string(in.Polarity), tok.StoredWord())
			}
		}
		if len(list) >= s.limits.KeywordCapacity {
			return 0, errors.NewCapacityExceeded(string(in.Polarity), s.limits.KeywordCapacity)
		}
		setCollection(st, in.Polarity, append(slices.Clone(list), tok))
		return ChangeKeywords, nil
	})
	if err != nil {
		return keyword.Token{}, err
	}
	return tok, nil
}

// MergeResult reports what a bulk merge did.
type MergeResult struct {
	Added   []keyword.Token
	Trimmed bool // true when the collection was cut back to capacity
}

// Merge appends records to a collection, skipping duplicates and silently
// truncating the result to capacity. This is the bulk path used for
// AI-assisted augmentation; single adds go through Add.
func (s *Store) Merge(p keyword.Polarity, records []keyword.Record) (MergeResult, error) {
	if !p.Valid() {
		return MergeResult{}, errors.NewInvalidRequest("polarity must be one of: positive, negative")
	}
	var res MergeResult
	err := s.mutate(func(st *State) (ChangeKind, error) {
		list := slices.Clone(st.Collection(p))
		seen := make(map[string]bool, len(list))
		for _, t := range list {
			seen[t.DedupeKey()] = true
		}
		for _, r := range records {
			tok := keyword.FromRecord(p, r, s.limits.WordMaxChars)
			if tok.StoredWord() == "" || seen[tok.DedupeKey()] {
				continue
			}
			seen[tok.DedupeKey()] = true
			list = append(list, tok)
			res.Added = append(res.Added, tok)
		}
		if len(list) > s.limits.KeywordCapacity {
			kept := list[:s.limits.KeywordCapacity]
			res.Added = slices.DeleteFunc(res.Added, func(t keyword.Token) bool {
				return !slices.ContainsFunc(kept, func(k keyword.Token) bool { return k.ID == t.ID })
			})
			list = kept
			res.Trimmed = true
		}
		if len(res.Added) == 0 {
			return 0, nil
		}
		setCollection(st, p, list)
		return ChangeKeywords, nil
	})
	return res, err
}

// Remove deletes a token from whichever collection holds it. No-op if absent.
func (s *Store) Remove(id string) bool {
	removed := false
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		p, i, ok := st.Locate(id)
		if !ok {
			return 0, nil
		}
		setCollection(st, p, slices.Delete(slices.Clone(st.Collection(p)), i, i+1))
		removed = true
		return ChangeKeywords, nil
	})
	return removed
}

// UpdateWeight clamps and writes a token's weight in place. Order is unchanged.
func (s *Store) UpdateWeight(id string, weight int) bool {
	found := false
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		p, i, ok := st.Locate(id)
		if !ok {
			return 0, nil
		}
		found = true
		w := keyword.ClampWeight(weight)
		if st.Collection(p)[i].Weight == w {
			return 0, nil
		}
		list := slices.Clone(st.Collection(p))
		list[i].Weight = w
		setCollection(st, p, list)
		return ChangeKeywords, nil
	})
	return found
}

// SetRemoteID records the server-assigned ID of a token.
func (s *Store) SetRemoteID(id, remoteID string) bool {
	found := false
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		p, i, ok := st.Locate(id)
		if !ok {
			return 0, nil
		}
		found = true
		list := slices.Clone(st.Collection(p))
		rid := remoteID
		list[i].RemoteID = &rid
		setCollection(st, p, list)
		return ChangeIdentity, nil
	})
	return found
}

// normalizeCollection rewrites polarity to match the container, clamps
// weights and mints IDs for tokens that lack one.
func normalizeCollection(p keyword.Polarity, in []keyword.Token) []keyword.Token {
	out := cloneTokens(in)
	if out == nil {
		out = []keyword.Token{}
	}
	for i := range out {
		out[i].Polarity = p
		out[i].Weight = keyword.ClampWeight(out[i].Weight)
		if out[i].ID == "" {
			out[i].ID = keyword.NewID()
		}
	}
	return out
}

// SetCollections atomically replaces both collections. Collections longer
// than capacity are truncated to the first K entries; trimmed reports it.
// Signatures are recomputed once and listeners are notified once.
func (s *Store) SetCollections(positive, negative []keyword.Token) (trimmed bool) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		pos := normalizeCollection(keyword.Positive, positive)
		neg := normalizeCollection(keyword.Negative, negative)
		if k := s.limits.KeywordCapacity; len(pos) > k || len(neg) > k {
			trimmed = true
			pos = pos[:min(len(pos), k)]
			neg = neg[:min(len(neg), k)]
		}
		st.Positive, st.Negative = pos, neg
		return ChangeKeywords, nil
	})
	return trimmed
}

// ReplaceCollection bulk-replaces one polarity from server records, e.g. an
// augmentation response. Duplicates keep their first occurrence and the
// result is truncated to capacity; trimmed reports the truncation.
// Records matching a current token update it in place (see reconcile).
func (s *Store) ReplaceCollection(p keyword.Polarity, records []keyword.Record) (trimmed bool) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		list := s.reconcile(p, st.Collection(p), records)
		if len(list) > s.limits.KeywordCapacity {
			list = list[:s.limits.KeywordCapacity]
			trimmed = true
		}
		setCollection(st, p, list)
		return ChangeKeywords, nil
	})
	return trimmed
}

// ReplaceCollections replaces both collections from server records in one
// mutation, with the same matching and truncation as ReplaceCollection.
func (s *Store) ReplaceCollections(positive, negative []keyword.Record) (trimmed bool) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		pos := s.reconcile(keyword.Positive, st.Positive, positive)
		neg := s.reconcile(keyword.Negative, st.Negative, negative)
		if k := s.limits.KeywordCapacity; len(pos) > k || len(neg) > k {
			trimmed = true
			pos = pos[:min(len(pos), k)]
			neg = neg[:min(len(neg), k)]
		}
		st.Positive, st.Negative = pos, neg
		return ChangeKeywords, nil
	})
	return trimmed
}

// reconcile builds a collection from records in record order. A record whose
// dedupe key matches a current token keeps that token's ID, entered word,
// overflow and source, and takes the record's weight and remote ID. Only
// new words get fresh tokens.
func (s *Store) reconcile(p keyword.Polarity, current []keyword.Token, records []keyword.Record) []keyword.Token {
	byKey := make(map[string]keyword.Token, len(current))
	for _, t := range current {
		byKey[t.DedupeKey()] = t
	}
	list := make([]keyword.Token, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		tok := keyword.FromRecord(p, r, s.limits.WordMaxChars)
		key := tok.DedupeKey()
		if tok.StoredWord() == "" || seen[key] {
			continue
		}
		seen[key] = true
		if cur, ok := byKey[key]; ok {
			cur.Polarity = p
			cur.Weight = tok.Weight
			if tok.RemoteID != nil {
				cur.RemoteID = tok.RemoteID
			}
			tok = cur
		}
		list = append(list, tok)
	}
	return list
}

// Transform runs an atomic read-modify-write over both collections.
// fn receives copies. A result over capacity is rejected with
// CAPACITY_EXCEEDED; a result with the same token order is not a change.
func (s *Store) Transform(fn func(positive, negative []keyword.Token) ([]keyword.Token, []keyword.Token, error)) error {
	return s.mutate(func(st *State) (ChangeKind, error) {
		pos, neg, err := fn(cloneTokens(st.Positive), cloneTokens(st.Negative))
		if err != nil {
			return 0, err
		}
		pos = normalizeCollection(keyword.Positive, pos)
		neg = normalizeCollection(keyword.Negative, neg)
		k := s.limits.KeywordCapacity
		if len(pos) > k {
			return 0, errors.NewCapacityExceeded(string(keyword.Positive), k)
		}
		if len(neg) > k {
			return 0, errors.NewCapacityExceeded(string(keyword.Negative), k)
		}
		if sameTokens(st.Positive, pos) && sameTokens(st.Negative, neg) {
			return 0, nil
		}
		st.Positive, st.Negative = pos, neg
		return ChangeKeywords, nil
	})
}

// sameTokens compares token identity, order and weight.
func sameTokens(a, b []keyword.Token) bool {
	return slices.EqualFunc(a, b, func(x, y keyword.Token) bool {
		return x.ID == y.ID && x.Weight == y.Weight && x.Word == y.Word
	})
}

// SortByWeight orders a collection by weight descending, ties broken by
// case-insensitive word. The sort is stable and commits as one mutation.
func (s *Store) SortByWeight(p keyword.Polarity) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		list := cloneTokens(st.Collection(p))
		slices.SortStableFunc(list, func(a, b keyword.Token) int {
			if a.Weight != b.Weight {
				return b.Weight - a.Weight
			}
			return strings.Compare(keyword.Normalize(a.StoredWord()), keyword.Normalize(b.StoredWord()))
		})
		if sameTokens(st.Collection(p), list) {
			return 0, nil
		}
		setCollection(st, p, list)
		return ChangeKeywords, nil
	})
}

// setField writes a scalar field when it differs.
func (s *Store) setField(get func(*State) *string, value string) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		field := get(st)
		if *field == value {
			return 0, nil
		}
		*field = value
		return ChangeFields, nil
	})
}

// SetTopic sets the draft topic.
func (s *Store) SetTopic(v string) { s.setField(func(st *State) *string { return &st.Topic }, v) }

// SetBody sets the draft body.
func (s *Store) SetBody(v string) { s.setField(func(st *State) *string { return &st.Body }, v) }

// SetInstructions sets the generation instructions.
func (s *Store) SetInstructions(v string) { s.setField(func(st *State) *string { return &st.Instructions }, v) }

// SetModel sets the target model name.
func (s *Store) SetModel(v string) { s.setField(func(st *State) *string { return &st.Model }, v) }

// cleanTags clamps, trims and deduplicates tags (case-insensitive), keeping order.
func (s *Store) cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag, _ = keyword.Clamp(strings.TrimSpace(tag), s.limits.TagMaxChars)
		key := keyword.Normalize(tag)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

// SetTags replaces the tag set, truncating to capacity.
func (s *Store) SetTags(tags []string) (trimmed bool) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		clean := s.cleanTags(tags)
		if len(clean) > s.limits.TagCapacity {
			clean = clean[:s.limits.TagCapacity]
			trimmed = true
		}
		if slices.Equal(st.Tags, clean) {
			return 0, nil
		}
		st.Tags = clean
		return ChangeFields, nil
	})
	return trimmed
}

// AddTag appends one tag. Rejects blanks, duplicates and overflow.
func (s *Store) AddTag(tag string) error {
	clean := s.cleanTags([]string{tag})
	if len(clean) == 0 {
		return errors.NewInvalidRequest("tag must not be empty")
	}
	return s.mutate(func(st *State) (ChangeKind, error) {
		key := keyword.Normalize(clean[0])
		for _, t := range st.Tags {
			if keyword.Normalize(t) == key {
				return 0, errors.NewConflict("tag already added: " + clean[0])
			}
		}
		if len(st.Tags) >= s.limits.TagCapacity {
			return 0, errors.NewCapacityExceeded("tags", s.limits.TagCapacity)
		}
		st.Tags = append(slices.Clone(st.Tags), clean[0])
		return ChangeFields, nil
	})
}

// RemoveTag deletes a tag (case-insensitive). No-op if absent.
func (s *Store) RemoveTag(tag string) bool {
	removed := false
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		key := keyword.Normalize(tag)
		i := slices.IndexFunc(st.Tags, func(t string) bool { return keyword.Normalize(t) == key })
		if i < 0 {
			return 0, nil
		}
		st.Tags = slices.Delete(slices.Clone(st.Tags), i, i+1)
		removed = true
		return ChangeFields, nil
	})
	return removed
}

// SetDraftID records the remote draft id.
func (s *Store) SetDraftID(id string) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		if st.DraftID == id {
			return 0, nil
		}
		st.DraftID = id
		return ChangeIdentity, nil
	})
}

// SetWorkspaceToken records (or clears, with "") the scratch workspace token.
func (s *Store) SetWorkspaceToken(token string) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		if st.WorkspaceToken == token {
			return 0, nil
		}
		st.WorkspaceToken = token
		return ChangeIdentity, nil
	})
}

// Load replaces the whole state, e.g. when a saved version is opened on the
// workbench. Collections and tags are normalized and truncated like a bulk
// replace; trimmed reports whether anything was cut.
func (s *Store) Load(next State) (trimmed bool) {
	_ = s.mutate(func(st *State) (ChangeKind, error) {
		n := next.Clone()
		n.Positive = normalizeCollection(keyword.Positive, n.Positive)
		n.Negative = normalizeCollection(keyword.Negative, n.Negative)
		k := s.limits.KeywordCapacity
		if len(n.Positive) > k || len(n.Negative) > k {
			trimmed = true
			n.Positive = n.Positive[:min(len(n.Positive), k)]
			n.Negative = n.Negative[:min(len(n.Negative), k)]
		}
		n.Tags = s.cleanTags(n.Tags)
		if len(n.Tags) > s.limits.TagCapacity {
			trimmed = true
			n.Tags = n.Tags[:s.limits.TagCapacity]
		}
		*st = n
		return ChangeKeywords | ChangeFields | ChangeIdentity, nil
	})
	return trimmed
}

// Reset empties the store (cancel or navigation away).
func (s *Store) Reset() {
	s.Load(State{})
}
