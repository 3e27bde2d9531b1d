package agent

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/provider"
)

// memStore is an in-memory checklist.Store.
type memStore struct {
	mu         sync.Mutex
	forest     []checklist.Category
	commitErr  error
	forestErr  error
	commits    int
	panicOnGet bool
}

func newMemStore(forest []checklist.Category) *memStore {
	return &memStore{forest: forest}
}

func (s *memStore) Forest(context.Context) ([]checklist.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forestErr != nil {
		return nil, s.forestErr
	}
	out := slices.Clone(s.forest)
	for i := range out {
		out[i].Sections = slices.Clone(out[i].Sections)
		for j := range out[i].Sections {
			out[i].Sections[j].Items = slices.Clone(out[i].Sections[j].Items)
		}
	}
	return out, nil
}

func (s *memStore) find(id int64) *checklist.Item {
	for i := range s.forest {
		for j := range s.forest[i].Sections {
			for k := range s.forest[i].Sections[j].Items {
				if it := &s.forest[i].Sections[j].Items[k]; it.ID == id {
					return it
				}
			}
		}
	}
	return nil
}

func (s *memStore) Item(_ context.Context, id int64) (checklist.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOnGet {
		panic("store exploded")
	}
	if it := s.find(id); it != nil {
		return *it, nil
	}
	return checklist.Item{}, checklist.ErrItemNotFound
}

func (s *memStore) Commit(_ context.Context, muts []checklist.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	if len(muts) == 0 {
		return checklist.ErrEmptyCommit
	}
	for _, m := range muts {
		if s.find(m.ItemID) == nil {
			return checklist.ErrItemNotFound
		}
	}
	for _, m := range muts {
		it := s.find(m.ItemID)
		it.Completed = m.Completed
		at := m.CheckedAt
		it.LastChecked = &at
	}
	s.commits++
	return nil
}

func (s *memStore) UpdateItem(context.Context, checklist.ItemUpdate) (checklist.Item, error) {
	return checklist.Item{}, errors.New("not supported")
}

func (s *memStore) Close() error { return nil }

func (s *memStore) item(id int64) checklist.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.find(id)
}

// vesselForest has item 7 "VHF radio test" incomplete and item 1 complete.
func vesselForest() []checklist.Category {
	checked := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	return []checklist.Category{{
		ID:   1,
		Name: "Catamaran",
		Sections: []checklist.Section{
			{ID: 1, Name: "Documentation & Certification", Order: 1, Items: []checklist.Item{
				{ID: 1, SectionID: 1, Description: "Valid vessel registration certificate", Completed: true, LastChecked: &checked, Order: 1},
				{ID: 2, SectionID: 1, Description: "Current insurance policy documents", Order: 2},
			}},
			{ID: 4, Name: "Navigation & Communication", Order: 4, Items: []checklist.Item{
				{ID: 6, SectionID: 4, Description: "Compass and GPS functionality", Order: 1},
				{ID: 7, SectionID: 4, Description: "VHF radio test", Order: 2},
			}},
		},
	}}
}

// fakeProvider answers every Chat with a fixed event script and records the
// last request.
type fakeProvider struct {
	mu      sync.Mutex
	events  []provider.Event
	block   bool
	lastReq *provider.ChatRequest
	calls   int
}

func (f *fakeProvider) Name() string         { return "fake" }
func (f *fakeProvider) DefaultModel() string { return "fake-1" }

func (f *fakeProvider) Chat(ctx context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	f.mu.Lock()
	f.lastReq = req
	f.calls++
	events := f.events
	block := f.block
	f.mu.Unlock()

	ch := make(chan provider.Event)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (f *fakeProvider) request() *provider.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func textReply(text string) *fakeProvider {
	return &fakeProvider{events: []provider.Event{
		{Type: provider.EventTextDelta, TextDelta: text},
		{Type: provider.EventDone},
	}}
}

func toolReply(args string) *fakeProvider {
	return &fakeProvider{events: []provider.Event{
		{Type: provider.EventToolCallDone, ToolCall: &provider.ToolCallRequest{
			ID: "call_1", Name: provider.UpdateItemsToolName, Input: []byte(args),
		}},
		{Type: provider.EventDone},
	}}
}

func toolCall(args string) provider.ToolCall {
	return provider.ToolCall{ID: "call_1", Name: provider.UpdateItemsToolName, Arguments: []byte(args)}
}
