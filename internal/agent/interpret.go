package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/provider"
)

const (
	// FallbackMessage replaces the model's message when its tool arguments
	// are not valid JSON.
	FallbackMessage = "I apologize, but I encountered an error processing the updates."
	// DefaultUpdateMessage is used when the model changed items but said nothing.
	DefaultUpdateMessage = "Checklist updated."
	// NoChangeMessage is used when the call changed nothing and said nothing.
	NoChangeMessage = "Noted. No checklist items needed changing."
)

// ErrCommitFailed means the checklist store rejected the turn's mutations;
// nothing was saved.
var ErrCommitFailed = errors.New("commit checklist mutations")

// UpdateArgs are the decoded arguments of an update_checklist_items call.
// Absent lists decode as empty.
type UpdateArgs struct {
	CompletedItems   []int64 `json:"completed_items"`
	UncompletedItems []int64 `json:"uncompleted_items"`
	Message          string  `json:"message"`
}

// DecodeUpdateArgs parses raw tool arguments. Only input that is not a JSON
// object is an error; ids that are not integers are dropped.
func DecodeUpdateArgs(raw json.RawMessage) (UpdateArgs, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return UpdateArgs{}, fmt.Errorf("decode update arguments: %w", err)
	}
	if fields == nil {
		return UpdateArgs{}, fmt.Errorf("decode update arguments: not an object")
	}

	args := UpdateArgs{
		CompletedItems:   itemIDs(fields["completed_items"]),
		UncompletedItems: itemIDs(fields["uncompleted_items"]),
	}
	if msg, ok := fields["message"].(string); ok {
		args.Message = msg
	}
	return args, nil
}

// itemIDs accepts a list or a single value; numbers and numeric strings are
// kept.
func itemIDs(v any) []int64 {
	list, ok := v.([]any)
	if !ok {
		if v == nil {
			return []int64{}
		}
		list = []any{v}
	}
	ids := make([]int64, 0, len(list))
	for _, e := range list {
		var s string
		switch x := e.(type) {
		case json.Number:
			s = x.String()
		case string:
			s = strings.TrimSpace(x)
		default:
			continue
		}
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			ids = append(ids, id)
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			ids = append(ids, int64(f))
		}
	}
	return ids
}

// Progress is the completed/total item count of the whole checklist.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Outcome is the result of applying one tool call.
type Outcome struct {
	Message     string
	Completed   []string // delta lines, "- description (section)"
	Uncompleted []string
	Mutations   []checklist.Mutation
	Progress    Progress
	// Forest is the checklist as it stands after the commit. Nil when
	// nothing changed.
	Forest []checklist.Category
	// Fallback is set when the arguments could not be decoded.
	Fallback bool
}

// Changed reports whether any item transitioned.
func (o Outcome) Changed() bool { return len(o.Mutations) > 0 }

// Status renders the status-update entry shown next to the model's message.
func (o Outcome) Status() string {
	var blocks []string
	if len(o.Completed) > 0 {
		blocks = append(blocks, "✅ Just completed:\n"+strings.Join(o.Completed, "\n"))
	}
	if len(o.Uncompleted) > 0 {
		blocks = append(blocks, "⬜ Marked incomplete:\n"+strings.Join(o.Uncompleted, "\n"))
	}
	blocks = append(blocks, fmt.Sprintf("Progress: %d/%d items completed", o.Progress.Done, o.Progress.Total))
	return strings.Join(blocks, "\n\n")
}

// Applier turns an update_checklist_items call into committed mutations.
type Applier struct {
	store checklist.Store
	now   func() time.Time
	log   zerolog.Logger
}

func NewApplier(store checklist.Store, log zerolog.Logger) *Applier {
	return &Applier{store: store, now: time.Now, log: log}
}

// Apply validates call against the live store and commits every transition
// in one batch. Each id transitions at most once; unknown ids and no-op
// transitions are skipped. Invalid arguments yield FallbackMessage and no
// mutations. A failed commit returns ErrCommitFailed.
func (a *Applier) Apply(ctx context.Context, call provider.ToolCall, snap checklist.Snapshot) (Outcome, error) {
	args, err := DecodeUpdateArgs(call.Arguments)
	if err != nil {
		a.log.Warn().Err(err).Str("tool_call", call.ID).Msg("invalid tool arguments")
		return Outcome{Message: FallbackMessage, Fallback: true}, nil
	}

	out := Outcome{Message: args.Message}
	now := a.now().UTC()
	seen := make(map[int64]bool)

	transition := func(ids []int64, target bool, lines *[]string) error {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			item, err := a.store.Item(ctx, id)
			if errors.Is(err, checklist.ErrItemNotFound) {
				a.log.Warn().Int64("item", id).Msg("tool call names unknown item")
				continue
			}
			if err != nil {
				return err
			}
			if item.Completed == target {
				a.log.Debug().Int64("item", id).Bool("completed", target).Msg("item already in requested state")
				continue
			}

			seen[id] = true
			out.Mutations = append(out.Mutations, checklist.Mutation{ItemID: id, Completed: target, CheckedAt: now})
			if ref, ok := snap.Resolve(id, item.Description); ok {
				*lines = append(*lines, fmt.Sprintf("- %s (%s)", item.Description, ref.Section))
			} else {
				a.log.Debug().Int64("item", id).Msg("item not in snapshot, no status line")
			}
		}
		return nil
	}

	if err := transition(args.CompletedItems, true, &out.Completed); err != nil {
		return Outcome{}, err
	}
	if err := transition(args.UncompletedItems, false, &out.Uncompleted); err != nil {
		return Outcome{}, err
	}

	if !out.Changed() {
		if out.Message == "" {
			out.Message = NoChangeMessage
		}
		return out, nil
	}

	if err := a.store.Commit(ctx, out.Mutations); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	if out.Message == "" {
		out.Message = DefaultUpdateMessage
	}

	forest, err := a.store.Forest(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("reload checklist after commit; progress estimated from snapshot")
		out.Progress = estimateProgress(snap, out.Mutations)
		return out, nil
	}
	out.Forest = forest
	out.Progress.Done, out.Progress.Total = checklist.Progress(forest)
	return out, nil
}

// estimateProgress applies mutations to the counts of the pre-turn snapshot.
func estimateProgress(snap checklist.Snapshot, muts []checklist.Mutation) Progress {
	var p Progress
	state := make(map[int64]bool)
	for _, refs := range snap.Lookup {
		for _, r := range refs {
			state[r.ID] = r.Completed
		}
	}
	for _, m := range muts {
		state[m.ItemID] = m.Completed
	}
	for _, done := range state {
		p.Total++
		if done {
			p.Done++
		}
	}
	return p
}
