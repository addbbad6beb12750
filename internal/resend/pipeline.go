package resend

import (
	"context"

	"github.com/hfs/afd-sub007/internal/perm"
)

// Pipeline ties the resolve, group and process phases together for one
// operator request. Limits come from the operator's resolved
// permissions; the resend and direct-send paths draw on their own
// process-wide counters (spec.md §4.5 step 5).
type Pipeline struct {
	Reader *ArchiveReader
	Perms  perm.Permissions

	resendCounter *limitCounter
	sendCounter   *limitCounter
}

// NewPipeline builds a Pipeline whose limit counters persist across
// calls for the lifetime of the operator session.
func NewPipeline(reader *ArchiveReader, perms perm.Permissions) *Pipeline {
	return &Pipeline{
		Reader:        reader,
		Perms:         perms,
		resendCounter: newLimitCounter(perms.ResendLimit),
		sendCounter:   newLimitCounter(perms.SendLimit),
	}
}

// Reinject resolves selections and drives r over the pending groups,
// returning the combined operator summary and the per-entry outcomes.
func (p *Pipeline) Reinject(ctx context.Context, selections []Selection, r *Reinjector) ([]*Entry, Summary, error) {
	entries := p.Reader.Resolve(selections)
	summary := BaseSummary(entries)

	order, groups := GroupByJobID(entries)
	phase, err := r.Reinject(ctx, order, groups, p.resendCounter)
	summary = summary.Merge(phase)
	return entries, summary, err
}

// DirectSend resolves selections and drives d over the pending groups
// against dest.
func (p *Pipeline) DirectSend(ctx context.Context, selections []Selection, d *DirectSender, dest Destination) ([]*Entry, Summary, error) {
	entries := p.Reader.Resolve(selections)
	summary := BaseSummary(entries)

	order, groups := GroupByJobID(entries)
	phase, err := d.Send(ctx, dest, order, groups, p.sendCounter)
	summary = summary.Merge(phase)
	return entries, summary, err
}
