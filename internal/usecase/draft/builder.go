package draft

import (
	"github.com/shopspring/decimal"
	"github.com/transfa/transfa-core/internal/domain"
)

// Summary describes a draft set for confirmation screens
type Summary struct {
	Count      int
	TotalMinor int64
	Total      decimal.Decimal // Major units
}

// Builder accumulates the transfers a user is composing.
// It owns the draft set of one composing session and performs no I/O.
type Builder struct {
	actingUser domain.Recipient
	drafts     []domain.TransferDraft
}

// NewBuilder creates a new Builder for the given acting user
func NewBuilder(actingUser domain.Recipient) *Builder {
	return &Builder{
		actingUser: actingUser,
		drafts:     make([]domain.TransferDraft, 0, domain.MaxBatchSize),
	}
}

// AddOrUpdate validates a draft and stores it.
// editing is the recipient key of the entry being edited, or "" for a new entry.
// Logic:
//  1. Validate the draft against the acting user
//  2. Edit: replace the edited entry in place, unless the new recipient belongs to another entry
//  3. Add: reject duplicates and a full set, then append preserving insertion order
func (b *Builder) AddOrUpdate(d domain.TransferDraft, editing string) error {
	if err := d.Validate(b.actingUser); err != nil {
		return err
	}

	key := d.Key()
	existing := b.indexOf(key)

	if editing != "" {
		if editIdx := b.indexOf(domain.NormalizeUsername(editing)); editIdx >= 0 {
			if existing >= 0 && existing != editIdx {
				return &domain.DuplicateRecipientError{Key: key}
			}
			b.drafts[editIdx] = d
			return nil
		}
	}

	if existing >= 0 {
		return &domain.DuplicateRecipientError{Key: key}
	}

	if len(b.drafts) >= domain.MaxBatchSize {
		return &domain.ValidationError{Field: "recipient", Msg: "you can send to at most 10 recipients at once"}
	}

	b.drafts = append(b.drafts, d)
	return nil
}

// Remove deletes the draft for a recipient key. Missing keys are ignored.
func (b *Builder) Remove(recipientKey string) {
	idx := b.indexOf(domain.NormalizeUsername(recipientKey))
	if idx < 0 {
		return
	}
	b.drafts = append(b.drafts[:idx], b.drafts[idx+1:]...)
}

// EffectiveSet returns the draft set as it would be if the open composer entry were saved.
// The composer entry is only included when it validates; if its recipient (or the
// entry being edited) is already saved, it is substituted in place. An edit that
// retargets onto another saved recipient is left out, as AddOrUpdate would refuse it.
func (b *Builder) EffectiveSet(active *domain.TransferDraft, editing string) []domain.TransferDraft {
	preview := b.Drafts()
	if active == nil || active.Validate(b.actingUser) != nil {
		return preview
	}

	idx := indexIn(preview, active.Key())
	if editing != "" {
		if editIdx := indexIn(preview, domain.NormalizeUsername(editing)); editIdx >= 0 {
			if idx >= 0 && idx != editIdx {
				return preview
			}
			idx = editIdx
		}
	}

	if idx >= 0 {
		preview[idx] = *active
		return preview
	}
	return append(preview, *active)
}

// Drafts returns a copy of the saved drafts in insertion order
func (b *Builder) Drafts() []domain.TransferDraft {
	out := make([]domain.TransferDraft, len(b.drafts))
	copy(out, b.drafts)
	return out
}

// Get returns the saved draft for a recipient key
func (b *Builder) Get(recipientKey string) (domain.TransferDraft, bool) {
	idx := b.indexOf(domain.NormalizeUsername(recipientKey))
	if idx < 0 {
		return domain.TransferDraft{}, false
	}
	return b.drafts[idx], true
}

// Len returns the number of saved drafts
func (b *Builder) Len() int {
	return len(b.drafts)
}

// Total returns the sum of the saved drafts in minor units
func (b *Builder) Total() int64 {
	return domain.TotalAmount(b.drafts)
}

// Summary summarizes the saved drafts
func (b *Builder) Summary() Summary {
	return Summarize(b.drafts)
}

// Summarize summarizes the given drafts, typically the output of EffectiveSet
func Summarize(drafts []domain.TransferDraft) Summary {
	total := domain.TotalAmount(drafts)
	return Summary{
		Count:      len(drafts),
		TotalMinor: total,
		Total:      domain.MinorToMajor(total),
	}
}

// Replace swaps the saved drafts for the ones retained after a submission
func (b *Builder) Replace(retained []domain.TransferDraft) {
	b.drafts = append(make([]domain.TransferDraft, 0, domain.MaxBatchSize), retained...)
}

// Clear drops every saved draft
func (b *Builder) Clear() {
	b.drafts = b.drafts[:0]
}

func (b *Builder) indexOf(key string) int {
	return indexIn(b.drafts, key)
}

func indexIn(drafts []domain.TransferDraft, key string) int {
	if key == "" {
		return -1
	}
	for i, d := range drafts {
		if d.Key() == key {
			return i
		}
	}
	return -1
}
