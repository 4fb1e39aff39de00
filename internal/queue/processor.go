package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rewear/internal/comps"
	"rewear/internal/market"
	"rewear/internal/market/auth"
	"rewear/internal/pricing"
)

// TokenSource supplies valid bearer tokens for marketplace calls.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// Publisher creates a live marketplace listing.
type Publisher interface {
	PublishListing(ctx context.Context, token string, payload market.ListingPayload) (*market.PublishResult, error)
}

// Recommender produces a price recommendation for a comps query.
type Recommender interface {
	Recommend(ctx context.Context, query string, condition string) (pricing.PriceRecommendation, error)
}

// Processor owns the batch publish queue. Mutations are serialized behind a
// mutex; ProcessAll works on a snapshot of the pending set so items added
// mid-pass are picked up by the next pass.
type Processor struct {
	tokens      TokenSource
	publisher   Publisher
	recommender Recommender
	store       Store

	mu    sync.Mutex
	items map[string]*Item

	now func() time.Time
}

// NewProcessor creates a Processor. store may be nil for an in-memory queue;
// when set, previously persisted items are loaded back, with any item left in
// Processing by a crash returned to Pending.
func NewProcessor(tokens TokenSource, publisher Publisher, recommender Recommender, store Store) (*Processor, error) {
	p := &Processor{
		tokens:      tokens,
		publisher:   publisher,
		recommender: recommender,
		store:       store,
		items:       make(map[string]*Item),
		now:         time.Now,
	}

	if store != nil {
		stored, err := store.ListItems()
		if err != nil {
			return nil, fmt.Errorf("failed to load queue items: %w", err)
		}
		for _, it := range stored {
			item := it
			if item.Status == StatusProcessing {
				item.Status = StatusPending
			}
			p.items[item.ID] = &item
		}
		if len(stored) > 0 {
			log.Info().Int("count", len(stored)).Msg("loaded persisted queue items")
		}
	}

	return p, nil
}

// Add appends a new item in Pending state and returns its assigned ID.
func (p *Processor) Add(draft ListingDraft) (string, error) {
	item := Item{
		ID:          uuid.New().String(),
		Draft:       draft,
		SubmittedAt: p.now(),
		Status:      StatusPending,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[item.ID] = &item
	if p.store != nil {
		if err := p.store.InsertItem(item); err != nil {
			delete(p.items, item.ID)
			return "", fmt.Errorf("failed to persist queue item: %w", err)
		}
	}

	log.Info().Str("itemId", item.ID).Str("title", draft.Title).Msg("item added to publish queue")
	return item.ID, nil
}

// Get returns a copy of the item with the given ID.
func (p *Processor) Get(id string) (Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return *item, nil
}

// Items returns copies of all queue items in submission order.
func (p *Processor) Items() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Item, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// Delete removes a Pending item. Items that are Processing or in a terminal
// state cannot be deleted and fail with ErrInvalidStateTransition.
func (p *Processor) Delete(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok {
		return ErrNotFound
	}
	if item.Status != StatusPending {
		return fmt.Errorf("%w: cannot delete item in state %q", ErrInvalidStateTransition, item.Status)
	}
	delete(p.items, id)
	if p.store != nil {
		if err := p.store.DeleteItem(id); err != nil {
			log.Warn().Err(err).Str("itemId", id).Msg("failed to delete persisted queue item")
		}
	}
	return nil
}

// Reprocess returns a Failed item to Pending so the next batch pass picks it
// up again. Only Failed items may be reprocessed.
func (p *Processor) Reprocess(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok {
		return ErrNotFound
	}
	if item.Status != StatusFailed {
		return fmt.Errorf("%w: cannot reprocess item in state %q", ErrInvalidStateTransition, item.Status)
	}
	item.Status = StatusPending
	item.LastError = ""
	p.persist(*item)
	return nil
}

// ProcessAll processes every Pending item in submission order. Each item is
// handled independently: one item's marketplace rejection or network failure
// marks that item Failed and processing continues. A reauthorization-required
// signal from the token source stops the pass immediately, leaving the
// current and all remaining items Pending, and is returned alongside the
// partial per-item results.
func (p *Processor) ProcessAll(ctx context.Context) ([]ItemResult, error) {
	pending := p.snapshotPending()
	results := make([]ItemResult, 0, len(pending))

	log.Info().Int("pending", len(pending)).Msg("processing publish queue")

	for _, id := range pending {
		token, err := p.tokens.GetValidToken(ctx)
		if err != nil && errors.Is(err, auth.ErrReauthorizationRequired) {
			log.Warn().Err(err).Msg("stopping queue pass, marketplace reconnect required")
			return results, err
		}

		item, ok := p.markProcessing(id)
		if !ok {
			// Deleted between snapshot and processing.
			continue
		}

		if err != nil {
			// Token failures that are not a reauthorization signal count
			// against this item only.
			results = append(results, p.fail(id, err))
			continue
		}

		result := p.processItem(ctx, item, token)
		results = append(results, result)
	}

	return results, nil
}

// processItem publishes a single item and records its outcome.
func (p *Processor) processItem(ctx context.Context, item Item, token string) ItemResult {
	draft := item.Draft

	price := 0.0
	if draft.Price != nil {
		price = *draft.Price
	} else {
		query := draft.Query
		if query == "" {
			query = draft.Title
		}
		rec, err := p.recommender.Recommend(ctx, query, draft.Condition)
		if err != nil {
			return p.fail(item.ID, fmt.Errorf("price recommendation failed: %w", err))
		}
		price = rec.Market
	}

	currency := draft.Currency
	if currency == "" {
		currency = comps.DefaultCurrency
	}

	payload := market.ListingPayload{
		Title:       draft.Title,
		Description: draft.Description,
		Price:       price,
		Currency:    currency,
		Condition:   draft.Condition,
		ImageURLs:   draft.ImageURLs,
	}
	if draft.Brand != "" || draft.Size != "" || draft.Material != "" {
		payload.Attributes = map[string]string{}
		for k, v := range map[string]string{"brand": draft.Brand, "size": draft.Size, "material": draft.Material} {
			if v != "" {
				payload.Attributes[k] = v
			}
		}
	}

	res, err := p.publisher.PublishListing(ctx, token, payload)
	if err != nil {
		return p.fail(item.ID, err)
	}

	p.mu.Lock()
	if it, ok := p.items[item.ID]; ok {
		it.Status = StatusPublished
		it.ListingID = res.ListingID
		it.LastError = ""
		p.persist(*it)
	}
	p.mu.Unlock()

	return ItemResult{ItemID: item.ID, Status: StatusPublished, ListingID: res.ListingID, Price: price}
}

// snapshotPending returns the IDs of all Pending items in submission order.
func (p *Processor) snapshotPending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := make([]*Item, 0, len(p.items))
	for _, item := range p.items {
		if item.Status == StatusPending {
			pending = append(pending, item)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
	})

	ids := make([]string, len(pending))
	for i, item := range pending {
		ids[i] = item.ID
	}
	return ids
}

func (p *Processor) markProcessing(id string) (Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	if !ok || item.Status != StatusPending {
		return Item{}, false
	}
	item.Status = StatusProcessing
	p.persist(*item)
	return *item, true
}

func (p *Processor) fail(id string, cause error) ItemResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item, ok := p.items[id]; ok {
		item.Status = StatusFailed
		item.LastError = cause.Error()
		p.persist(*item)
	}
	log.Warn().Err(cause).Str("itemId", id).Msg("queue item failed")
	return ItemResult{ItemID: id, Status: StatusFailed, Error: cause.Error()}
}

// persist writes an item through to the store. Callers hold the mutex.
func (p *Processor) persist(item Item) {
	if p.store == nil {
		return
	}
	if err := p.store.UpdateItem(item); err != nil {
		log.Warn().Err(err).Str("itemId", item.ID).Msg("failed to persist queue item update")
	}
}
