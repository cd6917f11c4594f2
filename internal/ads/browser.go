package ads

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
)

const defaultPageSize = 9

// Browser runs the ads view operations against an explicit State.
type Browser struct {
	store    Store
	events   Publisher
	log      *logger.Logger
	pageSize int
}

// NewBrowser wires a browser. events may be nil.
func NewBrowser(store Store, events Publisher, log *logger.Logger, pageSize int) *Browser {
	if log == nil {
		log = logger.Nop()
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Browser{store: store, events: events, log: log.With("component", "AdsBrowser"), pageSize: pageSize}
}

// Init loads the tag vocabulary, the unfiltered first page and the competitors map.
func (b *Browser) Init(ctx context.Context, st *State) error {
	vocab, err := b.store.DistinctAdTags(ctx)
	if err != nil {
		return err
	}

	page, err := b.store.FetchAdsPage(ctx, 0, nil, TypeAll, b.pageSize)
	if err != nil {
		return err
	}

	competitors, err := b.store.FetchCompetitors(ctx)
	if err != nil {
		b.log.Warn("failed to load competitors", "error", err)
		competitors = map[string]string{}
	}

	*st = State{
		Ads:          page,
		SelectedTags: []string{},
		Type:         TypeAll,
		Vocabulary:   sortedCopy(vocab),
		Competitors:  competitors,
		Exhausted:    len(page) == 0,
		Initialized:  true,
	}
	st.resetCursor()
	return nil
}

// Refresh reloads vocabulary, competitors and the first page while keeping the active
// filters. Selected tags that no longer exist are dropped before the page is fetched.
func (b *Browser) Refresh(ctx context.Context, st *State) error {
	if !st.Initialized {
		return b.Init(ctx, st)
	}
	vocab, err := b.store.DistinctAdTags(ctx)
	if err != nil {
		return err
	}
	st.Vocabulary = sortedCopy(vocab)
	if err := b.ApplyFilters(ctx, st, prunedSelection(st), st.Type); err != nil {
		return err
	}
	if competitors, err := b.store.FetchCompetitors(ctx); err == nil {
		st.Competitors = competitors
	} else {
		b.log.Warn("failed to reload competitors", "error", err)
	}
	return nil
}

// LoadMore appends the next page after the cursor. An empty page marks the view as
// exhausted and leaves list and cursor untouched.
func (b *Browser) LoadMore(ctx context.Context, st *State) (int, error) {
	page, err := b.store.FetchAdsPage(ctx, st.Cursor, st.SelectedTags, st.Type, b.pageSize)
	if err != nil {
		return 0, err
	}
	if len(page) == 0 {
		st.Exhausted = true
		return 0, nil
	}
	st.Ads = append(st.Ads, page...)
	st.Cursor = page[len(page)-1].ID
	st.Exhausted = false
	return len(page), nil
}

// ApplyFilters replaces the list with the first page matching tags (any of) and typ.
func (b *Browser) ApplyFilters(ctx context.Context, st *State, tags []string, typ TypeFilter) error {
	typ, err := ParseTypeFilter(string(typ))
	if err != nil {
		return apperr.Invalid("ads.apply_filters", "%v", err)
	}
	tags = NormalizeTags(tags)

	page, err := b.store.FetchAdsPage(ctx, 0, tags, typ, b.pageSize)
	if err != nil {
		return err
	}
	st.SelectedTags = tags
	st.Type = typ
	st.Ads = page
	st.Exhausted = len(page) == 0
	st.resetCursor()
	return nil
}

// ClearFilters drops all filters, reloads the first page and refreshes the vocabulary.
func (b *Browser) ClearFilters(ctx context.Context, st *State) error {
	if err := b.ApplyFilters(ctx, st, nil, TypeAll); err != nil {
		return err
	}
	vocab, err := b.store.DistinctAdTags(ctx)
	if err != nil {
		b.log.Warn("failed to refresh tag vocabulary", "error", err)
		return nil
	}
	st.Vocabulary = sortedCopy(vocab)
	return nil
}

// UpdateTags replaces the tags of an ad. The store is written first; the view only
// changes once that succeeded. An ad that no longer matches the active tag filter is
// dropped from the view, and the vocabulary is recomputed so removed tags disappear.
func (b *Browser) UpdateTags(ctx context.Context, st *State, adArchiveID string, tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	if err := b.store.UpdateAdTags(ctx, adArchiveID, tags); err != nil {
		st.addNotice(fmt.Sprintf("Could not update tags for ad %s.", adArchiveID))
		return nil, err
	}
	b.publish(ctx, Event{Type: EventTagsUpdated, AdArchiveID: adArchiveID, Tags: tags})

	if i := st.indexOf(adArchiveID); i >= 0 {
		st.Ads[i].Tags = slices.Clone(tags)
		st.Ads[i].UpdatedAt = time.Now()
		if len(st.SelectedTags) > 0 && !st.Ads[i].MatchesAny(st.SelectedTags) {
			st.Ads = slices.Delete(st.Ads, i, i+1)
		}
	}
	merged := mergeSorted(st.Vocabulary, tags)
	b.syncVocabulary(ctx, st, func() []string { return merged })
	return tags, nil
}

// AddTag adds a single tag to an ad in the view.
func (b *Browser) AddTag(ctx context.Context, st *State, adArchiveID, tag string) ([]string, error) {
	i := st.indexOf(adArchiveID)
	if i < 0 {
		return nil, apperr.NotFound("ads.add_tag")
	}
	return b.UpdateTags(ctx, st, adArchiveID, append(slices.Clone(st.Ads[i].Tags), tag))
}

// DeleteAd removes an ad from the store and the view, then recomputes the vocabulary and
// moves the cursor to the new last item. If a selected tag no longer exists the first
// page is refetched with the remaining filter.
func (b *Browser) DeleteAd(ctx context.Context, st *State, adArchiveID string) error {
	if err := b.store.DeleteAd(ctx, adArchiveID); err != nil {
		st.addNotice(fmt.Sprintf("Could not delete ad %s.", adArchiveID))
		return err
	}
	b.publish(ctx, Event{Type: EventDeleted, AdArchiveID: adArchiveID})

	if i := st.indexOf(adArchiveID); i >= 0 {
		st.Ads = slices.Delete(st.Ads, i, i+1)
	}
	if !b.syncVocabulary(ctx, st, func() []string { return tagsOf(st.Ads) }) {
		st.resetCursor()
	}
	return nil
}

// syncVocabulary recomputes the vocabulary from the store, using fallback when the query
// fails. When that removes a selected tag the first page is refetched with the remaining
// filter, and true is returned.
func (b *Browser) syncVocabulary(ctx context.Context, st *State, fallback func() []string) bool {
	vocab, err := b.store.DistinctAdTags(ctx)
	if err != nil {
		b.log.Warn("distinct tags query failed, using view tags", "error", err)
		vocab = fallback()
	}
	st.Vocabulary = sortedCopy(vocab)

	selected := prunedSelection(st)
	if len(selected) == len(st.SelectedTags) {
		return false
	}
	if err := b.ApplyFilters(ctx, st, selected, st.Type); err != nil {
		b.log.Warn("failed to reload ads after tag filter changed", "error", err)
		st.SelectedTags = selected
		st.addNotice("The ads list could not be reloaded; refresh to see every matching ad.")
		st.resetCursor()
	}
	return true
}

// prunedSelection is the selected tags still present in the vocabulary.
func prunedSelection(st *State) []string {
	return slices.DeleteFunc(slices.Clone(st.SelectedTags), func(t string) bool {
		return !slices.Contains(st.Vocabulary, t)
	})
}

// SaveAd stores an ad captured by the browser extension.
func (b *Browser) SaveAd(ctx context.Context, ad NewAd) (*Ad, error) {
	ad.Tags = NormalizeTags(ad.Tags)
	saved, err := b.store.SaveAd(ctx, ad)
	if err != nil {
		return nil, err
	}
	b.publish(ctx, Event{Type: EventSaved, AdArchiveID: saved.AdArchiveID, Tags: saved.Tags})
	return saved, nil
}

// UnsaveAd deletes an ad outside of any view.
func (b *Browser) UnsaveAd(ctx context.Context, adArchiveID string) error {
	if err := b.store.DeleteAd(ctx, adArchiveID); err != nil {
		return err
	}
	b.publish(ctx, Event{Type: EventDeleted, AdArchiveID: adArchiveID})
	return nil
}

// RetagAd replaces tags outside of any view.
func (b *Browser) RetagAd(ctx context.Context, adArchiveID string, tags []string) ([]string, error) {
	tags = NormalizeTags(tags)
	if err := b.store.UpdateAdTags(ctx, adArchiveID, tags); err != nil {
		return nil, err
	}
	b.publish(ctx, Event{Type: EventTagsUpdated, AdArchiveID: adArchiveID, Tags: tags})
	return tags, nil
}

// RegisterCompetitor names an advertiser page. Views pick it up on their next refresh.
func (b *Browser) RegisterCompetitor(ctx context.Context, pageID, name string) error {
	pageID, name = strings.TrimSpace(pageID), strings.TrimSpace(name)
	if pageID == "" || name == "" {
		return apperr.Invalid("ads.register_competitor", "page id and name are required")
	}
	if err := b.store.UpsertCompetitor(ctx, pageID, name); err != nil {
		return err
	}
	b.log.Info("registered competitor", "page_id", pageID, "page_name", name)
	return nil
}

// Saved lists every saved ad reference and the tag vocabulary.
func (b *Browser) Saved(ctx context.Context) ([]SavedRef, []string, error) {
	refs, err := b.store.ListSavedAds(ctx)
	if err != nil {
		return nil, nil, err
	}
	vocab, err := b.store.DistinctAdTags(ctx)
	if err != nil {
		return nil, nil, err
	}
	return refs, sortedCopy(vocab), nil
}

// publish is best effort; the store write already happened.
func (b *Browser) publish(ctx context.Context, ev Event) {
	if b.events == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := b.events.PublishAdEvent(ctx, ev); err != nil {
		b.log.Warn("failed to publish ad event", "type", ev.Type, "ad_archive_id", ev.AdArchiveID, "error", err)
	}
}

func tagsOf(list []Ad) []string {
	var all []string
	for _, a := range list {
		all = append(all, a.Tags...)
	}
	return NormalizeTags(all)
}

func sortedCopy(tags []string) []string {
	out := NormalizeTags(tags)
	sort.Strings(out)
	return out
}

func mergeSorted(vocab, tags []string) []string {
	return sortedCopy(append(slices.Clone(vocab), tags...))
}
