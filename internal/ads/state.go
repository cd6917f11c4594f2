package ads

import "slices"

// State is the ads view of one dashboard user.
type State struct {
	Ads          []Ad              `json:"ads"`
	Cursor       uint64            `json:"cursor"`
	SelectedTags []string          `json:"selected_tags"`
	Type         TypeFilter        `json:"type"`
	Vocabulary   []string          `json:"vocabulary"`
	Competitors  map[string]string `json:"competitors"`
	Exhausted    bool              `json:"exhausted"`
	Initialized  bool              `json:"initialized"`
	Notices      []string          `json:"notices,omitempty"`
}

func NewState() *State {
	return &State{
		Ads:          []Ad{},
		SelectedTags: []string{},
		Type:         TypeAll,
		Vocabulary:   []string{},
		Competitors:  map[string]string{},
	}
}

func (s *State) Filtered() bool {
	return len(s.SelectedTags) > 0 || (s.Type != "" && s.Type != TypeAll)
}

func (s *State) indexOf(adArchiveID string) int {
	return slices.IndexFunc(s.Ads, func(a Ad) bool { return a.AdArchiveID == adArchiveID })
}

func (s *State) resetCursor() {
	if len(s.Ads) == 0 {
		s.Cursor = 0
		return
	}
	s.Cursor = s.Ads[len(s.Ads)-1].ID
}

func (s *State) addNotice(msg string) {
	s.Notices = append(s.Notices, msg)
}

func (s *State) DrainNotices() []string {
	n := s.Notices
	s.Notices = nil
	return n
}

// CompetitorName resolves the page of an ad to a known competitor.
func (s *State) CompetitorName(a Ad) (string, bool) {
	name, ok := s.Competitors[a.PageID]
	return name, ok
}
