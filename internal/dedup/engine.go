package dedup

import (
	"sort"

	"github.com/vmunix/mvarr/internal/library"
	"github.com/vmunix/mvarr/internal/source"
)

// IDMerge attaches a source's external id to an existing video
// (cross-source confirmation of an already-known track).
type IDMerge struct {
	VideoID    int64
	Source     string
	ExternalID string
}

// Plan is the deduplicated outcome of one artist's discovery results.
// Building a plan has no side effects; the caller applies it to the store in
// a single pass, so a persistence failure is contained to one artist.
type Plan struct {
	NewVideos  []*library.NewVideo
	IDMerges   []IDMerge
	Duplicates int // candidates already fully known
}

// Empty reports whether the plan requires no store writes.
func (p *Plan) Empty() bool {
	return len(p.NewVideos) == 0 && len(p.IDMerges) == 0
}

// group accumulates candidates that resolve to the same not-yet-known track.
type group struct {
	candidates []source.Candidate
}

// BuildPlan merges candidates from all sources against an artist's existing
// videos. priority lists source names from most to least trusted; when
// several candidates collapse into one new video, title and duration come
// from the highest-priority source while every external id is retained.
//
// Matching prefers exact external-id identity, falling back to normalized
// title comparison. Candidates that match neither an existing video nor each
// other become new wanted videos.
func BuildPlan(candidates []source.Candidate, existing []*library.Video, priority []string) *Plan {
	plan := &Plan{}
	if len(candidates) == 0 {
		return plan
	}

	rank := priorityRank(priority)

	// Stable processing order: trusted sources first, then by external id,
	// so repeated runs over the same inputs produce identical plans.
	ordered := make([]source.Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i].Source), rank(ordered[j].Source)
		if ri != rj {
			return ri < rj
		}
		if ordered[i].Source != ordered[j].Source {
			return ordered[i].Source < ordered[j].Source
		}
		return ordered[i].ExternalID < ordered[j].ExternalID
	})

	// Index existing videos by (source, external id).
	byExternalID := make(map[string]*library.Video)
	for _, v := range existing {
		for src, id := range v.ExternalIDs {
			byExternalID[src+"\x00"+id] = v
		}
	}

	merged := make(map[string]bool) // (source, external id) pairs already planned
	var groups []*group

	for _, c := range ordered {
		key := c.Source + "\x00" + c.ExternalID

		// (a) exact external-id match against a known video.
		if _, ok := byExternalID[key]; ok {
			plan.Duplicates++
			continue
		}

		// (b)/(c) normalized-title match against a known video contributes
		// this source's id to that video.
		if v := matchExisting(c, existing); v != nil {
			if _, has := v.ExternalIDs[c.Source]; has || merged[key] {
				plan.Duplicates++
				continue
			}
			plan.IDMerges = append(plan.IDMerges, IDMerge{
				VideoID:    v.ID,
				Source:     c.Source,
				ExternalID: c.ExternalID,
			})
			merged[key] = true
			continue
		}

		// (e) match against a pending new video from another source in the
		// same run, so one real track never surfaces as two wanted rows.
		if g := matchGroup(c, groups); g != nil {
			g.candidates = append(g.candidates, c)
			continue
		}

		// (d) genuinely new.
		groups = append(groups, &group{candidates: []source.Candidate{c}})
	}

	for _, g := range groups {
		plan.NewVideos = append(plan.NewVideos, g.toNewVideo())
	}
	return plan
}

// matchExisting finds the existing video whose title matches the candidate.
func matchExisting(c source.Candidate, existing []*library.Video) *library.Video {
	for _, v := range existing {
		if TitlesMatch(c.Title, v.Title) {
			return v
		}
	}
	return nil
}

// matchGroup finds a pending group whose representative title matches.
func matchGroup(c source.Candidate, groups []*group) *group {
	for _, g := range groups {
		if TitlesMatch(c.Title, g.candidates[0].Title) {
			return g
		}
	}
	return nil
}

// toNewVideo collapses a group into one video record. Candidates are already
// in priority order, so the first one supplies the metadata; later candidates
// contribute only their external ids, first id per source wins.
func (g *group) toNewVideo() *library.NewVideo {
	best := g.candidates[0]
	nv := &library.NewVideo{
		Title:       best.Title,
		Duration:    best.Duration,
		PublishedAt: best.PublishedAt,
		ExternalIDs: make(map[string]string, len(g.candidates)),
	}
	for _, c := range g.candidates {
		if _, ok := nv.ExternalIDs[c.Source]; !ok {
			nv.ExternalIDs[c.Source] = c.ExternalID
		}
	}
	return nv
}

// priorityRank returns a ranking function over source names. Sources absent
// from the priority list sort after all listed ones.
func priorityRank(priority []string) func(string) int {
	pos := make(map[string]int, len(priority))
	for i, name := range priority {
		pos[name] = i
	}
	return func(name string) int {
		if i, ok := pos[name]; ok {
			return i
		}
		return len(priority)
	}
}
