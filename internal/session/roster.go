package session

import (
	"context"
	"log"
	"sync"

	"github.com/phamnguyen1700/fit-ai-chat/internal/models"
)

// RefreshRoster refetches the conversation summaries and re-enriches each with
// a resolved display name and email. The roster is replaced in full; there is
// no per-entry patching.
func (s *Session) RefreshRoster(ctx context.Context) {
	summaries, err := s.api.ListConversations(ctx)
	if err != nil {
		log.Printf("session: list conversations failed: %v", err)
		return
	}

	enriched := s.enrichSummaries(ctx, summaries)

	s.mu.Lock()
	s.roster = enriched
	s.mu.Unlock()
	s.notify()
}

// enrichSummaries resolves the counterpart user's profile for every entry
// concurrently. A failed lookup leaves that entry on its placeholder name and
// does not block the others.
func (s *Session) enrichSummaries(ctx context.Context, summaries []models.ConversationSummary) []models.ConversationSummary {
	enriched := make([]models.ConversationSummary, len(summaries))
	copy(enriched, summaries)

	var wg sync.WaitGroup
	for i := range enriched {
		wg.Add(1)
		go func(entry *models.ConversationSummary) {
			defer wg.Done()
			profile, err := s.api.GetUserProfile(ctx, entry.UserID)
			if err != nil {
				log.Printf("session: profile lookup failed for user %s: %v", entry.UserID, err)
				if entry.DisplayName == "" {
					entry.DisplayName = models.DefaultDisplayName
				}
				return
			}
			entry.DisplayName = profile.DisplayName()
			entry.DisplayEmail = profile.Email
		}(&enriched[i])
	}
	wg.Wait()

	return enriched
}

// ComputeStats derives the roster counters. Pure function of the roster,
// recomputed on every change.
func ComputeStats(roster []models.ConversationSummary) models.RosterStats {
	stats := models.RosterStats{Total: len(roster)}
	for i := range roster {
		stats.Unread += roster[i].UnreadCount
		switch roster[i].Presence {
		case models.PresenceOnline:
			stats.Online++
			stats.OnlineOrBusy++
		case models.PresenceBusy:
			stats.OnlineOrBusy++
		}
	}
	return stats
}
