package assistant

import (
	"context"
	"fmt"
	"sort"

	"github.com/machineparts/parts-assistant/internal/storage"
)

// Languages with authored translations.
const (
	LanguageEnglish = "en"
	LanguagePolish  = "pl"
)

// KnowledgeAnswer is a localized FAQ entry matched against a query.
type KnowledgeAnswer struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Hits     int    `json:"hits"`
}

// QuickReplyOption is a localized follow-up suggestion.
type QuickReplyOption struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Action string `json:"action"`
}

// KnowledgeBase searches FAQ entries and quick replies.
type KnowledgeBase struct {
	repo *storage.KnowledgeRepository
}

// NewKnowledgeBase creates a new knowledge base.
func NewKnowledgeBase(repo *storage.KnowledgeRepository) *KnowledgeBase {
	return &KnowledgeBase{repo: repo}
}

// Search returns entries whose keywords appear in query, ranked by keyword hits,
// then priority, then id.
func (k *KnowledgeBase) Search(ctx context.Context, query, language string, limit int) ([]KnowledgeAnswer, error) {
	q := normalize(query)
	if q == "" {
		return []KnowledgeAnswer{}, nil
	}

	entries, err := k.repo.ListKnowledge(ctx)
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}

	type scored struct {
		entry *storage.KnowledgeEntry
		hits  int
	}
	var matches []scored
	for _, e := range entries {
		hits := 0
		for _, kw := range e.Keywords {
			if containsTerm(q, kw) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, scored{entry: e, hits: hits})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.hits != b.hits {
			return a.hits > b.hits
		}
		if a.entry.Priority != b.entry.Priority {
			return a.entry.Priority > b.entry.Priority
		}
		return a.entry.ID < b.entry.ID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	out := make([]KnowledgeAnswer, 0, len(matches))
	for _, m := range matches {
		question, answer := m.entry.Question, m.entry.Answer
		if language == LanguagePolish {
			question = localized(m.entry.QuestionPL, question)
			answer = localized(m.entry.AnswerPL, answer)
		}
		out = append(out, KnowledgeAnswer{
			ID:       m.entry.ID,
			Category: m.entry.Category,
			Question: question,
			Answer:   answer,
			Hits:     m.hits,
		})
	}
	return out, nil
}

// QuickReplies returns up to limit replies of a group in display order.
func (k *KnowledgeBase) QuickReplies(ctx context.Context, group, language string, limit int) ([]QuickReplyOption, error) {
	replies, err := k.repo.ListQuickReplies(ctx, group, limit)
	if err != nil {
		return nil, fmt.Errorf("load quick replies: %w", err)
	}

	out := make([]QuickReplyOption, 0, len(replies))
	for _, r := range replies {
		text := r.ReplyText
		if language == LanguagePolish {
			text = localized(r.ReplyTextPL, text)
		}
		out = append(out, QuickReplyOption{ID: r.ID, Text: text, Action: r.Action})
	}
	return out, nil
}

// quickReplyGroup maps an intent onto the authored quick reply groups.
func quickReplyGroup(intent string) string {
	switch intent {
	case IntentSearchGuide, IntentTechnicalIssue:
		return "search_started"
	case IntentCompatibilityCheck, IntentProductInquiry, IntentPriceInquiry:
		return "part_found"
	case IntentEscalate:
		return ""
	default:
		return "greeting"
	}
}

func localized(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
