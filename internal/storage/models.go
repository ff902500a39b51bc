// Package storage provides database models and repositories for the parts assistant.
package storage

import (
	"encoding/json"
	"time"
)

// CompatibilityLevel is the categorical fitness of a part for a machine model.
type CompatibilityLevel string

const (
	CompatibilityPerfect       CompatibilityLevel = "perfect"
	CompatibilityCompatible    CompatibilityLevel = "compatible"
	CompatibilityCheckSpecs    CompatibilityLevel = "check_specs"
	CompatibilityNotCompatible CompatibilityLevel = "not_compatible"
)

// Valid reports whether the level is one of the authored levels.
func (l CompatibilityLevel) Valid() bool {
	switch l {
	case CompatibilityPerfect, CompatibilityCompatible, CompatibilityCheckSpecs, CompatibilityNotCompatible:
		return true
	}
	return false
}

// ConversationStatus represents the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationEscalated ConversationStatus = "escalated"
	ConversationClosed    ConversationStatus = "closed"
)

// MessageRole identifies who authored a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Valid reports whether the role is known.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Priority is the urgency of an escalation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is known.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// EscalationStatus is the state of an escalation queue entry.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "pending"
	EscalationAssigned EscalationStatus = "assigned"
	EscalationResolved EscalationStatus = "resolved"
)

// MachineType is a broad equipment category such as excavator or forklift.
type MachineType struct {
	ID              string `json:"id" db:"id"`
	Name            string `json:"name" db:"name"`
	NameLocalized   string `json:"nameLocalized,omitempty" db:"name_pl"`
	Icon            string `json:"icon,omitempty" db:"icon"`
	PopularityScore int    `json:"popularityScore" db:"popularity_score"`
}

// Manufacturer builds machines of one owning machine type.
type Manufacturer struct {
	ID              string   `json:"id" db:"id"`
	Name            string   `json:"name" db:"name"`
	Aliases         []string `json:"aliases,omitempty" db:"aliases"`
	MachineTypeID   string   `json:"machineTypeId" db:"machine_type_id"`
	Country         string   `json:"country,omitempty" db:"country"`
	Region          string   `json:"region,omitempty" db:"region"`
	PopularityScore int      `json:"popularityScore" db:"popularity_score"`
}

// MachineModel is a concrete machine produced by a manufacturer.
type MachineModel struct {
	ID              string            `json:"id" db:"id"`
	Name            string            `json:"name" db:"name"`
	ManufacturerID  string            `json:"manufacturerId" db:"manufacturer_id"`
	YearFrom        *int              `json:"yearFrom,omitempty" db:"year_from"`
	YearTo          *int              `json:"yearTo,omitempty" db:"year_to"`
	PowerHP         *int              `json:"powerHp,omitempty" db:"power_hp"`
	WeightKG        *int              `json:"weightKg,omitempty" db:"weight_kg"`
	Specs           map[string]string `json:"specs,omitempty" db:"specs"`
	PopularityScore int               `json:"popularityScore" db:"popularity_score"`
}

// PartCategory is a node in the two-level part category tree.
type PartCategory struct {
	ID            string  `json:"id" db:"id"`
	Name          string  `json:"name" db:"name"`
	NameLocalized string  `json:"nameLocalized,omitempty" db:"name_pl"`
	ParentID      *string `json:"parentId,omitempty" db:"parent_id"`
	Icon          string  `json:"icon,omitempty" db:"icon"`
	SortOrder     int     `json:"sortOrder" db:"sort_order"`
}

// SymptomMapping maps a symptom phrase and keywords to a part category.
type SymptomMapping struct {
	ID              string   `json:"id" db:"id"`
	SymptomText     string   `json:"symptomText" db:"symptom_text"`
	SymptomTextPL   string   `json:"symptomTextLocalized,omitempty" db:"symptom_text_pl"`
	Category        string   `json:"category" db:"category"`
	Subcategory     string   `json:"subcategory" db:"subcategory"`
	ConfidenceScore float64  `json:"confidenceScore" db:"confidence_score"`
	Keywords        []string `json:"keywords" db:"keywords"`
}

// CompatibilityRecord is the authoritative verdict for one (model, product) pair.
type CompatibilityRecord struct {
	ID                 string             `json:"id" db:"id"`
	MachineModelID     string             `json:"machineModelId" db:"machine_model_id"`
	ProductID          string             `json:"productId" db:"product_id"`
	CompatibilityLevel CompatibilityLevel `json:"compatibilityLevel" db:"compatibility_level"`
	ConfidenceScore    float64            `json:"confidenceScore" db:"confidence_score"`
	IsOriginal         bool               `json:"isOriginal" db:"is_original"`
	Notes              string             `json:"notes,omitempty" db:"notes"`
	CreatedAt          time.Time          `json:"createdAt" db:"created_at"`
}

// PurchaseRecord is an append-only purchase event.
type PurchaseRecord struct {
	ID             string    `json:"id" db:"id"`
	CustomerID     *string   `json:"customerId,omitempty" db:"customer_id"`
	MachineModelID string    `json:"machineModelId" db:"machine_model_id"`
	ProductID      string    `json:"productId" db:"product_id"`
	PurchasedAt    time.Time `json:"purchasedAt" db:"purchased_at"`
}

// FrequentlyBoughtTogether is a precomputed co-purchase association.
type FrequentlyBoughtTogether struct {
	ID               string    `json:"id" db:"id"`
	ProductID        string    `json:"productId" db:"product_id"`
	RelatedProductID string    `json:"relatedProductId" db:"related_product_id"`
	MachineModelID   *string   `json:"machineModelId,omitempty" db:"machine_model_id"`
	FrequencyScore   float64   `json:"frequencyScore" db:"frequency_score"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// ProductCount is a product with its purchase count.
type ProductCount struct {
	ProductID string `json:"productId"`
	Count     int    `json:"count"`
}

// Conversation is an assistant session with a storefront visitor.
type Conversation struct {
	ID            string             `json:"id" db:"id"`
	CustomerID    *string            `json:"customerId,omitempty" db:"customer_id"`
	SessionID     string             `json:"sessionId" db:"session_id"`
	Status        ConversationStatus `json:"status" db:"status"`
	Language      string             `json:"language" db:"language"`
	StartedAt     time.Time          `json:"startedAt" db:"started_at"`
	LastMessageAt time.Time          `json:"lastMessageAt" db:"last_message_at"`
	EscalatedAt   *time.Time         `json:"escalatedAt,omitempty" db:"escalated_at"`
	EscalatedTo   *string            `json:"escalatedTo,omitempty" db:"escalated_to"`
	ClosedAt      *time.Time         `json:"closedAt,omitempty" db:"closed_at"`
	Metadata      json.RawMessage    `json:"metadata,omitempty" db:"metadata"`
}

// ConversationMessage is one append-only turn of a conversation.
type ConversationMessage struct {
	ID             string      `json:"id" db:"id"`
	ConversationID string      `json:"conversationId" db:"conversation_id"`
	Seq            int64       `json:"seq" db:"seq"`
	Role           MessageRole `json:"role" db:"role"`
	Content        string      `json:"content" db:"content"`
	Intent         *string     `json:"intent,omitempty" db:"intent"`
	Confidence     *float64    `json:"confidence,omitempty" db:"confidence"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
}

// ContextEntry is a structured fact attached to a conversation, optionally expiring.
type ContextEntry struct {
	ID             string          `json:"id" db:"id"`
	ConversationID string          `json:"conversationId" db:"conversation_id"`
	ContextType    string          `json:"contextType" db:"context_type"`
	Data           json.RawMessage `json:"data" db:"context_data"`
	ExpiresAt      *time.Time      `json:"expiresAt,omitempty" db:"expires_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (e *ContextEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// CustomerMachine is the assistant's memory of a customer's equipment.
type CustomerMachine struct {
	ID              string    `json:"id" db:"id"`
	CustomerID      string    `json:"customerId" db:"customer_id"`
	MachineTypeID   *string   `json:"machineTypeId,omitempty" db:"machine_type_id"`
	ManufacturerID  *string   `json:"manufacturerId,omitempty" db:"manufacturer_id"`
	MachineModelID  string    `json:"machineModelId" db:"machine_model_id"`
	Year            *int      `json:"year,omitempty" db:"year"`
	Nickname        *string   `json:"nickname,omitempty" db:"nickname"`
	IsPrimary       bool      `json:"isPrimary" db:"is_primary"`
	LastMentionedAt time.Time `json:"lastMentionedAt" db:"last_mentioned_at"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// EscalationEntry is a conversation waiting for or handled by a human agent.
type EscalationEntry struct {
	ID             string           `json:"id" db:"id"`
	ConversationID string           `json:"conversationId" db:"conversation_id"`
	CustomerID     *string          `json:"customerId,omitempty" db:"customer_id"`
	Priority       Priority         `json:"priority" db:"priority"`
	Reason         string           `json:"reason,omitempty" db:"reason"`
	Status         EscalationStatus `json:"status" db:"status"`
	AssignedTo     *string          `json:"assignedTo,omitempty" db:"assigned_to"`
	AssignedAt     *time.Time       `json:"assignedAt,omitempty" db:"assigned_at"`
	ResolvedAt     *time.Time       `json:"resolvedAt,omitempty" db:"resolved_at"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
}

// IntentMapping describes how to recognise one conversational intent.
type IntentMapping struct {
	ID                  string          `json:"id" db:"id"`
	IntentName          string          `json:"intentName" db:"intent_name"`
	Patterns            []string        `json:"patterns" db:"patterns"`
	Keywords            []string        `json:"keywords" db:"keywords"`
	ConfidenceThreshold float64         `json:"confidenceThreshold" db:"confidence_threshold"`
	Action              string          `json:"action" db:"action"`
	Metadata            json.RawMessage `json:"metadata,omitempty" db:"metadata"`
}

// KnowledgeEntry is an authored FAQ answer.
type KnowledgeEntry struct {
	ID         string   `json:"id" db:"id"`
	Category   string   `json:"category" db:"category"`
	Question   string   `json:"question" db:"question"`
	QuestionPL string   `json:"questionLocalized,omitempty" db:"question_pl"`
	Answer     string   `json:"answer" db:"answer"`
	AnswerPL   string   `json:"answerLocalized,omitempty" db:"answer_pl"`
	Keywords   []string `json:"keywords" db:"keywords"`
	Priority   int      `json:"priority" db:"priority"`
}

// QuickReply is a suggested follow-up button shown after an assistant turn.
type QuickReply struct {
	ID           string `json:"id" db:"id"`
	Intent       string `json:"intent" db:"intent"`
	ReplyText    string `json:"replyText" db:"reply_text"`
	ReplyTextPL  string `json:"replyTextLocalized,omitempty" db:"reply_text_pl"`
	Action       string `json:"action" db:"action"`
	DisplayOrder int    `json:"displayOrder" db:"display_order"`
}

// AnalyticsEvent is a recorded assistant interaction.
type AnalyticsEvent struct {
	ID             string          `json:"id" db:"id"`
	ConversationID *string         `json:"conversationId,omitempty" db:"conversation_id"`
	SessionID      string          `json:"sessionId,omitempty" db:"session_id"`
	EventType      string          `json:"eventType" db:"event_type"`
	Payload        json.RawMessage `json:"payload,omitempty" db:"payload"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}

// SearchAnalytics records one analyzed query.
type SearchAnalytics struct {
	ID          string          `json:"id" db:"id"`
	SessionID   string          `json:"sessionId,omitempty" db:"session_id"`
	CustomerID  *string         `json:"customerId,omitempty" db:"customer_id"`
	Query       string          `json:"query" db:"query"`
	Analysis    json.RawMessage `json:"analysis" db:"analysis"`
	Confidence  float64         `json:"confidence" db:"confidence"`
	ResultCount int             `json:"resultCount" db:"result_count"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}
