package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditActor identifies who caused an audit entry.
type AuditActor string

const (
	ActorSystem AuditActor = "system"
	ActorAgent  AuditActor = "agent"
	ActorUser   AuditActor = "user"
)

// AuditAction enumerates recorded steps.
type AuditAction string

const (
	ActionTicketCreated   AuditAction = "TICKET_CREATED"
	ActionAgentClassified AuditAction = "AGENT_CLASSIFIED"
	ActionKBRetrieved     AuditAction = "KB_RETRIEVED"
	ActionDraftGenerated  AuditAction = "DRAFT_GENERATED"
	ActionAutoClosed      AuditAction = "AUTO_CLOSED"
	ActionAssignedToHuman AuditAction = "ASSIGNED_TO_HUMAN"
	ActionTicketAssigned  AuditAction = "TICKET_ASSIGNED"
	ActionReplySent       AuditAction = "REPLY_SENT"
	ActionTriageSkipped   AuditAction = "TRIAGE_SKIPPED"
	ActionError           AuditAction = "ERROR"
)

// AuditMetadata is the per-action payload of an audit entry. Each action has
// exactly one metadata type.
type AuditMetadata interface {
	Action() AuditAction
}

// TicketCreatedMeta payload.
type TicketCreatedMeta struct {
	UserID string `json:"userId"`
}

// AgentClassifiedMeta payload.
type AgentClassifiedMeta struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// KBRetrievedMeta payload.
type KBRetrievedMeta struct {
	ArticleIDs []string `json:"articleIds"`
}

// DraftGeneratedMeta payload.
type DraftGeneratedMeta struct {
	DraftReply string `json:"draftReply"`
}

// AutoClosedMeta payload.
type AutoClosedMeta struct {
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

// AssignedToHumanMeta payload.
type AssignedToHumanMeta struct {
	Confidence float64    `json:"confidence"`
	Threshold  float64    `json:"threshold"`
	SLADueAt   *time.Time `json:"slaDueAt,omitempty"`
}

// TicketAssignedMeta payload.
type TicketAssignedMeta struct {
	AssigneeID string `json:"assigneeId"`
	AssignedBy string `json:"assignedBy"`
}

// ReplySentMeta payload.
type ReplySentMeta struct {
	AgentID string       `json:"agentId"`
	Reply   string       `json:"reply"`
	Status  TicketStatus `json:"status,omitempty"`
}

// TriageSkippedMeta payload.
type TriageSkippedMeta struct {
	Status TicketStatus `json:"status"`
}

// ErrorMeta payload.
type ErrorMeta struct {
	Message string `json:"message"`
}

func (TicketCreatedMeta) Action() AuditAction   { return ActionTicketCreated }
func (AgentClassifiedMeta) Action() AuditAction { return ActionAgentClassified }
func (KBRetrievedMeta) Action() AuditAction     { return ActionKBRetrieved }
func (DraftGeneratedMeta) Action() AuditAction  { return ActionDraftGenerated }
func (AutoClosedMeta) Action() AuditAction      { return ActionAutoClosed }
func (AssignedToHumanMeta) Action() AuditAction { return ActionAssignedToHuman }
func (TicketAssignedMeta) Action() AuditAction  { return ActionTicketAssigned }
func (ReplySentMeta) Action() AuditAction       { return ActionReplySent }
func (TriageSkippedMeta) Action() AuditAction   { return ActionTriageSkipped }
func (ErrorMeta) Action() AuditAction           { return ActionError }

// AuditLogEntry is an immutable audit trail entry.
type AuditLogEntry struct {
	ID        string
	TicketID  *string
	TraceID   string
	Actor     AuditActor
	Action    AuditAction
	Metadata  AuditMetadata
	Timestamp time.Time
}

// NewAuditEntry builds an entry whose action is derived from its metadata.
func NewAuditEntry(ticketID, traceID string, actor AuditActor, meta AuditMetadata) *AuditLogEntry {
	entry := &AuditLogEntry{
		TraceID:  traceID,
		Actor:    actor,
		Action:   meta.Action(),
		Metadata: meta,
	}
	if ticketID != "" {
		entry.TicketID = &ticketID
	}
	return entry
}

// EncodeAuditMetadata serializes metadata for storage.
func EncodeAuditMetadata(meta AuditMetadata) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

// DecodeAuditMetadata restores the typed metadata stored for action.
func DecodeAuditMetadata(action AuditAction, raw []byte) (AuditMetadata, error) {
	var meta AuditMetadata
	switch action {
	case ActionTicketCreated:
		meta = &TicketCreatedMeta{}
	case ActionAgentClassified:
		meta = &AgentClassifiedMeta{}
	case ActionKBRetrieved:
		meta = &KBRetrievedMeta{}
	case ActionDraftGenerated:
		meta = &DraftGeneratedMeta{}
	case ActionAutoClosed:
		meta = &AutoClosedMeta{}
	case ActionAssignedToHuman:
		meta = &AssignedToHumanMeta{}
	case ActionTicketAssigned:
		meta = &TicketAssignedMeta{}
	case ActionReplySent:
		meta = &ReplySentMeta{}
	case ActionTriageSkipped:
		meta = &TriageSkippedMeta{}
	case ActionError:
		meta = &ErrorMeta{}
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, meta); err != nil {
			return nil, fmt.Errorf("decode %s metadata: %w", action, err)
		}
	}
	return deref(meta), nil
}

func deref(meta AuditMetadata) AuditMetadata {
	switch m := meta.(type) {
	case *TicketCreatedMeta:
		return *m
	case *AgentClassifiedMeta:
		return *m
	case *KBRetrievedMeta:
		return *m
	case *DraftGeneratedMeta:
		return *m
	case *AutoClosedMeta:
		return *m
	case *AssignedToHumanMeta:
		return *m
	case *TicketAssignedMeta:
		return *m
	case *ReplySentMeta:
		return *m
	case *TriageSkippedMeta:
		return *m
	case *ErrorMeta:
		return *m
	}
	return meta
}
