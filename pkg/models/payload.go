package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TaskType selects the payload shape of a queued task.
type TaskType string

const (
	TaskTypeAnalyzeIntimation   TaskType = "analyze_intimation"
	TaskTypeCalculateDeadline   TaskType = "calculate_deadline"
	TaskTypeDraftPetition       TaskType = "draft_petition"
	TaskTypeResearchPrecedents  TaskType = "research_precedents"
	TaskTypeClientCommunication TaskType = "client_communication"
	TaskTypeRiskAnalysis        TaskType = "risk_analysis"
	TaskTypeContractReview      TaskType = "contract_review"
	TaskTypeBillingAnalysis     TaskType = "billing_analysis"
	TaskTypeMonitorPublications TaskType = "monitor_publications"
)

// KnownTaskTypes lists every task type with a registered payload shape.
func KnownTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeAnalyzeIntimation,
		TaskTypeCalculateDeadline,
		TaskTypeDraftPetition,
		TaskTypeResearchPrecedents,
		TaskTypeClientCommunication,
		TaskTypeRiskAnalysis,
		TaskTypeContractReview,
		TaskTypeBillingAnalysis,
		TaskTypeMonitorPublications,
	}
}

// Payload is the typed input of a queued task.
type Payload interface {
	// TaskType returns the type this payload belongs to.
	TaskType() TaskType
	// Validate checks required fields. It returns a *ValidationError.
	Validate() error
}

// newPayload returns an empty payload for a task type.
func newPayload(t TaskType) (Payload, bool) {
	switch t {
	case TaskTypeAnalyzeIntimation:
		return &AnalyzeIntimationPayload{}, true
	case TaskTypeCalculateDeadline:
		return &CalculateDeadlinePayload{}, true
	case TaskTypeDraftPetition:
		return &DraftPetitionPayload{}, true
	case TaskTypeResearchPrecedents:
		return &ResearchPrecedentsPayload{}, true
	case TaskTypeClientCommunication:
		return &ClientCommunicationPayload{}, true
	case TaskTypeRiskAnalysis:
		return &RiskAnalysisPayload{}, true
	case TaskTypeContractReview:
		return &ContractReviewPayload{}, true
	case TaskTypeBillingAnalysis:
		return &BillingAnalysisPayload{}, true
	case TaskTypeMonitorPublications:
		return &MonitorPublicationsPayload{}, true
	default:
		return nil, false
	}
}

// Valid returns true if the task type has a registered payload shape.
func (t TaskType) Valid() bool {
	_, ok := newPayload(t)
	return ok
}

type payloadEnvelope struct {
	Type TaskType        `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload encodes a payload as {"type": ..., "data": ...}.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.TaskType(), err)
	}
	return json.Marshal(payloadEnvelope{Type: p.TaskType(), Data: data})
}

// DecodePayload decodes an envelope produced by EncodePayload.
// Unknown types are rejected with a ValidationError.
func DecodePayload(raw []byte) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	p, ok := newPayload(env.Type)
	if !ok {
		return nil, NewValidationError("", "payload.type", fmt.Sprintf("unknown task type %q", env.Type))
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return p, nil
}

func requireField(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError("", field, "required")
	}
	return nil
}

// AnalyzeIntimationPayload asks an agent to read a court notice.
type AnalyzeIntimationPayload struct {
	ProcessNumber string `json:"process_number"`
	Content       string `json:"content"`
	Court         string `json:"court,omitempty"`
}

func (p *AnalyzeIntimationPayload) TaskType() TaskType { return TaskTypeAnalyzeIntimation }

func (p *AnalyzeIntimationPayload) Validate() error {
	if err := requireField("process_number", p.ProcessNumber); err != nil {
		return err
	}
	return requireField("content", p.Content)
}

// CalculateDeadlinePayload asks an agent to compute a procedural deadline.
type CalculateDeadlinePayload struct {
	ProcessNumber string    `json:"process_number"`
	StartDate     time.Time `json:"start_date"`
	Days          int       `json:"days"`
	BusinessDays  bool      `json:"business_days,omitempty"`
}

func (p *CalculateDeadlinePayload) TaskType() TaskType { return TaskTypeCalculateDeadline }

func (p *CalculateDeadlinePayload) Validate() error {
	if err := requireField("process_number", p.ProcessNumber); err != nil {
		return err
	}
	if p.StartDate.IsZero() {
		return NewValidationError("", "start_date", "required")
	}
	if p.Days <= 0 {
		return NewValidationError("", "days", "must be positive")
	}
	return nil
}

// DraftPetitionPayload asks an agent to draft a filing.
type DraftPetitionPayload struct {
	ProcessNumber string   `json:"process_number"`
	PetitionType  string   `json:"petition_type"`
	Facts         string   `json:"facts"`
	References    []string `json:"references,omitempty"`
}

func (p *DraftPetitionPayload) TaskType() TaskType { return TaskTypeDraftPetition }

func (p *DraftPetitionPayload) Validate() error {
	if err := requireField("petition_type", p.PetitionType); err != nil {
		return err
	}
	return requireField("facts", p.Facts)
}

// ResearchPrecedentsPayload asks an agent to search case law.
type ResearchPrecedentsPayload struct {
	Query      string `json:"query"`
	Court      string `json:"court,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (p *ResearchPrecedentsPayload) TaskType() TaskType { return TaskTypeResearchPrecedents }

func (p *ResearchPrecedentsPayload) Validate() error {
	if err := requireField("query", p.Query); err != nil {
		return err
	}
	if p.MaxResults < 0 {
		return NewValidationError("", "max_results", "must not be negative")
	}
	return nil
}

// ClientCommunicationPayload asks an agent to prepare a client message.
type ClientCommunicationPayload struct {
	ClientID string `json:"client_id"`
	Channel  string `json:"channel"`
	Subject  string `json:"subject,omitempty"`
	Message  string `json:"message"`
}

func (p *ClientCommunicationPayload) TaskType() TaskType { return TaskTypeClientCommunication }

func (p *ClientCommunicationPayload) Validate() error {
	if err := requireField("client_id", p.ClientID); err != nil {
		return err
	}
	switch p.Channel {
	case "email", "whatsapp", "sms":
	default:
		return NewValidationError("", "channel", fmt.Sprintf("unsupported channel %q", p.Channel))
	}
	return requireField("message", p.Message)
}

// RiskAnalysisPayload asks an agent to assess case risk.
type RiskAnalysisPayload struct {
	ProcessNumber string `json:"process_number"`
	Summary       string `json:"summary"`
}

func (p *RiskAnalysisPayload) TaskType() TaskType { return TaskTypeRiskAnalysis }

func (p *RiskAnalysisPayload) Validate() error {
	if err := requireField("process_number", p.ProcessNumber); err != nil {
		return err
	}
	return requireField("summary", p.Summary)
}

// ContractReviewPayload asks an agent to review a contract.
type ContractReviewPayload struct {
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	FocusAreas []string `json:"focus_areas,omitempty"`
}

func (p *ContractReviewPayload) TaskType() TaskType { return TaskTypeContractReview }

func (p *ContractReviewPayload) Validate() error {
	if err := requireField("document_id", p.DocumentID); err != nil {
		return err
	}
	return requireField("text", p.Text)
}

// BillingAnalysisPayload asks an agent to review billing for a period.
type BillingAnalysisPayload struct {
	ClientID    string    `json:"client_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func (p *BillingAnalysisPayload) TaskType() TaskType { return TaskTypeBillingAnalysis }

func (p *BillingAnalysisPayload) Validate() error {
	if err := requireField("client_id", p.ClientID); err != nil {
		return err
	}
	if p.PeriodStart.IsZero() || p.PeriodEnd.IsZero() {
		return NewValidationError("", "period", "start and end are required")
	}
	if p.PeriodEnd.Before(p.PeriodStart) {
		return NewValidationError("", "period", "end before start")
	}
	return nil
}

// MonitorPublicationsPayload asks an agent to scan official gazettes.
type MonitorPublicationsPayload struct {
	LawyerRegistration string   `json:"lawyer_registration"`
	Sources            []string `json:"sources,omitempty"`
}

func (p *MonitorPublicationsPayload) TaskType() TaskType { return TaskTypeMonitorPublications }

func (p *MonitorPublicationsPayload) Validate() error {
	return requireField("lawyer_registration", p.LawyerRegistration)
}
