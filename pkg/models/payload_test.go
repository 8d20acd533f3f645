package models

import (
	"errors"
	"testing"
	"time"
)

func TestPayload_Validate(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		payload Payload
		wantErr bool
	}{
		{"intimation ok", &AnalyzeIntimationPayload{ProcessNumber: "1", Content: "notice"}, false},
		{"intimation missing content", &AnalyzeIntimationPayload{ProcessNumber: "1"}, true},
		{"deadline ok", &CalculateDeadlinePayload{ProcessNumber: "1", StartDate: start, Days: 15}, false},
		{"deadline zero days", &CalculateDeadlinePayload{ProcessNumber: "1", StartDate: start}, true},
		{"deadline missing start", &CalculateDeadlinePayload{ProcessNumber: "1", Days: 5}, true},
		{"petition ok", &DraftPetitionPayload{PetitionType: "appeal", Facts: "facts"}, false},
		{"petition blank facts", &DraftPetitionPayload{PetitionType: "appeal", Facts: "  "}, true},
		{"research ok", &ResearchPrecedentsPayload{Query: "q"}, false},
		{"research negative max", &ResearchPrecedentsPayload{Query: "q", MaxResults: -1}, true},
		{"communication ok", &ClientCommunicationPayload{ClientID: "c", Channel: "email", Message: "hi"}, false},
		{"communication bad channel", &ClientCommunicationPayload{ClientID: "c", Channel: "fax", Message: "hi"}, true},
		{"risk ok", &RiskAnalysisPayload{ProcessNumber: "1", Summary: "s"}, false},
		{"contract missing text", &ContractReviewPayload{DocumentID: "d"}, true},
		{"billing ok", &BillingAnalysisPayload{ClientID: "c", PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0)}, false},
		{"billing inverted period", &BillingAnalysisPayload{ClientID: "c", PeriodStart: start, PeriodEnd: start.AddDate(0, -1, 0)}, true},
		{"monitor ok", &MonitorPublicationsPayload{LawyerRegistration: "OAB/SP 123"}, false},
		{"monitor empty", &MonitorPublicationsPayload{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestKnownTaskTypes_HavePayloads(t *testing.T) {
	for _, tt := range KnownTaskTypes() {
		p, ok := newPayload(tt)
		if !ok {
			t.Errorf("no payload registered for %q", tt)
			continue
		}
		if p.TaskType() != tt {
			t.Errorf("newPayload(%q).TaskType() = %q", tt, p.TaskType())
		}
	}
	if TaskType("unknown").Valid() {
		t.Error("unknown task type should not be valid")
	}
}

func TestEncodePayload_Envelope(t *testing.T) {
	raw, err := EncodePayload(&MonitorPublicationsPayload{LawyerRegistration: "OAB/RJ 9"})
	if err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}
	want := `{"type":"monitor_publications","data":{"lawyer_registration":"OAB/RJ 9"}}`
	if string(raw) != want {
		t.Errorf("EncodePayload() = %s, want %s", raw, want)
	}

	p, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if got := p.(*MonitorPublicationsPayload).LawyerRegistration; got != "OAB/RJ 9" {
		t.Errorf("LawyerRegistration = %q", got)
	}
}
