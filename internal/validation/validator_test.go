// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()

	v1 := GetValidator()
	v2 := GetValidator()

	if v1 == nil {
		t.Fatal("GetValidator() should not return nil")
	}
	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
}

type sampleRequest struct {
	PeerID string `json:"peerId" validate:"required"`
	Body   string `json:"body" validate:"notblank,max=10"`
	Action string `json:"action" validate:"oneof=add remove"`
	Limit  int    `json:"limit" validate:"min=1,max=50"`
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	valid := sampleRequest{PeerID: "b2", Body: "hi", Action: "add", Limit: 10}

	tests := []struct {
		name      string
		mutate    func(*sampleRequest)
		wantField string
		wantTag   string
	}{
		{"valid", func(*sampleRequest) {}, "", ""},
		{"missing peer", func(r *sampleRequest) { r.PeerID = "" }, "peerId", "required"},
		{"blank body", func(r *sampleRequest) { r.Body = "   " }, "body", "notblank"},
		{"long body", func(r *sampleRequest) { r.Body = strings.Repeat("x", 11) }, "body", "max"},
		{"bad action", func(r *sampleRequest) { r.Action = "toggle" }, "action", "oneof"},
		{"limit too low", func(r *sampleRequest) { r.Limit = 0 }, "limit", "min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := valid
			tt.mutate(&req)

			err := ValidateStruct(&req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("got %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestTranslateMessages(t *testing.T) {
	t.Parallel()

	err := ValidateStruct(&sampleRequest{Body: "x", Action: "add", Limit: 5})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "peerId is required" {
		t.Errorf("Error() = %q", got)
	}

	err = ValidateStruct(&sampleRequest{PeerID: "b2", Body: "x", Action: "nope", Limit: 5})
	if err == nil || err.Error() != "action must be one of: add remove" {
		t.Errorf("Error() = %v", err)
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	single := ValidateStruct(&sampleRequest{Body: "x", Action: "add", Limit: 5}).ToAPIError()
	if single.Code != "VALIDATION_ERROR" || single.Details["field"] != "peerId" {
		t.Errorf("single = %+v", single)
	}

	multi := ValidateStruct(&sampleRequest{}).ToAPIError()
	fields, ok := multi.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) < 2 {
		t.Fatalf("multi details = %+v", multi.Details)
	}
	if !strings.Contains(multi.Message, "peerId: peerId is required") {
		t.Errorf("multi message = %q", multi.Message)
	}

	empty := (&RequestValidationError{}).ToAPIError()
	if empty.Message != "Validation failed" {
		t.Errorf("empty message = %q", empty.Message)
	}
}
