// Studiosync - Offline-first Sync and Media Caching for Studio Back-Office
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/studiosync

package validation

import (
	"strings"
	"testing"
)

type request struct {
	Kind       string `validate:"required,oneof=CREATE UPDATE DELETE"`
	Collection string `validate:"required,collection"`
	Note       string `validate:"max=5"`
}

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name    string
		input   request
		wantTag string
		wantMsg string
	}{
		{name: "valid", input: request{Kind: "CREATE", Collection: "clients"}},
		{name: "valid with dash", input: request{Kind: "DELETE", Collection: "photo-sets_2"}},
		{name: "missing kind", input: request{Collection: "clients"}, wantTag: "required", wantMsg: "Kind is required"},
		{name: "bad kind", input: request{Kind: "PATCH", Collection: "clients"}, wantTag: "oneof", wantMsg: "Kind must be one of: CREATE UPDATE DELETE"},
		{name: "uppercase collection", input: request{Kind: "CREATE", Collection: "Clients"}, wantTag: "collection"},
		{name: "collection with slash", input: request{Kind: "CREATE", Collection: "a/b"}, wantTag: "collection"},
		{name: "note too long", input: request{Kind: "CREATE", Collection: "c", Note: "toolong"}, wantTag: "max", wantMsg: "Note must be at most 5 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if tt.wantTag == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateStruct() expected error")
			}
			if len(err.Fields) != 1 || err.Fields[0].Tag != tt.wantTag {
				t.Fatalf("Fields = %+v, want one %s error", err.Fields, tt.wantTag)
			}
			if tt.wantMsg != "" && err.Fields[0].Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Fields[0].Message, tt.wantMsg)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	err := ValidateStruct(&request{})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "Kind is required") || !strings.Contains(apiErr.Message, "Collection is required") {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if fields, ok := apiErr.Details["fields"].([]map[string]any); !ok || len(fields) != 2 {
		t.Errorf("Details = %+v", apiErr.Details)
	}

	single := ValidateStruct(&request{Kind: "CREATE"}).ToAPIError()
	if single.Details["field"] != "Collection" {
		t.Errorf("single Details = %+v", single.Details)
	}
}
