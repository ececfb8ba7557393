package fschema

import (
	"testing"
)

func TestIssueIsError(t *testing.T) {
	tests := []struct {
		severity Severity
		want     bool
	}{
		{SeverityError, true},
		{SeverityWarning, false},
		{SeverityInformation, false},
	}

	for _, tt := range tests {
		issue := Issue{Severity: tt.severity}
		if got := issue.IsError(); got != tt.want {
			t.Errorf("Issue{Severity: %s}.IsError() = %v; want %v", tt.severity, got, tt.want)
		}
	}
}

func TestIssueIsWarning(t *testing.T) {
	tests := []struct {
		severity Severity
		want     bool
	}{
		{SeverityError, false},
		{SeverityWarning, true},
		{SeverityInformation, false},
	}

	for _, tt := range tests {
		issue := Issue{Severity: tt.severity}
		if got := issue.IsWarning(); got != tt.want {
			t.Errorf("Issue{Severity: %s}.IsWarning() = %v; want %v", tt.severity, got, tt.want)
		}
	}
}

func TestIssueString(t *testing.T) {
	tests := []struct {
		issue Issue
		want  string
	}{
		{
			issue: Issue{Severity: SeverityError, Code: TypeMismatch, Message: "invalid value"},
			want:  "error: TypeMismatch: invalid value",
		},
		{
			issue: Issue{Severity: SeverityWarning, Code: ConstraintError, Message: "consider using code", Path: "Patient.gender"},
			want:  "warning: ConstraintError at Patient.gender: consider using code",
		},
	}

	for _, tt := range tests {
		if got := tt.issue.String(); got != tt.want {
			t.Errorf("Issue.String() = %q; want %q", got, tt.want)
		}
	}
}

func TestNewIssueDefaultsSeverity(t *testing.T) {
	if got := NewIssue(ConstraintError).Build().Severity; got != SeverityWarning {
		t.Errorf("ConstraintError default severity = %s; want %s", got, SeverityWarning)
	}
	if got := NewIssue(ConstraintsSkipped).Build().Severity; got != SeverityWarning {
		t.Errorf("ConstraintsSkipped default severity = %s; want %s", got, SeverityWarning)
	}
	if got := NewIssue(RequiredMissing).Build().Severity; got != SeverityError {
		t.Errorf("RequiredMissing default severity = %s; want %s", got, SeverityError)
	}
}

func TestIssueBuilderFluent(t *testing.T) {
	issue := NewIssue(TypeMismatch).
		Severity(SeverityError).
		At("Patient.active").
		AtSchema("http://hl7.org/fhir/StructureDefinition/Patient#Patient.active").
		Message("expected boolean").
		With("actual", "string").
		Build()

	if issue.Code != TypeMismatch {
		t.Errorf("Code = %s; want %s", issue.Code, TypeMismatch)
	}
	if issue.Path != "Patient.active" {
		t.Errorf("Path = %q; want Patient.active", issue.Path)
	}
	if issue.SchemaPath == "" {
		t.Error("SchemaPath should be set")
	}
	if issue.Context["actual"] != "string" {
		t.Errorf("Context[actual] = %v; want string", issue.Context["actual"])
	}
}

func BenchmarkIssueBuilder(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = NewIssue(ConstraintViolated).
			At("Patient.extension[0]").
			AtSchema("Patient#Patient.extension").
			Message("must have content or children").
			With("constraint", "ele-1").
			Build()
	}
}

func BenchmarkIssueString(b *testing.B) {
	issue := Issue{Severity: SeverityError, Message: "invalid value", Path: "Patient.birthDate"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = issue.String()
	}
}
