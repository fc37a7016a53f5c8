package validator

import (
	"strings"
	"testing"
)

type createArticleRequest struct {
	Title    string `json:"title" validate:"required,min=3"`
	AuthorID string `json:"author_id" validate:"required,uuid4"`
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(createArticleRequest{Title: "ab"})
	if err == nil {
		t.Fatal("expected validation to fail")
	}

	failures, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}

	msg := failures.Error()
	if !strings.Contains(msg, "title failed on min=3") {
		t.Fatalf("expected title failure in %q", msg)
	}
	if !strings.Contains(msg, "author_id failed on required") {
		t.Fatalf("expected author_id failure in %q", msg)
	}
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(createArticleRequest{
		Title:    "Caching serialized views",
		AuthorID: "8cbb4f25-33f7-477d-9b17-4caa9f3ad6a3",
	})
	if err != nil {
		t.Fatalf("expected validation to pass: %v", err)
	}
}
