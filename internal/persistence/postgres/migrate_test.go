// SPDX-License-Identifier: Apache-2.0

package postgres

import (
	"strings"
	"testing"
)

func completeSchema() map[string]map[string]bool {
	present := make(map[string]map[string]bool, len(requiredTables))
	for _, table := range requiredTables {
		present[table] = make(map[string]bool)
		for _, column := range requiredColumns[table] {
			present[table][column] = true
		}
	}
	return present
}

func TestSchemaQueryFiltersRequiredTables(t *testing.T) {
	query, args, err := schemaQuery()
	if err != nil {
		t.Fatalf("schema query: %v", err)
	}
	if !strings.Contains(query, "FROM information_schema.columns") || !strings.Contains(query, "$1") {
		t.Fatalf("unexpected query %q", query)
	}
	if len(args) != 1+len(requiredTables) {
		t.Fatalf("expected schema plus %d table args, got %v", len(requiredTables), args)
	}
}

func TestMissingSchema(t *testing.T) {
	if err := missingSchema(completeSchema()); err != nil {
		t.Fatalf("expected complete schema to pass, got %v", err)
	}

	present := completeSchema()
	delete(present, "task_events")
	delete(present["workflows"], "current_approval_id")

	err := missingSchema(present)
	if err == nil {
		t.Fatal("expected missing schema error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "required tables missing: task_events") {
		t.Fatalf("expected missing table in %q", msg)
	}
	if !strings.Contains(msg, "workflows.current_approval_id") {
		t.Fatalf("expected missing column in %q", msg)
	}
}
