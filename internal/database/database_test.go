package database

import (
	"strings"
	"testing"
)

func TestSchema_Embedded(t *testing.T) {
	s := schemaSQL
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS import_jobs",
		"CREATE TABLE IF NOT EXISTS import_rows",
		"CREATE TABLE IF NOT EXISTS stores",
		"CREATE TABLE IF NOT EXISTS contacts",
		"CREATE OR REPLACE FUNCTION " + CommitProcedure,
		"pg_advisory_xact_lock",
		"ON DELETE CASCADE",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}

func TestSchema_Idempotent(t *testing.T) {
	for _, line := range strings.Split(schemaSQL, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "CREATE TABLE ") && !strings.HasPrefix(line, "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("non-idempotent statement: %s", line)
		}
		if strings.HasPrefix(line, "CREATE INDEX ") || strings.HasPrefix(line, "CREATE UNIQUE INDEX ") {
			if !strings.Contains(line, "IF NOT EXISTS") {
				t.Errorf("non-idempotent statement: %s", line)
			}
		}
	}
}

func TestSchema_CommitProcedureGuardsJobStatus(t *testing.T) {
	start := strings.Index(schemaSQL, "CREATE OR REPLACE FUNCTION "+CommitProcedure)
	if start < 0 {
		t.Fatal("commit procedure not found")
	}
	body := schemaSQL[start:]
	lock := strings.Index(body, "pg_advisory_xact_lock")
	guard := strings.Index(body, "SELECT status INTO job_status FROM import_jobs WHERE id = p_job_id FOR UPDATE")
	loop := strings.Index(body, "FOR r IN")
	if lock < 0 || guard < 0 || loop < 0 {
		t.Fatalf("lock=%d guard=%d loop=%d; all must be present", lock, guard, loop)
	}
	if !(lock < guard && guard < loop) {
		t.Errorf("status guard must run after the advisory lock and before any row is written")
	}
	if !strings.Contains(body, "job_status NOT IN ('validated', 'pending')") {
		t.Error("procedure must reject jobs that are not validated or pending")
	}
}
