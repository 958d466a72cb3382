package main

import (
	"context"
	"fmt"
	"log"

	"contractdesk-backend/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()

	// gen_random_uuid() is built in from Postgres 13; older servers need pgcrypto
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS pgcrypto"); err != nil {
		log.Printf("Warning: Failed to create pgcrypto extension: %v", err)
	}

	tables := []struct {
		name string
		sql  string
	}{
		{
			name: "documents",
			sql: `
CREATE TABLE IF NOT EXISTS documents (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    owner_id UUID NOT NULL,
    kind VARCHAR(20) NOT NULL DEFAULT 'contract' CHECK (kind IN ('contract', 'template')),
    title VARCHAR(255) NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    folder_id UUID,
    file_id UUID,

    -- one key per pipeline stage: summary, risks, fields, normalization
    analysis_cache JSONB NOT NULL DEFAULT '{}'::jsonb,
    analysis_status VARCHAR(30) NOT NULL DEFAULT 'pending',
    analysis_progress INTEGER NOT NULL DEFAULT 0 CHECK (analysis_progress BETWEEN 0 AND 100),
    analysis_retry_count INTEGER NOT NULL DEFAULT 0,
    analysis_error TEXT,
    analysis_updated_at TIMESTAMPTZ,
    resolved_risks JSONB NOT NULL DEFAULT '[]'::jsonb,

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		},
		{
			name: "document_versions",
			sql: `
CREATE TABLE IF NOT EXISTS document_versions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    version INTEGER NOT NULL,
    content TEXT NOT NULL,
    reason VARCHAR(50) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (document_id, version)
);`,
		},
		{
			name: "files",
			sql: `
CREATE TABLE IF NOT EXISTS files (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    owner_id UUID NOT NULL,
    document_id UUID REFERENCES documents(id) ON DELETE SET NULL,
    filename VARCHAR(255) NOT NULL,
    mime_type VARCHAR(100) NOT NULL,
    size BIGINT NOT NULL,
    storage_path TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		},
		{
			name: "chat_messages",
			sql: `
CREATE TABLE IF NOT EXISTS chat_messages (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    role VARCHAR(20) NOT NULL CHECK (role IN ('user', 'model')),
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
		},
	}

	for _, t := range tables {
		if _, err := pool.Exec(ctx, t.sql); err != nil {
			log.Fatalf("Failed to create %s table: %v", t.name, err)
		}
		log.Printf("✓ Created %s table", t.name)
	}

	indexes := []struct {
		name string
		sql  string
	}{
		{
			name: "idx_documents_owner_id",
			sql:  "CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents(owner_id, updated_at DESC);",
		},
		{
			name: "idx_documents_folder_id",
			sql:  "CREATE INDEX IF NOT EXISTS idx_documents_folder_id ON documents(folder_id);",
		},
		{
			name: "idx_documents_analysis_status",
			sql:  "CREATE INDEX IF NOT EXISTS idx_documents_analysis_status ON documents(analysis_status);",
		},
		{
			name: "idx_files_document_id",
			sql:  "CREATE INDEX IF NOT EXISTS idx_files_document_id ON files(document_id);",
		},
		{
			name: "idx_chat_messages_document_id",
			sql:  "CREATE INDEX IF NOT EXISTS idx_chat_messages_document_id ON chat_messages(document_id, created_at DESC);",
		},
	}

	for _, idx := range indexes {
		if _, err := pool.Exec(ctx, idx.sql); err != nil {
			log.Printf("Warning: Failed to create index %s: %v", idx.name, err)
		} else {
			log.Printf("✓ Created index: %s", idx.name)
		}
	}

	fmt.Println("\n✅ Schema created successfully!")
	fmt.Printf("   Tables: documents, document_versions, files, chat_messages\n")
	fmt.Printf("   Indexes: %d indexes created\n", len(indexes))
}
