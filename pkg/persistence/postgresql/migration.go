package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflows table. The graph aggregate (nodes, connections,
			-- rules) is stored as a JSONB document so that a save replaces the
			-- whole graph atomically; filterable fields are promoted to columns.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'archived')),
				owner VARCHAR(255),
				organization_id VARCHAR(255),
				project_id VARCHAR(255),
				revision BIGINT NOT NULL DEFAULT 0,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_organization_id ON workflows(organization_id);
			CREATE INDEX idx_workflows_project_id ON workflows(project_id);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
		`,
		2: `
			-- Create catalog_entries table for reusable node type definitions.
			CREATE TABLE catalog_entries (
				key VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				category VARCHAR(50) NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_catalog_entries_category ON catalog_entries(category);
		`,
		3: `
			-- GIN index to find nodes bound to a catalog key during detachment.
			CREATE INDEX idx_workflows_document_nodes ON workflows USING GIN ((document -> 'nodes') jsonb_path_ops);
		`,
	}
}
