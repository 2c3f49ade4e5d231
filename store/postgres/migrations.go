package postgres

// migration is one ordered schema change, applied at most once.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "001_create_idempotency_records",
		sql: `
			CREATE TABLE IF NOT EXISTS steward_idempotency_records (
				key         TEXT NOT NULL,
				tenant_id   TEXT NOT NULL,
				status      TEXT NOT NULL DEFAULT 'reserved',
				response    BYTEA,
				status_code INTEGER NOT NULL DEFAULT 0,
				expires_at  TIMESTAMPTZ NOT NULL,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (key, tenant_id)
			);
			CREATE INDEX IF NOT EXISTS idx_steward_idem_expires
				ON steward_idempotency_records (expires_at);
		`,
	},
	{
		name: "002_create_workflow_runs",
		sql: `
			CREATE TABLE IF NOT EXISTS steward_workflow_runs (
				key          TEXT PRIMARY KEY,
				name         TEXT NOT NULL,
				state        TEXT NOT NULL DEFAULT 'running',
				input        BYTEA,
				output       BYTEA,
				error        TEXT NOT NULL DEFAULT '',
				error_kind   TEXT NOT NULL DEFAULT '',
				tenant_id    TEXT NOT NULL DEFAULT '',
				actor_id     TEXT NOT NULL DEFAULT '',
				started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMPTZ,
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_steward_runs_state
				ON steward_workflow_runs (state);
		`,
	},
	{
		name: "003_create_workflow_checkpoints",
		sql: `
			CREATE TABLE IF NOT EXISTS steward_workflow_checkpoints (
				id         TEXT PRIMARY KEY,
				run_key    TEXT NOT NULL,
				step_name  TEXT NOT NULL,
				data       BYTEA,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (run_key, step_name)
			);
			CREATE INDEX IF NOT EXISTS idx_steward_checkpoints_run
				ON steward_workflow_checkpoints (run_key, created_at);
		`,
	},
	{
		name: "004_create_work_orders",
		sql: `
			CREATE TABLE IF NOT EXISTS steward_work_orders (
				id           TEXT PRIMARY KEY,
				tenant_id    TEXT NOT NULL,
				title        TEXT NOT NULL,
				description  TEXT NOT NULL DEFAULT '',
				property_ref TEXT NOT NULL DEFAULT '',
				status       TEXT NOT NULL,
				created_by   TEXT NOT NULL DEFAULT '',
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_steward_work_orders_tenant
				ON steward_work_orders (tenant_id);
		`,
	},
	{
		name: "005_create_service_jobs",
		sql: `
			CREATE TABLE IF NOT EXISTS steward_service_jobs (
				id            TEXT PRIMARY KEY,
				tenant_id     TEXT NOT NULL,
				title         TEXT NOT NULL,
				description   TEXT NOT NULL DEFAULT '',
				property_ref  TEXT NOT NULL DEFAULT '',
				status        TEXT NOT NULL,
				created_by    TEXT NOT NULL DEFAULT '',
				work_order_id TEXT,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_steward_service_jobs_tenant
				ON steward_service_jobs (tenant_id);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_steward_service_jobs_twin
				ON steward_service_jobs (tenant_id, work_order_id)
				WHERE work_order_id IS NOT NULL;
		`,
	},
	{
		name: "006_create_violations",
		sql: `
			CREATE TABLE IF NOT EXISTS steward_violations (
				id           TEXT PRIMARY KEY,
				tenant_id    TEXT NOT NULL,
				rule_ref     TEXT NOT NULL,
				description  TEXT NOT NULL DEFAULT '',
				property_ref TEXT NOT NULL DEFAULT '',
				status       TEXT NOT NULL,
				created_by   TEXT NOT NULL DEFAULT '',
				created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_steward_violations_tenant
				ON steward_violations (tenant_id);
		`,
	},
	{
		name: "007_create_status_history",
		sql: `
			CREATE TABLE IF NOT EXISTS steward_status_history (
				id          TEXT PRIMARY KEY,
				tenant_id   TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id   TEXT NOT NULL,
				from_status TEXT NOT NULL,
				to_status   TEXT NOT NULL,
				actor_id    TEXT NOT NULL DEFAULT '',
				changed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_steward_history_entity
				ON steward_status_history (tenant_id, entity_id, changed_at);
		`,
	},
	{
		name: "008_create_audit_events",
		sql: `
			CREATE TABLE IF NOT EXISTS steward_audit_events (
				id             TEXT PRIMARY KEY,
				tenant_id      TEXT NOT NULL,
				entity_type    TEXT NOT NULL,
				entity_id      TEXT NOT NULL,
				action_type    TEXT NOT NULL,
				category       TEXT NOT NULL DEFAULT '',
				summary        TEXT NOT NULL DEFAULT '',
				actor_id       TEXT NOT NULL DEFAULT '',
				previous_state TEXT NOT NULL DEFAULT '',
				new_state      TEXT NOT NULL DEFAULT '',
				metadata       JSONB,
				recorded_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_steward_audit_entity
				ON steward_audit_events (tenant_id, entity_id, recorded_at);
		`,
	},
}
