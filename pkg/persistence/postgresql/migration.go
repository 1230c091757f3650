package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE function_executions (
				id VARCHAR(64) PRIMARY KEY,
				connection_id VARCHAR(64) NOT NULL,
				region_name VARCHAR(255) NOT NULL,
				function_id VARCHAR(255) NOT NULL,
				topology VARCHAR(32),
				has_result BOOLEAN NOT NULL,
				is_re_execute BOOLEAN NOT NULL,
				filter JSONB,
				excluded_members JSONB,
				status VARCHAR(32) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
				failure_kind VARCHAR(32),
				error_message TEXT,
				chunks INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_function_executions_started_at ON function_executions(started_at DESC);
			CREATE INDEX idx_function_executions_completed_at ON function_executions(completed_at);
			CREATE INDEX idx_function_executions_function_id ON function_executions(function_id);
		`,
	}
}
