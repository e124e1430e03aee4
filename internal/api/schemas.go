package api

// Request schemas. Bodies are validated before any envelope is synthesized,
// so the orchestrator only ever sees well-formed tasks.

const assistantRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {"type": "string", "minLength": 1},
    "conversation_id": {"type": "string"},
    "max_results": {"type": "integer", "minimum": 1},
    "strategy": {"type": "string", "enum": ["local", "global", "drift", "hybrid"]}
  },
  "additionalProperties": false
}`

const analysisRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["query"],
  "properties": {
    "query": {"type": "string", "minLength": 1},
    "analysis_type": {"type": "string"},
    "max_depth": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`
