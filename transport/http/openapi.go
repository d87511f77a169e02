package http

// openAPIDocument returns a minimal OpenAPI description of the HTTP
// surface, served at GET /api/openapi.json (spec.md §6).
func openAPIDocument() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   "grafeodb query server",
			"version": "1.0.0",
		},
		"paths": map[string]interface{}{
			"/query":           map[string]interface{}{"post": map[string]interface{}{"summary": "Execute an auto-commit query"}},
			"/batch":           map[string]interface{}{"post": map[string]interface{}{"summary": "Execute an atomic batch of queries"}},
			"/tx/begin":        map[string]interface{}{"post": map[string]interface{}{"summary": "Begin an explicit transaction"}},
			"/tx/query":        map[string]interface{}{"post": map[string]interface{}{"summary": "Execute a query within a session"}},
			"/tx/commit":       map[string]interface{}{"post": map[string]interface{}{"summary": "Commit a session"}},
			"/tx/rollback":     map[string]interface{}{"post": map[string]interface{}{"summary": "Roll back a session"}},
			"/db":              map[string]interface{}{"get": map[string]interface{}{"summary": "List databases"}, "post": map[string]interface{}{"summary": "Create a database"}},
			"/db/{name}":       map[string]interface{}{"get": map[string]interface{}{"summary": "Database info"}, "delete": map[string]interface{}{"summary": "Delete a database"}},
			"/db/{name}/stats":  map[string]interface{}{"get": map[string]interface{}{"summary": "Database statistics"}},
			"/db/{name}/schema": map[string]interface{}{"get": map[string]interface{}{"summary": "Database schema"}},
			"/system/resources": map[string]interface{}{"get": map[string]interface{}{"summary": "Resource inventory"}},
			"/health":           map[string]interface{}{"get": map[string]interface{}{"summary": "Liveness probe"}},
			"/metrics":          map[string]interface{}{"get": map[string]interface{}{"summary": "Prometheus metrics"}},
			"/ws":               map[string]interface{}{"get": map[string]interface{}{"summary": "Full-duplex query channel"}},
		},
	}
}
