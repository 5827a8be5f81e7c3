package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/buildinfo"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/httpjson"
)

// handleOpenAPI décrit les routes exposées; à maintenir avec router.go.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, openAPIDocument())
}

func openAPIDocument() map[string]any {
	jsonOK := func(description, schemaRef string) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}

	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}

	idParam := map[string]any{
		"name":     "id",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string"},
	}
	limitParam := map[string]any{
		"name":   "limit",
		"in":     "query",
		"schema": map[string]any{"type": "integer", "minimum": 0},
	}

	str := map[string]any{"type": "string"}
	integer := map[string]any{"type": "integer"}
	dateTime := map[string]any{"type": "string", "format": "date-time"}

	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "vrc-world-sync API",
			"version": buildinfo.Current().Version,
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": str,
						"code":  map[string]any{"type": "string", "enum": []any{"invalid_url", "auth_error", "provider_error", "parse_error", "storage_error"}},
					},
					"required": []any{"error"},
				},
				"World": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":                  map[string]any{"type": "string", "pattern": "^wrld_[0-9a-f-]{36}$"},
						"name":                str,
						"description":         str,
						"authorId":            str,
						"authorName":          str,
						"tags":                map[string]any{"type": "array", "items": str},
						"capacity":            integer,
						"recommendedCapacity": integer,
						"visits":              integer,
						"favorites":           integer,
						"popularity":          integer,
						"heat":                integer,
						"occupants":           integer,
						"version":             integer,
						"releaseStatus":       str,
						"imageUrl":            str,
						"thumbnailImageUrl":   str,
						"thumbnailKey":        str,
						"sourceUrl":           str,
						"sourceCreatedAt":     dateTime,
						"sourceUpdatedAt":     dateTime,
						"scrapedAt":           dateTime,
						"extra":               map[string]any{"type": "object", "additionalProperties": true},
						"freshness":           map[string]any{"type": "string", "enum": []any{"fresh", "needs_refresh"}},
					},
					"required": []any{"id", "name", "scrapedAt", "freshness"},
				},
				"WorldList": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/World"},
				},
				"BatchReport": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"total":     integer,
						"succeeded": integer,
						"cached":    integer,
						"failed":    integer,
						"failures": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":       "object",
								"properties": map[string]any{"url": str, "reason": str},
							},
						},
						"thumbnails": map[string]any{
							"type":       "object",
							"properties": map[string]any{"downloaded": integer, "skipped": integer, "failed": integer},
						},
						"aborted":    map[string]any{"type": "boolean"},
						"canceled":   map[string]any{"type": "boolean"},
						"startedAt":  dateTime,
						"finishedAt": dateTime,
					},
				},
				"Run": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":        str,
						"state":     map[string]any{"type": "string", "enum": []any{"running", "completed", "aborted", "canceled"}},
						"refresh":   map[string]any{"type": "boolean"},
						"total":     integer,
						"createdAt": dateTime,
						"updatedAt": dateTime,
						"report":    map[string]any{"$ref": "#/components/schemas/BatchReport"},
					},
					"required": []any{"id", "state", "total", "createdAt", "updatedAt"},
				},
				"RunList": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/Run"},
				},
				"StartRunRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"urls":    map[string]any{"type": "array", "items": str, "example": []any{"https://vrchat.com/home/world/wrld_4cf554b4-430c-4f8f-b53e-1f294eed230b"}},
						"refresh": map[string]any{"type": "boolean", "description": "Ajoute les worlds stockées jugées périmées."},
					},
					"additionalProperties": false,
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/openapi.json": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{
					"description": "SSE: run.started, run.finished, world.fetched, world.cached, world.failed",
				}}},
			},
			"/api/v1/worlds": map[string]any{
				"get": map[string]any{
					"parameters": []any{limitParam},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/WorldList"),
						"500": jsonErr,
					},
				},
			},
			"/api/v1/worlds/{id}": map[string]any{
				"get": map[string]any{
					"parameters": []any{idParam},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/World"),
						"400": jsonErr,
						"404": jsonErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/worlds/{id}/thumbnail": map[string]any{
				"get": map[string]any{
					"parameters": []any{idParam},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Image",
							"content":     map[string]any{"image/jpeg": map[string]any{"schema": map[string]any{"type": "string", "format": "binary"}}},
						},
						"400": jsonErr,
						"404": jsonErr,
					},
				},
			},
			"/api/v1/runs": map[string]any{
				"get": map[string]any{
					"parameters": []any{limitParam},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/RunList"),
						"500": jsonErr,
					},
				},
				"post": map[string]any{
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/StartRunRequest"},
							},
						},
					},
					"responses": map[string]any{
						"202": jsonOK("Accepted", "#/components/schemas/Run"),
						"400": jsonErr,
						"409": jsonErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/runs/{id}": map[string]any{
				"get": map[string]any{
					"parameters": []any{idParam},
					"responses": map[string]any{
						"200": jsonOK("OK", "#/components/schemas/Run"),
						"404": jsonErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/runs/{id}/cancel": map[string]any{
				"post": map[string]any{
					"parameters": []any{idParam},
					"responses": map[string]any{
						"202": map[string]any{"description": "Accepted"},
						"404": jsonErr,
					},
				},
			},
		},
	}
}
