package httpapi

import (
	"net/http"

	"github.com/bielarusajed/anibel-dl/internal/buildinfo"
	"github.com/bielarusajed/anibel-dl/internal/httpjson"
)

type schema = map[string]any

func ref(name string) schema { return schema{"$ref": "#/components/schemas/" + name} }

func object(props schema, required ...string) schema {
	s := schema{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func arrayOf(item schema) schema { return schema{"type": "array", "items": item} }

var (
	str     = schema{"type": "string"}
	integer = schema{"type": "integer"}
	number  = schema{"type": "number", "format": "double"}
	instant = schema{"type": "string", "format": "date-time"}
)

func jsonBody(s schema) schema {
	return schema{"content": schema{"application/json": schema{"schema": s}}}
}

func ok(s schema) schema {
	b := jsonBody(s)
	b["description"] = "OK"
	return b
}

func withErrors(responses schema, codes ...string) schema {
	for _, c := range codes {
		e := jsonBody(ref("Error"))
		e["description"] = "Error"
		responses[c] = e
	}
	return responses
}

// openAPIDocument décrit l'API v1. Construit à la demande: le document est petit.
func openAPIDocument() schema {
	idParam := []any{schema{"name": "id", "in": "path", "required": true, "schema": str}}
	limitParam := schema{"name": "limit", "in": "query", "schema": integer}

	return schema{
		"openapi": "3.0.3",
		"info":    schema{"title": "anibel-dl API", "version": buildinfo.Version},
		"components": schema{"schemas": schema{
			"Error": object(schema{"error": str, "code": str}, "error"),
			"Settings": object(schema{
				"destination":              str,
				"maxWorkers":               schema{"type": "integer", "minimum": 1},
				"maxConcurrentDownloads":   schema{"type": "integer", "minimum": 1},
				"segmentRequestsPerSecond": schema{"type": "number", "minimum": 0, "description": "0 = unlimited"},
				"stagingMaxAgeMinutes":     schema{"type": "integer", "minimum": 1},
			}),
			"Job": object(schema{
				"id":        str,
				"type":      schema{"type": "string", "enum": []any{"noop", "episode.download"}},
				"state":     schema{"type": "string", "enum": []any{"queued", "running", "muxing", "completed", "failed", "canceled"}},
				"progress":  number,
				"phase":     schema{"type": "string", "enum": []any{"manifest_resolving", "rendition_selecting", "asset_resolving", "fetching_video", "fetching_audio", "staging", "muxing", "finalizing", "done"}},
				"createdAt": instant,
				"updatedAt": instant,
				"params":    schema{"type": "object", "additionalProperties": true},
				"result":    ref("DownloadResult"),
				"errorCode": str,
				"error":     str,
			}, "id", "type", "state", "progress", "createdAt", "updatedAt"),
			"CreateJobRequest": object(schema{
				"type":   schema{"type": "string", "enum": []any{"noop", "episode.download"}},
				"params": ref("EpisodeDownloadParams"),
			}, "type"),
			"EpisodeDownloadParams": object(schema{
				"videoId": str,
				"type":    schema{"type": "string", "enum": []any{"sub", "dub"}, "default": "sub"},
				"target":  schema{"type": "string", "description": `"video", "720p", "audio", "subtitles" or "signs"`},
			}, "videoId"),
			"EnqueueDownloadRequest": object(schema{
				"type":   schema{"type": "string", "enum": []any{"sub", "dub"}},
				"target": str,
			}),
			"SavedFile": object(schema{"path": str, "filename": str, "mimeType": str, "bytes": integer}),
			"DownloadResult": object(schema{
				"opId":      str,
				"videoId":   str,
				"title":     str,
				"file":      ref("SavedFile"),
				"target":    str,
				"trackType": str,
				"height":    integer,
				"language":  str,
				"warnings":  arrayOf(str),
			}),
			"Subtitle": object(schema{"path": str, "fonts": arrayOf(str)}),
			"Video": object(schema{
				"videoId":     str,
				"title":       str,
				"host":        str,
				"hls":         str,
				"subtitles":   arrayOf(ref("Subtitle")),
				"trackTypes":  arrayOf(schema{"type": "string", "enum": []any{"sub", "dub"}}),
				"playlistUrl": str,
			}),
			"Download": object(schema{
				"id":        str,
				"jobId":     str,
				"videoId":   str,
				"title":     str,
				"target":    str,
				"trackType": str,
				"path":      str,
				"filename":  str,
				"mimeType":  str,
				"bytes":     integer,
				"warnings":  arrayOf(str),
				"createdAt": instant,
			}),
		}},
		"paths": schema{
			"/api/v1/health":       schema{"get": schema{"responses": schema{"200": schema{"description": "OK"}}}},
			"/api/v1/version":      schema{"get": schema{"responses": schema{"200": schema{"description": "OK"}}}},
			"/api/v1/openapi.json": schema{"get": schema{"responses": schema{"200": schema{"description": "OK"}}}},
			"/api/v1/events": schema{"get": schema{
				"parameters": []any{schema{"name": "topic", "in": "query", "schema": str, "description": "topic prefix filter, e.g. job."}},
				"responses":  schema{"200": schema{"description": "text/event-stream"}},
			}},
			"/api/v1/jobs": schema{
				"get": schema{
					"parameters": []any{limitParam, schema{"name": "state", "in": "query", "schema": str, "description": "comma-separated states, e.g. queued,running"}},
					"responses":  withErrors(schema{"200": ok(arrayOf(ref("Job")))}, "400", "500"),
				},
				"post": schema{
					"requestBody": jsonBody(ref("CreateJobRequest")),
					"responses":   withErrors(schema{"201": ok(ref("Job"))}, "400", "500"),
				},
			},
			"/api/v1/jobs/{id}": schema{"get": schema{
				"parameters": idParam,
				"responses":  withErrors(schema{"200": ok(ref("Job"))}, "404", "500"),
			}},
			"/api/v1/jobs/{id}/cancel": schema{"post": schema{
				"parameters": idParam,
				"responses":  withErrors(schema{"200": ok(ref("Job"))}, "404", "500"),
			}},
			"/api/v1/settings": schema{
				"get": schema{"responses": withErrors(schema{"200": ok(ref("Settings"))}, "500")},
				"put": schema{
					"requestBody": jsonBody(ref("Settings")),
					"responses":   withErrors(schema{"200": ok(ref("Settings"))}, "400", "500"),
				},
			},
			"/api/v1/videos/{id}": schema{"get": schema{
				"parameters": idParam,
				"responses":  withErrors(schema{"200": ok(ref("Video"))}, "404", "502"),
			}},
			"/api/v1/videos/{id}/playlist": schema{"get": schema{
				"parameters": idParam,
				"responses":  withErrors(schema{"200": ok(object(schema{"url": str}, "url"))}, "404", "502"),
			}},
			"/api/v1/videos/{id}/downloads": schema{
				"get": schema{"parameters": idParam, "responses": withErrors(schema{"200": ok(arrayOf(ref("Download")))}, "500")},
				"post": schema{
					"parameters":  idParam,
					"requestBody": jsonBody(ref("EnqueueDownloadRequest")),
					"responses":   withErrors(schema{"201": ok(ref("Job"))}, "400", "500"),
				},
			},
			"/api/v1/downloads": schema{"get": schema{
				"parameters": []any{limitParam},
				"responses":  withErrors(schema{"200": ok(arrayOf(ref("Download")))}, "500"),
			}},
			"/api/v1/downloads/{id}": schema{"get": schema{
				"parameters": idParam,
				"responses":  withErrors(schema{"200": ok(ref("Download"))}, "404", "500"),
			}},
		},
	}
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, openAPIDocument())
}
