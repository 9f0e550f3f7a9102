package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Exam Sync API",
        "description": "Offline synchronization service for disconnected test centers",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Sync", "description": "Offline package construction, export and result reconciliation"}
    ],
    "paths": {
        "/sync/download-users": {
            "post": {
                "tags": ["Sync"],
                "summary": "Build an offline package",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePackageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No registered enrollments"}
                }
            }
        },
        "/sync/download-tests/{packageId}": {
            "get": {
                "tags": ["Sync"],
                "summary": "Informational stub; test data is embedded in the package",
                "parameters": [
                    {"name": "packageId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sync/export-package": {
            "post": {
                "tags": ["Sync"],
                "summary": "Render an in-memory package into artifacts",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportPackageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unknown format"}
                }
            }
        },
        "/sync/export/{token}": {
            "get": {
                "tags": ["Sync"],
                "summary": "Download an archived export artifact",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        },
        "/sync/upload-results": {
            "post": {
                "tags": ["Sync"],
                "summary": "Reconcile offline-collected results",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UploadResultsRequest"}}
                ],
                "responses": {
                    "200": {"description": "Summary with per-item outcomes", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sync/status/{testCenterId}": {
            "get": {
                "tags": ["Sync"],
                "summary": "Aggregate a center's sync progress",
                "parameters": [
                    {"name": "testCenterId", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sync/status": {
            "put": {
                "tags": ["Sync"],
                "summary": "Manual, audited sync-status override",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid status value"}
                }
            }
        }
    },
    "definitions": {
        "CreatePackageRequest": {
            "type": "object",
            "properties": {
                "test_center_id": {"type": "string"},
                "test_id": {"type": "string"}
            },
            "required": ["test_center_id", "test_id"]
        },
        "ExportPackageRequest": {
            "type": "object",
            "properties": {
                "package_data": {"type": "object"},
                "format": {"type": "string", "enum": ["json", "csv", "sql", "pdf"]},
                "archive": {"type": "boolean"}
            },
            "required": ["package_data", "format"]
        },
        "UploadResult": {
            "type": "object",
            "properties": {
                "enrollment_id": {"type": "string"},
                "student_id": {"type": "string"},
                "test_id": {"type": "string"},
                "answers": {"type": "object"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"},
                "score": {"type": "number"}
            }
        },
        "UploadResultsRequest": {
            "type": "object",
            "properties": {
                "package_id": {"type": "string"},
                "test_center_id": {"type": "string"},
                "results": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/UploadResult"}
                }
            },
            "required": ["package_id", "test_center_id", "results"]
        },
        "SetStatusRequest": {
            "type": "object",
            "properties": {
                "enrollment_ids": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string", "enum": ["registered", "downloaded", "test_taken", "results_uploaded"]}
            },
            "required": ["enrollment_ids", "status"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
