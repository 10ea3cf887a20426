package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Attendance Verification Engine API",
        "description": "QR session issuance, three-factor attendance verification and offline sync.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Lectures", "description": "Lecture lifecycle transitions"},
        {"name": "Sessions", "description": "Encrypted QR session lifecycle"},
        {"name": "Attendance", "description": "Three-factor verification pipeline"},
        {"name": "Sync", "description": "Offline batch upload and conflict resolution"}
    ],
    "paths": {
        "/lectures/{id}": {
            "get": {
                "tags": ["Lectures"],
                "summary": "Load a lecture",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lectures/{id}/start": {
            "post": {
                "tags": ["Lectures"],
                "summary": "Start a scheduled lecture",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not eligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lectures/{id}/end": {
            "post": {
                "tags": ["Lectures"],
                "summary": "End an active lecture",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not eligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lectures/{id}/cancel": {
            "post": {
                "tags": ["Lectures"],
                "summary": "Cancel a lecture",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not eligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lectures/{id}/qr-session": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Issue a QR session for a lecture",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/GenerateSessionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Existing active session returned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Lecture not eligible", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/{sessionId}": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Poll a session's state",
                "parameters": [
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/{sessionId}/revoke": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Revoke an active session",
                "parameters": [
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/SessionNotesRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/{sessionId}/disable": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Disable a session without ending the lecture",
                "parameters": [
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/SessionNotesRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/{sessionId}/extend": {
            "post": {
                "tags": ["Sessions"],
                "summary": "Extend a session's expiry",
                "parameters": [
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExtendSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/qr-sessions/{sessionId}/sheet": {
            "get": {
                "tags": ["Sessions"],
                "summary": "Download the printable session sheet",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "sessionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF file"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/scan": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Submit a verification scan",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Geofence or IP violation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "410": {"description": "Session expired", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/face-score": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Submit a face match score",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FaceScoreRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid score", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/{studentId}/{lectureId}/progress": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Report verification progress",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "lectureId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/exceptional": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record attendance through manual approval",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExceptionalRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/batch-upload": {
            "post": {
                "tags": ["Sync"],
                "summary": "Ingest offline-recorded attendance",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchUploadRequest"}}
                ],
                "responses": {
                    "200": {"description": "Per-record outcomes", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/resolve-conflicts": {
            "post": {
                "tags": ["Sync"],
                "summary": "Resolve named sync conflicts",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveConflictsRequest"}}
                ],
                "responses": {
                    "200": {"description": "Resolved records", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/sync-status": {
            "get": {
                "tags": ["Sync"],
                "summary": "Report synchronisation bookkeeping",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "GenerateSessionRequest": {
            "type": "object",
            "properties": {
                "duration_minutes": {"type": "integer"},
                "max_usage_count": {"type": "integer"},
                "allow_multiple_scans": {"type": "boolean"},
                "ip_allow_list": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ExtendSessionRequest": {
            "type": "object",
            "properties": {
                "extra_minutes": {"type": "integer"}
            },
            "required": ["extra_minutes"]
        },
        "SessionNotesRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "ScanRequest": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "encrypted_payload": {"type": "string"},
                "encoded_key": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "altitude": {"type": "number"},
                "accuracy": {"type": "number"},
                "face_score": {"type": "number"},
                "device_info": {"type": "object"}
            },
            "required": ["session_id", "encrypted_payload", "encoded_key", "latitude", "longitude"]
        },
        "FaceScoreRequest": {
            "type": "object",
            "properties": {
                "lecture_id": {"type": "string"},
                "score": {"type": "number"}
            },
            "required": ["lecture_id"]
        },
        "ExceptionalRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "lecture_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["student_id", "lecture_id", "reason"]
        },
        "OfflineRecord": {
            "type": "object",
            "properties": {
                "local_id": {"type": "string"},
                "student_id": {"type": "string"},
                "lecture_id": {"type": "string"},
                "check_in_time": {"type": "string"},
                "location_verified": {"type": "boolean"},
                "qr_verified": {"type": "boolean"},
                "face_verified": {"type": "boolean"},
                "fix": {"type": "object"}
            },
            "required": ["local_id", "student_id", "lecture_id", "check_in_time"]
        },
        "BatchUploadRequest": {
            "type": "object",
            "properties": {
                "records": {"type": "array", "items": {"$ref": "#/definitions/OfflineRecord"}},
                "strategy": {"type": "string", "enum": ["KEEP_LOCAL", "KEEP_SERVER", "MERGE", "MANUAL_REVIEW"]}
            },
            "required": ["records"]
        },
        "ResolveConflictsRequest": {
            "type": "object",
            "properties": {
                "resolutions": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "local_record": {"$ref": "#/definitions/OfflineRecord"},
                            "strategy": {"type": "string", "enum": ["KEEP_LOCAL", "KEEP_SERVER", "MERGE", "MANUAL_REVIEW"]}
                        }
                    }
                }
            },
            "required": ["resolutions"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
