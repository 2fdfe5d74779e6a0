package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Timetable Engine",
        "description": "Timetable generation jobs, curriculum and workload validation, lesson conflict detection",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Timetable", "description": "Solver-backed generation jobs"},
        {"name": "Curriculum", "description": "Hours per term consistency"},
        {"name": "Workload", "description": "Teacher utilisation"},
        {"name": "Lessons", "description": "Conflict checks and manual booking"},
        {"name": "System", "description": "Engine counters"}
    ],
    "paths": {
        "/timetable/generate": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Submit a timetable generation job",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Term already has an active job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Incomplete configuration", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Solver unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Timetable"],
                "summary": "Poll a generation job",
                "parameters": [
                    {"name": "job_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/jobs": {
            "get": {
                "tags": ["Timetable"],
                "summary": "List generation jobs of a term",
                "parameters": [
                    {"name": "term_id", "in": "query", "required": true, "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/jobs/{id}/cancel": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Cancel an active generation job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job already terminal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/jobs/{id}/violations": {
            "get": {
                "tags": ["Timetable"],
                "summary": "List violations recorded for a job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/curriculum/validate": {
            "post": {
                "tags": ["Curriculum"],
                "summary": "Validate periods per week against required hours per term",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateCurriculumRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/curriculum/consistency": {
            "get": {
                "tags": ["Curriculum"],
                "summary": "Curriculum consistency report",
                "parameters": [
                    {"name": "school_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/curriculum/consistency/export": {
            "get": {
                "tags": ["Curriculum"],
                "summary": "Download the consistency report",
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"name": "school_id", "in": "query", "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/teachers/{id}/workload": {
            "get": {
                "tags": ["Workload"],
                "summary": "Teacher workload in a term",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "term_id", "in": "query", "required": true, "type": "string"},
                    {"name": "additional_periods", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons/conflicts": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Check a prospective lesson for conflicts",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LessonConflictRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lessons": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Book a single lesson",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ScheduleLessonRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Conflict or calendar violation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/system/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Engine counters snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Constraint": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "weight": {"type": "number"},
                "parameters": {"type": "object"}
            }
        },
        "GenerateTimetableRequest": {
            "type": "object",
            "required": ["term_id"],
            "properties": {
                "academic_year_id": {"type": "string"},
                "term_id": {"type": "string"},
                "constraints": {"type": "array", "items": {"$ref": "#/definitions/Constraint"}},
                "optimization_goals": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ValidateCurriculumRequest": {
            "type": "object",
            "required": ["periods_per_week"],
            "properties": {
                "periods_per_week": {"type": "integer"},
                "required_hours_per_term": {"type": "number"},
                "period_duration_minutes": {"type": "integer"},
                "weeks_per_term": {"type": "integer"},
                "term_id": {"type": "string"},
                "tolerance_hours": {"type": "number"}
            }
        },
        "LessonConflictRequest": {
            "type": "object",
            "required": ["timeslot_id", "date"],
            "properties": {
                "teacher_id": {"type": "string"},
                "room_id": {"type": "string"},
                "timeslot_id": {"type": "string"},
                "date": {"type": "string", "format": "date"}
            }
        },
        "ScheduleLessonRequest": {
            "type": "object",
            "required": ["teaching_assignment_id", "timeslot_id", "date"],
            "properties": {
                "teaching_assignment_id": {"type": "string"},
                "timeslot_id": {"type": "string"},
                "room_id": {"type": "string"},
                "date": {"type": "string", "format": "date"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
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
